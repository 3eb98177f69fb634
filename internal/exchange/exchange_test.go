package exchange

import (
	"net/http"
	"testing"
)

func TestRequestURI(t *testing.T) {
	testCases := []struct {
		name string
		req  Request
		want string
	}{
		{"with query", Request{Scheme: "https", Host: "localhost:7778", Path: "/c/b", RawQuery: "comp=list"}, "https://localhost:7778/c/b?comp=list"},
		{"no query", Request{Scheme: "http", Host: "localhost", Path: "/c/b"}, "http://localhost/c/b"},
		{"relative path", Request{Scheme: "http", Host: "localhost", Path: "c"}, "http://localhost/c"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.req.URI(); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestResponseCloneIsDeep(t *testing.T) {
	original := &Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Etag": []string{`"0x1"`}},
		Body:       []byte("payload"),
	}
	clone := original.Clone()
	clone.Body[0] = 'P'
	clone.Header.Set("Etag", "changed")

	if string(original.Body) != "payload" {
		t.Fatalf("clone body shares memory with original: %s", original.Body)
	}
	if original.Header.Get("Etag") != `"0x1"` {
		t.Fatalf("clone header shares memory with original")
	}
	if (*Response)(nil).Clone() != nil {
		t.Fatalf("nil clone should be nil")
	}
}
