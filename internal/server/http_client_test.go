package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/perfcache/perfcache/internal/config"
)

func TestNewUpstreamClientUsesConfigTimeout(t *testing.T) {
	cfg := &config.Config{
		Global: config.GlobalConfig{
			UpstreamTimeout: config.Duration(45 * time.Second),
		},
	}

	client := NewUpstreamClient(cfg)
	if client.Timeout != 45*time.Second {
		t.Fatalf("expected timeout 45s, got %s", client.Timeout)
	}
}

func TestNewUpstreamClientInsecureSkipVerify(t *testing.T) {
	upstream := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	strict := NewUpstreamClient(&config.Config{})
	if resp, err := strict.Get(upstream.URL); err == nil {
		resp.Body.Close()
		t.Fatalf("self-signed upstream should be rejected by default")
	}

	lax := NewUpstreamClient(&config.Config{Global: config.GlobalConfig{UpstreamInsecureSkipVerify: true}})
	resp, err := lax.Get(upstream.URL)
	if err != nil {
		t.Fatalf("insecure client should accept self-signed upstream: %v", err)
	}
	resp.Body.Close()
}

func TestNewUpstreamClientDoesNotFollowRedirects(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/moved" {
			http.Redirect(w, r, "/target", http.StatusFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	resp, err := NewUpstreamClient(nil).Get(upstream.URL + "/moved")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected 302 to be returned as-is, got %d", resp.StatusCode)
	}
}

func TestCopyResponseHeadersSkipsHopByHopAndListed(t *testing.T) {
	src := http.Header{}
	src.Add("Connection", "keep-alive")
	src.Add("Keep-Alive", "timeout=5")
	src.Add("Content-Length", "12")
	src.Add("X-Test-Header", "1")
	src.Add("x-test-header", "2")
	src.Add("ETag", `"0x1"`)

	var dst fasthttp.ResponseHeader
	dst.Set("ETag", "stale")
	CopyResponseHeaders(&dst, src, "content-length")

	if len(dst.Peek("Keep-Alive")) != 0 {
		t.Fatalf("keep-alive header should not be copied")
	}
	if dst.ContentLength() == 12 {
		t.Fatalf("listed headers should be skipped")
	}
	if got := string(dst.Peek("ETag")); got != `"0x1"` {
		t.Fatalf("existing header should be replaced, got %q", got)
	}
	values := 0
	dst.VisitAll(func(key, _ []byte) {
		if string(key) == "X-Test-Header" {
			values++
		}
	})
	if values != 2 {
		t.Fatalf("expected 2 values, got %d", values)
	}
}

func TestCopyRequestHeadersOnlyStripsProxyConnection(t *testing.T) {
	src := http.Header{}
	src.Add("Proxy-Connection", "keep-alive")
	src.Add("Connection", "keep-alive")
	src.Add("Authorization", "SharedKey account:sig")
	src.Add("x-ms-date", "Mon, 01 Jan 2024 00:00:00 GMT")

	dst := http.Header{}
	CopyRequestHeaders(dst, src)

	if dst.Get("Proxy-Connection") != "" {
		t.Fatalf("proxy-connection should be stripped")
	}
	for _, key := range []string{"Connection", "Authorization", "X-Ms-Date"} {
		if dst.Get(key) == "" {
			t.Fatalf("%s should be forwarded", key)
		}
	}
}
