// Package exchange holds the request/response shapes passed between the
// listeners, the fingerprint, the response cache and the upstream client.
// Everything here is plain data with no transport attached, so a cached
// response can be replayed to any listener.
package exchange

import (
	"bytes"
	"net/http"
	"strings"
)

// Request is the decoded form of one inbound request.
type Request struct {
	Method string
	// Scheme is the scheme the caller used to reach the listener (http/https).
	Scheme string
	// Host is the request authority, optionally carrying a port.
	Host     string
	Path     string
	RawQuery string
	Proto    string
	Header   http.Header
	// Body is only forwarded when ContentLength is positive.
	Body          []byte
	ContentLength int64
}

// URI renders the absolute request URI used for tracing.
func (r Request) URI() string {
	var b strings.Builder
	if r.Scheme != "" {
		b.WriteString(r.Scheme)
		b.WriteString("://")
	}
	b.WriteString(r.Host)
	if !strings.HasPrefix(r.Path, "/") {
		b.WriteByte('/')
	}
	b.WriteString(r.Path)
	if r.RawQuery != "" {
		b.WriteByte('?')
		b.WriteString(r.RawQuery)
	}
	return b.String()
}

// Response is a fully materialized upstream response.
// Once stored in the cache it is never modified; readers get copies.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Clone returns a deep copy so callers cannot mutate a cached entry.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	return &Response{
		StatusCode: r.StatusCode,
		Header:     r.Header.Clone(),
		Body:       bytes.Clone(r.Body),
	}
}
