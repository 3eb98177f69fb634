// Package fingerprint derives the cache key of an inbound request.
//
// A Fingerprint is a comparable value built from the scheme, authority, path
// and query of the request plus the values of a small allow-list of headers.
// Every other header is ignored, so requests that differ only in timestamps,
// signatures or client request ids share one cache entry.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/perfcache/perfcache/internal/exchange"
)

// HeaderPair is one allow-listed header captured in a fingerprint.
// Multiple values are joined the way they appear on the wire.
type HeaderPair struct {
	Name  string
	Value string
}

// Fingerprint is safe to use as a map key: all fields are comparable and the
// selected headers are kept in an encoded string.
type Fingerprint struct {
	Scheme  string
	Host    string
	Port    int
	HasPort bool
	Path    string
	Query   string
	headers string
}

// Compute builds the fingerprint of req. Only headers named in allowed take
// part, in allow-list order, so the order in which the caller sent them does
// not matter. Absent headers are skipped; a header sent with an empty value
// is still recorded.
func Compute(req exchange.Request, allowed []string) Fingerprint {
	host, port, hasPort := splitAuthority(req.Host)
	path := req.Path
	if path == "" {
		path = "/"
	}

	return Fingerprint{
		Scheme:  strings.ToLower(req.Scheme),
		Host:    host,
		Port:    port,
		HasPort: hasPort,
		Path:    path,
		Query:   req.RawQuery,
		headers: encodeHeaders(req, allowed),
	}
}

// Headers decodes the allow-listed headers captured in the fingerprint.
func (f Fingerprint) Headers() []HeaderPair {
	var pairs []HeaderPair
	rest := f.headers
	for rest != "" {
		var name, value string
		var ok bool
		if name, rest, ok = readField(rest); !ok {
			return pairs
		}
		if value, rest, ok = readField(rest); !ok {
			return pairs
		}
		pairs = append(pairs, HeaderPair{Name: name, Value: value})
	}
	return pairs
}

// Key returns a stable hex digest of the whole fingerprint, used for
// single-flight grouping and log correlation.
func (f Fingerprint) Key() string {
	var b strings.Builder
	writeField(&b, f.Scheme)
	writeField(&b, f.Host)
	if f.HasPort {
		writeField(&b, strconv.Itoa(f.Port))
	} else {
		writeField(&b, "")
	}
	writeField(&b, f.Path)
	writeField(&b, f.Query)
	b.WriteString(f.headers)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func encodeHeaders(req exchange.Request, allowed []string) string {
	if len(allowed) == 0 || len(req.Header) == 0 {
		return ""
	}
	var b strings.Builder
	seen := make(map[string]struct{}, len(allowed))
	for _, name := range allowed {
		canonical := textproto.CanonicalMIMEHeaderKey(name)
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}

		values := req.Header.Values(canonical)
		if len(values) == 0 {
			continue
		}
		writeField(&b, canonical)
		writeField(&b, strings.Join(values, ", "))
	}
	return b.String()
}

// writeField length-prefixes s so that the encoding stays unambiguous for
// values containing any byte.
func writeField(b *strings.Builder, s string) {
	b.WriteString(strconv.Itoa(len(s)))
	b.WriteByte(':')
	b.WriteString(s)
}

func readField(s string) (string, string, bool) {
	idx := strings.IndexByte(s, ':')
	if idx <= 0 {
		return "", "", false
	}
	n, err := strconv.Atoi(s[:idx])
	if err != nil || n < 0 || idx+1+n > len(s) {
		return "", "", false
	}
	return s[idx+1 : idx+1+n], s[idx+1+n:], true
}

// splitAuthority separates host and optional port. Host is lower-cased and a
// trailing dot is dropped.
func splitAuthority(raw string) (string, int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", 0, false
	}

	host := raw
	port := 0
	hasPort := false

	if strings.Contains(raw, ":") {
		if h, p, err := net.SplitHostPort(raw); err == nil {
			if parsed, err := strconv.Atoi(p); err == nil {
				host = h
				port = parsed
				hasPort = true
			}
		} else if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
			host = raw[1 : len(raw)-1]
		}
	}

	host = strings.TrimSuffix(host, ".")
	host = strings.ToLower(host)
	return host, port, hasPort
}
