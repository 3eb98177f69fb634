package server

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/textproto"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/perfcache/perfcache/internal/config"
)

// Shared HTTP transport tunings，复用长连接并集中配置超时。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   100,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// NewUpstreamClient 返回共享 http.Client，用于所有上游请求。
// 重定向不跟随，直接把 3xx 响应交给调用方缓存与回放。
func NewUpstreamClient(cfg *config.Config) *http.Client {
	timeout := 100 * time.Second
	insecure := false
	if cfg != nil {
		if cfg.Global.UpstreamTimeout.DurationValue() > 0 {
			timeout = cfg.Global.UpstreamTimeout.DurationValue()
		}
		insecure = cfg.Global.UpstreamInsecureSkipVerify
	}

	transport := defaultTransport.Clone()
	if insecure {
		// 仅用于自签名证书的测试上游。
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// hopByHopHeaders 定义 RFC 7230 中禁止代理转发的头部。
var hopByHopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
	"Proxy-Connection":    {}, // 非标准字段，但部分代理仍使用
}

// CopyResponseHeaders 把缓存的上游响应头回放到 fasthttp 响应上，忽略 hop-by-hop 字段
// 以及 skip 中列出的字段。同名头先清空再按原顺序追加，保留多值。
func CopyResponseHeaders(dst *fasthttp.ResponseHeader, src http.Header, skip ...string) {
	for key, values := range src {
		if isHopByHopHeader(key) || containsHeader(skip, key) {
			continue
		}
		dst.Del(key)
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

func containsHeader(names []string, key string) bool {
	canonical := textproto.CanonicalMIMEHeaderKey(key)
	for _, name := range names {
		if textproto.CanonicalMIMEHeaderKey(name) == canonical {
			return true
		}
	}
	return false
}

// CopyRequestHeaders 把入站请求头原样复制到上游请求，只剔除 Proxy-Connection。
func CopyRequestHeaders(dst, src http.Header) {
	for key, values := range src {
		if textproto.CanonicalMIMEHeaderKey(key) == "Proxy-Connection" {
			continue
		}
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

func isHopByHopHeader(key string) bool {
	canonical := textproto.CanonicalMIMEHeaderKey(key)
	if _, ok := hopByHopHeaders[canonical]; ok {
		return true
	}

	return false
}

// IsHopByHopHeader reports whether the header should be stripped by proxies.
func IsHopByHopHeader(key string) bool {
	return isHopByHopHeader(key)
}
