package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/perfcache/perfcache/internal/exchange"
	"github.com/perfcache/perfcache/internal/server"
)

// ErrUpstream 包装所有回源失败（连接、DNS、超时、读取正文），调用方据此返回 502。
var ErrUpstream = errors.New("upstream request failed")

// Forwarder 把请求转发到上游并返回完整响应。
type Forwarder interface {
	Forward(ctx context.Context, req exchange.Request) (*exchange.Response, error)
}

// Upstream 是指向固定上游地址的 Forwarder，底层共享同一个连接池 http.Client。
type Upstream struct {
	client *http.Client
	base   *url.URL
}

// NewUpstream 构造上游客户端。base 只使用 scheme 与 host。
func NewUpstream(client *http.Client, base *url.URL) (*Upstream, error) {
	if client == nil {
		return nil, errors.New("http client is required")
	}
	if base == nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.New("upstream base url requires scheme and host")
	}
	return &Upstream{
		client: client,
		base:   &url.URL{Scheme: base.Scheme, Host: base.Host},
	}, nil
}

// Forward 以原始方法、路径、查询串请求上游。请求头除 Proxy-Connection 外全部透传，
// Host 改写为上游主机；只有 Content-Length 为正时才附带请求体。
func (u *Upstream) Forward(ctx context.Context, req exchange.Request) (*exchange.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	var body io.Reader = http.NoBody
	if req.ContentLength > 0 {
		body = bytes.NewReader(req.Body)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target := u.targetURL(req)
	outbound, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%w: build request %s: %v", ErrUpstream, target, err)
	}
	if req.ContentLength > 0 {
		outbound.ContentLength = int64(len(req.Body))
	}
	server.CopyRequestHeaders(outbound.Header, req.Header)
	outbound.Host = u.base.Host

	resp, err := u.client.Do(outbound)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUpstream, err)
	}

	return &exchange.Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       payload,
	}, nil
}

func (u *Upstream) targetURL(req exchange.Request) string {
	var b strings.Builder
	b.WriteString(u.base.Scheme)
	b.WriteString("://")
	b.WriteString(u.base.Host)
	if !strings.HasPrefix(req.Path, "/") {
		b.WriteByte('/')
	}
	b.WriteString(req.Path)
	if req.RawQuery != "" {
		b.WriteByte('?')
		b.WriteString(req.RawQuery)
	}
	return b.String()
}
