package server

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/perfcache/perfcache/internal/config"
	"github.com/perfcache/perfcache/internal/service"
)

// ListenerKind 标识请求从哪个监听端口进入。
type ListenerKind string

const (
	ListenerPlain ListenerKind = "http"
	ListenerTLS   ListenerKind = "https"
)

// Route 聚合单个监听端口的静态属性（上游地址、服务标签等），启动时解析一次，
// 代理层直接复用，避免每个请求重复解析配置。
type Route struct {
	// Listener 表示监听类型，同时也是调用方访问该端口使用的 scheme。
	Listener   ListenerKind
	ListenPort int
	// UpstreamURL 只包含 scheme 与 host，请求路径和查询串原样拼接。
	UpstreamURL *url.URL
	// Service 决定哪些请求头参与缓存指纹。
	Service service.Profile
}

// Scheme 返回调用方访问该监听端口使用的 scheme。
func (r *Route) Scheme() string {
	return string(r.Listener)
}

// Name 用于日志与诊断输出，例如 "https:7778"。
func (r *Route) Name() string {
	return fmt.Sprintf("%s:%d", r.Listener, r.ListenPort)
}

// NewRoute 根据配置构建指定监听端口的 Route。
func NewRoute(cfg *config.Config, kind ListenerKind) (*Route, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	port := cfg.Global.ListenPort
	if kind == ListenerTLS {
		if !cfg.Global.TLSEnabled() {
			return nil, errors.New("tls listener is disabled")
		}
		port = cfg.Global.TLSListenPort
	}

	upstreamURL, err := url.Parse(cfg.Global.Upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream %s: %w", cfg.Global.Upstream, err)
	}
	if upstreamURL.Scheme == "" || upstreamURL.Host == "" {
		return nil, fmt.Errorf("invalid upstream %s: scheme and host required", cfg.Global.Upstream)
	}

	return &Route{
		Listener:    kind,
		ListenPort:  port,
		UpstreamURL: &url.URL{Scheme: upstreamURL.Scheme, Host: upstreamURL.Host},
		Service:     service.Resolve(cfg.Global.Service),
	}, nil
}

// NewRoutes 返回当前配置启用的全部监听端口，TLS 关闭时只包含明文端口。
func NewRoutes(cfg *config.Config) ([]*Route, error) {
	plain, err := NewRoute(cfg, ListenerPlain)
	if err != nil {
		return nil, err
	}
	routes := []*Route{plain}
	if cfg.Global.TLSEnabled() {
		secure, err := NewRoute(cfg, ListenerTLS)
		if err != nil {
			return nil, err
		}
		routes = append(routes, secure)
	}
	return routes, nil
}
