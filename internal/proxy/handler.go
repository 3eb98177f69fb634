package proxy

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/perfcache/perfcache/internal/cache"
	"github.com/perfcache/perfcache/internal/config"
	"github.com/perfcache/perfcache/internal/exchange"
	"github.com/perfcache/perfcache/internal/fingerprint"
	"github.com/perfcache/perfcache/internal/logging"
	"github.com/perfcache/perfcache/internal/server"
)

// Options 汇总 Handler 的依赖，缓存实例由调用方在启动时创建并注入。
type Options struct {
	Upstream   Forwarder
	Cache      *cache.Store
	Logger     *logrus.Logger
	Progress   *logging.Progress
	ReplayMode config.ReplayMode
}

// Handler 负责 “指纹 → 查缓存 → 回源写缓存 → 回放” 的全流程，
// 两个监听端口共用同一个 Handler，因此共用同一份缓存。
type Handler struct {
	upstream Forwarder
	cache    *cache.Store
	logger   *logrus.Logger
	progress *logging.Progress
	replay   config.ReplayMode
}

// Result 是一次请求的处理结果。
type Result struct {
	Response    *exchange.Response
	CacheHit    bool
	Fingerprint fingerprint.Fingerprint
}

// NewHandler constructs a proxy handler with shared upstream/cache/logger.
func NewHandler(opts Options) (*Handler, error) {
	if opts.Upstream == nil {
		return nil, errors.New("upstream is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("cache is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	replay := opts.ReplayMode
	if replay == "" {
		replay = config.ReplayModeFull
	}
	return &Handler{
		upstream: opts.Upstream,
		cache:    opts.Cache,
		logger:   opts.Logger,
		progress: opts.Progress,
		replay:   replay,
	}, nil
}

// Serve 计算指纹并查缓存，未命中时回源并写入缓存（HEAD 只读缓存不写入）。回源失败时缓存保持不变，
// 返回的错误包装 ErrUpstream。
func (h *Handler) Serve(ctx context.Context, route *server.Route, req exchange.Request) (Result, error) {
	var allowed []string
	if route != nil {
		allowed = route.Service.CacheKeyHeaders
	}
	fp := fingerprint.Compute(req, allowed)

	lookup := h.cache.Fetch
	if req.Method == http.MethodHead {
		// 指纹不含方法，HEAD 的空正文若写入缓存会被之后的 GET 命中。
		lookup = h.cache.Pass
	}
	resp, hit, err := lookup(ctx, fp, func(ctx context.Context) (*exchange.Response, error) {
		return h.upstream.Forward(ctx, req)
	})
	if err != nil {
		return Result{Fingerprint: fp}, err
	}
	return Result{Response: resp, CacheHit: hit, Fingerprint: fp}, nil
}

// Handle 是挂在 Fiber 上的入口：解码请求、执行 Serve，并按 ReplayMode 写回响应。
func (h *Handler) Handle(c fiber.Ctx, route *server.Route) error {
	started := time.Now()
	requestID := server.RequestID(c)
	req := DecodeRequest(c)

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := h.Serve(ctx, route, req)
	if err != nil {
		h.progress.Record(req.Method, req.URI(), req.Proto, logging.OutcomeFailed)
		h.logResult(route, req, result, requestID, started, err)
		// 回源失败时不缓存、不重试，直接断开连接。
		c.Response().SetConnectionClose()
		return h.writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}

	outcome := logging.OutcomeMiss
	if result.CacheHit {
		outcome = logging.OutcomeHit
	}
	h.progress.Record(req.Method, req.URI(), req.Proto, outcome)
	h.logResult(route, req, result, requestID, started, nil)

	return h.writeResponse(c, req, result, requestID)
}

func (h *Handler) writeResponse(c fiber.Ctx, req exchange.Request, result Result, requestID string) error {
	resp := result.Response
	if h.replay == config.ReplayModeBody {
		return c.Status(fiber.StatusOK).Send(resp.Body)
	}

	// Content-Length 与 Date 由 fasthttp 按实际写出的正文重新生成。
	server.CopyResponseHeaders(&c.Response().Header, resp.Header, "Content-Length", "Date")
	c.Set("X-Perfcache-Cache-Hit", strconv.FormatBool(result.CacheHit))
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	c.Status(resp.StatusCode)

	if req.Method == http.MethodHead {
		if err := c.Send(nil); err != nil {
			return err
		}
		if length, err := strconv.Atoi(resp.Header.Get("Content-Length")); err == nil && length >= 0 {
			c.Response().Header.SetContentLength(length)
		}
		return nil
	}
	return c.Send(resp.Body)
}

func (h *Handler) writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func (h *Handler) logResult(
	route *server.Route,
	req exchange.Request,
	result Result,
	requestID string,
	started time.Time,
	err error,
) {
	listener := ""
	upstream := ""
	if route != nil {
		listener = route.Name()
		if route.UpstreamURL != nil {
			upstream = route.UpstreamURL.String()
		}
	}

	fields := logging.RequestFields(listener, req.Method, req.URI(), result.Fingerprint.Key(), result.CacheHit)
	fields["action"] = "proxy"
	fields["upstream"] = upstream
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if result.Response != nil {
		fields["upstream_status"] = result.Response.StatusCode
	}
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("proxy_failed")
		return
	}
	if result.CacheHit {
		h.logger.WithFields(fields).Info("cache_hit")
		return
	}
	h.logger.WithFields(fields).Info("cache_miss")
}
