package routes

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/perfcache/perfcache/internal/cache"
	"github.com/perfcache/perfcache/internal/server"
	"github.com/perfcache/perfcache/internal/service"
)

type fixedStats cache.Stats

func (f fixedStats) Stats() cache.Stats { return cache.Stats(f) }

func TestStatusRouteReportsListenerAndCache(t *testing.T) {
	route := &server.Route{
		Listener:    server.ListenerTLS,
		ListenPort:  7778,
		UpstreamURL: &url.URL{Scheme: "https", Host: "perfaccount.blob.core.windows.net"},
		Service:     service.Resolve("blob"),
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	proxyCalled := false
	app, err := server.NewApp(server.AppOptions{
		Logger: logger,
		Route:  route,
		Proxy: server.ProxyHandlerFunc(func(c fiber.Ctx, _ *server.Route) error {
			proxyCalled = true
			return c.SendStatus(fiber.StatusTeapot)
		}),
	})
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	RegisterStatusRoutes(app, route, fixedStats{Entries: 2, Hits: 5, Misses: 2, UpstreamCalls: 2})

	resp, err := app.Test(httptest.NewRequest("GET", "http://localhost:7778/-/status", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if proxyCalled {
		t.Fatalf("status route must not be proxied")
	}

	var payload statusPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Listener != "https:7778" {
		t.Fatalf("unexpected listener %s", payload.Listener)
	}
	if payload.Upstream != "https://perfaccount.blob.core.windows.net" {
		t.Fatalf("unexpected upstream %s", payload.Upstream)
	}
	if payload.Service.Key != "blob" || len(payload.Service.CacheKeyHeaders) != 2 {
		t.Fatalf("unexpected service %+v", payload.Service)
	}
	if payload.Cache.Entries != 2 || payload.Cache.Hits != 5 || payload.Cache.UpstreamCalls != 2 {
		t.Fatalf("unexpected cache stats %+v", payload.Cache)
	}
	if len(payload.Services) < 3 {
		t.Fatalf("expected builtin services listed, got %v", payload.Services)
	}
}

func TestBuildStatusDefaultServiceHasEmptyHeaders(t *testing.T) {
	route := &server.Route{Listener: server.ListenerPlain, ListenPort: 7777, Service: service.Resolve("")}
	payload := buildStatus(route, cache.Stats{})
	if payload.Service.CacheKeyHeaders == nil || len(payload.Service.CacheKeyHeaders) != 0 {
		t.Fatalf("default service should report an empty header list")
	}
	if payload.Upstream != "" {
		t.Fatalf("missing upstream should render empty")
	}
}
