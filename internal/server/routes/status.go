package routes

import (
	"github.com/gofiber/fiber/v3"

	"github.com/perfcache/perfcache/internal/cache"
	"github.com/perfcache/perfcache/internal/server"
	"github.com/perfcache/perfcache/internal/service"
	"github.com/perfcache/perfcache/internal/version"
)

// StatsSource 提供缓存计数快照，通常是共享的 *cache.Store。
type StatsSource interface {
	Stats() cache.Stats
}

// RegisterStatusRoutes 暴露 /-/status 诊断接口：版本、监听端口、上游与缓存计数。
// 该路径既不进入缓存也不会被转发。
func RegisterStatusRoutes(app *fiber.App, route *server.Route, stats StatsSource) {
	if app == nil || route == nil || stats == nil {
		return
	}

	app.Get("/-/status", func(c fiber.Ctx) error {
		return c.JSON(buildStatus(route, stats.Stats()))
	})
}

type statusPayload struct {
	Version  string         `json:"version"`
	Listener string         `json:"listener"`
	Upstream string         `json:"upstream"`
	Service  servicePayload `json:"service"`
	Cache    cache.Stats    `json:"cache"`
	Services []string       `json:"available_services"`
}

type servicePayload struct {
	Key             string   `json:"key"`
	Description     string   `json:"description"`
	CacheKeyHeaders []string `json:"cache_key_headers"`
}

func buildStatus(route *server.Route, stats cache.Stats) statusPayload {
	upstream := ""
	if route.UpstreamURL != nil {
		upstream = route.UpstreamURL.String()
	}
	headers := route.Service.CacheKeyHeaders
	if headers == nil {
		headers = []string{}
	}
	return statusPayload{
		Version:  version.Full(),
		Listener: route.Name(),
		Upstream: upstream,
		Service: servicePayload{
			Key:             route.Service.Key,
			Description:     route.Service.Description,
			CacheKeyHeaders: headers,
		},
		Cache:    stats,
		Services: service.Keys(),
	}
}
