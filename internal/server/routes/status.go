package routes

import (
	"github.com/gofiber/fiber/v3"
)

// RegistryStats 由 Registry 客户端实现，提供上游地址与内存缓存条目数。
type RegistryStats interface {
	Registry() string
	Stats() map[string]int
}

// StatusOptions 汇总 /-/status 接口需要展示的信息。
type StatusOptions struct {
	Version    string
	BaseURL    string
	CacheModes []string
	Registry   RegistryStats
}

// RegisterStatusRoutes 暴露 /-/status 诊断接口，供 SRE 查看上游与缓存状态。
func RegisterStatusRoutes(app *fiber.App, opts StatusOptions) {
	if app == nil || opts.Registry == nil {
		return
	}

	app.Get("/-/status", func(c fiber.Ctx) error {
		c.Set(fiber.HeaderCacheControl, "no-store")
		return c.JSON(statusPayload{
			Version:     opts.Version,
			Registry:    opts.Registry.Registry(),
			BaseURL:     opts.BaseURL,
			MemoryCache: opts.Registry.Stats(),
			DiskCache:   opts.CacheModes,
		})
	})
}

type statusPayload struct {
	Version     string         `json:"version"`
	Registry    string         `json:"registry"`
	BaseURL     string         `json:"base_url"`
	MemoryCache map[string]int `json:"memory_cache"`
	DiskCache   []string       `json:"disk_cache"`
}
