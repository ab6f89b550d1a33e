package routes

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
)

type stubStats struct{}

func (stubStats) Registry() string { return "https://registry.example.com" }

func (stubStats) Stats() map[string]int {
	return map[string]int{"versions": 3, "manifests": 1}
}

func TestStatusRouteReportsRegistryAndCaches(t *testing.T) {
	app := fiber.New()
	RegisterStatusRoutes(app, StatusOptions{
		Version:    "any-cdn 0.1.0 (dev)",
		CacheModes: []string{"disk:true"},
		Registry:   stubStats{},
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/-/status", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("期望 200，实际 %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)

	var payload statusPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if payload.Registry != "https://registry.example.com" || payload.Version != "any-cdn 0.1.0 (dev)" {
		t.Fatalf("状态信息错误: %+v", payload)
	}
	if payload.MemoryCache["versions"] != 3 {
		t.Fatalf("缓存统计错误: %+v", payload.MemoryCache)
	}
	if len(payload.DiskCache) != 1 || payload.DiskCache[0] != "disk:true" {
		t.Fatalf("磁盘缓存开关错误: %v", payload.DiskCache)
	}
}

func TestRegisterStatusRoutesIgnoresMissingRegistry(t *testing.T) {
	app := fiber.New()
	RegisterStatusRoutes(app, StatusOptions{})

	resp, err := app.Test(httptest.NewRequest("GET", "/-/status", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("未注册时应返回 404，实际 %d", resp.StatusCode)
	}
}
