package pipeline

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/any-cdn/internal/registry"
	"github.com/any-hub/any-cdn/internal/versions"
)

const (
	cacheForever        = "public, max-age=31536000"
	cacheSemverRedirect = "public, s-maxage=600, max-age=60"
)

var leadingDots = regexp.MustCompile(`^[./]*`)

// validateName 检查包名；失败时返回给客户端的说明文字。
func (h *Handler) validateName(name string) (string, bool) {
	if registry.IsHash(name) {
		return fmt.Sprintf("Invalid package name %q (cannot be a hash)", name), false
	}
	reasons := registry.ValidateName(name)
	if len(h.allowList) > 0 && !h.allowed(name) {
		reasons = append(reasons, "forbidden")
	}
	if len(reasons) > 0 {
		return fmt.Sprintf("Invalid package name %q (%s)", name, strings.Join(reasons, ", ")), false
	}
	return "", true
}

func (h *Handler) allowed(name string) bool {
	for _, item := range h.allowList {
		if strings.Contains(name, item) {
			return true
		}
	}
	return false
}

// resolveVersion 把标签或范围解析为具体版本，版本变化时发出短缓存的重定向，否则加载 manifest。
func (h *Handler) resolveVersion(r *route) (bool, error) {
	ctx := r.c.Context()
	spec := r.spec()

	index, err := h.source.VersionIndex(ctx, r.pkg.Name)
	if err != nil && !errors.Is(err, registry.ErrNotFound) {
		return true, h.fail(r, err, "Cannot get versions for package "+spec)
	}

	var resolved string
	if index != nil {
		resolved, err = versions.Resolve(index.Versions, index.Tags, r.pkg.Version)
	}
	if index == nil {
		// 包本身不存在时保留负缓存，避免每个请求都打到上游。
		return true, sendText(r.c, fiber.StatusNotFound, "Cannot find package "+spec)
	}
	if err != nil {
		// 新发布的版本可能尚未进入缓存，丢弃版本索引后下一次请求会重新拉取。
		h.source.Invalidate(ctx, r.pkg.Name)
		return true, sendText(r.c, fiber.StatusNotFound, "Cannot find package "+spec)
	}

	if resolved != r.pkg.Version {
		r.c.Set(fiber.HeaderCacheControl, cacheSemverRedirect)
		r.c.Set("Cache-Tag", "redirect, semver-redirect")
		return true, redirect(r.c, fiber.StatusFound, r.base+PackageURL(r.pkg.Name, resolved, r.pkg.Filename, r.query))
	}

	manifest, err := h.source.Manifest(ctx, r.pkg.Name, resolved)
	if err != nil {
		return true, h.fail(r, err, "Cannot get config for package "+spec)
	}
	r.versions = index.Versions
	r.manifest = manifest
	return false, nil
}

// redirectFilename 根据 manifest 字段补全缺省文件名。
func (h *Handler) redirectFilename(r *route) error {
	filename, ok := entryFilename(r.manifest, r.query)
	if !ok {
		return sendText(r.c, fiber.StatusNotFound, fmt.Sprintf("Package %s does not contain an ES module", r.spec()))
	}
	filename = leadingDots.ReplaceAllString(filename, "/")

	r.c.Set(fiber.HeaderCacheControl, cacheForever)
	r.c.Set("Cache-Tag", "redirect, filename-redirect")
	return redirect(r.c, fiber.StatusFound, r.base+PackageURL(r.pkg.Name, r.pkg.Version, filename, r.query))
}

// entryFilename 依次尝试 ?module、?main、unpkg、browser、main 字段，最后回退到 /index.js。
// ?module 请求找不到 ES 模块入口时返回 false。
func entryFilename(manifest registry.Manifest, query Query) (string, bool) {
	if query.Has("module") {
		return moduleFilename(manifest)
	}
	if field, ok := query["main"]; ok && field != "" {
		if value, ok := manifest.String(field); ok && value != "" {
			return value, true
		}
	}
	for _, field := range []string{"unpkg", "browser"} {
		if value, ok := manifest.String(field); ok && value != "" {
			return value, true
		}
	}
	return mainFilename(manifest), true
}

func moduleFilename(manifest registry.Manifest) (string, bool) {
	for _, field := range []string{"module", "jsnext:main"} {
		if value, ok := manifest.String(field); ok && value != "" {
			return value, true
		}
	}
	if kind, _ := manifest.String("type"); kind == "module" {
		return mainFilename(manifest), true
	}
	if main, ok := manifest.String("main"); ok && strings.HasSuffix(main, ".mjs") {
		return main, true
	}
	return "", false
}

func mainFilename(manifest registry.Manifest) string {
	if main, ok := manifest.String("main"); ok && main != "" {
		return main
	}
	return "/index.js"
}
