package pipeline

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-cdn/internal/registry"
	"github.com/any-hub/any-cdn/internal/rewrite"
)

// PackageSource 抽象 Registry 客户端，测试中可以替换为假实现。
type PackageSource interface {
	VersionIndex(ctx context.Context, name string) (*registry.VersionIndex, error)
	Manifest(ctx context.Context, name, version string) (registry.Manifest, error)
	Archive(ctx context.Context, name, version string) (io.ReadCloser, error)
	Invalidate(ctx context.Context, name string)
}

// Options 描述 Handler 的依赖与对外 URL 形态。
type Options struct {
	Source    PackageSource
	Rewriter  *rewrite.Rewriter
	Logger    *logrus.Logger
	BaseURL   string
	AllowList []string
	// RequestID 从请求上下文中取出请求 ID，用于日志关联。
	RequestID func(fiber.Ctx) string
}

// Handler 按固定顺序执行解析、校验、版本解析、文件定位与输出各阶段。
type Handler struct {
	source    PackageSource
	rewriter  *rewrite.Rewriter
	logger    *logrus.Logger
	baseURL   string
	allowList []string
	requestID func(fiber.Ctx) string
}

// New 构造 Handler。
func New(opts Options) (*Handler, error) {
	if opts.Source == nil {
		return nil, errors.New("package source is required")
	}
	if opts.Rewriter == nil {
		return nil, errors.New("rewriter is required")
	}
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	requestID := opts.RequestID
	if requestID == nil {
		requestID = func(fiber.Ctx) string { return "" }
	}
	return &Handler{
		source:    opts.Source,
		rewriter:  opts.Rewriter,
		logger:    opts.Logger,
		baseURL:   opts.BaseURL,
		allowList: opts.AllowList,
		requestID: requestID,
	}, nil
}

// route 是一次请求在各阶段之间传递的状态。
type route struct {
	c        fiber.Ctx
	base     string
	path     string
	query    Query
	pkg      PackagePath
	versions []string
	manifest registry.Manifest
}

func (r *route) spec() string {
	return r.pkg.Spec()
}

// Handle 是挂载在 BaseURL 下的总入口。
func (h *Handler) Handle(c fiber.Ctx) error {
	p, ok := h.stripBase(string(c.Request().URI().PathOriginal()))
	if !ok {
		return sendText(c, fiber.StatusNotFound, "Not Found")
	}
	query := readQuery(c)

	if strings.HasPrefix(p, "/_meta/") {
		query["meta"] = ""
		return redirect(c, fiber.StatusMovedPermanently, h.baseURL+strings.TrimPrefix(p, "/_meta")+query.Search())
	}
	if query.Has("json") {
		delete(query, "json")
		query["meta"] = ""
		return redirect(c, fiber.StatusMovedPermanently, h.baseURL+p+query.Search())
	}

	r := &route{c: c, base: h.baseURL, path: p, query: query}

	if p == "/browse" || strings.HasPrefix(p, "/browse/") {
		r.base = h.baseURL + "/browse"
		r.path = strings.TrimPrefix(p, "/browse")
		if r.path == "" {
			r.path = "/"
		}
		return h.serveBrowse(r)
	}
	if query.Has("meta") {
		return h.serveMeta(r)
	}
	if query.Has("module") {
		return h.serveModuleRoute(r)
	}
	if strings.HasSuffix(p, "/") {
		target := h.baseURL + "/browse" + p
		if raw := c.Request().URI().QueryString(); len(raw) > 0 {
			target += "?" + string(raw)
		}
		return redirect(c, fiber.StatusFound, target)
	}
	return h.serveFileRoute(r)
}

func (h *Handler) stripBase(p string) (string, bool) {
	if h.baseURL == "" {
		return p, true
	}
	if p == h.baseURL {
		return "/", true
	}
	if !strings.HasPrefix(p, h.baseURL+"/") {
		return "", false
	}
	return strings.TrimPrefix(p, h.baseURL), true
}

func readQuery(c fiber.Ctx) Query {
	query := make(Query)
	c.Request().URI().QueryArgs().VisitAll(func(key, value []byte) {
		k := string(key)
		if _, seen := query[k]; seen {
			return
		}
		query[k] = string(value)
	})
	return query
}

// serveFileRoute 处理不带查询参数的普通文件请求。
func (h *Handler) serveFileRoute(r *route) error {
	if len(r.query) > 0 {
		return redirect(r.c, fiber.StatusFound, r.base+r.path)
	}
	if done, err := h.prepare(r, true); done {
		return err
	}
	res, done, err := h.findEntry(r)
	if done {
		return err
	}
	return h.serveFile(r, res)
}

// serveModuleRoute 处理 ?module 请求，输出改写后的模块源码。
func (h *Handler) serveModuleRoute(r *route) error {
	if !r.query.Allows("module") {
		return redirect(r.c, fiber.StatusFound, r.base+r.path+r.query.Only("module").Search())
	}
	if done, err := h.prepare(r, true); done {
		return err
	}
	res, done, err := h.findEntry(r)
	if done {
		return err
	}
	return h.serveModule(r, res)
}

// prepare 依次执行路径解析、包名校验、版本解析；withFilename 为 true 时还会补全缺省文件名。
// 返回 done=true 表示响应已经写出。
func (h *Handler) prepare(r *route, withFilename bool) (bool, error) {
	pkg, err := ParsePathname(r.path)
	if err != nil {
		return true, r.c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "Invalid URL: " + r.path,
		})
	}
	r.pkg = pkg

	if msg, ok := h.validateName(pkg.Name); !ok {
		return true, sendText(r.c, fiber.StatusForbidden, msg)
	}
	if done, err := h.resolveVersion(r); done {
		return true, err
	}
	if withFilename && r.pkg.Filename == "" {
		return true, h.redirectFilename(r)
	}
	return false, nil
}

// fail 记录内部错误并返回 500 文本。
func (h *Handler) fail(r *route, err error, msg string) error {
	h.logger.WithFields(h.fields(r)).WithError(err).Error(msg)
	return sendText(r.c, fiber.StatusInternalServerError, msg)
}

func (h *Handler) fields(r *route) logrus.Fields {
	fields := logrus.Fields{
		"action":   "serve",
		"package":  r.pkg.Name,
		"version":  r.pkg.Version,
		"filename": r.pkg.Filename,
	}
	if id := h.requestID(r.c); id != "" {
		fields["request_id"] = id
	}
	return fields
}

func sendText(c fiber.Ctx, status int, msg string) error {
	c.Set(fiber.HeaderContentType, "text/plain; charset=utf-8")
	return c.Status(status).SendString(msg)
}

func redirect(c fiber.Ctx, status int, location string) error {
	c.Set(fiber.HeaderLocation, location)
	return c.SendStatus(status)
}
