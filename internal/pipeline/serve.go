package pipeline

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/zeebo/xxh3"

	"github.com/any-hub/any-cdn/internal/archive"
	"github.com/any-hub/any-cdn/internal/contenttype"
	"github.com/any-hub/any-cdn/internal/registry"
	"github.com/any-hub/any-cdn/internal/rewrite"
)

// 改写失败时返回给客户端的说明最多保留的字节数。
const maxErrorText = 2048

// findEntry 在包归档中定位请求的文件，必要时重定向或返回 404。
func (h *Handler) findEntry(r *route) (*archive.Entry, bool, error) {
	stream, done, err := h.openArchive(r)
	if done {
		return nil, true, err
	}
	defer stream.Close()

	result, err := archive.Search(stream, r.pkg.Filename)
	if err != nil {
		return nil, true, h.fail(r, err, "Cannot read package "+r.spec())
	}

	resolution := result.Resolve(r.pkg.Filename)
	switch resolution.Outcome {
	case archive.Serve:
		return resolution.Entry, false, nil
	case archive.FileRedirect:
		return nil, true, h.redirectEntry(r, resolution.Entry, "redirect, file-redirect")
	case archive.IndexRedirect:
		return nil, true, h.redirectEntry(r, resolution.Entry, "redirect, index-redirect")
	case archive.MissingIndex:
		return nil, true, sendMissing(r.c, "missing, missing-index",
			fmt.Sprintf("Cannot find an index in %q in %s", r.pkg.Filename, r.spec()))
	default:
		return nil, true, sendMissing(r.c, "missing, missing-entry",
			fmt.Sprintf("Cannot find %q in %s", r.pkg.Filename, r.spec()))
	}
}

// openArchive 打开包归档流；找不到时直接写出 404，其余错误写出 500。
func (h *Handler) openArchive(r *route) (io.ReadCloser, bool, error) {
	stream, err := h.source.Archive(r.c.Context(), r.pkg.Name, r.pkg.Version)
	if err == nil {
		return stream, false, nil
	}
	if errors.Is(err, registry.ErrNotFound) {
		return nil, true, sendText(r.c, fiber.StatusNotFound, "Cannot find package "+r.spec())
	}
	return nil, true, h.fail(r, err, "Cannot fetch package "+r.spec())
}

func (h *Handler) redirectEntry(r *route, entry *archive.Entry, tag string) error {
	r.c.Set(fiber.HeaderCacheControl, cacheForever)
	r.c.Set("Cache-Tag", tag)
	return redirect(r.c, fiber.StatusFound, r.base+PackageURL(r.pkg.Name, r.pkg.Version, entry.Path, r.query))
}

func sendMissing(c fiber.Ctx, tag, msg string) error {
	c.Set(fiber.HeaderCacheControl, cacheForever)
	c.Set("Cache-Tag", tag)
	return sendText(c, fiber.StatusNotFound, msg)
}

// serveFile 原样输出归档中的文件内容。
func (h *Handler) serveFile(r *route, entry *archive.Entry) error {
	ext := contenttype.Extension(entry.Path)
	tag := "file"
	if ext != "" {
		tag += ", " + ext + "-file"
	}

	c := r.c
	c.Set(fiber.HeaderContentType, contenttype.HeaderValue(entry.ContentType))
	c.Set(fiber.HeaderCacheControl, cacheForever)
	setLastModified(c, entry)
	c.Set(fiber.HeaderETag, ETag(entry.Content))
	c.Set("Cache-Tag", tag)
	return c.Status(fiber.StatusOK).Send(entry.Content)
}

// setLastModified 只在归档记录了修改时间时设置 Last-Modified。
func setLastModified(c fiber.Ctx, entry *archive.Entry) {
	if modified := entry.LastModifiedHTTP(); modified != "" {
		c.Set(fiber.HeaderLastModified, modified)
	}
}

// serveModule 把 JavaScript 或 HTML 中的模块说明符改写成本服务的 URL 后输出。
func (h *Handler) serveModule(r *route, entry *archive.Entry) error {
	source := "/" + r.spec() + entry.Path
	deps := r.manifest.Dependencies()

	var (
		code []byte
		err  error
		tag  string
	)
	switch entry.ContentType {
	case contenttype.JavaScript:
		code, err = h.rewriter.JavaScript(source, entry.Content, deps)
		tag = "file, js-file, js-module"
	case contenttype.HTML:
		code, err = h.rewriter.HTML(source, entry.Content, deps)
		tag = "file, html-file, html-module"
	default:
		return sendText(r.c, fiber.StatusForbidden, "module mode is available only for JavaScript and HTML files")
	}
	if err != nil {
		h.logger.WithFields(h.fields(r)).WithError(err).Error("module rewrite failed")
		return sendText(r.c, fiber.StatusInternalServerError, moduleErrorText(r.spec()+r.pkg.Filename, err))
	}

	c := r.c
	c.Set(fiber.HeaderContentType, contenttype.HeaderValue(entry.ContentType))
	c.Set(fiber.HeaderCacheControl, cacheForever)
	setLastModified(c, entry)
	c.Set(fiber.HeaderETag, ETag(code))
	c.Set("Cache-Tag", tag)
	return c.Status(fiber.StatusOK).Send(code)
}

func moduleErrorText(target string, err error) string {
	text := "Cannot generate module for " + target + "\n\n"
	var rwErr *rewrite.Error
	if errors.As(err, &rwErr) {
		text += rwErr.Name + ": " + rwErr.Message
		if rwErr.Frame != "" {
			text += "\n\n" + rwErr.Frame
		}
	} else {
		text += err.Error()
	}
	if len(text) > maxErrorText {
		text = text[:maxErrorText]
	}
	return text
}

// ETag 返回内容长度与 xxh3 摘要组成的强校验值。
func ETag(content []byte) string {
	return `"` + strconv.FormatInt(int64(len(content)), 16) + "-" + strconv.FormatUint(xxh3.Hash(content), 16) + `"`
}
