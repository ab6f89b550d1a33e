package pipeline

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/any-cdn/internal/archive"
	"github.com/any-hub/any-cdn/internal/versions"
)

// serveMeta 处理 ?meta 请求：文件返回单条元数据，目录（以 / 结尾）返回递归元数据。
func (h *Handler) serveMeta(r *route) error {
	if !r.query.Allows("meta") {
		return redirect(r.c, fiber.StatusFound, r.base+r.path+r.query.Only("meta").Search())
	}
	if done, err := h.prepare(r, true); done {
		return err
	}
	stream, done, err := h.openArchive(r)
	if done {
		return err
	}
	defer stream.Close()

	filename := r.pkg.Filename
	if strings.HasSuffix(filename, "/") {
		scope := strings.TrimSuffix(filename, "/")
		if scope == "" {
			scope = "/"
		}
		entries, err := archive.Tree(stream, scope)
		if err != nil {
			return h.fail(r, err, "Cannot read package "+r.spec())
		}
		r.c.Set(fiber.HeaderCacheControl, cacheForever)
		return r.c.JSON(archive.BuildMetadata(scope, entries))
	}

	entry, err := archive.Stat(stream, filename)
	if errors.Is(err, archive.ErrNotFound) {
		return r.c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Cannot find \"" + filename + "\" in " + r.spec(),
		})
	}
	if err != nil {
		return h.fail(r, err, "Cannot read package "+r.spec())
	}
	r.c.Set(fiber.HeaderCacheControl, cacheForever)
	return r.c.JSON(archive.FileMetadata(entry))
}

// browseItem 是目录浏览结果中的一项。
type browseItem struct {
	Path         string       `json:"path"`
	Type         archive.Kind `json:"type"`
	ContentType  string       `json:"contentType,omitempty"`
	Language     string       `json:"language,omitempty"`
	Integrity    string       `json:"integrity,omitempty"`
	Size         int64        `json:"size,omitempty"`
	LastModified string       `json:"lastModified,omitempty"`
}

type browseDirectory struct {
	Path        string       `json:"path"`
	Type        archive.Kind `json:"type"`
	HasParent   bool         `json:"hasParent"`
	Directories []browseItem `json:"directories"`
	Files       []browseItem `json:"files"`
}

type browseResponse struct {
	PackageName       string   `json:"packageName"`
	PackageVersion    string   `json:"packageVersion"`
	AvailableVersions []string `json:"availableVersions"`
	Filename          string   `json:"filename"`
	Target            any      `json:"target"`
}

// serveBrowse 处理 /browse 下的目录列表与文件详情。
func (h *Handler) serveBrowse(r *route) error {
	if len(r.query) > 0 {
		return redirect(r.c, fiber.StatusFound, r.base+r.path)
	}
	if done, err := h.prepare(r, false); done {
		return err
	}
	stream, done, err := h.openArchive(r)
	if done {
		return err
	}
	defer stream.Close()

	resp := browseResponse{
		PackageName:       r.pkg.Name,
		PackageVersion:    r.pkg.Version,
		AvailableVersions: versions.Sort(r.versions),
		Filename:          r.pkg.Filename,
	}
	notFound := "Not found: " + r.spec() + r.pkg.Filename

	if strings.HasSuffix(r.path, "/") {
		dir := strings.TrimSuffix(r.pkg.Filename, "/")
		if dir == "" {
			dir = "/"
		}
		listing, err := archive.List(stream, dir)
		if errors.Is(err, archive.ErrNotFound) {
			return sendText(r.c, fiber.StatusNotFound, notFound)
		}
		if err != nil {
			return h.fail(r, err, "Cannot read package "+r.spec())
		}
		resp.Target = browseDirectory{
			Path:        listing.Path,
			Type:        archive.Directory,
			HasParent:   listing.HasParent,
			Directories: browseItems(listing.Directories),
			Files:       browseItems(listing.Files),
		}
	} else {
		entry, err := archive.Stat(stream, r.pkg.Filename)
		if errors.Is(err, archive.ErrNotFound) {
			return sendText(r.c, fiber.StatusNotFound, notFound)
		}
		if err != nil {
			return h.fail(r, err, "Cannot read package "+r.spec())
		}
		resp.Target = browseFile(entry)
	}

	r.c.Set(fiber.HeaderCacheControl, "public, max-age=14400")
	r.c.Set("Cache-Tag", "browse")
	return r.c.JSON(resp)
}

func browseItems(entries []*archive.Entry) []browseItem {
	items := make([]browseItem, 0, len(entries))
	for _, entry := range entries {
		if entry.Type == archive.Directory {
			items = append(items, browseItem{Path: entry.Path, Type: archive.Directory})
			continue
		}
		items = append(items, browseFile(entry))
	}
	return items
}

func browseFile(entry *archive.Entry) browseItem {
	return browseItem{
		Path:         entry.Path,
		Type:         archive.File,
		ContentType:  entry.ContentType,
		Language:     entry.Language,
		Integrity:    entry.Integrity,
		Size:         entry.Size,
		LastModified: entry.LastModifiedHTTP(),
	}
}
