package pipeline

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-cdn/internal/registry"
	"github.com/any-hub/any-cdn/internal/rewrite"
)

type fakePackage struct {
	index     registry.VersionIndex
	manifests map[string]registry.Manifest
	files     map[string]map[string]string
	// 为 true 时归档条目不带修改时间。
	noModTime bool
}

type fakeSource struct {
	mu          sync.Mutex
	packages    map[string]*fakePackage
	invalidated []string
}

func (f *fakeSource) VersionIndex(_ context.Context, name string) (*registry.VersionIndex, error) {
	pkg, ok := f.packages[name]
	if !ok {
		return nil, registry.ErrNotFound
	}
	return &pkg.index, nil
}

func (f *fakeSource) Manifest(_ context.Context, name, version string) (registry.Manifest, error) {
	pkg, ok := f.packages[name]
	if !ok {
		return nil, registry.ErrNotFound
	}
	manifest, ok := pkg.manifests[version]
	if !ok {
		return nil, registry.ErrFetchFailed
	}
	return manifest, nil
}

func (f *fakeSource) Archive(_ context.Context, name, version string) (io.ReadCloser, error) {
	pkg, ok := f.packages[name]
	if !ok {
		return nil, registry.ErrNotFound
	}
	files, ok := pkg.files[version]
	if !ok {
		return nil, registry.ErrNotFound
	}
	modTime := fixtureModTime
	if pkg.noModTime {
		modTime = time.Time{}
	}
	return io.NopCloser(bytes.NewReader(buildTar(files, modTime))), nil
}

func (f *fakeSource) Invalidate(_ context.Context, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, name)
}

var fixtureModTime = time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)

func buildTar(files map[string]string, modTime time.Time) []byte {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, name := range names {
		content := files[name]
		_ = tw.WriteHeader(&tar.Header{
			Name:     "package/" + name,
			Mode:     0o644,
			Size:     int64(len(content)),
			ModTime:  modTime,
			Typeflag: tar.TypeReg,
		})
		_, _ = tw.Write([]byte(content))
	}
	_ = tw.Close()
	return buf.Bytes()
}

func newFakeSource() *fakeSource {
	return &fakeSource{packages: map[string]*fakePackage{
		"left-pad": {
			index: registry.VersionIndex{
				Versions: []string{"1.0.0", "1.2.0", "1.3.0", "2.0.0-beta.1"},
				Tags:     map[string]string{"latest": "1.3.0", "next": "2.0.0-beta.1"},
			},
			manifests: map[string]registry.Manifest{
				"1.3.0": {"name": "left-pad", "version": "1.3.0", "main": "./index.js"},
			},
			files: map[string]map[string]string{
				"1.3.0": {
					"index.js":         "module.exports = leftPad;\n",
					"package.json":     `{"name":"left-pad"}`,
					"lib/util.js":      "export const pad = 1;\n",
					"lib/index.json":   `{}`,
					"docs/guide.md":    "# guide\n",
					"README.md":        "readme\n",
					"esm/main.mjs":     "import pad from \"string-pad\";\nimport { x } from './x.js';\n",
					"esm/page.html":    "<script type=\"module\">import a from \"string-pad\";</script>\n",
					"esm/broken.mjs":   "import {",
					"assets/logo.png":  "png",
					"types/index.d.ts": "export {};\n",
				},
			},
		},
		"@scope/esm": {
			index: registry.VersionIndex{
				Versions: []string{"1.0.0"},
				Tags:     map[string]string{"latest": "1.0.0"},
			},
			manifests: map[string]registry.Manifest{
				"1.0.0": {
					"name":         "@scope/esm",
					"main":         "dist/index.cjs",
					"module":       "dist/index.mjs",
					"dependencies": map[string]any{"left-pad": "^1.3.0"},
				},
			},
			files: map[string]map[string]string{
				"1.0.0": {
					"dist/index.cjs": "module.exports = 1;\n",
					"dist/index.mjs": "export { default } from \"left-pad\";\n",
				},
			},
		},
		"no-mtime": {
			index: registry.VersionIndex{
				Versions: []string{"1.0.0"},
				Tags:     map[string]string{"latest": "1.0.0"},
			},
			manifests: map[string]registry.Manifest{
				"1.0.0": {"name": "no-mtime", "module": "index.mjs"},
			},
			files: map[string]map[string]string{
				"1.0.0": {
					"index.js":  "module.exports = 1;\n",
					"index.mjs": "export default 1;\n",
				},
			},
			noModTime: true,
		},
		"plain-cjs": {
			index: registry.VersionIndex{
				Versions: []string{"1.0.0"},
				Tags:     map[string]string{"latest": "1.0.0"},
			},
			manifests: map[string]registry.Manifest{
				"1.0.0": {"name": "plain-cjs"},
			},
			files: map[string]map[string]string{
				"1.0.0": {"index.js": "module.exports = 1;\n"},
			},
		},
	}}
}

func newTestApp(t *testing.T, source PackageSource, opts Options) *fiber.App {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	opts.Source = source
	opts.Logger = logger
	if opts.Rewriter == nil {
		opts.Rewriter = rewrite.New("", logger)
	}
	handler, err := New(opts)
	if err != nil {
		t.Fatalf("创建 Handler 失败: %v", err)
	}
	app := fiber.New(fiber.Config{CaseSensitive: true})
	app.All("/*", handler.Handle)
	return app
}

type testResponse struct {
	status  int
	header  func(string) string
	headers http.Header
	body    string
}

func doGet(t *testing.T, app *fiber.App, target string) testResponse {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, target, nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("请求 %s 失败: %v", target, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("读取响应失败: %v", err)
	}
	return testResponse{status: resp.StatusCode, header: resp.Header.Get, headers: resp.Header, body: string(body)}
}

func expectRedirect(t *testing.T, resp testResponse, status int, location string) {
	t.Helper()
	if resp.status != status {
		t.Fatalf("期望状态码 %d，实际 %d: %s", status, resp.status, resp.body)
	}
	if got := resp.header("Location"); got != location {
		t.Fatalf("期望跳转到 %s，实际 %s", location, got)
	}
}
