package registry

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-cdn/internal/cache"
)

type stubRegistry struct {
	server   *httptest.Server
	infoHits atomic.Int32
	tgzHits  atomic.Int32
	lastURI  atomic.Value
}

func newStubRegistry(t *testing.T, info string, tarball []byte) *stubRegistry {
	t.Helper()
	stub := &stubRegistry{}
	mux := http.NewServeMux()
	mux.HandleFunc("/left-pad", func(w http.ResponseWriter, r *http.Request) {
		stub.infoHits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(info))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		stub.infoHits.Add(1)
		http.Error(w, "upstream exploded", http.StatusInternalServerError)
	})
	mux.HandleFunc("/left-pad/-/left-pad-1.3.0.tgz", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/blobs/left-pad-1.3.0.tgz", http.StatusFound)
	})
	mux.HandleFunc("/blobs/left-pad-1.3.0.tgz", func(w http.ResponseWriter, r *http.Request) {
		stub.tgzHits.Add(1)
		_, _ = w.Write(tarball)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		stub.lastURI.Store(r.RequestURI)
		http.NotFound(w, r)
	})
	stub.server = httptest.NewServer(mux)
	t.Cleanup(stub.server.Close)
	return stub
}

func newTestClient(t *testing.T, registryURL string, durable *cache.Durable) *Client {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return New(Options{
		Registry: registryURL,
		HTTPClient: &http.Client{
			Timeout: 5 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		Durable: durable,
		Memory:  cache.MemoryOptions{Size: 100, TTL: time.Minute, NegativeTTL: time.Minute},
		Logger:  logger,
	})
}

func newTestDurable(t *testing.T, policy cache.DurablePolicy) *cache.Durable {
	t.Helper()
	store, err := cache.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("创建磁盘缓存失败: %v", err)
	}
	return cache.NewDurable(store, policy)
}

func buildTarball(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content)), ModTime: time.Unix(1700000000, 0), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("写入 tar 头失败: %v", err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("写入 tar 内容失败: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("关闭 tar 失败: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("关闭 gzip 失败: %v", err)
	}
	return buf.Bytes()
}

func readTarNames(t *testing.T, r io.Reader) []string {
	t.Helper()
	var names []string
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return names
		}
		if err != nil {
			t.Fatalf("读取 tar 失败: %v", err)
		}
		names = append(names, hdr.Name)
	}
}

func TestVersionIndexUsesMemoryCache(t *testing.T) {
	stub := newStubRegistry(t, sampleInfo, nil)
	client := newTestClient(t, stub.server.URL, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		index, err := client.VersionIndex(ctx, "left-pad")
		if err != nil {
			t.Fatalf("获取版本失败: %v", err)
		}
		if index.Tags["latest"] != "1.3.0" {
			t.Fatalf("dist-tags 错误: %v", index.Tags)
		}
	}
	if hits := stub.infoHits.Load(); hits != 1 {
		t.Fatalf("应只回源一次, got %d", hits)
	}

	if _, err := client.Manifest(ctx, "left-pad", "1.3.0"); err != nil {
		t.Fatalf("获取 manifest 失败: %v", err)
	}
	if _, err := client.Manifest(ctx, "left-pad", "1.3.0"); err != nil {
		t.Fatalf("获取 manifest 失败: %v", err)
	}
	if hits := stub.infoHits.Load(); hits != 2 {
		t.Fatalf("manifest 应单独缓存, got %d", hits)
	}
}

func TestVersionIndexNegativeCache(t *testing.T) {
	stub := newStubRegistry(t, sampleInfo, nil)
	client := newTestClient(t, stub.server.URL, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := client.VersionIndex(ctx, "@scope/missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("不存在的包应返回 ErrNotFound, got %v", err)
		}
	}
	if uri, _ := stub.lastURI.Load().(string); uri != "/@scope%2Fmissing" {
		t.Fatalf("scoped 包名编码错误: %s", uri)
	}
	if _, state := client.versions.Get("@scope/missing"); state != cache.Missing {
		t.Fatalf("404 应写入负缓存")
	}
}

func TestVersionIndexUnexpectedStatusIsAbsent(t *testing.T) {
	stub := newStubRegistry(t, sampleInfo, nil)
	client := newTestClient(t, stub.server.URL, nil)

	if _, err := client.VersionIndex(context.Background(), "broken"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("非 200/404 应视为不存在, got %v", err)
	}
}

func TestVersionIndexNetworkFailure(t *testing.T) {
	stub := newStubRegistry(t, sampleInfo, nil)
	client := newTestClient(t, stub.server.URL, nil)
	stub.server.Close()

	if _, err := client.VersionIndex(context.Background(), "left-pad"); !errors.Is(err, ErrFetchFailed) {
		t.Fatalf("网络错误应返回 ErrFetchFailed, got %v", err)
	}
	if _, state := client.versions.Get("left-pad"); state != cache.Miss {
		t.Fatalf("网络错误不应写入缓存")
	}
}

func TestDurableInfoSurvivesRestart(t *testing.T) {
	stub := newStubRegistry(t, sampleInfo, nil)
	durable := newTestDurable(t, cache.DurablePolicy{Info: true, Content: true, AutoUpgrade: true})
	ctx := context.Background()

	first := newTestClient(t, stub.server.URL, durable)
	if _, err := first.VersionIndex(ctx, "left-pad"); err != nil {
		t.Fatalf("首次获取失败: %v", err)
	}

	second := newTestClient(t, stub.server.URL, durable)
	if _, err := second.VersionIndex(ctx, "left-pad"); err != nil {
		t.Fatalf("读取磁盘缓存失败: %v", err)
	}
	if hits := stub.infoHits.Load(); hits != 1 {
		t.Fatalf("第二个实例应读取磁盘缓存, got %d", hits)
	}

	second.Invalidate(ctx, "left-pad")
	if _, err := second.VersionIndex(ctx, "left-pad"); err != nil {
		t.Fatalf("失效后重新获取失败: %v", err)
	}
	if hits := stub.infoHits.Load(); hits != 2 {
		t.Fatalf("失效后应重新回源, got %d", hits)
	}
}

func TestInvalidateKeepsDurableWithoutAutoUpgrade(t *testing.T) {
	stub := newStubRegistry(t, sampleInfo, nil)
	durable := newTestDurable(t, cache.DurablePolicy{Info: true})
	client := newTestClient(t, stub.server.URL, durable)
	ctx := context.Background()

	if _, err := client.VersionIndex(ctx, "left-pad"); err != nil {
		t.Fatalf("获取失败: %v", err)
	}
	client.Invalidate(ctx, "left-pad")
	if _, err := client.VersionIndex(ctx, "left-pad"); err != nil {
		t.Fatalf("获取失败: %v", err)
	}
	if hits := stub.infoHits.Load(); hits != 1 {
		t.Fatalf("未开启自动升级时应继续使用磁盘缓存, got %d", hits)
	}
}

func TestArchiveFollowsRedirectAndDecompresses(t *testing.T) {
	tarball := buildTarball(t, map[string]string{"package/index.js": "module.exports = 1;"})
	stub := newStubRegistry(t, sampleInfo, tarball)
	client := newTestClient(t, stub.server.URL, nil)

	stream, err := client.Archive(context.Background(), "left-pad", "1.3.0")
	if err != nil {
		t.Fatalf("获取 tarball 失败: %v", err)
	}
	defer stream.Close()

	names := readTarNames(t, stream)
	if len(names) != 1 || names[0] != "package/index.js" {
		t.Fatalf("tar 内容错误: %v", names)
	}
}

func TestArchiveDurableCache(t *testing.T) {
	tarball := buildTarball(t, map[string]string{"package/index.js": "x"})
	stub := newStubRegistry(t, sampleInfo, tarball)
	durable := newTestDurable(t, cache.DurablePolicy{Content: true})
	client := newTestClient(t, stub.server.URL, durable)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		stream, err := client.Archive(ctx, "left-pad", "1.3.0")
		if err != nil {
			t.Fatalf("获取 tarball 失败: %v", err)
		}
		if names := readTarNames(t, stream); len(names) != 1 {
			t.Fatalf("tar 内容错误: %v", names)
		}
		stream.Close()
	}
	if hits := stub.tgzHits.Load(); hits != 1 {
		t.Fatalf("tarball 应只下载一次, got %d", hits)
	}
}

func TestArchiveMissing(t *testing.T) {
	stub := newStubRegistry(t, sampleInfo, nil)
	client := newTestClient(t, stub.server.URL, nil)
	if _, err := client.Archive(context.Background(), "left-pad", "0.0.1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("不存在的 tarball 应返回 ErrNotFound, got %v", err)
	}
}

func TestGunzipMaybePassesPlainTar(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	_ = tw.WriteHeader(&tar.Header{Name: "package/a.txt", Mode: 0o644, Size: 1, Typeflag: tar.TypeReg})
	_, _ = tw.Write([]byte("a"))
	_ = tw.Close()

	stream, err := gunzipMaybe(io.NopCloser(&buf))
	if err != nil {
		t.Fatalf("透传失败: %v", err)
	}
	if names := readTarNames(t, stream); len(names) != 1 || names[0] != "package/a.txt" {
		t.Fatalf("未压缩 tar 应原样透传: %v", names)
	}
}

func TestTarballURL(t *testing.T) {
	client := New(Options{Registry: "https://registry.example.com/"})
	if got := client.TarballURL("@babel/core", "7.0.0"); got != "https://registry.example.com/@babel/core/-/core-7.0.0.tgz" {
		t.Fatalf("tarball 地址错误: %s", got)
	}
}
