// Package archive 以单次顺序读取的方式解析 npm tarball，合成缺失的目录条目，
// 并实现 Node 风格的默认文件解析、目录列表与元数据树。
package archive

import (
	"archive/tar"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/any-hub/any-cdn/internal/contenttype"
)

// ErrNotFound 表示 tarball 中不存在请求的条目。
var ErrNotFound = errors.New("entry not found")

// Kind 区分文件与目录条目。
type Kind string

const (
	File      Kind = "file"
	Directory Kind = "directory"
)

// Entry 是 tarball 中的一个逻辑条目，路径总以 "/" 开头。
type Entry struct {
	Path         string
	Type         Kind
	ContentType  string
	Language     string
	Integrity    string
	Size         int64
	LastModified time.Time
	Content      []byte
}

// LastModifiedHTTP 以 HTTP 日期格式返回修改时间。
func (e *Entry) LastModifiedHTTP() string {
	if e.LastModified.IsZero() {
		return ""
	}
	return e.LastModified.UTC().Format(http.TimeFormat)
}

// Record 是 Walk 交给回调的原始记录。Body 只在回调期间有效，未读取的部分由 Walk 丢弃。
type Record struct {
	Path   string
	Header *tar.Header
	Body   io.Reader
}

// IsFile 判断记录是否为普通文件。
func (r Record) IsFile() bool {
	return r.Header.Typeflag == tar.TypeReg
}

// Walk 顺序遍历 tar 流中的全部记录，直到流结束；不会提前返回。
func Walk(r io.Reader, visit func(Record) error) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar: %w", err)
		}
		if err := visit(Record{Path: logicalPath(hdr.Name), Header: hdr, Body: tr}); err != nil {
			return err
		}
	}
}

// logicalPath 去掉 tarball 的第一级包裹目录（通常是 package/，但并不固定）。
func logicalPath(name string) string {
	if idx := strings.IndexByte(name, '/'); idx >= 0 {
		return "/" + name[idx+1:]
	}
	return "/"
}

// Integrity 返回 SRI 格式的 sha384 摘要。
func Integrity(content []byte) string {
	sum := sha512.Sum384(content)
	return "sha384-" + base64.StdEncoding.EncodeToString(sum[:])
}

// readFile 读取记录正文并填充分类、摘要、大小与修改时间。
func readFile(rec Record) (*Entry, []byte, error) {
	content, err := io.ReadAll(rec.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", rec.Path, err)
	}
	kind := contenttype.Classify(rec.Path)
	return &Entry{
		Path:         rec.Path,
		Type:         File,
		ContentType:  kind.ContentType,
		Language:     kind.Language,
		Integrity:    Integrity(content),
		Size:         int64(len(content)),
		LastModified: rec.Header.ModTime,
	}, content, nil
}

// synthesizeDirs 为文件的每一级祖先目录补齐目录条目，accept 决定哪些目录需要记录。
func synthesizeDirs(entries map[string]*Entry, filePath string, accept func(dir string) bool) {
	for dir := path.Dir(filePath); dir != "/" && dir != "."; dir = path.Dir(dir) {
		if _, ok := entries[dir]; ok {
			continue
		}
		if accept(dir) {
			entries[dir] = &Entry{Path: dir, Type: Directory}
		}
	}
}

// inScope 判断 p 是否等于 scope 或位于 scope 目录之下。
func inScope(p, scope string) bool {
	if scope == "/" {
		return true
	}
	return p == scope || strings.HasPrefix(p, scope+"/")
}
