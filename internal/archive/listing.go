package archive

import (
	"encoding/json"
	"io"
	"path"
	"sort"
)

// Listing 是某个目录的直接子项。
type Listing struct {
	Path        string
	HasParent   bool
	Directories []*Entry
	Files       []*Entry
}

// List 返回 dir 的直接子目录与文件，按完整路径排序；目录为空或不存在时返回 ErrNotFound。
func List(r io.Reader, dir string) (*Listing, error) {
	entries := make(map[string]*Entry)
	err := Walk(r, func(rec Record) error {
		synthesizeDirs(entries, rec.Path, func(d string) bool { return path.Dir(d) == dir })
		if !rec.IsFile() || path.Dir(rec.Path) != dir {
			return nil
		}
		entry, _, err := readFile(rec)
		if err != nil {
			return err
		}
		entries[entry.Path] = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}

	listing := &Listing{Path: dir, HasParent: dir != "/"}
	for _, entry := range entries {
		if entry.Type == Directory {
			listing.Directories = append(listing.Directories, entry)
		} else {
			listing.Files = append(listing.Files, entry)
		}
	}
	sortByPath(listing.Directories)
	sortByPath(listing.Files)
	return listing, nil
}

// Tree 收集 scope 之下的全部条目，scope 自身以目录条目出现。
func Tree(r io.Reader, scope string) (map[string]*Entry, error) {
	entries := map[string]*Entry{scope: {Path: scope, Type: Directory}}
	err := Walk(r, func(rec Record) error {
		synthesizeDirs(entries, rec.Path, func(d string) bool { return inScope(d, scope) })
		if !rec.IsFile() || !inScope(rec.Path, scope) {
			return nil
		}
		entry, _, err := readFile(rec)
		if err != nil {
			return err
		}
		entries[entry.Path] = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Metadata 是 ?meta 接口返回的 JSON 结构。
type Metadata struct {
	Path         string
	Type         Kind
	ContentType  string
	Integrity    string
	LastModified string
	Size         int64
	Files        []Metadata
}

type fileMetadata struct {
	Path         string `json:"path"`
	Type         Kind   `json:"type"`
	ContentType  string `json:"contentType"`
	Integrity    string `json:"integrity"`
	LastModified string `json:"lastModified"`
	Size         int64  `json:"size"`
}

type directoryMetadata struct {
	Path  string     `json:"path"`
	Type  Kind       `json:"type"`
	Files []Metadata `json:"files"`
}

// MarshalJSON 文件与目录输出不同的字段集合。
func (m Metadata) MarshalJSON() ([]byte, error) {
	if m.Type == Directory {
		files := m.Files
		if files == nil {
			files = []Metadata{}
		}
		return json.Marshal(directoryMetadata{Path: m.Path, Type: m.Type, Files: files})
	}
	return json.Marshal(fileMetadata{
		Path:         m.Path,
		Type:         m.Type,
		ContentType:  m.ContentType,
		Integrity:    m.Integrity,
		LastModified: m.LastModified,
		Size:         m.Size,
	})
}

// FileMetadata 返回单个文件条目的元数据。
func FileMetadata(entry *Entry) Metadata {
	return Metadata{
		Path:         entry.Path,
		Type:         File,
		ContentType:  entry.ContentType,
		Integrity:    entry.Integrity,
		LastModified: entry.LastModifiedHTTP(),
		Size:         entry.Size,
	}
}

// BuildMetadata 从 Tree 的结果递归构建 root 的元数据，目录不包含自身。
func BuildMetadata(root string, entries map[string]*Entry) Metadata {
	entry, ok := entries[root]
	if !ok {
		return Metadata{Path: root, Type: Directory}
	}
	if entry.Type == File {
		return FileMetadata(entry)
	}

	var children []*Entry
	for key, child := range entries {
		if key != root && path.Dir(key) == root {
			children = append(children, child)
		}
	}
	sortByPath(children)

	meta := Metadata{Path: root, Type: Directory, Files: make([]Metadata, 0, len(children))}
	for _, child := range children {
		meta.Files = append(meta.Files, BuildMetadata(child.Path, entries))
	}
	return meta
}

func sortByPath(entries []*Entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
}
