package archive

import (
	"io"
	"path"
	"strings"
)

// SearchResult 是一次按 Node 规则查找的结果，Entries 包含所有前缀匹配的条目。
type SearchResult struct {
	Found   *Entry
	Entries map[string]*Entry
}

// Search 在 tarball 中查找 filename，依次接受精确匹配、追加 .js、追加 .json；
// 只有最终选中的文件保留正文。整个流总会被读完。
func Search(r io.Reader, filename string) (*SearchResult, error) {
	jsName := filename + ".js"
	jsonName := filename + ".json"
	entries := make(map[string]*Entry)

	var found *Entry
	if filename == "/" {
		found = &Entry{Path: "/", Type: Directory}
		entries["/"] = found
	}

	err := Walk(r, func(rec Record) error {
		if !rec.IsFile() || !strings.HasPrefix(rec.Path, filename) {
			return nil
		}

		entry, content, err := readFile(rec)
		if err != nil {
			return err
		}
		entries[entry.Path] = entry
		synthesizeDirs(entries, entry.Path, func(string) bool { return true })

		if entry.Path == filename || entry.Path == jsName || entry.Path == jsonName {
			switch {
			case found == nil:
				found = entry
			case found.Path != filename &&
				(entry.Path == filename || (entry.Path == jsName && found.Path == jsonName)):
				found.Content = nil
				found = entry
			}
		}
		if entry == found {
			entry.Content = content
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if found == nil {
		found = entries[filename]
	}
	return &SearchResult{Found: found, Entries: entries}, nil
}

// Outcome 是解析结果的种类。
type Outcome int

const (
	// Serve 表示精确命中文件，可以直接返回。
	Serve Outcome = iota
	// FileRedirect 表示通过追加扩展名命中，需要重定向到真实文件名。
	FileRedirect
	// IndexRedirect 表示命中目录，需要重定向到目录下的 index 文件。
	IndexRedirect
	// MissingEntry 表示找不到任何条目。
	MissingEntry
	// MissingIndex 表示命中目录但目录下没有可用的 index 文件。
	MissingIndex
)

// Resolution 是对 SearchResult 的最终判定，Entry 在 Missing* 时为 nil。
type Resolution struct {
	Outcome Outcome
	Entry   *Entry
}

// Resolve 按请求的 filename 判定应当返回、重定向还是 404。
func (s *SearchResult) Resolve(filename string) Resolution {
	entry := s.Found
	switch {
	case entry == nil:
		return Resolution{Outcome: MissingEntry}
	case entry.Type == Directory:
		for _, name := range []string{"index.js", "index.json"} {
			if index, ok := s.Entries[path.Join(filename, name)]; ok && index.Type == File {
				return Resolution{Outcome: IndexRedirect, Entry: index}
			}
		}
		return Resolution{Outcome: MissingIndex}
	case entry.Path != filename:
		return Resolution{Outcome: FileRedirect, Entry: entry}
	default:
		return Resolution{Outcome: Serve, Entry: entry}
	}
}

// Stat 精确查找一个文件条目，不保留正文。
func Stat(r io.Reader, filename string) (*Entry, error) {
	var found *Entry
	err := Walk(r, func(rec Record) error {
		if !rec.IsFile() || rec.Path != filename {
			return nil
		}
		entry, _, err := readFile(rec)
		if err != nil {
			return err
		}
		found = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}
