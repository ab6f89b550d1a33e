package registry

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// VersionIndex 是某个包全部版本与 dist-tag 的快照，缓存后只读共享。
type VersionIndex struct {
	Versions []string          `json:"versions"`
	Tags     map[string]string `json:"tags"`
}

// Manifest 是清理后的单版本 package.json。
type Manifest map[string]any

// 元数据中常见但与解析无关的字段。
var manifestExcludeKeys = map[string]struct{}{
	"browserify":  {},
	"bugs":        {},
	"directories": {},
	"engines":     {},
	"files":       {},
	"homepage":    {},
	"keywords":    {},
	"maintainers": {},
	"scripts":     {},
}

// String 返回字符串类型的字段，其他类型视为不存在。
func (m Manifest) String(field string) (string, bool) {
	raw, ok := m[field]
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	return s, ok
}

// Dependencies 合并 peerDependencies 与 dependencies，同名时 dependencies 优先。
func (m Manifest) Dependencies() map[string]string {
	deps := make(map[string]string)
	for _, field := range []string{"peerDependencies", "dependencies"} {
		table, ok := m[field].(map[string]any)
		if !ok {
			continue
		}
		for name, value := range table {
			if version, ok := value.(string); ok {
				deps[name] = version
			}
		}
	}
	return deps
}

func cleanManifest(raw map[string]any) Manifest {
	cleaned := make(Manifest, len(raw))
	for key, value := range raw {
		if strings.HasPrefix(key, "_") {
			continue
		}
		if _, skip := manifestExcludeKeys[key]; skip {
			continue
		}
		cleaned[key] = value
	}
	return cleaned
}

// parseVersionIndex 从完整的包元数据中抽取版本列表与 dist-tags；缺少 versions 时视为不存在。
func parseVersionIndex(info []byte) (*VersionIndex, error) {
	if !gjson.ValidBytes(info) {
		return nil, fmt.Errorf("invalid package info json")
	}
	versions := gjson.GetBytes(info, "versions")
	if !versions.IsObject() {
		return nil, ErrNotFound
	}

	index := &VersionIndex{Tags: make(map[string]string)}
	versions.ForEach(func(key, _ gjson.Result) bool {
		index.Versions = append(index.Versions, key.String())
		return true
	})
	gjson.GetBytes(info, "dist-tags").ForEach(func(key, value gjson.Result) bool {
		if value.Type == gjson.String {
			index.Tags[key.String()] = value.String()
		}
		return true
	})
	return index, nil
}

// parseManifest 抽取指定版本的 manifest；版本键按字面比较，避免 gjson 路径对 "." 的转义。
func parseManifest(info []byte, version string) (Manifest, error) {
	if !gjson.ValidBytes(info) {
		return nil, fmt.Errorf("invalid package info json")
	}

	var found gjson.Result
	gjson.GetBytes(info, "versions").ForEach(func(key, value gjson.Result) bool {
		if key.String() == version {
			found = value
			return false
		}
		return true
	})
	if !found.IsObject() {
		return nil, ErrNotFound
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(found.Raw), &raw); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", version, err)
	}
	return cleanManifest(raw), nil
}
