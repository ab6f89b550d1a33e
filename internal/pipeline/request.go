package pipeline

import (
	"errors"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

var (
	packagePathname = regexp.MustCompile(`^/((?:@[^/@]+/)?[^/@]+)(?:@([^/]+))?(/.*)?$`)
	repeatedSlashes = regexp.MustCompile(`//+`)
)

var errInvalidURL = errors.New("invalid url")

// PackagePath 是从请求路径中解析出的包名、版本与文件名。
type PackagePath struct {
	Name     string
	Version  string
	Filename string
}

// Spec 返回 name@version。
func (p PackagePath) Spec() string {
	return p.Name + "@" + p.Version
}

// ParsePathname 解析 /name[@version][/file]，版本缺省为 latest，文件名中的连续斜杠会被合并。
func ParsePathname(pathname string) (PackagePath, error) {
	decoded, err := url.PathUnescape(pathname)
	if err != nil {
		return PackagePath{}, errInvalidURL
	}
	match := packagePathname.FindStringSubmatch(decoded)
	if match == nil {
		return PackagePath{}, errInvalidURL
	}
	version := match[2]
	if version == "" {
		version = "latest"
	}
	return PackagePath{
		Name:     match[1],
		Version:  version,
		Filename: repeatedSlashes.ReplaceAllString(match[3], "/"),
	}, nil
}

// Query 记录查询参数是否出现及其值；?meta 这类无值参数对应空字符串。
type Query map[string]string

// Has 判断参数是否出现。
func (q Query) Has(key string) bool {
	_, ok := q[key]
	return ok
}

// Only 返回只包含 keys 的副本。
func (q Query) Only(keys ...string) Query {
	kept := make(Query)
	for _, key := range keys {
		if value, ok := q[key]; ok {
			kept[key] = value
		}
	}
	return kept
}

// Allows 判断是否所有参数都在 keys 之内。
func (q Query) Allows(keys ...string) bool {
	for key := range q {
		allowed := false
		for _, k := range keys {
			if k == key {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}
	return true
}

// Search 按键名排序生成查询串，空值参数只输出键名。
func (q Query) Search() string {
	if len(q) == 0 {
		return ""
	}
	keys := make([]string, 0, len(q))
	for key := range q {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		if value := q[key]; value != "" {
			pairs = append(pairs, key+"="+encodeQueryValue(value))
		} else {
			pairs = append(pairs, key)
		}
	}
	return "?" + strings.Join(pairs, "&")
}

func encodeQueryValue(value string) string {
	return strings.ReplaceAll(url.QueryEscape(value), "+", "%20")
}

// PackageURL 拼出 /name[@version][filename][?query]。
func PackageURL(name, version, filename string, query Query) string {
	u := "/" + name
	if version != "" {
		u += "@" + version
	}
	u += filename
	return u + query.Search()
}
