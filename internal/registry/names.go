package registry

import (
	"regexp"
	"strings"
)

var (
	hexValue    = regexp.MustCompile(`(?i)^[a-f0-9]+$`)
	scopedName  = regexp.MustCompile(`^(?:@([^/]+?)[/])?([^/]+?)$`)
	blacklisted = map[string]struct{}{
		"node_modules": {},
		"favicon.ico":  {},
	}
)

// IsHash 判断名称是否像一个 32 位十六进制摘要。
func IsHash(value string) bool {
	return len(value) == 32 && hexValue.MatchString(value)
}

// IsScoped 判断是否为 @scope/name 形式的包名。
func IsScoped(name string) bool {
	return strings.HasPrefix(name, "@")
}

// ValidateName 按 npm 的新包命名规则检查名称，返回全部违规原因；合法时返回 nil。
func ValidateName(name string) []string {
	var errs []string

	if name == "" {
		return []string{"name length must be greater than zero"}
	}
	if strings.HasPrefix(name, ".") {
		errs = append(errs, "name cannot start with a period")
	}
	if strings.HasPrefix(name, "_") {
		errs = append(errs, "name cannot start with an underscore")
	}
	if strings.TrimSpace(name) != name {
		errs = append(errs, "name cannot contain leading or trailing spaces")
	}
	if _, ok := blacklisted[strings.ToLower(name)]; ok {
		errs = append(errs, name+" is a blacklisted name")
	}

	if !urlSafe(name) {
		matches := scopedName.FindStringSubmatch(name)
		valid := false
		if matches != nil {
			user, pkg := matches[1], matches[2]
			valid = urlSafe(user) && urlSafe(pkg)
		}
		if !valid {
			errs = append(errs, "name can only contain URL-friendly characters")
		}
	}

	return errs
}

// urlSafe 判断字符串经 encodeURIComponent 编码后是否保持不变。
func urlSafe(value string) bool {
	for i := 0; i < len(value); i++ {
		c := value[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case strings.IndexByte("-_.!~*'()", c) >= 0:
		default:
			return false
		}
	}
	return true
}

// EncodeName 把包名编码为 Registry 元数据 URL 的路径段；scoped 包只编码 @ 之后的部分。
func EncodeName(name string) string {
	if IsScoped(name) {
		return "@" + encodeURIComponent(name[1:])
	}
	return encodeURIComponent(name)
}

func encodeURIComponent(value string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		c := value[i]
		if urlSafe(string(c)) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

// TarballBasename 返回 tarball 文件名中的包名部分，scoped 包去掉 scope。
func TarballBasename(name string) string {
	if IsScoped(name) {
		if idx := strings.IndexByte(name, '/'); idx >= 0 {
			return name[idx+1:]
		}
	}
	return name
}
