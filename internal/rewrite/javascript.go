// Package rewrite 把 JavaScript 与 HTML 中的模块说明符改写为经由本服务解析的地址，
// 只替换字符串字面量本身，源码的换行与格式保持不变。
package rewrite

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/sirupsen/logrus"
)

var bareIdentifier = regexp.MustCompile(`^((?:@[^/]+/)?[^/]+)(/.*)?$`)

// Rewriter 持有改写所需的源站前缀，可并发使用。
type Rewriter struct {
	origin string
	logger logrus.FieldLogger
}

// New 创建 Rewriter；origin 是裸说明符改写后的 URL 前缀，可以为空或 BaseURL。
func New(origin string, logger logrus.FieldLogger) *Rewriter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Rewriter{origin: strings.TrimRight(origin, "/"), logger: logger}
}

// JavaScript 改写 import/export 声明与 import() 调用的说明符。
// source 用于错误信息，deps 为依赖名到版本范围的映射。
func (r *Rewriter) JavaScript(source string, code []byte, deps map[string]string) ([]byte, error) {
	specifiers, err := importRecords(source, code)
	if err != nil {
		return nil, err
	}
	if len(specifiers) == 0 {
		return code, nil
	}

	literals, err := locateSpecifiers(source, code)
	if err != nil {
		return nil, err
	}
	located := make(map[string]struct{}, len(literals))
	for _, lit := range literals {
		located[lit.value] = struct{}{}
	}
	for specifier := range specifiers {
		if _, ok := located[specifier]; !ok {
			// 宁可报错也不输出只改写了一部分的模块。
			return nil, &Error{
				Name:    "RewriteError",
				Message: fmt.Sprintf("%s: cannot locate import specifier %q", source, specifier),
			}
		}
	}
	sort.Slice(literals, func(i, j int) bool { return literals[i].start > literals[j].start })

	out := append([]byte(nil), code...)
	for _, lit := range literals {
		if _, ok := specifiers[lit.value]; !ok {
			continue
		}
		value, changed := r.rewriteValue(lit.value, deps)
		if !changed {
			continue
		}
		replacement := quote(value, lit.quote)
		out = append(out[:lit.start], append(replacement, out[lit.end:]...)...)
	}
	return out, nil
}

// importRecords 借助 esbuild 校验语法，并收集 import 语句与动态 import 的说明符。
func importRecords(source string, code []byte) (map[string]struct{}, error) {
	var (
		mu    sync.Mutex
		found = make(map[string]struct{})
	)
	collect := api.Plugin{
		Name: "collect-specifiers",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: ".*"}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				switch args.Kind {
				case api.ResolveJSImportStatement, api.ResolveJSDynamicImport:
					mu.Lock()
					found[args.Path] = struct{}{}
					mu.Unlock()
				}
				return api.OnResolveResult{Path: args.Path, External: true}, nil
			})
		},
	}

	result := api.Build(api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   string(code),
			Sourcefile: source,
			Loader:     api.LoaderJS,
		},
		Bundle:   true,
		Write:    false,
		Format:   api.FormatESModule,
		Platform: api.PlatformNeutral,
		Target:   api.ESNext,
		LogLevel: api.LogLevelSilent,
		Plugins:  []api.Plugin{collect},
	})
	if len(result.Errors) > 0 {
		return nil, newSyntaxError(source, code, result.Errors[0])
	}
	return found, nil
}

// rewriteValue 决定一个说明符的新值；绝对 URL 保持不变。
func (r *Rewriter) rewriteValue(value string, deps map[string]string) (string, bool) {
	if isAbsoluteURL(value) {
		return value, false
	}
	if !isBareIdentifier(value) {
		return value + "?module", true
	}

	match := bareIdentifier.FindStringSubmatch(value)
	if match == nil {
		return value, false
	}
	name, file := match[1], match[2]
	version, ok := deps[name]
	if !ok {
		r.logger.WithFields(logrus.Fields{
			"action":  "rewrite_module",
			"package": name,
		}).Warn("依赖中缺少版本信息，回退到 latest")
		version = "latest"
	}
	return r.origin + "/" + name + "@" + version + file + "?module", true
}

func isAbsoluteURL(value string) bool {
	if strings.HasPrefix(value, "//") {
		return true
	}
	parsed, err := url.Parse(value)
	return err == nil && parsed.Scheme != ""
}

func isBareIdentifier(value string) bool {
	return !strings.HasPrefix(value, ".") && !strings.HasPrefix(value, "/")
}

func quote(value string, q byte) []byte {
	var b bytes.Buffer
	b.WriteByte(q)
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c == q || c == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	b.WriteByte(q)
	return b.Bytes()
}
