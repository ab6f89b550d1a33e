// Package contenttype 根据文件路径推断 Content-Type 与可读的语言名称。
package contenttype

import (
	"path"
	"regexp"
	"strings"
)

const (
	// JavaScript 是 JS 文件使用的 Content-Type，模块改写只接受该类型或 HTML。
	JavaScript = "application/javascript"
	// HTML 是 HTML 文件使用的 Content-Type。
	HTML = "text/html"
	// PlainText 是无法识别扩展名时的兜底类型。
	PlainText = "text/plain"
)

// Result 为一次分类结果。
type Result struct {
	ContentType string
	Language    string
}

var textFiles = regexp.MustCompile(`(?i)/?(\.[a-z]*rc|\.git[a-z]*|\.[a-z]*ignore|\.lock)$`)

// 这些无扩展名（或扩展名无意义）的文件一律视为纯文本。
var textNames = map[string]struct{}{
	"authors":  {},
	"changes":  {},
	"license":  {},
	"makefile": {},
	"patents":  {},
	"readme":   {},
	"ts":       {},
	"flow":     {},
}

// Classify 返回路径对应的内容类型与语言名称，总是有结果。
func Classify(p string) Result {
	ct := TypeOf(p)
	return Result{ContentType: ct, Language: languageName(p, ct)}
}

// TypeOf 只计算 Content-Type。
func TypeOf(p string) string {
	name := path.Base(p)
	if textFiles.MatchString(name) {
		return PlainText
	}

	lower := strings.ToLower(name)
	ext := lower
	if idx := strings.LastIndexByte(lower, '.'); idx >= 0 {
		ext = lower[idx+1:]
	}
	if _, ok := textNames[ext]; ok {
		return PlainText
	}
	if ct, ok := extensionTypes[ext]; ok {
		return ct
	}
	return PlainText
}

func languageName(p, ct string) string {
	switch {
	case strings.HasSuffix(p, ".flow"):
		return "Flow"
	case strings.HasSuffix(p, ".d.ts"), strings.HasSuffix(p, ".tsx"):
		return "TypeScript"
	case strings.HasSuffix(p, ".map"):
		return "Source Map (JSON)"
	}
	if name, ok := contentTypeNames[ct]; ok {
		return name
	}
	return ct
}

// HeaderValue 返回响应头使用的 Content-Type，JavaScript 附带 utf-8 字符集。
func HeaderValue(ct string) string {
	if ct == JavaScript {
		return ct + "; charset=utf-8"
	}
	return ct
}

// Extension 返回不带点的小写扩展名，用于 Cache-Tag。
func Extension(p string) string {
	ext := path.Ext(path.Base(p))
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
