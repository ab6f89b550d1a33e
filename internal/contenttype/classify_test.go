package contenttype

import "testing"

func TestTypeOfTextFiles(t *testing.T) {
	for _, p := range []string{"/.npmrc", "/.gitignore", "/.eslintignore", "/yarn.lock", "/LICENSE", "/README", "/lib/types.ts", "/src/a.flow", "/Makefile"} {
		if got := TypeOf(p); got != PlainText {
			t.Fatalf("%s 应为纯文本, got %s", p, got)
		}
	}
}

func TestTypeOfExtensions(t *testing.T) {
	cases := map[string]string{
		"/index.js":      JavaScript,
		"/esm/index.mjs": JavaScript,
		"/index.js.map":  "application/json",
		"/App.vue":       HTML,
		"/style.scss":    "text/x-scss",
		"/conf.yml":      "text/yaml",
		"/logo.SVG":      "image/svg+xml",
		"/unknown.qqq":   PlainText,
		"/noext":         PlainText,
	}
	for p, want := range cases {
		if got := TypeOf(p); got != want {
			t.Fatalf("TypeOf(%s)=%s, want %s", p, got, want)
		}
	}
}

func TestLanguageName(t *testing.T) {
	cases := map[string]string{
		"/index.d.ts":    "TypeScript",
		"/App.tsx":       "TypeScript",
		"/index.js.flow": "Flow",
		"/index.js.map":  "Source Map (JSON)",
		"/index.js":      "JavaScript",
		"/README.md":     "Markdown",
		"/a.png":         "image/png",
		"/a.ts":          "Plain Text",
	}
	for p, want := range cases {
		if got := Classify(p).Language; got != want {
			t.Fatalf("Classify(%s).Language=%s, want %s", p, got, want)
		}
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	first := Classify("/dist/react.production.min.js")
	for i := 0; i < 10; i++ {
		if Classify("/dist/react.production.min.js") != first {
			t.Fatalf("分类结果应稳定")
		}
	}
}

func TestHeaderValue(t *testing.T) {
	if HeaderValue(JavaScript) != "application/javascript; charset=utf-8" {
		t.Fatalf("JavaScript 应附带字符集")
	}
	if HeaderValue("text/css") != "text/css" {
		t.Fatalf("其他类型不应附带字符集")
	}
	if Extension("/a/b.Min.JS") != "js" {
		t.Fatalf("扩展名应小写且去掉点")
	}
}
