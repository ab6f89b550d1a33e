package rewrite

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// HTML 改写 <script type="module"> 内联脚本中的说明符，文档其余字节原样保留。
func (r *Rewriter) HTML(source string, doc []byte, deps map[string]string) ([]byte, error) {
	z := html.NewTokenizer(bytes.NewReader(doc))
	var (
		out      bytes.Buffer
		inModule bool
	)
	out.Grow(len(doc))

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return out.Bytes(), nil
			}
			return nil, &Error{Name: "ParseError", Message: source + ": " + z.Err().Error()}
		case html.StartTagToken:
			out.Write(z.Raw())
			inModule = isModuleScript(z)
			continue
		case html.TextToken:
			if inModule {
				raw := append([]byte(nil), z.Raw()...)
				code, err := r.JavaScript(source, raw, deps)
				if err != nil {
					return nil, err
				}
				out.Write(code)
				continue
			}
		case html.EndTagToken:
			inModule = false
		}
		out.Write(z.Raw())
	}
}

// isModuleScript 判断当前开始标签是否为 type=module 的 script。
// 必须在 Raw 之后调用，TagName/TagAttr 会原地改写缓冲区中的大小写。
func isModuleScript(z *html.Tokenizer) bool {
	name, hasAttr := z.TagName()
	if string(name) != "script" {
		return false
	}
	for hasAttr {
		var key, val []byte
		key, val, hasAttr = z.TagAttr()
		if string(key) == "type" && strings.EqualFold(strings.TrimSpace(string(val)), "module") {
			return true
		}
	}
	return false
}
