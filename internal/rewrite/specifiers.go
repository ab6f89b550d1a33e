package rewrite

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/js"
)

// literal 描述一个可被替换的字符串字面量，start/end 覆盖包括引号在内的范围。
type literal struct {
	start int
	end   int
	quote byte
	value string
}

// specifierVisitor 收集 import/export 源字符串与 import("...") 的首个字符串参数。
type specifierVisitor struct {
	found [][]byte
}

func (v *specifierVisitor) Enter(n js.INode) js.IVisitor {
	switch n := n.(type) {
	case *js.ImportStmt:
		if len(n.Module) > 0 {
			v.found = append(v.found, n.Module)
		}
	case *js.ExportStmt:
		if len(n.Module) > 0 {
			v.found = append(v.found, n.Module)
		}
	case *js.CallExpr:
		callee, ok := n.X.(*js.LiteralExpr)
		if !ok || callee.TokenType != js.ImportToken || len(n.Args.List) == 0 {
			break
		}
		if arg, ok := n.Args.List[0].Value.(*js.LiteralExpr); ok && arg.TokenType == js.StringToken {
			v.found = append(v.found, arg.Data)
		}
	}
	return v
}

func (v *specifierVisitor) Exit(js.INode) {}

// locateSpecifiers 用 JS 语法树定位说明符字面量在 code 中的字节范围。
// 语法树中的字面量切片指向解析缓冲区，偏移量按地址比对得出。
func locateSpecifiers(source string, code []byte) ([]literal, error) {
	// 多留一个字节的容量，解析器会直接复用该缓冲区而不再复制。
	buf := make([]byte, len(code), len(code)+1)
	copy(buf, code)
	input := parse.NewInputBytes(buf)

	ast, err := js.Parse(input, js.Options{})
	if err != nil {
		return nil, parseError(source, code, err)
	}
	v := &specifierVisitor{}
	js.Walk(v, ast)

	data := input.Bytes()
	literals := make([]literal, 0, len(v.found))
	for _, raw := range v.found {
		start := offsetOf(data, raw)
		if start < 0 || len(raw) < 2 {
			continue
		}
		literals = append(literals, literal{
			start: start,
			end:   start + len(raw),
			quote: raw[0],
			value: unescape(raw[1 : len(raw)-1]),
		})
	}
	return literals, nil
}

// offsetOf 返回 sub 在 data 中的起始下标，sub 必须是 data 的子切片。
func offsetOf(data, sub []byte) int {
	for from := 0; from < len(data); {
		i := bytes.Index(data[from:], sub)
		if i < 0 {
			return -1
		}
		if &data[from+i] == &sub[0] {
			return from + i
		}
		from += i + 1
	}
	return -1
}

// unescape 去掉字符串字面量中的转义反斜杠，说明符里不会出现 \n 之类的控制转义。
func unescape(body []byte) string {
	if bytes.IndexByte(body, '\\') < 0 {
		return string(body)
	}
	out := make([]byte, 0, len(body))
	for i := 0; i < len(body); i++ {
		if body[i] == '\\' && i+1 < len(body) {
			i++
		}
		out = append(out, body[i])
	}
	return string(out)
}

func parseError(source string, code []byte, err error) *Error {
	var perr *parse.Error
	if !errors.As(err, &perr) {
		return &Error{Name: "SyntaxError", Message: fmt.Sprintf("%s: %v", source, err)}
	}
	return &Error{
		Name:    "SyntaxError",
		Message: fmt.Sprintf("%s: %s (%d:%d)", source, perr.Message, perr.Line, perr.Column-1),
		Frame:   codeFrame(code, perr.Line, perr.Column-1),
	}
}
