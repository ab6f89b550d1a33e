package rewrite

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

// Error 描述一次改写失败，Frame 是出错位置附近的源码片段。
type Error struct {
	Name    string
	Message string
	Frame   string
}

func (e *Error) Error() string {
	return e.Name + ": " + e.Message
}

// 代码片段在出错行前后各保留的行数。
const frameContext = 2

func newSyntaxError(source string, src []byte, msg api.Message) *Error {
	loc := msg.Location
	if loc == nil {
		return &Error{Name: "SyntaxError", Message: fmt.Sprintf("%s: %s", source, msg.Text)}
	}
	return &Error{
		Name:    "SyntaxError",
		Message: fmt.Sprintf("%s: %s (%d:%d)", source, msg.Text, loc.Line, loc.Column),
		Frame:   codeFrame(src, loc.Line, loc.Column),
	}
}

// codeFrame 生成带行号与列指示符的源码片段，line 从 1 开始、column 从 0 开始。
func codeFrame(src []byte, line, column int) string {
	lines := strings.Split(string(src), "\n")
	if line < 1 || line > len(lines) {
		return ""
	}
	first := line - frameContext
	if first < 1 {
		first = 1
	}
	last := line + frameContext
	if last > len(lines) {
		last = len(lines)
	}
	width := len(fmt.Sprint(last))

	var b strings.Builder
	for n := first; n <= last; n++ {
		marker := " "
		if n == line {
			marker = ">"
		}
		text := strings.TrimRight(lines[n-1], "\r")
		fmt.Fprintf(&b, "%s %*d | %s\n", marker, width, n, text)
		if n == line {
			fmt.Fprintf(&b, "  %s | %s^\n", strings.Repeat(" ", width), strings.Repeat(" ", column))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
