// Package markdown 把文章渲染成 HTML (CommonMark + 表格)
package markdown

import (
	"gitlab.com/golang-commonmark/markdown"
)

// Renderer 是并发安全的；解析器配置在构造后不再改变
type Renderer struct {
	md *markdown.Markdown
}

// New 创建渲染器。原始 HTML 不会透传，链接自动识别
func New() *Renderer {
	return &Renderer{
		md: markdown.New(
			markdown.HTML(false),
			markdown.Tables(true),
			markdown.Linkify(true),
			markdown.Typographer(false),
			markdown.XHTMLOutput(false),
		),
	}
}

// Render 渲染 markdown 源文本
func (r *Renderer) Render(src string) string {
	return r.md.RenderToString([]byte(src))
}
