package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	r := New()

	tests := []struct {
		name string
		src  string
		want []string
	}{
		{"heading", "# Title\n", []string{"<h1>Title</h1>"}},
		{"emphasis", "hello *world*\n", []string{"<em>world</em>"}},
		{"table", "| a | b |\n|---|---|\n| 1 | 2 |\n", []string{"<table>", "<td>1</td>"}},
		{"raw html escaped", "<script>alert(1)</script>\n", []string{"&lt;script&gt;"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := r.Render(tt.src)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
		})
	}
}
