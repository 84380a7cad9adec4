// Package merge 实现按行的三方合并 (diff3)。
//
// 这是一个纯函数：不碰存储、不碰锁，输入三段文本，输出合并结果。
package merge

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// 冲突标记，与 git 的格式保持一致
const (
	MarkerOurs   = "<<<<<<< ours"
	MarkerSep    = "======="
	MarkerTheirs = ">>>>>>> theirs"
)

// HunkKind 表示一段合并结果的来源
type HunkKind uint8

const (
	HunkStable   HunkKind = iota // 三方一致
	HunkOurs                     // 只有 ours 改了
	HunkTheirs                   // 只有 theirs 改了
	HunkBoth                     // 两边做了相同的修改
	HunkConflict                 // 两边做了不同的修改
)

func (k HunkKind) String() string {
	switch k {
	case HunkStable:
		return "stable"
	case HunkOurs:
		return "ours"
	case HunkTheirs:
		return "theirs"
	case HunkBoth:
		return "both"
	case HunkConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Hunk 是合并结果中的一段
type Hunk struct {
	Kind     HunkKind
	Ancestor []string
	Ours     []string
	Theirs   []string
}

// Outcome 是一次三方合并的结果
// Conflict 为 true 时 Text 中带有冲突标记
type Outcome struct {
	Text      string
	Conflict  bool
	Conflicts int
	Hunks     []Hunk
}

// Lines 对三段文本做按行三方合并
func Lines(ancestor, ours, theirs string) Outcome {
	// 快速路径
	switch {
	case ours == theirs:
		return Outcome{Text: ours}
	case ancestor == ours:
		return Outcome{Text: theirs}
	case ancestor == theirs:
		return Outcome{Text: ours}
	}

	hunks := Diff3(splitLines(ancestor), splitLines(ours), splitLines(theirs))

	var sb strings.Builder
	out := Outcome{Hunks: hunks}
	for _, h := range hunks {
		switch h.Kind {
		case HunkStable, HunkOurs, HunkBoth:
			writeLines(&sb, h.Ours)
		case HunkTheirs:
			writeLines(&sb, h.Theirs)
		case HunkConflict:
			out.Conflict = true
			out.Conflicts++
			writeMarker(&sb, MarkerOurs)
			writeLines(&sb, h.Ours)
			writeMarker(&sb, MarkerSep)
			writeLines(&sb, h.Theirs)
			writeMarker(&sb, MarkerTheirs)
		}
	}
	out.Text = sb.String()
	return out
}

// Diff3 按 ancestor 中同时与两边匹配的行 (稳定行) 切分，
// 两个稳定行之间的区域按 "谁改了" 分类
func Diff3(ancestor, ours, theirs []string) []Hunk {
	mo := matchIndex(ancestor, ours)
	mt := matchIndex(ancestor, theirs)

	var hunks []Hunk
	ao, oo, to := 0, 0, 0

	for j := range ancestor {
		oj, okO := mo[j]
		tj, okT := mt[j]
		if !okO || !okT {
			continue
		}

		// j 之前的不稳定区域
		if j > ao || oj > oo || tj > to {
			hunks = append(hunks, classify(ancestor[ao:j], ours[oo:oj], theirs[to:tj]))
		}

		hunks = appendStable(hunks, ancestor[j])
		ao, oo, to = j+1, oj+1, tj+1
	}

	if ao < len(ancestor) || oo < len(ours) || to < len(theirs) {
		hunks = append(hunks, classify(ancestor[ao:], ours[oo:], theirs[to:]))
	}
	return hunks
}

// matchIndex 返回 a 中每个被匹配行在 b 中的位置
func matchIndex(a, b []string) map[int]int {
	m := difflib.NewMatcherWithJunk(a, b, false, nil)
	idx := make(map[int]int)
	for _, blk := range m.GetMatchingBlocks() {
		for k := 0; k < blk.Size; k++ {
			idx[blk.A+k] = blk.B + k
		}
	}
	return idx
}

func classify(anc, ours, theirs []string) Hunk {
	h := Hunk{Ancestor: anc, Ours: ours, Theirs: theirs}
	switch {
	case equal(anc, ours):
		h.Kind = HunkTheirs
	case equal(anc, theirs):
		h.Kind = HunkOurs
	case equal(ours, theirs):
		h.Kind = HunkBoth
	default:
		h.Kind = HunkConflict
	}
	return h
}

// appendStable 把连续的稳定行合并到同一个 Hunk
func appendStable(hunks []Hunk, line string) []Hunk {
	if n := len(hunks); n > 0 && hunks[n-1].Kind == HunkStable {
		last := &hunks[n-1]
		last.Ancestor = append(last.Ancestor, line)
		last.Ours = append(last.Ours, line)
		last.Theirs = append(last.Theirs, line)
		return hunks
	}
	return append(hunks, Hunk{
		Kind:     HunkStable,
		Ancestor: []string{line},
		Ours:     []string{line},
		Theirs:   []string{line},
	})
}

// splitLines 按行切分并保留行尾，这样拼回去是无损的
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func writeLines(sb *strings.Builder, lines []string) {
	for _, l := range lines {
		sb.WriteString(l)
	}
}

func writeMarker(sb *strings.Builder, marker string) {
	if s := sb.String(); s != "" && !strings.HasSuffix(s, "\n") {
		sb.WriteByte('\n')
	}
	sb.WriteString(marker)
	sb.WriteByte('\n')
}
