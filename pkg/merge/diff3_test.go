package merge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lines(ls ...string) string {
	return strings.Join(ls, "\n") + "\n"
}

func TestLines(t *testing.T) {
	base := lines("one", "two", "three", "four", "five")

	tests := []struct {
		name         string
		ancestor     string
		ours         string
		theirs       string
		want         string
		wantConflict bool
	}{
		{
			name:     "identical",
			ancestor: base, ours: base, theirs: base,
			want: base,
		},
		{
			name:     "only theirs changed",
			ancestor: base,
			ours:     base,
			theirs:   lines("one", "TWO", "three", "four", "five"),
			want:     lines("one", "TWO", "three", "four", "five"),
		},
		{
			name:     "only ours changed",
			ancestor: base,
			ours:     lines("one", "two", "three", "four", "FIVE"),
			theirs:   base,
			want:     lines("one", "two", "three", "four", "FIVE"),
		},
		{
			name:     "disjoint edits merge",
			ancestor: base,
			ours:     lines("ONE", "two", "three", "four", "five"),
			theirs:   lines("one", "two", "three", "four", "FIVE"),
			want:     lines("ONE", "two", "three", "four", "FIVE"),
		},
		{
			name:     "insert and delete in different places",
			ancestor: base,
			ours:     lines("zero", "one", "two", "three", "four", "five"),
			theirs:   lines("one", "two", "three", "four"),
			want:     lines("zero", "one", "two", "three", "four"),
		},
		{
			name:     "same change on both sides",
			ancestor: base,
			ours:     lines("one", "two", "THREE", "four", "five"),
			theirs:   lines("one", "two", "THREE", "four", "five", "six"),
			want:     lines("one", "two", "THREE", "four", "five", "six"),
		},
		{
			name:         "overlapping edits conflict",
			ancestor:     base,
			ours:         lines("one", "two", "ours", "four", "five"),
			theirs:       lines("one", "two", "theirs", "four", "five"),
			want:         lines("one", "two", MarkerOurs, "ours", MarkerSep, "theirs", MarkerTheirs, "four", "five"),
			wantConflict: true,
		},
		{
			name:         "both added from empty ancestor",
			ancestor:     "",
			ours:         "a\n",
			theirs:       "b\n",
			want:         lines(MarkerOurs, "a", MarkerSep, "b", MarkerTheirs),
			wantConflict: true,
		},
		{
			name:     "one side added from empty ancestor",
			ancestor: "",
			ours:     "",
			theirs:   "b\n",
			want:     "b\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Lines(tt.ancestor, tt.ours, tt.theirs)
			assert.Equal(t, tt.wantConflict, out.Conflict)
			assert.Equal(t, tt.want, out.Text)
		})
	}
}

func TestLines_NoTrailingNewline(t *testing.T) {
	out := Lines("a\nmid\nb", "A\nmid\nb", "a\nmid\nB")
	require.False(t, out.Conflict)
	assert.Equal(t, "A\nmid\nB", out.Text)

	out = Lines("a", "x", "y")
	require.True(t, out.Conflict)
	assert.Equal(t, lines(MarkerOurs, "x", MarkerSep, "y", MarkerTheirs), out.Text)
	assert.Equal(t, 1, out.Conflicts)
}

func TestDiff3_HunkKinds(t *testing.T) {
	anc := []string{"a\n", "b\n", "c\n", "d\n", "e\n"}
	ours := []string{"A\n", "b\n", "c\n", "d\n", "e\n"}
	theirs := []string{"a\n", "b\n", "c\n", "d\n", "E\n"}

	hunks := Diff3(anc, ours, theirs)

	var kinds []HunkKind
	for _, h := range hunks {
		kinds = append(kinds, h.Kind)
	}
	assert.Equal(t, []HunkKind{HunkOurs, HunkStable, HunkTheirs}, kinds)
	assert.Equal(t, []string{"b\n", "c\n", "d\n"}, hunks[1].Ours, "连续的稳定行应当合并为一段")
	assert.Equal(t, "theirs", HunkTheirs.String())
}

func TestSplitLines(t *testing.T) {
	assert.Nil(t, splitLines(""))
	assert.Equal(t, []string{"a\n", "b"}, splitLines("a\nb"))
	assert.Equal(t, []string{"a\n", "b\n"}, splitLines("a\nb\n"))
}
