package repository

import (
	"context"
	"fmt"
	"sort"

	"wikivault/pkg/merge"
	"wikivault/pkg/treebuilder"
	"wikivault/pkg/types"
)

// pathConflict 描述一个无法自动合并的路径
// 某一侧不存在时对应的 Hash 为空
type pathConflict struct {
	Path     string
	Ancestor types.Hash
	Ours     types.Hash
	Theirs   types.Hash
}

// treeMerge 是三方树合并的结果
type treeMerge struct {
	Files     treebuilder.Entries
	Conflicts []pathConflict
}

func (m *treeMerge) conflictAt(p string) (pathConflict, bool) {
	for _, c := range m.Conflicts {
		if c.Path == p {
			return c, true
		}
	}
	return pathConflict{}, false
}

// mergeTrees 按路径做三方合并：
// 只有一侧改动的路径直接取改动方，两侧都改了的文本文件交给 diff3
func (r *Repository) mergeTrees(ctx context.Context, ancestor, ours, theirs types.Hash) (*treeMerge, error) {
	a, err := r.builder.Flatten(ctx, ancestor)
	if err != nil {
		return nil, graphErr("flatten ancestor", err)
	}
	o, err := r.builder.Flatten(ctx, ours)
	if err != nil {
		return nil, graphErr("flatten ours", err)
	}
	t, err := r.builder.Flatten(ctx, theirs)
	if err != nil {
		return nil, graphErr("flatten theirs", err)
	}

	paths := make(map[string]struct{}, len(o)+len(t))
	for _, files := range []treebuilder.Entries{a, o, t} {
		for p := range files {
			paths[p] = struct{}{}
		}
	}
	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	out := &treeMerge{Files: make(treebuilder.Entries, len(o))}
	for _, p := range sorted {
		ae, inA := a[p]
		oe, inO := o[p]
		te, inT := t[p]

		switch {
		// 两边一致 (包括都删除)
		case inO == inT && oe.Hash == te.Hash:
			if inO {
				out.Files[p] = oe
			}
		// 只有 theirs 改了
		case inA == inO && ae.Hash == oe.Hash:
			if inT {
				out.Files[p] = te
			}
		// 只有 ours 改了
		case inA == inT && ae.Hash == te.Hash:
			if inO {
				out.Files[p] = oe
			}
		// 一边删除一边修改
		case !inO || !inT:
			out.Conflicts = append(out.Conflicts, pathConflict{Path: p, Ancestor: ae.Hash, Ours: oe.Hash, Theirs: te.Hash})
		default:
			entry, clean, err := r.mergeFile(ctx, ae.Hash, oe.Hash, te.Hash)
			if err != nil {
				return nil, fmt.Errorf("merge %s: %w", p, err)
			}
			if !clean {
				out.Conflicts = append(out.Conflicts, pathConflict{Path: p, Ancestor: ae.Hash, Ours: oe.Hash, Theirs: te.Hash})
				continue
			}
			out.Files[p] = entry
		}
	}
	return out, nil
}

// mergeFile 对一个两边都修改过的文件做 diff3，干净时把结果写成新 Blob
func (r *Repository) mergeFile(ctx context.Context, ancestor, ours, theirs types.Hash) (treebuilder.Entry, bool, error) {
	var ancText string
	if !ancestor.IsZero() {
		s, err := r.readText(ctx, ancestor)
		if err != nil {
			return treebuilder.Entry{}, false, err
		}
		ancText = s
	}
	oursText, err := r.readText(ctx, ours)
	if err != nil {
		return treebuilder.Entry{}, false, err
	}
	theirsText, err := r.readText(ctx, theirs)
	if err != nil {
		return treebuilder.Entry{}, false, err
	}

	outcome := merge.Lines(ancText, oursText, theirsText)
	if outcome.Conflict {
		return treebuilder.Entry{}, false, nil
	}

	blob, err := r.putBlob(ctx, outcome.Text)
	if err != nil {
		return treebuilder.Entry{}, false, err
	}
	return treebuilder.Entry{Hash: blob.ID(), Size: blob.Size()}, true, nil
}

// optionalText 读取可能不存在的一侧
func (r *Repository) optionalText(ctx context.Context, hash types.Hash) (*string, error) {
	if hash.IsZero() {
		return nil, nil
	}
	s, err := r.readText(ctx, hash)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
