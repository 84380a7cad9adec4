package repository

import (
	"wikivault/pkg/core"
	"wikivault/pkg/types"
)

// ResultKind 是一次编辑提交的结果类型
type ResultKind string

const (
	KindNoConflict ResultKind = "no_conflict"
	KindMerged     ResultKind = "merged"
	KindConflict   ResultKind = "conflict"
)

// Edit 是一次编辑提交的输入
type Edit struct {
	Title   types.Title
	Content string

	// AncestorHash 是编辑器打开时文章的 Hash；编辑器认为文章不存在时为空
	AncestorHash types.Hash

	// BaseRevision 是编辑器页面渲染时的 HEAD
	BaseRevision types.Hash

	Author  core.Signature
	Message string
}

// EditResult 是 CommitArticle 的结果
//
//   - no_conflict: 直接提交，NewRevision / NewHash 指向新提交
//   - merged: 与并发修改自动合并，MergedText 是合并后的内容；
//     合并结果与 HEAD 相同时不提交，NewRevision 为空；
//     文章在 HEAD 上已被删除且合并保留删除时 NewHash 为空
//   - conflict: 没有提交，调用者需要把三方内容交给用户手动解决，
//     然后以 AncestorHash = Hash 重新提交
type EditResult struct {
	Kind ResultKind `json:"type"`

	MergedText   string  `json:"merged,omitempty"`
	AncestorText *string `json:"ancestor,omitempty"`
	OursText     string  `json:"ours,omitempty"`
	TheirsText   string  `json:"theirs,omitempty"`

	// Hash 与 Revision 是合并/冲突时 HEAD 上的文章 Hash 与 HEAD 本身
	Hash     types.Hash `json:"oid,omitempty"`
	Revision types.Hash `json:"rev,omitempty"`

	// NewHash 与 NewRevision 是本次提交产生的文章 Hash 与提交
	NewHash     types.Hash `json:"new_oid,omitempty"`
	NewRevision types.Hash `json:"new_rev,omitempty"`
}

// Committed 表示这次编辑是否推进了 HEAD
func (r *EditResult) Committed() bool {
	return !r.NewRevision.IsZero()
}

// Removed 表示合并后文章在 HEAD 上不存在
func (r *EditResult) Removed() bool {
	return r.Kind == KindMerged && r.NewHash.IsZero()
}

// Text 返回提交后文章的内容
func (r *EditResult) Text(submitted string) string {
	if r.Kind == KindMerged {
		return r.MergedText
	}
	return submitted
}
