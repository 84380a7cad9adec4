package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"wikivault/pkg/core"
	"wikivault/pkg/metrics"
	"wikivault/pkg/refs"
	"wikivault/pkg/storage"
	"wikivault/pkg/treebuilder"
	"wikivault/pkg/types"

	"github.com/google/uuid"
)

// maxHeadRetries 是 HEAD 被外部推送抢先时重新分类的次数
const maxHeadRetries = 3

// WriteSession 持有全局写锁，直到 Release
type WriteSession struct {
	repo     *Repository
	id       string
	released atomic.Bool
	logger   *slog.Logger
}

func (r *Repository) acquire(ctx context.Context) error {
	start := time.Now()
	if err := r.gate.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	metrics.WriteLockWait.Observe(time.Since(start).Seconds())
	return nil
}

func newWriteSession(r *Repository) *WriteSession {
	id := uuid.NewString()
	return &WriteSession{
		repo:   r,
		id:     id,
		logger: r.logger.With(slog.String("session", id)),
	}
}

// ID 返回会话 ID (日志关联用)
func (w *WriteSession) ID() string { return w.id }

// Release 释放写锁；重复调用是无操作
func (w *WriteSession) Release() {
	if w.released.CompareAndSwap(false, true) {
		w.repo.gate.Release(1)
	}
}

// headState 是一次分类所基于的 HEAD
type headState struct {
	rev     types.Hash
	version int64
	tree    types.Hash
}

func (w *WriteSession) readHead(ctx context.Context) (headState, error) {
	rev, version, err := w.repo.refs.GetHead(ctx)
	if errors.Is(err, refs.ErrNoHead) {
		return headState{}, ErrEmptyRepository
	}
	if err != nil {
		return headState{}, err
	}
	c, err := storage.ReadCommit(ctx, w.repo.store, rev)
	if err != nil {
		return headState{}, graphErr("read head commit", err)
	}
	return headState{rev: rev, version: version, tree: c.TreeCid.Hash}, nil
}

// CommitArticle 提交一次编辑
//
// 1. 读取 HEAD 上 title 的当前 Hash
// 2. 与 AncestorHash 相同 (或两者都不存在) 时直接提交
// 3. 否则做三方合并：干净则提交合并结果，冲突则不提交并返回三方内容
//
// 对象写入失败时 HEAD 不会移动
func (w *WriteSession) CommitArticle(ctx context.Context, edit Edit) (*EditResult, error) {
	if w.released.Load() {
		return nil, ErrReleased
	}
	if err := edit.Title.Validate(); err != nil {
		return nil, err
	}
	if !utf8.ValidString(edit.Content) {
		return nil, fmt.Errorf("%w: submitted content", ErrEncoding)
	}
	if err := checkHash("ancestor hash", edit.AncestorHash); err != nil {
		return nil, err
	}
	if err := checkHash("base revision", edit.BaseRevision); err != nil {
		return nil, err
	}
	if edit.Message == "" {
		edit.Message = "Update " + edit.Title.String()
	}

	for attempt := 0; attempt < maxHeadRetries; attempt++ {
		res, err := w.commitOnce(ctx, edit)
		if errors.Is(err, refs.ErrStaleHead) {
			// 外部推送在我们读 HEAD 之后移动了它
			metrics.HeadRetries.Inc()
			w.logger.Info("head moved during commit, retrying",
				slog.String("title", edit.Title.String()),
				slog.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			metrics.EditsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		metrics.EditsTotal.WithLabelValues(string(res.Kind)).Inc()
		return res, nil
	}
	metrics.EditsTotal.WithLabelValues("error").Inc()
	return nil, ErrHeadMoved
}

// checkHash 拒绝非空但格式不合法的 Hash，它们会被直接拼进对象路径
func checkHash(field string, h types.Hash) error {
	if h.IsZero() || h.IsValid() {
		return nil
	}
	return fmt.Errorf("%w: %s %q", ErrInvalidHash, field, h.Short())
}

func (w *WriteSession) commitOnce(ctx context.Context, edit Edit) (*EditResult, error) {
	head, err := w.readHead(ctx)
	if err != nil {
		return nil, err
	}

	path := edit.Title.Path()
	current, exists, err := w.repo.builder.Lookup(ctx, head.tree, path)
	if err != nil {
		return nil, graphErr("lookup current", err)
	}

	// 分类：按 Hash 相等判断是否有并发修改
	switch {
	case !exists && edit.AncestorHash.IsZero():
		return w.fastCommit(ctx, head, edit)
	case exists && current.Hash == edit.AncestorHash:
		return w.fastCommit(ctx, head, edit)
	default:
		return w.mergeCommit(ctx, head, current.Hash, edit)
	}
}

func (w *WriteSession) fastCommit(ctx context.Context, head headState, edit Edit) (*EditResult, error) {
	blob, err := w.repo.putBlob(ctx, edit.Content)
	if err != nil {
		return nil, err
	}
	tree, err := w.repo.builder.Graft(ctx, head.tree, edit.Title.Path(), treebuilder.Entry{Hash: blob.ID(), Size: blob.Size()})
	if err != nil {
		return nil, graphErr("graft", err)
	}
	commit, err := w.advance(ctx, head, tree, edit.Author, edit.Message, []types.Title{edit.Title})
	if err != nil {
		return nil, err
	}

	w.logger.Info("article committed",
		slog.String("title", edit.Title.String()),
		slog.String("rev", commit.ID().Short()))

	return &EditResult{
		Kind:        KindNoConflict,
		NewHash:     blob.ID(),
		NewRevision: commit.ID(),
	}, nil
}

func (w *WriteSession) mergeCommit(ctx context.Context, head headState, current types.Hash, edit Edit) (*EditResult, error) {
	// 1. ancestor 树：编辑器开始编辑时的版本；没有 base 时视为空树
	var ancestorTree types.Hash
	if !edit.BaseRevision.IsZero() {
		snap := &Snapshot{repo: w.repo, head: head.rev}
		base, err := snap.Commit(ctx, edit.BaseRevision)
		if err != nil {
			return nil, err
		}
		ancestorTree = base.TreeCid.Hash
	}

	// 2. theirs 树：把提交的内容嫁接到 ancestor 树上
	blob, err := w.repo.putBlob(ctx, edit.Content)
	if err != nil {
		return nil, err
	}
	theirsTree, err := w.repo.builder.Graft(ctx, ancestorTree, edit.Title.Path(), treebuilder.Entry{Hash: blob.ID(), Size: blob.Size()})
	if err != nil {
		return nil, graphErr("graft theirs", err)
	}

	// 3. 结构化三方合并 (ours = HEAD)
	merged, err := w.repo.mergeTrees(ctx, ancestorTree, head.tree, theirsTree)
	if err != nil {
		return nil, err
	}

	path := edit.Title.Path()
	if c, ok := merged.conflictAt(path); ok {
		return w.conflictResult(ctx, head, current, c)
	}
	if len(merged.Conflicts) > 0 {
		// theirs 只在 title 上与 ancestor 不同，别的路径不可能冲突
		return nil, graphErr("merge", fmt.Errorf("unexpected conflict at %s", merged.Conflicts[0].Path))
	}

	// 4. 干净合并
	tree, err := w.repo.builder.Build(ctx, merged.Files)
	if err != nil {
		return nil, graphErr("build merged tree", err)
	}

	res := &EditResult{
		Kind:     KindMerged,
		Hash:     current,
		Revision: head.rev,
	}
	if entry, ok := merged.Files[path]; ok {
		text, err := w.repo.readText(ctx, entry.Hash)
		if err != nil {
			return nil, err
		}
		res.MergedText = text
		res.NewHash = entry.Hash
	}

	// 合并结果就是 HEAD (例如对方删除了文章、我们没有改动)：不产生空提交
	if tree == head.tree {
		w.logger.Info("merge left head unchanged",
			slog.String("title", edit.Title.String()),
			slog.String("head", head.rev.Short()))
		return res, nil
	}

	commit, err := w.advance(ctx, head, tree, edit.Author, edit.Message, []types.Title{edit.Title})
	if err != nil {
		return nil, err
	}
	res.NewRevision = commit.ID()

	w.logger.Info("article merged",
		slog.String("title", edit.Title.String()),
		slog.String("base", edit.BaseRevision.Short()),
		slog.String("head", head.rev.Short()),
		slog.String("rev", commit.ID().Short()))
	return res, nil
}

func (w *WriteSession) conflictResult(ctx context.Context, head headState, current types.Hash, c pathConflict) (*EditResult, error) {
	ancestor, err := w.repo.optionalText(ctx, c.Ancestor)
	if err != nil {
		return nil, err
	}
	ours, err := w.repo.optionalText(ctx, c.Ours)
	if err != nil {
		return nil, err
	}
	theirs, err := w.repo.optionalText(ctx, c.Theirs)
	if err != nil {
		return nil, err
	}

	res := &EditResult{
		Kind:         KindConflict,
		AncestorText: ancestor,
		Hash:         current,
		Revision:     head.rev,
	}
	if ours != nil {
		res.OursText = *ours
	}
	if theirs != nil {
		res.TheirsText = *theirs
	}

	w.logger.Info("edit conflicts with head",
		slog.String("path", c.Path),
		slog.String("head", head.rev.Short()))
	return res, nil
}

// ReplaceTree 用一棵完整的新树推进 HEAD (外部推送使用)
// 返回旧 HEAD 与新 HEAD
func (w *WriteSession) ReplaceTree(ctx context.Context, files treebuilder.Entries, author core.Signature, msg string) (types.Hash, types.Hash, error) {
	if w.released.Load() {
		return "", "", ErrReleased
	}

	tree, err := w.repo.builder.Build(ctx, files)
	if err != nil {
		return "", "", graphErr("build pushed tree", err)
	}

	for attempt := 0; attempt < maxHeadRetries; attempt++ {
		head, err := w.readHead(ctx)
		if err != nil {
			return "", "", err
		}
		if head.tree == tree {
			return head.rev, head.rev, nil
		}

		changed, err := w.repo.changedTitles(ctx, head.tree, files)
		if err != nil {
			return "", "", err
		}

		commit, err := w.advance(ctx, head, tree, author, msg, changed)
		if errors.Is(err, refs.ErrStaleHead) {
			metrics.HeadRetries.Inc()
			continue
		}
		if err != nil {
			return "", "", err
		}
		return head.rev, commit.ID(), nil
	}
	return "", "", ErrHeadMoved
}

// advance 写入提交并用 CAS 推进 HEAD
func (w *WriteSession) advance(ctx context.Context, head headState, tree types.Hash, author core.Signature, msg string, titles []types.Title) (*core.Commit, error) {
	commit, err := core.NewCommit(tree, head.rev, author, msg)
	if err != nil {
		return nil, err
	}
	if err := w.repo.store.Put(ctx, commit); err != nil {
		return nil, graphErr("put commit", err)
	}
	if err := w.repo.refs.UpdateHead(ctx, commit.ID(), head.version); err != nil {
		return nil, err
	}
	w.repo.indexCommit(ctx, commit, titles)
	return commit, nil
}

func (r *Repository) putBlob(ctx context.Context, content string) (*core.Blob, error) {
	blob := core.NewBlob([]byte(content))
	if err := r.store.Put(ctx, blob); err != nil {
		return nil, graphErr("put blob", err)
	}
	return blob, nil
}

// changedTitles 列出新旧两棵树之间内容不同的文章
func (r *Repository) changedTitles(ctx context.Context, oldTree types.Hash, files treebuilder.Entries) ([]types.Title, error) {
	old, err := r.builder.Flatten(ctx, oldTree)
	if err != nil {
		return nil, graphErr("flatten head", err)
	}
	var titles []types.Title
	for p, e := range files {
		if o, ok := old[p]; ok && o.Hash == e.Hash {
			continue
		}
		if t, ok := types.TitleFromPath(p); ok {
			titles = append(titles, t)
		}
	}
	for p := range old {
		if _, ok := files[p]; ok {
			continue
		}
		if t, ok := types.TitleFromPath(p); ok {
			titles = append(titles, t)
		}
	}
	return titles, nil
}
