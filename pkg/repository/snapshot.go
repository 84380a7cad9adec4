package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"wikivault/pkg/core"
	"wikivault/pkg/storage"
	"wikivault/pkg/treebuilder"
	"wikivault/pkg/types"
)

// Snapshot 是固定在某个 HEAD 上的只读视图，创建后不会刷新
type Snapshot struct {
	repo *Repository
	head types.Hash
}

// Document 是某个版本下的一篇文章
type Document struct {
	Hash    types.Hash
	Content string
}

// HistoryEntry 是一次真正改动了文章内容的提交
type HistoryEntry struct {
	Revision types.Hash     `json:"rev"`
	Hash     types.Hash     `json:"oid"`
	Author   core.Signature `json:"user"`
	Date     time.Time      `json:"date"`
	Summary  string         `json:"summary"`
}

// Head 返回快照固定的 HEAD
func (s *Snapshot) Head() (types.Hash, error) {
	if s.head.IsZero() {
		return "", ErrEmptyRepository
	}
	return s.head, nil
}

// Commit 读取一个提交；不存在时返回 ErrUnknownRevision
func (s *Snapshot) Commit(ctx context.Context, rev types.Hash) (*core.Commit, error) {
	if !rev.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRevision, rev.Short())
	}
	c, err := storage.ReadCommit(ctx, s.repo.store, rev)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRevision, rev.Short())
	}
	if err != nil {
		return nil, graphErr("read commit", err)
	}
	return c, nil
}

// Document 读取 rev 下的文章 (document_at)
// 标题或版本不存在时 ok 为 false；内容不是合法 UTF-8 时同样按不存在处理
func (s *Snapshot) Document(ctx context.Context, title types.Title, rev types.Hash) (Document, bool, error) {
	if !rev.IsValid() {
		return Document{}, false, nil
	}
	c, err := s.Commit(ctx, rev)
	if errors.Is(err, ErrUnknownRevision) {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, err
	}

	entry, ok, err := s.repo.builder.Lookup(ctx, c.TreeCid.Hash, title.Path())
	if err != nil {
		return Document{}, false, graphErr("lookup", err)
	}
	if !ok {
		return Document{}, false, nil
	}

	content, err := s.repo.readText(ctx, entry.Hash)
	if errors.Is(err, ErrEncoding) {
		s.repo.logger.Warn("skipping non-text document",
			slog.String("title", title.String()),
			slog.String("rev", rev.Short()))
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, err
	}
	return Document{Hash: entry.Hash, Content: content}, true, nil
}

// HeadDocument 读取快照 HEAD 下的文章
func (s *Snapshot) HeadDocument(ctx context.Context, title types.Title) (Document, bool, error) {
	if s.head.IsZero() {
		return Document{}, false, nil
	}
	return s.Document(ctx, title, s.head)
}

// History 返回改动过 title 内容的提交，最早的在前
// 内容 Hash 没变的连续提交只保留第一个；删除后重建算作新的改动
func (s *Snapshot) History(ctx context.Context, title types.Title) ([]HistoryEntry, error) {
	if s.head.IsZero() {
		return nil, nil
	}

	type point struct {
		commit *core.Commit
		blob   types.Hash
	}

	// 1. 沿 parent 链从 HEAD 走到根
	var chain []point
	for rev := s.head; !rev.IsZero(); {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := s.Commit(ctx, rev)
		if err != nil {
			return nil, err
		}
		entry, ok, err := s.repo.builder.Lookup(ctx, c.TreeCid.Hash, title.Path())
		if err != nil {
			return nil, graphErr("lookup", err)
		}
		p := point{commit: c}
		if ok {
			p.blob = entry.Hash
		}
		chain = append(chain, p)
		rev = c.Parent()
	}

	// 2. 从最早的提交开始去重
	var out []HistoryEntry
	var last types.Hash
	for i := len(chain) - 1; i >= 0; i-- {
		p := chain[i]
		if p.blob.IsZero() {
			// 被删除过：之后的重建即使内容相同也算一次改动
			last = ""
			continue
		}
		if p.blob == last {
			continue
		}
		last = p.blob
		out = append(out, HistoryEntry{
			Revision: p.commit.ID(),
			Hash:     p.blob,
			Author:   p.commit.Author,
			Date:     p.commit.Time().UTC(),
			Summary:  summary(p.commit.Message),
		})
	}
	return out, nil
}

// TraverseHeadTree 访问 HEAD 下的每一篇文章，恰好一次
// 非 .md 文件和非文本内容会被跳过
func (s *Snapshot) TraverseHeadTree(ctx context.Context, visit func(title types.Title, content string) error) error {
	if s.head.IsZero() {
		return nil
	}
	c, err := s.Commit(ctx, s.head)
	if err != nil {
		return err
	}

	return s.repo.builder.Walk(ctx, c.TreeCid.Hash, func(p string, e treebuilder.Entry) error {
		title, ok := types.TitleFromPath(p)
		if !ok {
			return nil
		}
		content, err := s.repo.readText(ctx, e.Hash)
		if errors.Is(err, ErrEncoding) {
			s.repo.logger.Warn("skipping non-text document", slog.String("title", title.String()))
			return nil
		}
		if err != nil {
			return err
		}
		return visit(title, content)
	})
}

// readText 读取 Blob 并校验 UTF-8
func (r *Repository) readText(ctx context.Context, hash types.Hash) (string, error) {
	blob, err := storage.ReadBlob(ctx, r.store, hash)
	if err != nil {
		return "", graphErr("read blob", err)
	}
	if !utf8.Valid(blob.Bytes()) {
		return "", fmt.Errorf("%w: blob %s", ErrEncoding, hash.Short())
	}
	return string(blob.Bytes()), nil
}

func summary(msg string) string {
	first, _, _ := strings.Cut(msg, "\n")
	return strings.TrimSpace(first)
}
