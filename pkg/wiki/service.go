// Package wiki 把仓库、合并、索引和渲染组合成 HTTP 层调用的服务
package wiki

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"wikivault/pkg/core"
	"wikivault/pkg/ipc"
	"wikivault/pkg/markdown"
	"wikivault/pkg/repository"
	"wikivault/pkg/search"
	"wikivault/pkg/types"
)

const defaultRecentLimit = 50

// SubmitRequest 是编辑表单提交的内容
type SubmitRequest struct {
	Title        types.Title `json:"title"`
	Markdown     string      `json:"markdown"`
	AncestorHash types.Hash  `json:"ancestor_oid,omitempty"`
	BaseRevision types.Hash  `json:"base_rev"`
	Message      string      `json:"message,omitempty"`
}

// Article 是一篇渲染好的文章
type Article struct {
	Title    types.Title `json:"title"`
	Segments []string    `json:"segments"`
	Markdown string      `json:"markdown"`
	HTML     string      `json:"html"`
	Revision types.Hash  `json:"rev"`
}

// ArticleInfo 是编辑器打开文章时需要的信息
type ArticleInfo struct {
	Markdown string     `json:"markdown"`
	Hash     types.Hash `json:"oid,omitempty"`
	Revision types.Hash `json:"rev"`
}

// Change 是最近修改列表中的一项
type Change struct {
	Revision types.Hash    `json:"rev"`
	Author   string        `json:"user"`
	Message  string        `json:"message"`
	Date     time.Time     `json:"date"`
	Titles   []types.Title `json:"titles"`
}

// Service 持有仓库与索引；它本身没有可变状态
type Service struct {
	repo     *repository.Repository
	index    *search.Index
	render   *markdown.Renderer
	identity IdentityProvider
	logger   *slog.Logger
}

func NewService(repo *repository.Repository, index *search.Index, identity IdentityProvider, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		index:    index,
		render:   markdown.New(),
		identity: identity,
		logger:   logger,
	}
}

// HomePage 返回首页标题
func (s *Service) HomePage() types.Title { return s.repo.HomePage() }

// SubmitEdit 提交编辑；提交成功后在同一个写会话里更新索引
// 索引失败只记日志，不影响已经完成的提交
func (s *Service) SubmitEdit(ctx context.Context, req SubmitRequest) (*repository.EditResult, error) {
	if err := req.Title.Validate(); err != nil {
		return nil, err
	}
	author, err := s.identity.Identify(ctx)
	if err != nil {
		return nil, err
	}

	w, err := s.repo.Write(ctx)
	if err != nil {
		return nil, err
	}
	defer w.Release()

	res, err := w.CommitArticle(ctx, repository.Edit{
		Title:        req.Title,
		Content:      req.Markdown,
		AncestorHash: req.AncestorHash,
		BaseRevision: req.BaseRevision,
		Author:       author,
		Message:      req.Message,
	})
	if err != nil {
		return nil, err
	}

	if res.Kind == repository.KindConflict {
		return res, nil
	}

	// 索引只反映 HEAD：合并后文章不存在时从索引中删除
	if res.Removed() {
		err = s.index.DeleteArticle(req.Title)
	} else {
		err = s.index.UpdateArticle(req.Title, res.Text(req.Markdown))
	}
	if err != nil {
		s.logger.Error("failed to update search index",
			slog.String("title", req.Title.String()),
			slog.String("error", err.Error()))
	}
	return res, nil
}

// Preview 只渲染，不访问仓库
func (s *Service) Preview(src string) string {
	return s.render.Render(src)
}

// ReadArticle 读取并渲染文章；rev 为空时读 HEAD (走索引)
func (s *Service) ReadArticle(ctx context.Context, title types.Title, rev types.Hash) (*Article, bool, error) {
	if err := title.Validate(); err != nil {
		return nil, false, err
	}
	snap, err := s.repo.Read(ctx)
	if err != nil {
		return nil, false, err
	}

	var content string
	var ok bool
	if rev.IsZero() {
		rev, _ = snap.Head()
		content, ok, err = s.index.GetArticle(ctx, title, func(ctx context.Context) (string, bool, error) {
			doc, ok, err := snap.HeadDocument(ctx, title)
			return doc.Content, ok, err
		})
	} else {
		var doc repository.Document
		doc, ok, err = snap.Document(ctx, title, rev)
		content = doc.Content
	}
	if err != nil || !ok {
		return nil, false, err
	}

	return &Article{
		Title:    title,
		Segments: title.Segments(),
		Markdown: content,
		HTML:     s.render.Render(content),
		Revision: rev,
	}, true, nil
}

// ArticleInfo 返回 HEAD 下文章的源文本与 Hash；文章不存在时 Hash 为空
func (s *Service) ArticleInfo(ctx context.Context, title types.Title) (*ArticleInfo, error) {
	if err := title.Validate(); err != nil {
		return nil, err
	}
	snap, err := s.repo.Read(ctx)
	if err != nil {
		return nil, err
	}
	head, err := snap.Head()
	if err != nil {
		return nil, err
	}
	doc, _, err := snap.HeadDocument(ctx, title)
	if err != nil {
		return nil, err
	}
	return &ArticleInfo{Markdown: doc.Content, Hash: doc.Hash, Revision: head}, nil
}

// History 返回文章的修改历史，最早的在前
func (s *Service) History(ctx context.Context, title types.Title) ([]repository.HistoryEntry, error) {
	if err := title.Validate(); err != nil {
		return nil, err
	}
	snap, err := s.repo.Read(ctx)
	if err != nil {
		return nil, err
	}
	return snap.History(ctx, title)
}

// Search 全文搜索
func (s *Service) Search(ctx context.Context, q string, limit int) ([]search.Result, error) {
	return s.index.Search(ctx, q, limit)
}

// RecentChanges 读取提交投影，最新的在前
func (s *Service) RecentChanges(ctx context.Context, limit int) ([]Change, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	commits, err := s.repo.Meta().RecentCommits(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("recent changes: %w", err)
	}

	out := make([]Change, 0, len(commits))
	for i := range commits {
		c := &commits[i]
		titles, err := c.ChangedTitles()
		if err != nil {
			s.logger.Warn("skipping malformed commit projection", slog.String("commit", c.Hash.Short()))
			continue
		}
		out = append(out, Change{
			Revision: c.Hash,
			Author:   core.Signature{Name: c.AuthorName, Email: c.AuthorEmail}.String(),
			Message:  c.Message,
			Date:     c.Time().UTC(),
			Titles:   titles,
		})
	}
	return out, nil
}

// Reindex 从新的仓库快照全量重建索引
func (s *Service) Reindex(ctx context.Context) error {
	snap, err := s.repo.Read(ctx)
	if err != nil {
		return err
	}
	return s.index.Rebuild(ctx, snap)
}

// HandlePush 是推送监听器的回调
func (s *Service) HandlePush(ctx context.Context, u ipc.Update) error {
	s.logger.Info("external push detected, rebuilding index",
		slog.String("parent", u.ParentRevision.Short()),
		slog.String("new", u.NewRevision.Short()))
	return s.Reindex(ctx)
}
