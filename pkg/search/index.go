// Package search 维护 HEAD 文章的全文索引 (bleve)
//
// 索引只反映 HEAD：启动时和每次外部推送后全量重建，
// 编辑提交成功后逐篇增量更新。
package search

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"wikivault/pkg/metrics"
	"wikivault/pkg/types"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	regexptokenizer "github.com/blevesearch/bleve/v2/analysis/tokenizer/regexp"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

const (
	FieldTitle         = "title"
	FieldTitleSegments = "title_segments"
	FieldContent       = "content"

	titleSegmentsAnalyzer = "title_segments"

	// snippetFallback 是没有高亮片段时截取的正文长度 (字符数)
	snippetFallback = 200

	// highlightMark 是 html 高亮样式包裹命中词的开始标签
	highlightMark = "<mark>"
)

var ErrInvalidQuery = errors.New("invalid search query")

// IndexError 表示索引读写失败；它不会回滚已经完成的提交
type IndexError struct {
	Op  string
	Err error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("search index: %s: %v", e.Op, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

// Snapshot 是重建索引所需的只读视图
type Snapshot interface {
	TraverseHeadTree(ctx context.Context, visit func(title types.Title, content string) error) error
}

// Fallback 在重建期间直接从仓库读取文章
type Fallback func(ctx context.Context) (string, bool, error)

// Result 是一条搜索结果，TitleText 与 ContentText 是可直接输出的 HTML
type Result struct {
	Title       types.Title `json:"title"`
	TitleText   string      `json:"title_text"`
	ContentText string      `json:"content_text"`
}

// Index 包装一个 bleve 索引
type Index struct {
	idx    bleve.Index
	logger *slog.Logger

	// mu 串行化所有写操作；读者只会看到已经提交的 batch
	mu         sync.Mutex
	rebuilding atomic.Bool
}

// Open 打开 (或创建) path 下的索引，并从快照全量重建
func Open(ctx context.Context, path string, snap Snapshot, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}

	idx, err := openOrCreate(path)
	if err != nil {
		return nil, &IndexError{Op: "open", Err: err}
	}
	ix := &Index{idx: idx, logger: logger}

	if err := ix.Rebuild(ctx, snap); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return ix, nil
}

// OpenMem 创建一个纯内存索引 (测试与 CLI 一次性搜索使用)
func OpenMem(ctx context.Context, snap Snapshot, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m, err := newMapping()
	if err != nil {
		return nil, &IndexError{Op: "mapping", Err: err}
	}
	idx, err := bleve.NewMemOnly(m)
	if err != nil {
		return nil, &IndexError{Op: "open", Err: err}
	}
	ix := &Index{idx: idx, logger: logger}
	if err := ix.Rebuild(ctx, snap); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return ix, nil
}

func openOrCreate(path string) (bleve.Index, error) {
	idx, err := bleve.Open(path)
	if err == nil {
		return idx, nil
	}
	if !errors.Is(err, bleve.ErrorIndexPathDoesNotExist) && !errors.Is(err, bleve.ErrorIndexMetaMissing) {
		return nil, err
	}

	m, err := newMapping()
	if err != nil {
		return nil, err
	}
	return bleve.New(path, m)
}

// newMapping 定义三个字段：
//   - title: 精确匹配，同时作为文档 ID
//   - title_segments: 按 "/" 切分并小写，参与搜索
//   - content: 标准分词，存储原文用于摘要
func newMapping() (mapping.IndexMapping, error) {
	im := bleve.NewIndexMapping()

	err := im.AddCustomTokenizer(titleSegmentsAnalyzer, map[string]interface{}{
		"type":   regexptokenizer.Name,
		"regexp": `[^/]+`,
	})
	if err != nil {
		return nil, fmt.Errorf("title segments tokenizer: %w", err)
	}
	err = im.AddCustomAnalyzer(titleSegmentsAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     titleSegmentsAnalyzer,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("title segments analyzer: %w", err)
	}

	title := bleve.NewTextFieldMapping()
	title.Analyzer = keyword.Name
	title.Store = true
	title.IncludeInAll = false

	segments := bleve.NewTextFieldMapping()
	segments.Analyzer = titleSegmentsAnalyzer
	segments.Store = true
	segments.IncludeTermVectors = true

	content := bleve.NewTextFieldMapping()
	content.Analyzer = standard.Name
	content.Store = true
	content.IncludeTermVectors = true

	doc := bleve.NewDocumentMapping()
	doc.Dynamic = false
	doc.AddFieldMappingsAt(FieldTitle, title)
	doc.AddFieldMappingsAt(FieldTitleSegments, segments)
	doc.AddFieldMappingsAt(FieldContent, content)

	im.DefaultMapping = doc
	im.DefaultAnalyzer = standard.Name
	return im, nil
}

func document(title types.Title, content string) map[string]interface{} {
	return map[string]interface{}{
		FieldTitle:         title.String(),
		FieldTitleSegments: title.String(),
		FieldContent:       content,
	}
}

// Rebuild 在一个 batch 里删除全部文档并重新加入快照中的每一篇文章
// 重建期间 GetArticle 会改为直接读仓库
func (ix *Index) Rebuild(ctx context.Context, snap Snapshot) error {
	start := time.Now()
	ix.logger.Info("starting reindex")

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.rebuilding.Store(true)
	defer ix.rebuilding.Store(false)

	err := ix.rebuild(ctx, snap)
	metrics.IndexRebuildDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.IndexRebuilds.WithLabelValues("error").Inc()
		return err
	}
	metrics.IndexRebuilds.WithLabelValues("ok").Inc()

	count, _ := ix.idx.DocCount()
	metrics.IndexedDocuments.Set(float64(count))
	ix.logger.Info("reindex completed",
		slog.Uint64("documents", count),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

func (ix *Index) rebuild(ctx context.Context, snap Snapshot) error {
	ids, err := ix.allIDs()
	if err != nil {
		return &IndexError{Op: "list documents", Err: err}
	}

	// 1. 先删后加；同一个 ID 在 batch 中以最后一次操作为准
	batch := ix.idx.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}

	// 2. 遍历 HEAD
	err = snap.TraverseHeadTree(ctx, func(title types.Title, content string) error {
		return batch.Index(title.String(), document(title, content))
	})
	if err != nil {
		return &IndexError{Op: "traverse head", Err: err}
	}

	// 3. 原子提交
	if err := ix.idx.Batch(batch); err != nil {
		return &IndexError{Op: "commit rebuild", Err: err}
	}
	return nil
}

func (ix *Index) allIDs() ([]string, error) {
	count, err := ix.idx.DocCount()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(count), 0, false)
	res, err := ix.idx.Search(req)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(res.Hits))
	for _, h := range res.Hits {
		ids = append(ids, h.ID)
	}
	return ids, nil
}

// UpdateArticle 用新内容替换一篇文章
func (ix *Index) UpdateArticle(title types.Title, content string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	batch := ix.idx.NewBatch()
	batch.Delete(title.String())
	if err := batch.Index(title.String(), document(title, content)); err != nil {
		return &IndexError{Op: "update " + title.String(), Err: err}
	}
	if err := ix.idx.Batch(batch); err != nil {
		return &IndexError{Op: "update " + title.String(), Err: err}
	}
	return nil
}

// DeleteArticle 从索引中删除一篇文章；不存在时是无操作
func (ix *Index) DeleteArticle(title types.Title) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := ix.idx.Delete(title.String()); err != nil {
		return &IndexError{Op: "delete " + title.String(), Err: err}
	}
	return nil
}

// Rebuilding 表示是否有全量重建正在进行
func (ix *Index) Rebuilding() bool { return ix.rebuilding.Load() }

// GetArticle 返回索引中存储的文章内容
// 重建期间索引内容可能过期，此时改用 fallback 读取仓库
func (ix *Index) GetArticle(ctx context.Context, title types.Title, fallback Fallback) (string, bool, error) {
	if ix.rebuilding.Load() && fallback != nil {
		return fallback(ctx)
	}

	req := bleve.NewSearchRequest(bleve.NewDocIDQuery([]string{title.String()}))
	req.Size = 1
	req.Fields = []string{FieldContent}
	res, err := ix.idx.SearchInContext(ctx, req)
	if err != nil {
		return "", false, &IndexError{Op: "get " + title.String(), Err: err}
	}
	if len(res.Hits) == 0 {
		return "", false, nil
	}
	content, _ := res.Hits[0].Fields[FieldContent].(string)
	return content, true, nil
}

// Search 在标题分段和正文中查询
func (ix *Index) Search(ctx context.Context, q string, limit int) ([]Result, error) {
	qs := query.NewQueryStringQuery(q)
	if _, err := qs.Parse(); err != nil {
		metrics.SearchQueries.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	if limit <= 0 {
		limit = 10
	}

	req := bleve.NewSearchRequestOptions(qs, limit, 0, false)
	req.Fields = []string{FieldTitle, FieldContent}
	req.Highlight = bleve.NewHighlightWithStyle("html")
	req.Highlight.AddField(FieldTitleSegments)
	req.Highlight.AddField(FieldContent)

	res, err := ix.idx.SearchInContext(ctx, req)
	if err != nil {
		metrics.SearchQueries.WithLabelValues("error").Inc()
		return nil, &IndexError{Op: "search", Err: err}
	}
	metrics.SearchQueries.WithLabelValues("ok").Inc()

	out := make([]Result, 0, len(res.Hits))
	for _, hit := range res.Hits {
		title, _ := hit.Fields[FieldTitle].(string)
		if title == "" {
			title = hit.ID
		}
		content, _ := hit.Fields[FieldContent].(string)

		r := Result{
			Title:       types.Title(title),
			TitleText:   html.EscapeString(title),
			ContentText: html.EscapeString(truncate(content, snippetFallback)),
		}
		// 字段没有命中时高亮器仍会返回开头的片段，只采用带高亮的片段
		if frag, ok := highlighted(hit.Fragments[FieldTitleSegments]); ok {
			r.TitleText = frag
		}
		if frag, ok := highlighted(hit.Fragments[FieldContent]); ok {
			r.ContentText = frag
		}
		out = append(out, r)
	}
	return out, nil
}

func highlighted(frags []string) (string, bool) {
	for _, f := range frags {
		if strings.Contains(f, highlightMark) {
			return f, true
		}
	}
	return "", false
}

// DocCount 返回索引中的文章数
func (ix *Index) DocCount() (uint64, error) {
	return ix.idx.DocCount()
}

// Close 等待进行中的写操作后关闭索引
func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.idx.Close()
}

// truncate 按字符截断，不会切开多字节字符
func truncate(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
