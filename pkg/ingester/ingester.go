// Package ingester 把工作目录中的文章写入对象存储，得到一份扁平的文件视图
package ingester

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"wikivault/pkg/core"
	"wikivault/pkg/ignore"
	"wikivault/pkg/storage"
	"wikivault/pkg/treebuilder"
)

type Ingester struct {
	store storage.Store
}

func NewIngester(store storage.Store) *Ingester {
	return &Ingester{store: store}
}

// Stats 汇总一次目录导入
type Stats struct {
	Files   int
	Ignored int
	Bytes   int64
}

// IngestFile 读取一个文件流，整体存为一个 Blob
func (ing *Ingester) IngestFile(ctx context.Context, reader io.Reader) (*core.Blob, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	blob := core.NewBlob(data)
	if err := ing.store.Put(ctx, blob); err != nil {
		return nil, fmt.Errorf("failed to store blob: %w", err)
	}
	return blob, nil
}

// IngestDir 遍历 root，按 .wikiignore 跳过文件，返回以 "/" 分隔的相对路径视图
// onFile 可为空，每导入一个文件回调一次
func (ing *Ingester) IngestDir(ctx context.Context, root string, onFile func(rel string, blob *core.Blob)) (treebuilder.Entries, *Stats, error) {
	matcher, err := ignore.NewMatcher(root)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load ignore rules: %w", err)
	}

	entries := treebuilder.Entries{}
	stats := &Stats{}

	walkFn := func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		// 1. 忽略规则：目录命中时整棵子树跳过
		if matcher.Matches(rel) {
			stats.Ignored++
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		// 2. 目录本身不需要导入，TreeBuilder 会按路径重建
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		blob, err := ing.ingestPath(ctx, path)
		if err != nil {
			return fmt.Errorf("failed to ingest %s: %w", rel, err)
		}
		entries[rel] = treebuilder.Entry{Hash: blob.ID(), Size: blob.Size()}
		stats.Files++
		stats.Bytes += blob.Size()
		if onFile != nil {
			onFile(rel, blob)
		}
		return nil
	}

	if err := filepath.WalkDir(root, walkFn); err != nil {
		return nil, nil, fmt.Errorf("walk failed: %w", err)
	}
	return entries, stats, nil
}

func (ing *Ingester) ingestPath(ctx context.Context, path string) (*core.Blob, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ing.IngestFile(ctx, f)
}
