package exporter

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"wikivault/pkg/core"
	"wikivault/pkg/storage"
	"wikivault/pkg/types"
)

type Exporter struct {
	store storage.Store
}

func NewExporter(store storage.Store) *Exporter {
	return &Exporter{store: store}
}

// ExportBlob 将 Blob 的原始内容流式写入 writer
func (e *Exporter) ExportBlob(ctx context.Context, hash types.Hash, writer io.Writer) error {
	reader, err := e.store.Get(ctx, hash)
	if err != nil {
		return fmt.Errorf("failed to get blob %s: %w", hash.Short(), err)
	}
	defer reader.Close()

	if _, err := io.Copy(writer, reader); err != nil {
		return fmt.Errorf("failed to write blob %s: %w", hash.Short(), err)
	}
	return nil
}

type RestoreCallback func(path string, hash types.Hash, size int64)

// Checkout 把某个 Commit 的整棵树还原到目标目录
func (e *Exporter) Checkout(ctx context.Context, commitHash types.Hash, targetDir string, onRestore RestoreCallback) (*core.Commit, error) {
	commit, err := storage.ReadCommit(ctx, e.store, commitHash)
	if err != nil {
		return nil, fmt.Errorf("failed to read commit %s: %w", commitHash.Short(), err)
	}
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create dir %s: %w", targetDir, err)
	}
	if err := e.RestoreTree(ctx, commit.TreeCid.Hash, targetDir, onRestore); err != nil {
		return nil, err
	}
	return commit, nil
}

// RestoreTree 递归地将 Merkle Tree 还原到目标目录
func (e *Exporter) RestoreTree(ctx context.Context, treeHash types.Hash, targetDir string, onRestore RestoreCallback) error {
	// 1. 获取 Tree 对象
	tree, err := storage.ReadTree(ctx, e.store, treeHash)
	if err != nil {
		return fmt.Errorf("failed to get tree %s: %w", treeHash.Short(), err)
	}

	// 2. 遍历 Tree Entries
	for _, entry := range tree.Entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		fullPath := filepath.Join(targetDir, entry.Name)

		if entry.Type == core.EntryDir {
			// A. 目录：创建 -> 递归
			if err := os.MkdirAll(fullPath, 0755); err != nil {
				return fmt.Errorf("failed to create dir %s: %w", fullPath, err)
			}
			if err := e.RestoreTree(ctx, entry.Hash.Hash, fullPath, onRestore); err != nil {
				return err
			}
			continue
		}

		// B. 文件：导出 -> 触发回调
		if err := e.restoreFile(ctx, entry.Hash.Hash, fullPath); err != nil {
			return err
		}
		if onRestore != nil {
			onRestore(fullPath, entry.Hash.Hash, entry.Size)
		}
	}

	return nil
}

func (e *Exporter) restoreFile(ctx context.Context, hash types.Hash, fullPath string) error {
	file, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", fullPath, err)
	}
	if err := e.ExportBlob(ctx, hash, file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
