package treebuilder

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"wikivault/pkg/core"
	"wikivault/pkg/storage"
	"wikivault/pkg/types"
)

var ErrNotADirectory = errors.New("path component is not a directory")

// Entry 是扁平视图中的一个文件
type Entry struct {
	Hash types.Hash
	Size int64
}

// Entries 把 "a/b/c.md" 这样的路径映射到文件
type Entries map[string]Entry

// Builder 负责在扁平路径和 Merkle Tree 之间转换
type Builder struct {
	store storage.Store
}

func NewBuilder(store storage.Store) *Builder {
	return &Builder{store: store}
}

// Build 把扁平视图写成一棵树，返回根树的 Hash
func (b *Builder) Build(ctx context.Context, files Entries) (types.Hash, error) {
	// 1. 构建内存中的目录树结构
	root := newDirNode("")
	for p, entry := range files {
		if err := root.addFile(p, entry); err != nil {
			return "", err
		}
	}
	// 2. 自底向上计算 Hash 并持久化
	return b.writeNode(ctx, root)
}

// Graft 在 base 树上把 filePath 指向新的 blob，只重写从根到该文件的那条路径
// base 为空时从空树开始
func (b *Builder) Graft(ctx context.Context, base types.Hash, filePath string, blob Entry) (types.Hash, error) {
	parts := strings.Split(filePath, "/")
	return b.graft(ctx, base, parts, blob)
}

func (b *Builder) graft(ctx context.Context, treeHash types.Hash, parts []string, blob Entry) (types.Hash, error) {
	var entries []core.TreeEntry
	if !treeHash.IsZero() {
		tree, err := storage.ReadTree(ctx, b.store, treeHash)
		if err != nil {
			return "", fmt.Errorf("read tree %s: %w", treeHash.Short(), err)
		}
		entries = tree.Entries
	}

	name := parts[0]
	var newEntry core.TreeEntry

	if len(parts) == 1 {
		newEntry = core.TreeEntry{
			Name: name,
			Type: core.EntryFile,
			Hash: core.NewLink(blob.Hash),
			Size: blob.Size,
		}
	} else {
		var sub types.Hash
		for _, e := range entries {
			if e.Name == name {
				if e.Type != core.EntryDir {
					return "", fmt.Errorf("%w: %s", ErrNotADirectory, name)
				}
				sub = e.Hash.Hash
			}
		}
		childHash, err := b.graft(ctx, sub, parts[1:], blob)
		if err != nil {
			return "", err
		}
		newEntry = core.TreeEntry{Name: name, Type: core.EntryDir, Hash: core.NewLink(childHash)}
	}

	// 替换或追加；NewTree 会负责排序
	next := make([]core.TreeEntry, 0, len(entries)+1)
	for _, e := range entries {
		if e.Name != name {
			next = append(next, e)
		}
	}
	next = append(next, newEntry)

	return b.putTree(ctx, next)
}

// Lookup 按路径查找文件条目
func (b *Builder) Lookup(ctx context.Context, root types.Hash, filePath string) (Entry, bool, error) {
	current := root
	parts := strings.Split(filePath, "/")
	for i, part := range parts {
		tree, err := storage.ReadTree(ctx, b.store, current)
		if err != nil {
			return Entry{}, false, fmt.Errorf("read tree %s: %w", current.Short(), err)
		}
		e, ok := tree.Find(part)
		if !ok {
			return Entry{}, false, nil
		}
		last := i == len(parts)-1
		switch {
		case last && e.Type == core.EntryFile:
			return Entry{Hash: e.Hash.Hash, Size: e.Size}, true, nil
		case last || e.Type != core.EntryDir:
			return Entry{}, false, nil
		}
		current = e.Hash.Hash
	}
	return Entry{}, false, nil
}

// Walk 按路径字典序访问树中的每一个文件
func (b *Builder) Walk(ctx context.Context, root types.Hash, fn func(filePath string, e Entry) error) error {
	return b.walk(ctx, root, "", fn)
}

func (b *Builder) walk(ctx context.Context, treeHash types.Hash, prefix string, fn func(string, Entry) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tree, err := storage.ReadTree(ctx, b.store, treeHash)
	if err != nil {
		return fmt.Errorf("read tree %s: %w", treeHash.Short(), err)
	}
	for _, e := range tree.Entries {
		p := path.Join(prefix, e.Name)
		if e.Type == core.EntryDir {
			if err := b.walk(ctx, e.Hash.Hash, p, fn); err != nil {
				return err
			}
			continue
		}
		if err := fn(p, Entry{Hash: e.Hash.Hash, Size: e.Size}); err != nil {
			return err
		}
	}
	return nil
}

// Flatten 把整棵树读成扁平视图
func (b *Builder) Flatten(ctx context.Context, root types.Hash) (Entries, error) {
	files := make(Entries)
	if root.IsZero() {
		return files, nil
	}
	err := b.Walk(ctx, root, func(p string, e Entry) error {
		files[p] = e
		return nil
	})
	return files, err
}

// -----------------------------------------------------------------------------
// 内部辅助结构：内存树节点
// -----------------------------------------------------------------------------

type node struct {
	name     string
	isDir    bool
	children map[string]*node // 仅目录有效
	entry    Entry            // 仅文件有效
}

func newDirNode(name string) *node {
	return &node{
		name:     name,
		isDir:    true,
		children: make(map[string]*node),
	}
}

// addFile 将一个文件路径插入到内存树中
// 例如 path="a/b/c.md" -> 递归创建 a, b, 然后在 b 下创建 c.md
func (n *node) addFile(filePath string, entry Entry) error {
	parts := strings.Split(filePath, "/")
	current := n

	for _, part := range parts[:len(parts)-1] {
		child, exists := current.children[part]
		if !exists {
			child = newDirNode(part)
			current.children[part] = child
		}
		if !child.isDir {
			return fmt.Errorf("%w: %s in %s", ErrNotADirectory, part, filePath)
		}
		current = child
	}

	fileName := parts[len(parts)-1]
	if existing, ok := current.children[fileName]; ok && existing.isDir {
		return fmt.Errorf("%s is both a file and a directory", filePath)
	}
	current.children[fileName] = &node{
		name:  fileName,
		entry: entry,
	}
	return nil
}

// writeNode 递归地将内存节点转换为 core.Tree 并写入存储
func (b *Builder) writeNode(ctx context.Context, n *node) (types.Hash, error) {
	// Base Case: 文件直接返回 Blob Hash
	if !n.isDir {
		return n.entry.Hash, nil
	}

	// 为了保证 Merkle Tree Hash 的确定性，按文件名排序处理
	childNames := make([]string, 0, len(n.children))
	for name := range n.children {
		childNames = append(childNames, name)
	}
	sort.Strings(childNames)

	entries := make([]core.TreeEntry, 0, len(childNames))
	for _, name := range childNames {
		childNode := n.children[name]

		childHash, err := b.writeNode(ctx, childNode)
		if err != nil {
			return "", err
		}

		mode := core.EntryFile
		size := childNode.entry.Size
		if childNode.isDir {
			mode = core.EntryDir
			size = 0
		}

		entries = append(entries, core.TreeEntry{
			Name: name,
			Type: mode,
			Hash: core.NewLink(childHash),
			Size: size,
		})
	}

	return b.putTree(ctx, entries)
}

func (b *Builder) putTree(ctx context.Context, entries []core.TreeEntry) (types.Hash, error) {
	treeObj, err := core.NewTree(entries)
	if err != nil {
		return "", fmt.Errorf("failed to create tree object: %w", err)
	}
	if err := b.store.Put(ctx, treeObj); err != nil {
		return "", fmt.Errorf("failed to store tree: %w", err)
	}
	return treeObj.ID(), nil
}
