// Package repository 是 wiki 的文档仓库：建立在内容寻址提交图之上，
// 读者拿到固定在某个 HEAD 的快照，写者通过唯一的写会话提交。
package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"wikivault/pkg/core"
	"wikivault/pkg/meta"
	"wikivault/pkg/refs"
	"wikivault/pkg/storage"
	"wikivault/pkg/storage/disk"
	"wikivault/pkg/treebuilder"
	"wikivault/pkg/types"

	"golang.org/x/sync/semaphore"
)

const (
	ObjectsDir   = "objects"
	MetaFile     = "meta.db"
	HooksDir     = "hooks"
	PostReceive  = "post-receive"
	DefaultHome  = types.Title("Home")
	bootstrapMsg = "Initialize wiki"
)

// Options 配置 Open
type Options struct {
	Path string

	// Store 为空时使用 <Path>/objects 下的磁盘存储
	Store storage.Store

	// Meta 为空时使用 <Path>/meta.db 的 SQLite
	Meta *meta.Repository

	// HomePage 是空仓库引导时写入的占位页面
	HomePage types.Title

	// HookCommand 写入 hooks/post-receive，为空则不安装钩子
	HookCommand string

	// Author 是引导提交的作者
	Author core.Signature

	Logger *slog.Logger
}

// Repository 是进程内唯一的仓库句柄
type Repository struct {
	path     string
	store    storage.Store
	meta     *meta.Repository
	refs     *refs.Manager
	builder  *treebuilder.Builder
	homePage types.Title
	logger   *slog.Logger

	// 全局写锁：同一时刻只有一个写会话
	gate   *semaphore.Weighted
	closed atomic.Bool

	// 由 Open 创建、由 Close 关闭的资源
	ownedDB *meta.DB
}

// Open 打开或初始化仓库 (open_or_init)
// 目录不存在时创建布局；没有 HEAD 时写入一个包含首页占位的引导提交
func Open(ctx context.Context, opts Options) (*Repository, error) {
	r, err := open(ctx, opts)
	if err != nil {
		return nil, &OpenError{Path: opts.Path, Err: err}
	}
	return r, nil
}

func open(ctx context.Context, opts Options) (*Repository, error) {
	if opts.Path == "" {
		return nil, errors.New("repository path is required")
	}
	if err := os.MkdirAll(opts.Path, 0755); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	home := opts.HomePage
	if home == "" {
		home = DefaultHome
	}
	if err := home.Validate(); err != nil {
		return nil, fmt.Errorf("home page: %w", err)
	}

	r := &Repository{
		path:     opts.Path,
		store:    opts.Store,
		meta:     opts.Meta,
		homePage: home,
		logger:   logger,
		gate:     semaphore.NewWeighted(1),
	}

	// 1. 对象存储
	if r.store == nil {
		store, err := disk.NewAdapter(filepath.Join(opts.Path, ObjectsDir))
		if err != nil {
			return nil, err
		}
		r.store = store
	}

	// 2. 元数据 (refs + 提交投影)
	if r.meta == nil {
		db, err := meta.NewDB(ctx, meta.Config{Driver: meta.DriverSQLite, Path: filepath.Join(opts.Path, MetaFile)})
		if err != nil {
			return nil, err
		}
		r.ownedDB = db
		r.meta = meta.NewRepository(db)
	}
	r.refs = refs.NewManager(r.meta)
	r.builder = treebuilder.NewBuilder(r.store)

	// 3. 钩子
	if opts.HookCommand != "" {
		if err := installHook(opts.Path, opts.HookCommand); err != nil {
			r.closeOwned()
			return nil, err
		}
	}

	// 4. 引导提交
	if err := r.bootstrap(ctx, opts.Author); err != nil {
		r.closeOwned()
		return nil, err
	}
	return r, nil
}

func (r *Repository) bootstrap(ctx context.Context, author core.Signature) error {
	_, _, err := r.refs.GetHead(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, refs.ErrNoHead) {
		return err
	}

	if author.Name == "" {
		author = core.Signature{Name: "wikivault", Email: "wikivault@localhost"}
	}

	blob := core.NewBlob([]byte(placeholder(r.homePage)))
	if err := r.store.Put(ctx, blob); err != nil {
		return graphErr("put bootstrap blob", err)
	}
	tree, err := r.builder.Graft(ctx, "", r.homePage.Path(), treebuilder.Entry{Hash: blob.ID(), Size: blob.Size()})
	if err != nil {
		return graphErr("build bootstrap tree", err)
	}
	commit, err := core.NewCommit(tree, "", author, bootstrapMsg)
	if err != nil {
		return err
	}
	if err := r.store.Put(ctx, commit); err != nil {
		return graphErr("put bootstrap commit", err)
	}

	// 另一个进程可能同时在初始化，谁先 CAS 成功谁赢
	err = r.refs.UpdateHead(ctx, commit.ID(), 0)
	if errors.Is(err, refs.ErrStaleHead) {
		return nil
	}
	if err != nil {
		return err
	}

	r.indexCommit(ctx, commit, []types.Title{r.homePage})
	r.logger.Info("bootstrapped repository",
		slog.String("path", r.path),
		slog.String("head", commit.ID().Short()))
	return nil
}

func placeholder(title types.Title) string {
	return fmt.Sprintf("# %s\n\nThis page is empty. Edit it to get started.\n", title)
}

// installHook 写入 post-receive 脚本，内容相同时不动文件
func installHook(root, command string) error {
	dir := filepath.Join(root, HooksDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	script := []byte("#!/bin/sh\nexec " + command + "\n")
	p := filepath.Join(dir, PostReceive)

	if existing, err := os.ReadFile(p); err == nil && bytes.Equal(existing, script) {
		return nil
	}
	return os.WriteFile(p, script, 0755)
}

// indexCommit 把提交投影到 meta 表；失败只记日志，对象图才是真相
func (r *Repository) indexCommit(ctx context.Context, c *core.Commit, titles []types.Title) {
	if err := r.meta.IndexCommit(ctx, c, titles); err != nil {
		r.logger.Warn("failed to index commit metadata",
			slog.String("commit", c.ID().Short()),
			slog.String("error", err.Error()))
	}
}

// Read 返回固定在当前 HEAD 的快照，不会阻塞在写锁上
func (r *Repository) Read(ctx context.Context) (*Snapshot, error) {
	head, _, err := r.refs.GetHead(ctx)
	if err != nil && !errors.Is(err, refs.ErrNoHead) {
		return nil, err
	}
	return &Snapshot{repo: r, head: head}, nil
}

// Write 获取全局写锁并返回写会话
// 排队是 FIFO 的；ctx 取消时放弃等待
func (r *Repository) Write(ctx context.Context) (*WriteSession, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	if err := r.acquire(ctx); err != nil {
		return nil, err
	}
	// Close 可能在等待期间发生
	if r.closed.Load() {
		r.gate.Release(1)
		return nil, ErrClosed
	}
	return newWriteSession(r), nil
}

// Close 拒绝新的写会话，等待正在进行的写会话结束后释放资源
func (r *Repository) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := r.gate.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for in-flight writer: %w", err)
	}
	defer r.gate.Release(1)
	return r.closeOwned()
}

func (r *Repository) closeOwned() error {
	if r.ownedDB != nil {
		return r.ownedDB.Close()
	}
	return nil
}

// Path 返回仓库根目录
func (r *Repository) Path() string { return r.path }

// HomePage 返回首页标题
func (r *Repository) HomePage() types.Title { return r.homePage }

// Store 返回底层对象存储 (CLI 的 cat / checkout 使用)
func (r *Repository) Store() storage.Store { return r.store }

// Meta 返回元数据仓库
func (r *Repository) Meta() *meta.Repository { return r.meta }

// HookPath 返回 post-receive 钩子的路径
func (r *Repository) HookPath() string {
	return filepath.Join(r.path, HooksDir, PostReceive)
}
