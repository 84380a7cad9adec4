// Package app 是整个应用程序的依赖容器：按配置组装存储、元数据、仓库与索引
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"wikivault/pkg/config"
	"wikivault/pkg/core"
	"wikivault/pkg/meta"
	"wikivault/pkg/repository"
	"wikivault/pkg/search"
	"wikivault/pkg/storage"
	"wikivault/pkg/storage/badger"
	"wikivault/pkg/storage/cache"
	"wikivault/pkg/storage/disk"
	"wikivault/pkg/storage/s3"
	"wikivault/pkg/types"
	"wikivault/pkg/wiki"
)

// BadgerDir 是 badger 后端在仓库目录下的位置
const BadgerDir = "objects.badger"

// App 持有所有 "单例" 服务，由 Close 统一释放
type App struct {
	Config *config.Config
	Logger *slog.Logger
	Store  storage.Store
	DB     *meta.DB
	Meta   *meta.Repository
	Repo   *repository.Repository

	closers []func() error
}

// Options 控制 NewApp 的可选行为
type Options struct {
	// InstallHook 为 true 时把 "<wv> hook" 写入 post-receive
	InstallHook bool
}

// NewApp 是工厂函数，负责组装这一台机器
// 它遵循配置，但不知道具体的 CLI 命令
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	if err := os.MkdirAll(cfg.Repo.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create repository dir: %w", err)
	}

	// 1. 对象存储
	store, err := initStore(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}
	a.Store = store
	if c, ok := store.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}

	// 2. 元数据
	db, err := meta.NewDB(ctx, metaConfig(cfg))
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to init metadata: %w", err)
	}
	a.DB = db
	a.Meta = meta.NewRepository(db)
	a.closers = append(a.closers, db.Close)

	// 3. 仓库
	hook := ""
	if opts.InstallHook {
		hook, err = hookCommand(cfg.IPC.Socket)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
	}
	repo, err := repository.Open(ctx, repository.Options{
		Path:        cfg.Repo.Path,
		Store:       store,
		Meta:        a.Meta,
		HomePage:    types.Title(cfg.Wiki.HomePage),
		HookCommand: hook,
		Author:      a.Author(),
		Logger:      logger,
	})
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Repo = repo
	return a, nil
}

// initStore 按 storage.type 选择后端，配置了 Redis 时再包一层缓存
func initStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	var store storage.Store

	switch cfg.Storage.Type {
	case "", config.StorageDisk:
		s, err := disk.NewAdapter(filepath.Join(cfg.Repo.Path, repository.ObjectsDir))
		if err != nil {
			return nil, err
		}
		store = s

	case config.StorageBadger:
		s, err := badger.NewAdapter(badger.Config{
			Path:       filepath.Join(cfg.Repo.Path, BadgerDir),
			SyncWrites: true,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
		store = s

	case config.StorageS3:
		if cfg.Storage.S3.Bucket == "" {
			return nil, errors.New("s3 bucket is required")
		}
		s, err := s3.NewAdapter(ctx, s3.Config{
			Endpoint:        cfg.Storage.S3.Endpoint,
			Region:          cfg.Storage.S3.Region,
			Bucket:          cfg.Storage.S3.Bucket,
			Prefix:          cfg.Storage.S3.Prefix,
			AccessKeyID:     cfg.Storage.S3.AccessKey,
			SecretAccessKey: cfg.Storage.S3.SecretKey,
		}, logger)
		if err != nil {
			return nil, err
		}
		store = s

	default:
		return nil, fmt.Errorf("unsupported storage type: %q", cfg.Storage.Type)
	}

	if cfg.Cache.RedisURL == "" {
		return store, nil
	}
	cached, err := cache.NewCachedStore(store, cache.Config{
		RedisURL: cfg.Cache.RedisURL,
		TTL:      cfg.Cache.TTL,
	}, logger)
	if err != nil {
		if c, ok := store.(interface{ Close() error }); ok {
			_ = c.Close()
		}
		return nil, fmt.Errorf("failed to init redis cache: %w", err)
	}
	return &closingStore{CachedStore: cached, inner: store}, nil
}

// closingStore 让缓存装饰器也能关闭底层后端
type closingStore struct {
	*cache.CachedStore
	inner storage.Store
}

func (c *closingStore) Close() error {
	if cl, ok := c.inner.(interface{ Close() error }); ok {
		return cl.Close()
	}
	return nil
}

func metaConfig(cfg *config.Config) meta.Config {
	if cfg.Database.Driver == meta.DriverPostgres {
		return meta.Config{
			Driver:   meta.DriverPostgres,
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		}
	}
	return meta.Config{
		Driver: meta.DriverSQLite,
		Path:   filepath.Join(cfg.Repo.Path, repository.MetaFile),
	}
}

// hookCommand 生成 post-receive 中执行的命令：当前可执行文件的 hook 子命令
func hookCommand(socket string) (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable for hook: %w", err)
	}
	return fmt.Sprintf("%s hook --socket %s", shellQuote(exe), shellQuote(socket)), nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Author 返回配置中的用户身份
func (a *App) Author() core.Signature {
	return core.Signature{Name: a.Config.User.Name, Email: a.Config.User.Email}
}

// OpenIndex 打开磁盘上的搜索索引并从 HEAD 重建
func (a *App) OpenIndex(ctx context.Context) (*search.Index, error) {
	snap, err := a.Repo.Read(ctx)
	if err != nil {
		return nil, err
	}
	idx, err := search.Open(ctx, a.Config.Index.Path, snap, a.Logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, idx.Close)
	return idx, nil
}

// NewService 组装 wiki 服务；请求中没有作者时使用配置中的用户
func (a *App) NewService(index *search.Index) *wiki.Service {
	return wiki.NewService(a.Repo, index, wiki.ContextIdentity{Fallback: a.Author()}, a.Logger)
}

// Close 先关仓库 (等待写会话)，再按相反顺序释放其他资源
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Repo != nil {
		errs = append(errs, a.Repo.Close(ctx))
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
