// Package badger 把对象存储放进一个嵌入式 BadgerDB。
//
// Key 布局: "obj:<hash>" -> 原始字节。
// 注意 Badger 对目录持有独占锁，服务运行时外部推送工具无法同时打开同一个库。
package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"wikivault/pkg/core"
	"wikivault/pkg/storage"
	"wikivault/pkg/types"

	"github.com/dgraph-io/badger/v4"
)

const objPrefix = "obj:"

type Config struct {
	Path       string
	InMemory   bool // 测试用
	SyncWrites bool
	Logger     *slog.Logger
}

// Adapter 实现了 storage.Store 接口
type Adapter struct {
	db *badger.DB
}

// badgerLogger 把 slog 适配成 Badger 的 Logger 接口
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func NewAdapter(cfg Config) (*Adapter, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("badger: path is required for persistent database")
		}
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Adapter{db: db}, nil
}

func objKey(hash types.Hash) []byte {
	return []byte(objPrefix + string(hash))
}

func (a *Adapter) Put(ctx context.Context, obj core.Object) error {
	return a.db.Update(func(txn *badger.Txn) error {
		// 幂等：已存在就不再写
		_, err := txn.Get(objKey(obj.ID()))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(objKey(obj.ID()), obj.Bytes())
	})
}

func (a *Adapter) Get(ctx context.Context, hash types.Hash) (io.ReadCloser, error) {
	var data []byte
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(objKey(hash))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get %s: %w", hash.Short(), err)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (a *Adapter) Has(ctx context.Context, hash types.Hash) (bool, error) {
	err := a.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(objKey(hash))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ExpandHash 用 Key 前缀迭代，只取前两个匹配
func (a *Adapter) ExpandHash(ctx context.Context, prefix types.HashPrefix) (types.Hash, error) {
	if len(prefix) < storage.MinPrefixLen {
		return "", storage.ErrPrefixTooShort
	}

	var matches []types.Hash
	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(objPrefix + string(prefix))
		for it.Seek(p); it.ValidForPrefix(p) && len(matches) < 2; it.Next() {
			key := it.Item().KeyCopy(nil)
			matches = append(matches, types.Hash(bytes.TrimPrefix(key, []byte(objPrefix))))
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	switch len(matches) {
	case 0:
		return "", storage.ErrNotFound
	case 1:
		return matches[0], nil
	default:
		return "", storage.ErrAmbiguousHash
	}
}

// Close 释放数据库的目录锁
func (a *Adapter) Close() error {
	return a.db.Close()
}
