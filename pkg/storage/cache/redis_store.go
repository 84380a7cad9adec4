package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"wikivault/pkg/core"
	"wikivault/pkg/storage"
	"wikivault/pkg/types"

	"github.com/redis/go-redis/v9"
)

// DefaultMaxObjectSize 是会被缓存内容的对象大小上限
// 文章和目录对象通常只有几 KB
const DefaultMaxObjectSize = 64 * 1024

// CachedStore 是一个装饰器，它为底层的 storage.Store 添加 Redis 缓存层
type CachedStore struct {
	backend storage.Store
	client  *redis.Client
	ttl     time.Duration
	maxSize int
	logger  *slog.Logger
}

type Config struct {
	RedisURL      string        // 标准连接字符串: redis://<user>:<password>@<host>:<port>/<db>
	TTL           time.Duration // 过期时间
	MaxObjectSize int           // 0 表示使用 DefaultMaxObjectSize
}

func NewCachedStore(backend storage.Store, cfg Config, logger *slog.Logger) (*CachedStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Fail-fast 连接检查
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	maxSize := cfg.MaxObjectSize
	if maxSize <= 0 {
		maxSize = DefaultMaxObjectSize
	}

	return &CachedStore{
		backend: backend,
		client:  client,
		ttl:     cfg.TTL,
		maxSize: maxSize,
		logger:  logger,
	}, nil
}

// cacheKey 生成存在性标记的 Redis Key
func (s *CachedStore) cacheKey(hash types.Hash) string {
	return "wv:obj:" + string(hash)
}

// dataKey 生成对象内容的 Redis Key
func (s *CachedStore) dataKey(hash types.Hash) string {
	return "wv:data:" + string(hash)
}

// Has 优先查 Redis
func (s *CachedStore) Has(ctx context.Context, hash types.Hash) (bool, error) {
	key := s.cacheKey(hash)

	// 1. 查 Redis
	val, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		// 缓存故障降级：退化为无缓存模式
		s.logger.Warn("redis exists failed", slog.String("error", err.Error()))
	} else if val > 0 {
		return true, nil
	}

	// 2. 缓存未命中，查底层存储
	found, err := s.backend.Has(ctx, hash)
	if err != nil {
		return false, err
	}

	// 3. 异步回填
	if found {
		go func() {
			fillCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			s.client.Set(fillCtx, key, "1", s.ttl)
		}()
	}

	return found, nil
}

// Put 上传对象。利用 Has 的缓存能力进行预检。
func (s *CachedStore) Put(ctx context.Context, obj core.Object) error {
	exists, err := s.Has(ctx, obj.ID())
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if err := s.backend.Put(ctx, obj); err != nil {
		return err
	}

	// 只有底层写成功了才写 Redis；Set 失败不影响主流程
	s.client.Set(ctx, s.cacheKey(obj.ID()), "1", s.ttl)
	if len(obj.Bytes()) <= s.maxSize {
		s.client.Set(ctx, s.dataKey(obj.ID()), obj.Bytes(), s.ttl)
	}

	return nil
}

// Get 对象不可变，小对象的内容可以直接缓存
func (s *CachedStore) Get(ctx context.Context, hash types.Hash) (io.ReadCloser, error) {
	data, err := s.client.Get(ctx, s.dataKey(hash)).Bytes()
	if err == nil {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	if !errors.Is(err, redis.Nil) {
		s.logger.Warn("redis get failed", slog.String("error", err.Error()))
	}

	rc, err := s.backend.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err = io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	if len(data) <= s.maxSize {
		s.client.Set(ctx, s.dataKey(hash), data, s.ttl)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// ExpandHash 透传
func (s *CachedStore) ExpandHash(ctx context.Context, short types.HashPrefix) (types.Hash, error) {
	return s.backend.ExpandHash(ctx, short)
}
