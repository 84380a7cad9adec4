package storage

import (
	"context"
	"errors"
	"io"

	"wikivault/pkg/core"
	"wikivault/pkg/types"
)

var (
	ErrNotFound       = errors.New("object not found")
	ErrAmbiguousHash  = errors.New("ambiguous hash prefix")
	ErrPrefixTooShort = errors.New("hash prefix too short")
	ErrInvalidHash    = errors.New("invalid object hash")
)

// MinPrefixLen 是 ExpandHash 接受的最短前缀
const MinPrefixLen = 4

// Store 是只增不删的内容寻址对象存储
// 实现可以是本地磁盘、Badger、S3，也可以被缓存层装饰
type Store interface {
	// Put 将一个对象持久化；已存在时是无操作
	Put(ctx context.Context, obj core.Object) error

	// Get 根据 Hash 读取原始数据
	Get(ctx context.Context, hash types.Hash) (io.ReadCloser, error)

	// Has 检查对象是否存在
	Has(ctx context.Context, hash types.Hash) (bool, error)

	// ExpandHash 把短哈希扩展成完整 Hash
	ExpandHash(ctx context.Context, prefix types.HashPrefix) (types.Hash, error)
}
