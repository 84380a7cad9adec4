package storage

import (
	"context"
	"fmt"
	"io"

	"wikivault/pkg/core"
	"wikivault/pkg/types"
)

// ReadBytes 读取对象的全部字节
func ReadBytes(ctx context.Context, s Store, hash types.Hash) ([]byte, error) {
	rc, err := s.Get(ctx, hash)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", hash.Short(), err)
	}
	return data, nil
}

// ReadCommit 读取并解码一个 Commit
func ReadCommit(ctx context.Context, s Store, hash types.Hash) (*core.Commit, error) {
	data, err := ReadBytes(ctx, s, hash)
	if err != nil {
		return nil, err
	}
	return core.DecodeCommit(data)
}

// ReadTree 读取并解码一个 Tree
func ReadTree(ctx context.Context, s Store, hash types.Hash) (*core.Tree, error) {
	data, err := ReadBytes(ctx, s, hash)
	if err != nil {
		return nil, err
	}
	return core.DecodeTree(data)
}

// ReadBlob 读取一个 Blob 的内容
func ReadBlob(ctx context.Context, s Store, hash types.Hash) (*core.Blob, error) {
	data, err := ReadBytes(ctx, s, hash)
	if err != nil {
		return nil, err
	}
	return core.NewBlob(data), nil
}
