package refs

import (
	"context"
	"errors"
	"fmt"

	"wikivault/pkg/meta"
	"wikivault/pkg/types"
)

// MainRef 是 wiki 唯一的分支
const MainRef = "refs/heads/main"

var (
	ErrNoHead    = errors.New("HEAD not found (clean repo)")
	ErrStaleHead = errors.New("HEAD moved since it was read")
)

// Manager 负责管理 HEAD，底层是 meta 库中的 CAS 引用
type Manager struct {
	repo *meta.Repository
	name string
}

func NewManager(repo *meta.Repository) *Manager {
	return &Manager{repo: repo, name: MainRef}
}

// Name 返回被管理的引用名
func (m *Manager) Name() string { return m.name }

// GetHead 读取当前的 Commit Hash 以及用于 CAS 的版本号
// 新仓库返回 ErrNoHead
func (m *Manager) GetHead(ctx context.Context) (types.Hash, int64, error) {
	ref, err := m.repo.GetRef(ctx, m.name)
	if errors.Is(err, meta.ErrRefNotFound) {
		return "", 0, ErrNoHead
	}
	if err != nil {
		return "", 0, fmt.Errorf("failed to read HEAD: %w", err)
	}
	return ref.CommitHash, ref.Version, nil
}

// UpdateHead 基于 oldVersion 把 HEAD 移到 commitHash
// oldVersion 为 0 表示创建；版本不匹配时返回 ErrStaleHead
func (m *Manager) UpdateHead(ctx context.Context, commitHash types.Hash, oldVersion int64) error {
	err := m.repo.UpdateRef(ctx, m.name, commitHash, oldVersion)
	if errors.Is(err, meta.ErrConcurrentUpdate) {
		return ErrStaleHead
	}
	if err != nil {
		return fmt.Errorf("failed to update HEAD: %w", err)
	}
	return nil
}
