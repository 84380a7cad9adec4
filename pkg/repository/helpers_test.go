package repository

import (
	"context"
	"testing"

	"wikivault/pkg/core"
	"wikivault/pkg/types"

	"github.com/stretchr/testify/require"
)

var (
	alice = core.Signature{Name: "alice", Email: "alice@example.com"}
	bob   = core.Signature{Name: "bob", Email: "bob@example.com"}
)

// openTestRepo 在临时目录中打开一个新仓库，测试结束时关闭
func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	return openRepoAt(t, t.TempDir(), "")
}

func openRepoAt(t *testing.T, dir, hook string) *Repository {
	t.Helper()
	repo, err := Open(context.Background(), Options{Path: dir, HookCommand: hook})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close(context.Background()) })
	return repo
}

// mustCommit 在一个独立的写会话中提交编辑
func mustCommit(t *testing.T, repo *Repository, edit Edit) *EditResult {
	t.Helper()
	res, err := commit(repo, edit)
	require.NoError(t, err)
	return res
}

func commit(repo *Repository, edit Edit) (*EditResult, error) {
	ctx := context.Background()
	w, err := repo.Write(ctx)
	if err != nil {
		return nil, err
	}
	defer w.Release()
	return w.CommitArticle(ctx, edit)
}

// mustHeadDoc 读取 HEAD 下的文章，要求存在
func mustHeadDoc(t *testing.T, repo *Repository, title types.Title) Document {
	t.Helper()
	snap, err := repo.Read(context.Background())
	require.NoError(t, err)
	doc, ok, err := snap.HeadDocument(context.Background(), title)
	require.NoError(t, err)
	require.True(t, ok, "document %s should exist at head", title)
	return doc
}

func mustHead(t *testing.T, repo *Repository) types.Hash {
	t.Helper()
	snap, err := repo.Read(context.Background())
	require.NoError(t, err)
	head, err := snap.Head()
	require.NoError(t, err)
	return head
}

// seed 创建一篇文章，返回它的 Hash 与提交
func seed(t *testing.T, repo *Repository, title types.Title, content string) (types.Hash, types.Hash) {
	t.Helper()
	res := mustCommit(t, repo, Edit{
		Title:        title,
		Content:      content,
		BaseRevision: mustHead(t, repo),
		Author:       alice,
	})
	require.Equal(t, KindNoConflict, res.Kind)
	return res.NewHash, res.NewRevision
}
