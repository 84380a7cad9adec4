package exporter

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wikivault/pkg/core"
	"wikivault/pkg/storage/disk"
	"wikivault/pkg/treebuilder"
	"wikivault/pkg/types"
)

// buildCommit 手动构造一个微型 DAG: Commit -> Tree -> Projects/ -> Blob
func buildCommit(t *testing.T, store *disk.Adapter, files map[string]string) *core.Commit {
	t.Helper()
	ctx := context.Background()

	entries := treebuilder.Entries{}
	for p, content := range files {
		blob := core.NewBlob([]byte(content))
		require.NoError(t, store.Put(ctx, blob))
		entries[p] = treebuilder.Entry{Hash: blob.ID(), Size: blob.Size()}
	}
	root, err := treebuilder.NewBuilder(store).Build(ctx, entries)
	require.NoError(t, err)

	commit, err := core.NewCommit(root, "", core.Signature{Name: "Tester", Email: "tester@example.com"}, "Init")
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, commit))
	return commit
}

func TestExportBlob(t *testing.T) {
	store, err := disk.NewAdapter(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	blob := core.NewBlob([]byte("# Hello\n\nworld\n"))
	require.NoError(t, store.Put(ctx, blob))

	var buf bytes.Buffer
	require.NoError(t, NewExporter(store).ExportBlob(ctx, blob.ID(), &buf))
	assert.Equal(t, "# Hello\n\nworld\n", buf.String())

	missing := core.NewBlob([]byte("never stored"))
	assert.Error(t, NewExporter(store).ExportBlob(ctx, missing.ID(), &buf))
}

func TestCheckout_RestoresTree(t *testing.T) {
	store, err := disk.NewAdapter(t.TempDir())
	require.NoError(t, err)
	exp := NewExporter(store)
	ctx := context.Background()

	commit := buildCommit(t, store, map[string]string{
		"Home.md":           "welcome\n",
		"Projects/Alpha.md": "alpha\n",
	})

	restoreDir := filepath.Join(t.TempDir(), "out")
	restored := map[string]types.Hash{}
	got, err := exp.Checkout(ctx, commit.ID(), restoreDir, func(path string, hash types.Hash, size int64) {
		rel, err := filepath.Rel(restoreDir, path)
		require.NoError(t, err)
		restored[filepath.ToSlash(rel)] = hash
	})
	require.NoError(t, err)
	assert.Equal(t, commit.ID(), got.ID())

	assert.Len(t, restored, 2)
	assert.Equal(t, core.NewBlob([]byte("alpha\n")).ID(), restored["Projects/Alpha.md"])

	data, err := os.ReadFile(filepath.Join(restoreDir, "Projects", "Alpha.md"))
	require.NoError(t, err)
	assert.Equal(t, "alpha\n", string(data))

	data, err = os.ReadFile(filepath.Join(restoreDir, "Home.md"))
	require.NoError(t, err)
	assert.Equal(t, "welcome\n", string(data))
}

func TestPrintObject(t *testing.T) {
	store, err := disk.NewAdapter(t.TempDir())
	require.NoError(t, err)
	exp := NewExporter(store)
	ctx := context.Background()

	commit := buildCommit(t, store, map[string]string{
		"Home.md":           "welcome\n",
		"Projects/Alpha.md": "alpha\n",
	})

	var buf bytes.Buffer

	// Case 1: Commit
	require.NoError(t, exp.PrintObject(ctx, commit.ID(), &buf))
	assert.Contains(t, buf.String(), "Type:    Commit")
	assert.Contains(t, buf.String(), "Tester <tester@example.com>")
	assert.NotContains(t, buf.String(), "Parent:")

	// Case 2: Tree
	buf.Reset()
	require.NoError(t, exp.PrintObject(ctx, commit.TreeCid.Hash, &buf))
	assert.Contains(t, buf.String(), "Type: Tree")
	assert.Contains(t, buf.String(), "Home.md")
	assert.Contains(t, buf.String(), "Projects")

	// Case 3: Blob 原样输出
	buf.Reset()
	require.NoError(t, exp.PrintObject(ctx, core.NewBlob([]byte("welcome\n")).ID(), &buf))
	assert.Equal(t, "welcome\n", buf.String())
}
