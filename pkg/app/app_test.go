package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"wikivault/pkg/config"
	"wikivault/pkg/repository"
	"wikivault/pkg/storage/badger"
	"wikivault/pkg/storage/disk"
	"wikivault/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Repo:     config.RepoConfig{Path: dir},
		Storage:  config.StorageConfig{Type: config.StorageDisk},
		Database: config.DatabaseConfig{Driver: "sqlite"},
		Index:    config.IndexConfig{Path: filepath.Join(dir, "index")},
		IPC:      config.IPCConfig{Socket: filepath.Join(dir, "wv.sock"), Timeout: time.Second},
		HTTP:     config.HTTPConfig{Addr: ":0"},
		Wiki:     config.WikiConfig{HomePage: "Start"},
		Log:      config.LogConfig{Level: "info", Format: "text"},
		User:     config.UserConfig{Name: "tester", Email: "tester@example.com"},
	}
}

func TestInitStore_Disk(t *testing.T) {
	cfg := testConfig(t)

	store, err := initStore(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &disk.Adapter{}, store)
}

func TestInitStore_Badger(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Type = config.StorageBadger

	store, err := initStore(context.Background(), cfg, nil)
	require.NoError(t, err)
	adapter, ok := store.(*badger.Adapter)
	require.True(t, ok)
	require.NoError(t, adapter.Close())
	assert.DirExists(t, filepath.Join(cfg.Repo.Path, BadgerDir))
}

func TestInitStore_S3_MissingBucket(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Type = config.StorageS3 // 故意不设置 bucket

	store, err := initStore(context.Background(), cfg, nil)
	assert.Error(t, err)
	assert.Nil(t, store)
	assert.Contains(t, err.Error(), "bucket is required")
}

func TestInitStore_UnknownType(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Type = "ftp" // 不支持的类型

	store, err := initStore(context.Background(), cfg, nil)
	assert.Error(t, err)
	assert.Nil(t, store)
	assert.Contains(t, err.Error(), "unsupported storage type")
}

func TestNewApp_WiresEverything(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	a, err := NewApp(ctx, cfg, nil, Options{InstallHook: true})
	require.NoError(t, err)
	defer a.Close(ctx)

	// 自定义首页被引导
	snap, err := a.Repo.Read(ctx)
	require.NoError(t, err)
	_, ok, err := snap.HeadDocument(ctx, types.Title("Start"))
	require.NoError(t, err)
	assert.True(t, ok)

	// 钩子调用当前可执行文件的 hook 子命令
	script, err := os.ReadFile(a.Repo.HookPath())
	require.NoError(t, err)
	assert.Contains(t, string(script), " hook --socket '"+cfg.IPC.Socket+"'")

	assert.FileExists(t, filepath.Join(cfg.Repo.Path, repository.MetaFile))

	idx, err := a.OpenIndex(ctx)
	require.NoError(t, err)
	svc := a.NewService(idx)
	res, err := svc.Search(ctx, "empty", 10)
	require.NoError(t, err)
	assert.Len(t, res, 1, "placeholder home page should be indexed")
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, `'/usr/bin/wv'`, shellQuote("/usr/bin/wv"))
	assert.Equal(t, `'it'\''s'`, shellQuote("it's"))
}
