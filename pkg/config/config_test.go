package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("WV_HTTP_ADDR", ":9999")
	t.Setenv("WV_STORAGE_TYPE", "badger")
	require.NoError(t, Load(""))

	cfg, err := FromViper()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	assert.Equal(t, StorageBadger, cfg.Storage.Type)
	assert.Equal(t, "Home", cfg.Wiki.HomePage)
	assert.Equal(t, 500*time.Millisecond, cfg.IPC.Timeout)
	assert.Equal(t, filepath.Join(cfg.Repo.Path, "index"), cfg.Index.Path)
}

func TestLoad_ConfigFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	yaml := "repo:\n  path: /srv/wiki\nwiki:\n  home_page: Start\nlog:\n  format: json\n"
	require.NoError(t, writeFile(file, yaml))

	require.NoError(t, Load(file))
	cfg, err := FromViper()
	require.NoError(t, err)
	assert.Equal(t, "/srv/wiki", cfg.Repo.Path)
	assert.Equal(t, "Start", cfg.Wiki.HomePage)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Repo:     RepoConfig{Path: "/tmp/wiki"},
			Storage:  StorageConfig{Type: StorageDisk},
			Database: DatabaseConfig{Driver: "sqlite"},
			IPC:      IPCConfig{Socket: "/tmp/s", Timeout: time.Second},
			HTTP:     HTTPConfig{Addr: ":8080"},
			Wiki:     WikiConfig{HomePage: "Home"},
			Log:      LogConfig{Level: "info", Format: "text"},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"unknown storage", func(c *Config) { c.Storage.Type = "ftp" }, "Type"},
		{"s3 without bucket", func(c *Config) { c.Storage.Type = StorageS3 }, "bucket is required"},
		{"postgres without host", func(c *Config) { c.Database.Driver = "postgres" }, "Host"},
		{"bad email", func(c *Config) { c.User.Email = "not-an-email" }, "Email"},
		{"zero ipc timeout", func(c *Config) { c.IPC.Timeout = 0 }, "Timeout"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "Format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0644)
}
