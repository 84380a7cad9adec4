// Package config 把 Viper 中的键映射成带校验的配置结构
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const (
	StorageDisk   = "disk"
	StorageBadger = "badger"
	StorageS3     = "s3"
)

type Config struct {
	Repo     RepoConfig
	Storage  StorageConfig
	Cache    CacheConfig
	Database DatabaseConfig
	Index    IndexConfig
	IPC      IPCConfig
	HTTP     HTTPConfig
	Wiki     WikiConfig
	Log      LogConfig
	User     UserConfig
}

type RepoConfig struct {
	Path string `validate:"required"`
}

type StorageConfig struct {
	Type string `validate:"oneof=disk badger s3"`
	S3   S3Config
}

type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
}

type CacheConfig struct {
	RedisURL string
	TTL      time.Duration `validate:"gte=0"`
}

type DatabaseConfig struct {
	Driver   string `validate:"oneof=sqlite postgres"`
	Host     string `validate:"required_if=Driver postgres"`
	Port     int    `validate:"gte=0,lte=65535"`
	User     string
	Password string
	DBName   string `validate:"required_if=Driver postgres"`
	SSLMode  string
}

type IndexConfig struct {
	Path string
}

type IPCConfig struct {
	Socket  string        `validate:"required"`
	Timeout time.Duration `validate:"gt=0"`
}

type HTTPConfig struct {
	Addr string `validate:"required"`
}

type WikiConfig struct {
	HomePage string `validate:"required"`
	Name     string
}

type LogConfig struct {
	Level  string `validate:"oneof=debug info warn warning error"`
	Format string `validate:"oneof=text json"`
}

type UserConfig struct {
	Name  string
	Email string `validate:"omitempty,email"`
}

var validate = validator.New()

// FromViper 读取当前 Viper 状态并校验
func FromViper() (*Config, error) {
	cfg := &Config{
		Repo: RepoConfig{Path: viper.GetString("repo.path")},
		Storage: StorageConfig{
			Type: viper.GetString("storage.type"),
			S3: S3Config{
				Endpoint:  viper.GetString("storage.s3.endpoint"),
				Region:    viper.GetString("storage.s3.region"),
				Bucket:    viper.GetString("storage.s3.bucket"),
				Prefix:    viper.GetString("storage.s3.prefix"),
				AccessKey: viper.GetString("storage.s3.access_key"),
				SecretKey: viper.GetString("storage.s3.secret_key"),
			},
		},
		Cache: CacheConfig{
			RedisURL: viper.GetString("cache.redis_url"),
			TTL:      viper.GetDuration("cache.ttl"),
		},
		Database: DatabaseConfig{
			Driver:   viper.GetString("database.driver"),
			Host:     viper.GetString("database.host"),
			Port:     viper.GetInt("database.port"),
			User:     viper.GetString("database.user"),
			Password: viper.GetString("database.password"),
			DBName:   viper.GetString("database.dbname"),
			SSLMode:  viper.GetString("database.sslmode"),
		},
		Index: IndexConfig{Path: viper.GetString("index.path")},
		IPC: IPCConfig{
			Socket:  viper.GetString("ipc.socket"),
			Timeout: viper.GetDuration("ipc.timeout"),
		},
		HTTP: HTTPConfig{Addr: viper.GetString("http.addr")},
		Wiki: WikiConfig{
			HomePage: viper.GetString("wiki.home_page"),
			Name:     viper.GetString("wiki.name"),
		},
		Log: LogConfig{
			Level:  viper.GetString("log.level"),
			Format: viper.GetString("log.format"),
		},
		User: UserConfig{
			Name:  viper.GetString("user.name"),
			Email: viper.GetString("user.email"),
		},
	}

	if cfg.Index.Path == "" {
		cfg.Index.Path = filepath.Join(cfg.Repo.Path, "index")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查结构约束；S3 的 bucket 单独检查以给出明确的提示
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Storage.Type == StorageS3 && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("invalid config: storage.s3.bucket is required for s3 storage")
	}
	return nil
}
