package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"wikivault/pkg/ipc"

	"github.com/spf13/viper"
)

// EnvPrefix 是环境变量前缀，例如 WV_REPO_PATH
const EnvPrefix = "WV"

// Load 初始化 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
func Load(cfgFile string) error {
	// 1. 设置默认值 (Defaults)
	setDefaults()

	// 2. 配置搜索路径
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		// 搜索顺序：当前目录 -> ./.wv -> ~/.wv
		viper.AddConfigPath(".")
		viper.AddConfigPath(".wv")
		viper.AddConfigPath(filepath.Join(home, ".wv"))

		viper.SetConfigType("yaml")
		viper.SetConfigName("config") // 找 config.yaml
	}

	// 3. 读取环境变量 (WV_REPO_PATH, WV_STORAGE_S3_BUCKET 等)
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 4. 读取配置文件；没找到文件不算错，格式错才算
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("fatal error config file: %w", err)
		}
		return nil
	}
	fmt.Fprintln(os.Stderr, "🔧 Using config file:", viper.ConfigFileUsed())
	return nil
}

func setDefaults() {
	// 仓库
	wd, _ := os.Getwd()
	repoPath := filepath.Join(wd, ".wv")
	viper.SetDefault("repo.path", repoPath)

	// 存储
	viper.SetDefault("storage.type", StorageDisk)
	viper.SetDefault("storage.s3.region", "us-east-1")
	viper.SetDefault("cache.ttl", 24*time.Hour)

	// 数据库
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.sslmode", "disable")

	// 索引与推送通知
	viper.SetDefault("ipc.socket", ipc.DefaultSocket)
	viper.SetDefault("ipc.timeout", ipc.DefaultTimeout)

	// 服务
	viper.SetDefault("http.addr", ":8080")
	viper.SetDefault("wiki.home_page", "Home")
	viper.SetDefault("wiki.name", "wikivault")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
}
