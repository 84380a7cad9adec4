package commands

import (
	"context"
	"fmt"
	"os"

	"wikivault/pkg/app"
	"wikivault/pkg/config"
	"wikivault/pkg/logging"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	// 全局配置与应用实例，供子命令使用
	Cfg *config.Config
	WV  *app.App
)

// 不需要打开仓库的命令
var noAppCommands = map[string]bool{
	"hook":       true,
	"help":       true,
	"completion": true,
}

var rootCmd = &cobra.Command{
	Use:           "wv",
	Short:         "wikivault: a self-hosted wiki on a content-addressed history",
	SilenceUsage: true,
	// PersistentPreRunE 会在所有子命令执行前运行
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.FromViper()
		if err != nil {
			return err
		}
		Cfg = cfg

		if noAppCommands[cmd.Name()] || WV != nil {
			return nil
		}

		logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
		if err != nil {
			return err
		}

		// init 负责安装钩子，其余命令只打开已有仓库
		WV, err = app.NewApp(cmd.Context(), cfg, logger, app.Options{InstallHook: cmd.Name() == "init"})
		if err != nil {
			return fmt.Errorf("failed to initialize wikivault: %w\n(Did you run 'wv init'?)", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeApp(cmd.Context())
	},
}

// Execute 是入口
func Execute() error {
	ctx := context.Background()
	err := rootCmd.ExecuteContext(ctx)
	// 出错时 PostRun 不会执行，这里兜底释放
	if cerr := closeApp(ctx); err == nil {
		err = cerr
	}
	return err
}

func closeApp(ctx context.Context) error {
	if WV == nil {
		return nil
	}
	err := WV.Close(ctx)
	WV = nil
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	// 1. 全局参数 --config
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.wv/config.yaml or $HOME/.wv/config.yaml)")

	// 2. repo.path 参数，绑定到 Viper
	// 用户既可以在 yaml 里写，也可以用 --repo 覆盖
	rootCmd.PersistentFlags().String("repo", "", "Repository directory (default is ./.wv)")
	if err := viper.BindPFlag("repo.path", rootCmd.PersistentFlags().Lookup("repo")); err != nil {
		fmt.Println("Failed to bind flag:", err)
		os.Exit(1)
	}
}

// initConfig 读取配置文件和环境变量
func initConfig() {
	if err := config.Load(cfgFile); err != nil {
		fmt.Println("Config error:", err)
		os.Exit(1)
	}
}
