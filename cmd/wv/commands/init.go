package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a wiki repository",
	Long: `Create the repository layout (objects, metadata, post-receive hook) and a bootstrap commit
holding a placeholder home page. Running it again on an existing repository only refreshes the hook.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if WV == nil {
			return errors.New("app not initialized")
		}

		// 仓库已经由 PersistentPreRunE 打开 (或创建)
		snap, err := WV.Repo.Read(cmd.Context())
		if err != nil {
			return err
		}
		head, err := snap.Head()
		if err != nil {
			return err
		}

		fmt.Printf("✅ Wiki repository ready in %s\n", WV.Repo.Path())
		fmt.Printf("   HEAD:      %s\n", head.Short())
		fmt.Printf("   Home page: %s\n", WV.Repo.HomePage())
		fmt.Printf("   Hook:      %s\n", WV.Repo.HookPath())
		if WV.Config.Storage.Type != "" {
			fmt.Printf("   Storage:   %s\n", WV.Config.Storage.Type)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
