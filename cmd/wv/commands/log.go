package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wikivault/pkg/core"
	"wikivault/pkg/storage"
	"wikivault/pkg/types"

	"github.com/spf13/cobra"
)

var logLimit int

var logCmd = &cobra.Command{
	Use:   "log [commit-hash]",
	Short: "Show commit logs",
	Long:  `Display the commit history starting from the specified commit (or HEAD if not specified).`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if WV == nil {
			return errors.New("app not initialized")
		}
		ctx := cmd.Context()

		// 1. 确定起始点
		start, err := resolveRevision(ctx, args)
		if err != nil {
			return err
		}

		// 2. 沿 parent 遍历 (历史是线性的)
		n := 0
		for current := start; !current.IsZero(); {
			if logLimit > 0 && n >= logLimit {
				break
			}
			commit, err := storage.ReadCommit(ctx, WV.Store, current)
			if err != nil {
				return fmt.Errorf("object %s is corrupted or not a commit: %w", current.Short(), err)
			}
			printCommitLog(current, commit)
			current = commit.Parent()
			n++
		}
		return nil
	},
}

// resolveRevision 把参数 (支持短哈希) 扩展成完整 Hash；没有参数时返回 HEAD
func resolveRevision(ctx context.Context, args []string) (types.Hash, error) {
	if len(args) > 0 {
		input := types.HashPrefix(args[0])
		full, err := WV.Store.ExpandHash(ctx, input)
		if err != nil {
			return "", fmt.Errorf("invalid revision argument '%s': %w", input, err)
		}
		return full, nil
	}

	snap, err := WV.Repo.Read(ctx)
	if err != nil {
		return "", err
	}
	return snap.Head()
}

// printCommitLog 仿 Git 格式输出
func printCommitLog(hash types.Hash, c *core.Commit) {
	const (
		colorYellow = "\033[33m"
		colorReset  = "\033[0m"
	)

	fmt.Printf("%scommit %s%s\n", colorYellow, hash, colorReset)
	fmt.Printf("Author: %s\n", c.Author)
	fmt.Printf("Date:   %s\n", time.Unix(c.Timestamp, 0).Format(time.RFC1123))
	fmt.Printf("\n    %s\n\n", c.Message)
}

func init() {
	logCmd.Flags().IntVarP(&logLimit, "max-count", "n", 0, "limit the number of commits to output")
	rootCmd.AddCommand(logCmd)
}
