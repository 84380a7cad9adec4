package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"wikivault/pkg/core"
	"wikivault/pkg/ingester"
	"wikivault/pkg/refs"
	"wikivault/pkg/types"

	"github.com/spf13/cobra"
)

var pushMsg string

var pushCmd = &cobra.Command{
	Use:   "push <dir>",
	Short: "Replace the wiki content with a working directory",
	Long: `Walks <dir> (honouring .wikiignore), stores every file as a blob, commits the resulting tree
on top of HEAD and runs the post-receive hook so a running server rebuilds its search index.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if WV == nil {
			return errors.New("app not initialized")
		}
		ctx := cmd.Context()
		start := time.Now()

		oldHead, newHead, stats, err := pushDir(ctx, args[0], pushMsg)
		if err != nil {
			return err
		}
		fmt.Println() // 结束进度行

		if oldHead == newHead {
			fmt.Println("✨ Everything up-to-date.")
			return nil
		}
		fmt.Printf("✅ Pushed %d files (%d bytes, %d ignored) in %s\n",
			stats.Files, stats.Bytes, stats.Ignored, time.Since(start).Round(time.Millisecond))
		fmt.Printf("   %s..%s  %s\n", oldHead.Short(), newHead.Short(), refs.MainRef)

		// 通知正在运行的服务；失败不影响已经完成的推送
		if err := runPostReceive(ctx, WV.Repo.HookPath(), oldHead, newHead); err != nil {
			fmt.Printf("⚠️  post-receive hook failed: %v\n", err)
			fmt.Println("   The server will pick the change up on its next start or 'wv reindex'.")
		}
		return nil
	},
}

// pushDir 导入目录并以一次提交替换整棵树
func pushDir(ctx context.Context, dir, msg string) (types.Hash, types.Hash, *ingester.Stats, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return "", "", nil, err
	}
	if !info.IsDir() {
		return "", "", nil, fmt.Errorf("%s is not a directory", dir)
	}

	// 1. 写入对象 (不需要写锁，对象只增不删)
	ing := ingester.NewIngester(WV.Store)
	entries, stats, err := ing.IngestDir(ctx, dir, func(rel string, blob *core.Blob) {
		fmt.Printf("\rAdding: %s (%d)", rel, blob.Size())
	})
	if err != nil {
		return "", "", nil, err
	}

	if msg == "" {
		msg = fmt.Sprintf("Push from %s", filepath.Base(filepath.Clean(dir)))
	}

	// 2. 提交 (持有写会话)
	session, err := WV.Repo.Write(ctx)
	if err != nil {
		return "", "", nil, err
	}
	defer session.Release()

	oldHead, newHead, err := session.ReplaceTree(ctx, entries, WV.Author(), msg)
	if err != nil {
		return "", "", nil, err
	}
	return oldHead, newHead, stats, nil
}

// runPostReceive 以 "<old> <new> <ref>" 作为 stdin 运行钩子
func runPostReceive(ctx context.Context, hookPath string, oldHead, newHead types.Hash) error {
	if _, err := os.Stat(hookPath); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("no hook installed at %s", hookPath)
	}

	hook := exec.CommandContext(ctx, hookPath)
	hook.Stdin = strings.NewReader(fmt.Sprintf("%s %s %s\n", oldHead, newHead, refs.MainRef))
	hook.Stdout = os.Stdout
	hook.Stderr = os.Stderr
	return hook.Run()
}

func init() {
	pushCmd.Flags().StringVarP(&pushMsg, "message", "m", "", "commit message")
	rootCmd.AddCommand(pushCmd)
}
