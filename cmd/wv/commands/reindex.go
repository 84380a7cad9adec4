package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wikivault/pkg/ipc"

	"github.com/spf13/cobra"
)

var reindexLocal bool

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the full-text search index from HEAD",
	Long: `Asks a running server to rebuild its index. When no server answers (or with --local) the
on-disk index is rebuilt directly; the server must be stopped for that since it holds the index open.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if WV == nil {
			return errors.New("app not initialized")
		}
		ctx := cmd.Context()

		snap, err := WV.Repo.Read(ctx)
		if err != nil {
			return err
		}
		head, err := snap.Head()
		if err != nil {
			return err
		}

		// 1. 优先交给正在运行的服务
		if !reindexLocal {
			sendCtx, cancel := context.WithTimeout(ctx, WV.Config.IPC.Timeout)
			err := ipc.Send(sendCtx, WV.Config.IPC.Socket, ipc.Update{NewRevision: head})
			cancel()
			if err == nil {
				fmt.Printf("🔔 Asked the running server to rebuild its index at %s\n", head.Short())
				return nil
			}
			fmt.Printf("⚠️  No server answered (%v), rebuilding locally...\n", err)
		}

		// 2. 本地重建 (OpenIndex 会从 HEAD 全量重建)
		start := time.Now()
		idx, err := WV.OpenIndex(ctx)
		if err != nil {
			return fmt.Errorf("failed to rebuild index at %s: %w", WV.Config.Index.Path, err)
		}
		count, err := idx.DocCount()
		if err != nil {
			return err
		}
		fmt.Printf("✅ Indexed %d articles at %s in %s\n", count, head.Short(), time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	reindexCmd.Flags().BoolVar(&reindexLocal, "local", false, "rebuild the on-disk index without contacting the server")
	rootCmd.AddCommand(reindexCmd)
}
