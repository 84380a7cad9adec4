package commands

import (
	"errors"
	"fmt"
	"time"

	"wikivault/pkg/exporter"
	"wikivault/pkg/types"

	"github.com/spf13/cobra"
)

var checkoutCmd = &cobra.Command{
	Use:   "checkout <dir> [commit-hash]",
	Short: "Materialise the wiki (HEAD or a given commit) into a directory",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if WV == nil {
			return errors.New("app not initialized")
		}
		ctx := cmd.Context()
		start := time.Now()

		rev, err := resolveRevision(ctx, args[1:])
		if err != nil {
			return err
		}

		count := 0
		var total int64
		commit, err := exporter.NewExporter(WV.Store).Checkout(ctx, rev, args[0], func(path string, hash types.Hash, size int64) {
			count++
			total += size
			fmt.Printf("\rRestoring: %s", path)
		})
		if err != nil {
			return err
		}
		if count > 0 {
			fmt.Println()
		}

		fmt.Printf("✅ Checked out %s (%d files, %d bytes) into %s in %s\n",
			commit.ID().Short(), count, total, args[0], time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkoutCmd)
}
