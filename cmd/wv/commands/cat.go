package commands

import (
	"errors"
	"fmt"
	"os"

	"wikivault/pkg/exporter"
	"wikivault/pkg/types"

	"github.com/spf13/cobra"
)

var catCmd = &cobra.Command{
	Use:   "cat <hash>",
	Short: "Print an object: commit and tree structure, or raw article content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if WV == nil {
			return errors.New("app not initialized")
		}
		ctx := cmd.Context()

		hash, err := WV.Store.ExpandHash(ctx, types.HashPrefix(args[0]))
		if err != nil {
			return fmt.Errorf("invalid object '%s': %w", args[0], err)
		}
		return exporter.NewExporter(WV.Store).PrintObject(ctx, hash, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(catCmd)
}
