package commands

import (
	"errors"
	"fmt"
	"html"
	"strings"

	"wikivault/pkg/search"

	"github.com/spf13/cobra"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over the articles at HEAD",
	Long: `Builds a throwaway in-memory index from HEAD and runs a query-string search against it,
so it works whether or not a server currently holds the on-disk index.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if WV == nil {
			return errors.New("app not initialized")
		}
		ctx := cmd.Context()

		snap, err := WV.Repo.Read(ctx)
		if err != nil {
			return err
		}
		idx, err := search.OpenMem(ctx, snap, WV.Logger)
		if err != nil {
			return err
		}
		defer idx.Close()

		results, err := idx.Search(ctx, strings.Join(args, " "), searchLimit)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("🔍 No matches.")
			return nil
		}

		for _, r := range results {
			fmt.Printf("📄 %s\n", terminalSnippet(r.TitleText))
			fmt.Printf("   %s\n\n", terminalSnippet(r.ContentText))
		}
		fmt.Printf("%d result(s)\n", len(results))
		return nil
	},
}

// terminalSnippet 把 <mark> 高亮换成终端颜色并还原转义
func terminalSnippet(s string) string {
	const (
		colorYellow = "\033[33m"
		colorReset  = "\033[0m"
	)
	s = strings.ReplaceAll(s, "<mark>", colorYellow)
	s = strings.ReplaceAll(s, "</mark>", colorReset)
	s = strings.ReplaceAll(s, "\n", " ")
	return html.UnescapeString(s)
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", 10, "maximum number of results")
	rootCmd.AddCommand(searchCmd)
}
