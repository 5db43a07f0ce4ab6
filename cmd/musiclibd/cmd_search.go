package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/nilsaxelsson/musiclib/internal/search"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the index for artists, albums, and tracks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.idx.Close()

		limit := searchLimit
		if limit <= 0 {
			limit = a.cfg.SearchDefaultLimit
		}

		eng := search.New(a.idx, a.cfg.LibraryRoot, a.cfg.SearchDefaultLimit)
		results, err := eng.Search(ctx, args[0], limit)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	},
}

func init() {
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "maximum results per bucket (defaults to the configured search limit)")
	rootCmd.AddCommand(searchCmd)
}
