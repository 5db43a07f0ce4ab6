package main

import (
	"context"

	"github.com/spf13/cobra"
)

var indexRebuild bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Bring the index up to date with the library root",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.idx.Close()

		sup, _, err := a.newSupervisor(false)
		if err != nil {
			return err
		}
		defer sup.Close()

		if indexRebuild {
			return sup.Rebuild(ctx)
		}
		return sup.Initialize(ctx)
	},
}

func init() {
	indexCmd.Flags().BoolVar(&indexRebuild, "rebuild", false, "clear the index and reindex the entire library from scratch")
	rootCmd.AddCommand(indexCmd)
}
