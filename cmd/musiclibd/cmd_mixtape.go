package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nilsaxelsson/musiclib/internal/mixtape"
)

var mixtapeCmd = &cobra.Command{
	Use:   "mixtape",
	Short: "Create, inspect, and remove mixtapes",
}

func (a *app) mixtapeManager() *mixtape.Manager {
	return mixtape.New(a.cfg.MixtapeDir, a.cfg.CoverDir, a.cfg.CoverMaxWidth, a.idx, a.cfg.LibraryRoot,
		log.WithField("component", "mixtape"))
}

var mixtapeSaveFile string

var mixtapeSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Create or update a mixtape from a JSON patch document",
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(mixtapeSaveFile)
		if err != nil {
			return err
		}
		var p mixtape.Patch
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}

		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.idx.Close()

		doc, err := a.mixtapeManager().Save(ctx, p)
		if err != nil {
			return err
		}
		return printJSON(doc)
	},
}

var mixtapeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every mixtape, newest-updated first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.idx.Close()

		docs, err := a.mixtapeManager().List(ctx)
		if err != nil {
			return err
		}
		return printJSON(docs)
	},
}

var mixtapeGetCmd = &cobra.Command{
	Use:   "get [slug]",
	Short: "Fetch a mixtape, reconciling its tracks against the index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.idx.Close()

		doc, err := a.mixtapeManager().Get(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(doc)
	},
}

var mixtapeDeleteCmd = &cobra.Command{
	Use:   "delete [slug]",
	Short: "Delete a mixtape and its cover image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.idx.Close()
		return a.mixtapeManager().Delete(ctx, args[0])
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}

func init() {
	mixtapeSaveCmd.Flags().StringVar(&mixtapeSaveFile, "file", "", "path to a JSON patch document (required)")
	mixtapeSaveCmd.MarkFlagRequired("file")

	mixtapeCmd.AddCommand(mixtapeSaveCmd, mixtapeListCmd, mixtapeGetCmd, mixtapeDeleteCmd)
	rootCmd.AddCommand(mixtapeCmd)
}
