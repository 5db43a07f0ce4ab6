package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Index the library, then watch it and apply changes as they happen",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.idx.Close()

		sup, _, err := a.newSupervisor(true)
		if err != nil {
			return err
		}
		defer sup.Close()

		if err := sup.Initialize(ctx); err != nil {
			return err
		}

		log.WithField("root", a.cfg.LibraryRoot).Info("watching for changes")
		sup.StartWatch(ctx)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
