// musiclibd is the command-line entry point wiring the Index Store, Search
// Engine, Mixtape Store, and Transcode Cache together. One subcommand per
// file, added to rootCmd from init(), mirroring muserv's cmd layout.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var log = logrus.New()

var rootCmd = &cobra.Command{
	Use:   "musiclibd",
	Short: "Index, search, and serve a local music collection",
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
