package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/RyanKung/snaprag/cmd/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "snaprag",
		Short: "snapchain ingestion and projection pipeline",
	}
	rootCmd.AddCommand(cli.NewSyncCommand())
	rootCmd.AddCommand(cli.NewMigrateCommand())
	rootCmd.AddCommand(cli.NewConfigCommand())
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
