package main

import (
	"github.com/spf13/cobra"
)

const defaultConfigPath = "config.yml"

func Root() *cobra.Command {
	var configPath string
	rootCmd := &cobra.Command{
		Use:           "pipeline",
		Short:         "video ingest and HLS encoding pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", envOr("CONFIG_PATH", defaultConfigPath), "path to the yaml config file")

	rootCmd.AddCommand(
		serverCmd(&configPath),
		workerCmd(&configPath),
		cleanupOrphansCmd(&configPath),
		purgeDeletedCmd(&configPath),
	)
	return rootCmd
}
