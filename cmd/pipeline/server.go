package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/amankumarsingh77/streamscale-pipeline/internal/server"
	"github.com/spf13/cobra"
)

func serverCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "start the ops http api",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := loadApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			s := server.NewServer(a.cfg, a.db, a.redisClient, a.store, a.logger)
			return s.Run(ctx)
		},
	}
}
