package main

import (
	"encoding/json"
	"os"

	"github.com/amankumarsingh77/streamscale-pipeline/internal/models"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/videos"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/videos/repository"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/videos/usecase"
	"github.com/spf13/cobra"
)

func lifecycleUseCase(a *app) videos.LifecycleUseCase {
	videoRepo := repository.NewVideoRepo(a.db)
	jobQueue := repository.NewRedisJobQueue(a.redisClient, a.cfg)
	return usecase.NewLifecycleUseCase(a.cfg, videoRepo, jobQueue, a.store, a.logger)
}

func cleanupOrphansCmd(configPath *string) *cobra.Command {
	input := &models.CleanupInput{}
	cmd := &cobra.Command{
		Use:   "cleanup-orphans",
		Short: "delete videos never attached to a post",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := lifecycleUseCase(a).CleanupOrphans(cmd.Context(), input)
			if err != nil {
				return err
			}
			return printReport(report)
		},
	}
	cmd.Flags().IntVar(&input.MaxAgeHours, "max-age-hours", 0, "minimum age of an orphan, 0 uses lifecycle.orphanMaxAgeHours")
	cmd.Flags().IntVar(&input.BatchSize, "batch-size", 0, "videos per run, 0 uses lifecycle.orphanBatchSize")
	cmd.Flags().BoolVar(&input.DryRun, "dry-run", false, "only report candidates")
	return cmd
}

func purgeDeletedCmd(configPath *string) *cobra.Command {
	var batchSize int
	cmd := &cobra.Command{
		Use:   "purge-deleted",
		Short: "hard delete soft deleted videos past the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			report, err := lifecycleUseCase(a).PurgeSoftDeleted(cmd.Context(), batchSize)
			if err != nil {
				return err
			}
			return printReport(report)
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "videos per run, 0 uses lifecycle.orphanBatchSize")
	return cmd
}

func printReport(report *models.CleanupReport) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
