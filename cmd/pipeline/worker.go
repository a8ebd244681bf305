package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/amankumarsingh77/streamscale-pipeline/internal/encoder"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/videos/repository"
	pipelineWorker "github.com/amankumarsingh77/streamscale-pipeline/internal/worker"
	"github.com/spf13/cobra"
)

func workerCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "consume encoding jobs until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := loadApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			videoRepo := repository.NewVideoRepo(a.db)
			qualityRepo := repository.NewQualityRepo(a.db)
			jobQueue := repository.NewRedisJobQueue(a.redisClient, a.cfg)
			ffmpeg := encoder.NewFFmpegEncoder(a.cfg, a.logger)

			pipeline := pipelineWorker.NewPipeline(a.cfg, a.logger, videoRepo, qualityRepo, jobQueue, a.store, ffmpeg)
			sweeper := pipelineWorker.NewRetrySweeper(a.cfg, a.logger, videoRepo, qualityRepo, jobQueue)
			w := pipelineWorker.NewWorker(a.cfg, a.logger, jobQueue, pipeline, sweeper)

			w.Start(ctx)
			<-ctx.Done()
			a.logger.Infof("Shutting down worker pool")
			w.Wait()
			return nil
		},
	}
}
