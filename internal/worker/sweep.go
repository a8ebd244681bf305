package worker

import (
	"context"
	"fmt"

	"github.com/amankumarsingh77/streamscale-pipeline/internal/config"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/models"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/videos"
	"github.com/amankumarsingh77/streamscale-pipeline/pkg/logger"
)

// RetrySweeper re-enqueues videos with failed qualities that still have retries left, and
// processing videos whose job disappeared from the queue.
type RetrySweeper struct {
	cfg         *config.Config
	logger      logger.Logger
	videoRepo   videos.Repository
	qualityRepo videos.QualityRepository
	queue       videos.JobQueue
}

func NewRetrySweeper(cfg *config.Config, logger logger.Logger, videoRepo videos.Repository, qualityRepo videos.QualityRepository, queue videos.JobQueue) *RetrySweeper {
	return &RetrySweeper{
		cfg:         cfg,
		logger:      logger,
		videoRepo:   videoRepo,
		qualityRepo: qualityRepo,
		queue:       queue,
	}
}

// Sweep returns how many jobs it enqueued.
func (s *RetrySweeper) Sweep(ctx context.Context) (int, error) {
	retried, err := s.retryFailedQualities(ctx)
	if err != nil {
		return retried, err
	}
	resumed, err := s.resumeOrphanedProcessing(ctx)
	return retried + resumed, err
}

func (s *RetrySweeper) retryFailedQualities(ctx context.Context) (int, error) {
	candidates, err := s.videoRepo.FindRetryCandidates(ctx, s.cfg.Worker.MaxQualityRetries, s.cfg.Worker.SweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to find retry candidates: %w", err)
	}

	enqueued := 0
	for _, video := range candidates {
		jobID := models.JobIDForVideo(video.VideoID)
		info, err := s.queue.Status(ctx, jobID)
		if err != nil {
			s.logger.Errorf("Sweep - failed to read job %s: %v", jobID, err)
			continue
		}
		// leave the ledger alone while a run owns it
		if info.State.InFlight() {
			continue
		}

		reset, err := s.qualityRepo.ResetFailed(ctx, video.VideoID, s.cfg.Worker.MaxQualityRetries)
		if err != nil {
			s.logger.Errorf("Sweep - failed to reset qualities of %s: %v", video.VideoID, err)
			continue
		}
		if reset == 0 {
			continue
		}
		if _, err = s.queue.Enqueue(ctx, models.JobPayload{VideoID: video.VideoID, RawFilePath: video.RawFilePath}); err != nil {
			s.logger.Errorf("Sweep - failed to enqueue %s: %v", video.VideoID, err)
			continue
		}
		s.logger.Infof("Sweep - retrying %d failed qualities of video %s", reset, video.VideoID)
		enqueued++
	}
	return enqueued, nil
}

func (s *RetrySweeper) resumeOrphanedProcessing(ctx context.Context) (int, error) {
	pending, err := s.videoRepo.FindPendingProcessing(ctx, s.cfg.Worker.MaxVideoRetries, s.cfg.Worker.SweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to find pending videos: %w", err)
	}

	enqueued := 0
	for _, video := range pending {
		// uploading videos are still waiting on the client
		if video.Status != models.VideoStatusProcessing {
			continue
		}
		jobID := models.JobIDForVideo(video.VideoID)
		info, err := s.queue.Status(ctx, jobID)
		if err != nil {
			s.logger.Errorf("Sweep - failed to read job %s: %v", jobID, err)
			continue
		}
		if info.State != models.JobStateMissing && info.State != models.JobStateCompleted {
			continue
		}
		if _, err = s.queue.Enqueue(ctx, models.JobPayload{VideoID: video.VideoID, RawFilePath: video.RawFilePath}); err != nil {
			s.logger.Errorf("Sweep - failed to enqueue %s: %v", video.VideoID, err)
			continue
		}
		s.logger.Warnf("Sweep - video %s was processing without a job, enqueued again", video.VideoID)
		enqueued++
	}
	return enqueued, nil
}
