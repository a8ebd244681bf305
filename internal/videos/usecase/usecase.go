package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/amankumarsingh77/streamscale-pipeline/internal/config"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/models"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/videos"
	"github.com/amankumarsingh77/streamscale-pipeline/pkg/logger"
	"github.com/google/uuid"
)

type videoUC struct {
	cfg         *config.Config
	videoRepo   videos.Repository
	qualityRepo videos.QualityRepository
	queue       videos.JobQueue
	logger      logger.Logger
}

func NewVideoUseCase(
	cfg *config.Config,
	videoRepo videos.Repository,
	qualityRepo videos.QualityRepository,
	queue videos.JobQueue,
	log logger.Logger,
) videos.UseCase {
	return &videoUC{
		cfg:         cfg,
		videoRepo:   videoRepo,
		qualityRepo: qualityRepo,
		queue:       queue,
		logger:      log,
	}
}

func (v *videoUC) GetVideo(ctx context.Context, videoID uuid.UUID) (*models.VideoDetails, error) {
	video, err := v.videoRepo.GetVideoByID(ctx, videoID)
	if err != nil {
		return nil, err
	}
	qualities, err := v.qualityRepo.ListByVideo(ctx, videoID)
	if err != nil {
		v.logger.Errorf("GetVideo - ListByVideo error: %v", err)
		return nil, err
	}

	details := &models.VideoDetails{Video: video, Qualities: qualities}
	for _, q := range qualities {
		if q.Status == models.QualityStatusFailed && !q.Exhausted(v.cfg.Worker.MaxQualityRetries) {
			details.Retrying = append(details.Retrying, string(q.Quality))
		}
	}
	return details, nil
}

func (v *videoUC) EnqueueProcessing(ctx context.Context, videoID uuid.UUID) (string, error) {
	video, err := v.videoRepo.GetVideoByID(ctx, videoID)
	if err != nil {
		return "", err
	}
	if video.IsDeleted() || video.Status == models.VideoStatusCancelled {
		return "", fmt.Errorf("%w: video %s is %s", videos.ErrInvalidQueueState, videoID, describe(video))
	}
	if video.RawFilePath == "" {
		return "", fmt.Errorf("%w: video %s has no raw upload", videos.ErrInvalidQueueState, videoID)
	}

	jobID, err := v.queue.Enqueue(ctx, models.JobPayload{VideoID: videoID, RawFilePath: video.RawFilePath})
	if err != nil {
		v.logger.Errorf("EnqueueProcessing - Enqueue error: %v", err)
		return "", err
	}
	v.logger.Infof("Enqueued job %s for video %s", jobID, videoID)
	return jobID, nil
}

func (v *videoUC) GetJobStatus(ctx context.Context, videoID uuid.UUID) (*models.JobInfo, error) {
	return v.queue.Status(ctx, models.JobIDForVideo(videoID))
}

// CancelJob removes a waiting or delayed job. An active job cannot be stopped, so the video is
// flagged cancelled and the worker gives up at its next checkpoint.
func (v *videoUC) CancelJob(ctx context.Context, videoID uuid.UUID) (bool, error) {
	if _, err := v.videoRepo.GetVideoByID(ctx, videoID); err != nil {
		return false, err
	}
	return cancelJob(ctx, v.queue, v.videoRepo, videoID)
}

func (v *videoUC) RetryJob(ctx context.Context, videoID uuid.UUID) error {
	video, err := v.videoRepo.GetVideoByID(ctx, videoID)
	if err != nil {
		return err
	}
	if video.IsDeleted() || video.Status == models.VideoStatusCancelled {
		return fmt.Errorf("%w: video %s is %s", videos.ErrInvalidQueueState, videoID, describe(video))
	}
	if err = v.queue.Retry(ctx, models.JobIDForVideo(videoID)); err != nil {
		if !errors.Is(err, videos.ErrInvalidQueueState) {
			v.logger.Errorf("RetryJob - Retry error: %v", err)
		}
		return err
	}
	return nil
}

func cancelJob(ctx context.Context, queue videos.JobQueue, videoRepo videos.Repository, videoID uuid.UUID) (bool, error) {
	jobID := models.JobIDForVideo(videoID)
	removed, err := queue.Cancel(ctx, jobID)
	if err != nil {
		return false, err
	}
	if removed {
		return true, nil
	}
	info, err := queue.Status(ctx, jobID)
	if err != nil {
		return false, err
	}
	if info.State != models.JobStateActive {
		return false, nil
	}
	return videoRepo.MarkCancelled(ctx, videoID)
}

func describe(video *models.Video) string {
	if video.IsDeleted() {
		return "deleted"
	}
	return string(video.Status)
}
