package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amankumarsingh77/streamscale-pipeline/internal/config"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/models"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/videos"
	"github.com/amankumarsingh77/streamscale-pipeline/pkg/logger"
	"github.com/amankumarsingh77/streamscale-pipeline/pkg/utils"
	"github.com/google/uuid"
)

var errJobActive = errors.New("job is active")

type lifecycleUC struct {
	cfg       *config.Config
	videoRepo videos.Repository
	queue     videos.JobQueue
	store     videos.ObjectStore
	logger    logger.Logger
	now       func() time.Time
}

func NewLifecycleUseCase(
	cfg *config.Config,
	videoRepo videos.Repository,
	queue videos.JobQueue,
	store videos.ObjectStore,
	log logger.Logger,
) videos.LifecycleUseCase {
	return &lifecycleUC{
		cfg:       cfg,
		videoRepo: videoRepo,
		queue:     queue,
		store:     store,
		logger:    log,
		now:       time.Now,
	}
}

// DeleteVideo hard deletes a video nobody posted (or when forced) and soft deletes the rest.
func (l *lifecycleUC) DeleteVideo(ctx context.Context, videoID uuid.UUID, requestedBy uuid.UUID, forceHard bool) (models.DeleteMode, error) {
	video, err := l.videoRepo.GetVideoByID(ctx, videoID)
	if err != nil {
		return "", err
	}

	// a waiting or delayed job is dropped, a running one stops once it sees the row deleted
	if video.Status.InFlight() {
		if _, err = l.queue.Cancel(ctx, models.JobIDForVideo(videoID)); err != nil {
			l.logger.Errorf("DeleteVideo - Cancel error: %v", err)
			return "", fmt.Errorf("failed to cancel job of video %s: %w", videoID, err)
		}
	}

	referenced, err := l.videoRepo.HasReferencingPost(ctx, videoID)
	if err != nil {
		l.logger.Errorf("DeleteVideo - HasReferencingPost error: %v", err)
		return "", err
	}

	if !referenced || forceHard {
		l.deleteStorage(ctx, video)
		if err = l.videoRepo.HardDelete(ctx, videoID); err != nil {
			l.logger.Errorf("DeleteVideo - HardDelete error: %v", err)
			return "", err
		}
		l.logger.Infof("Video %s hard deleted by %s", videoID, requestedBy)
		return models.DeleteModeHard, nil
	}

	// status is left alone so a restored video can be enqueued again
	if err = l.videoRepo.SoftDelete(ctx, videoID, requestedBy); err != nil {
		l.logger.Errorf("DeleteVideo - SoftDelete error: %v", err)
		return "", err
	}
	l.logger.Infof("Video %s soft deleted by %s", videoID, requestedBy)
	return models.DeleteModeSoft, nil
}

// RestoreVideo clears the delete marker while the retention window is open.
func (l *lifecycleUC) RestoreVideo(ctx context.Context, videoID uuid.UUID) error {
	cutoff := l.now().Add(-l.cfg.Lifecycle.Retention())
	if err := l.videoRepo.Restore(ctx, videoID, cutoff); err != nil {
		return err
	}
	l.logger.Infof("Video %s restored", videoID)
	return nil
}

func (l *lifecycleUC) CleanupOrphans(ctx context.Context, input *models.CleanupInput) (*models.CleanupReport, error) {
	if input == nil {
		input = &models.CleanupInput{}
	}
	if err := utils.ValidateStructCtx(ctx, input); err != nil {
		return nil, fmt.Errorf("invalid cleanup input: %w", err)
	}
	maxAge := input.MaxAgeHours
	if maxAge == 0 {
		maxAge = l.cfg.Lifecycle.OrphanMaxAgeHours
	}
	batch := input.BatchSize
	if batch == 0 {
		batch = l.cfg.Lifecycle.OrphanBatchSize
	}

	cutoff := l.now().Add(-time.Duration(maxAge) * time.Hour)
	orphans, err := l.videoRepo.FindOrphanVideos(ctx, cutoff, batch)
	if err != nil {
		l.logger.Errorf("CleanupOrphans - FindOrphanVideos error: %v", err)
		return nil, fmt.Errorf("failed to find orphan videos: %w", err)
	}

	report := &models.CleanupReport{DryRun: input.DryRun, Candidates: len(orphans), Items: make([]models.CleanupItem, 0, len(orphans))}
	if input.DryRun {
		for _, video := range orphans {
			report.Items = append(report.Items, models.CleanupItem{VideoID: video.VideoID})
		}
		return report, nil
	}

	for _, video := range orphans {
		report.Add(video.VideoID, l.removeOrphan(ctx, video))
	}
	l.logger.Infof("Orphan cleanup removed %d of %d videos", report.Succeeded, report.Candidates)
	return report, nil
}

func (l *lifecycleUC) removeOrphan(ctx context.Context, video *models.Video) error {
	jobID := models.JobIDForVideo(video.VideoID)
	info, err := l.queue.Status(ctx, jobID)
	if err != nil {
		return err
	}
	switch {
	case info.State == models.JobStateActive:
		return errJobActive
	case info.State.Pending():
		if _, err = l.queue.Cancel(ctx, jobID); err != nil {
			return err
		}
	}
	l.deleteStorage(ctx, video)
	return l.videoRepo.HardDelete(ctx, video.VideoID)
}

// PurgeSoftDeleted hard deletes videos whose retention window has passed.
func (l *lifecycleUC) PurgeSoftDeleted(ctx context.Context, batchSize int) (*models.CleanupReport, error) {
	if batchSize <= 0 {
		batchSize = l.cfg.Lifecycle.OrphanBatchSize
	}
	cutoff := l.now().Add(-l.cfg.Lifecycle.Retention())
	expired, err := l.videoRepo.FindSoftDeleted(ctx, cutoff, batchSize)
	if err != nil {
		l.logger.Errorf("PurgeSoftDeleted - FindSoftDeleted error: %v", err)
		return nil, fmt.Errorf("failed to find soft deleted videos: %w", err)
	}

	report := &models.CleanupReport{Candidates: len(expired), Items: make([]models.CleanupItem, 0, len(expired))}
	for _, video := range expired {
		l.deleteStorage(ctx, video)
		report.Add(video.VideoID, l.videoRepo.HardDelete(ctx, video.VideoID))
	}
	l.logger.Infof("Purged %d of %d soft deleted videos", report.Succeeded, report.Candidates)
	return report, nil
}

// deleteStorage removes the raw upload and both per-video prefixes. Failures are logged only.
func (l *lifecycleUC) deleteStorage(ctx context.Context, video *models.Video) {
	if video.RawFilePath != "" {
		if err := l.store.Delete(ctx, l.cfg.S3.RawBucket, video.RawFilePath); err != nil {
			l.logStorageError(video.VideoID, l.cfg.S3.RawBucket, err)
		}
	}
	prefix := models.VideoPrefix(video.VideoID)
	for _, bucket := range []string{l.cfg.S3.EncodedBucket, l.cfg.S3.ThumbnailBucket} {
		if err := l.deletePrefix(ctx, bucket, prefix); err != nil {
			l.logStorageError(video.VideoID, bucket, err)
		}
	}
}

func (l *lifecycleUC) deletePrefix(ctx context.Context, bucket, prefix string) error {
	objects, err := l.store.List(ctx, bucket, prefix)
	if err != nil {
		return err
	}
	if len(objects) == 0 {
		return nil
	}
	keys := make([]string, 0, len(objects))
	for _, obj := range objects {
		keys = append(keys, obj.Key)
	}
	return l.store.DeleteMany(ctx, bucket, keys)
}

func (l *lifecycleUC) logStorageError(videoID uuid.UUID, bucket string, err error) {
	err = fmt.Errorf("%w: bucket %s: %v", videos.ErrStorageDeleteFailure, bucket, err)
	l.logger.Warnf("deleteStorage - video %s: %v", videoID, err)
}
