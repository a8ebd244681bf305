package videos

import (
	"context"

	"github.com/amankumarsingh77/streamscale-pipeline/internal/models"
	"github.com/google/uuid"
)

type UseCase interface {
	GetVideo(ctx context.Context, videoID uuid.UUID) (*models.VideoDetails, error)
	EnqueueProcessing(ctx context.Context, videoID uuid.UUID) (string, error)
	GetJobStatus(ctx context.Context, videoID uuid.UUID) (*models.JobInfo, error)
	CancelJob(ctx context.Context, videoID uuid.UUID) (bool, error)
	RetryJob(ctx context.Context, videoID uuid.UUID) error
}

type LifecycleUseCase interface {
	DeleteVideo(ctx context.Context, videoID uuid.UUID, requestedBy uuid.UUID, forceHard bool) (models.DeleteMode, error)
	RestoreVideo(ctx context.Context, videoID uuid.UUID) error
	CleanupOrphans(ctx context.Context, input *models.CleanupInput) (*models.CleanupReport, error)
	PurgeSoftDeleted(ctx context.Context, batchSize int) (*models.CleanupReport, error)
}
