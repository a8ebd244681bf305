package videos

import (
	"context"
	"time"

	"github.com/amankumarsingh77/streamscale-pipeline/internal/models"
	"github.com/google/uuid"
)

type Repository interface {
	GetVideoByID(ctx context.Context, videoID uuid.UUID) (*models.Video, error)
	// StartProcessing moves the video into processing unless it is cancelled or deleted.
	// countRetry bumps retry_count for a redelivered job.
	StartProcessing(ctx context.Context, videoID uuid.UUID, countRetry bool) (*models.Video, error)
	MarkFailed(ctx context.Context, videoID uuid.UUID, message string) error
	MarkCancelled(ctx context.Context, videoID uuid.UUID) (bool, error)
	Finalize(ctx context.Context, input *models.VideoFinalize) error

	HasReferencingPost(ctx context.Context, videoID uuid.UUID) (bool, error)
	SoftDelete(ctx context.Context, videoID uuid.UUID, deletedBy uuid.UUID) error
	Restore(ctx context.Context, videoID uuid.UUID, deletedAfter time.Time) error
	HardDelete(ctx context.Context, videoID uuid.UUID) error

	FindPendingProcessing(ctx context.Context, maxRetries int, limit int) ([]*models.Video, error)
	FindOrphanVideos(ctx context.Context, createdBefore time.Time, limit int) ([]*models.Video, error)
	FindSoftDeleted(ctx context.Context, deletedBefore time.Time, limit int) ([]*models.Video, error)
	FindRetryCandidates(ctx context.Context, maxQualityRetries int, limit int) ([]*models.Video, error)
}

// QualityRepository is the per-(video, quality) ledger.
type QualityRepository interface {
	UpsertPending(ctx context.Context, videoID uuid.UUID, profiles []models.QualityProfile) error
	ListByVideo(ctx context.Context, videoID uuid.UUID) ([]models.VideoQuality, error)
	MarkProcessing(ctx context.Context, videoID uuid.UUID, quality models.QualityName) error
	// MarkPending hands a processing row back, leaving rows in any other state untouched.
	MarkPending(ctx context.Context, videoID uuid.UUID, quality models.QualityName) error
	MarkReady(ctx context.Context, videoID uuid.UUID, quality models.QualityName, playlistPath string, segments int) error
	MarkFailed(ctx context.Context, videoID uuid.UUID, quality models.QualityName, message string) error
	ResetFailed(ctx context.Context, videoID uuid.UUID, maxRetries int) (int64, error)
}
