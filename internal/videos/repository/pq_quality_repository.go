package repository

import (
	"context"
	"fmt"

	"github.com/amankumarsingh77/streamscale-pipeline/internal/models"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/videos"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type qualityRepo struct {
	db *sqlx.DB
}

func NewQualityRepo(db *sqlx.DB) videos.QualityRepository {
	return &qualityRepo{
		db: db,
	}
}

func (q *qualityRepo) UpsertPending(ctx context.Context, videoID uuid.UUID, profiles []models.QualityProfile) error {
	if len(profiles) == 0 {
		return nil
	}
	rows := make([]models.VideoQuality, 0, len(profiles))
	for _, p := range profiles {
		rows = append(rows, models.VideoQuality{
			VideoID:       videoID,
			Quality:       p.Name,
			Status:        models.QualityStatusPending,
			RetryPriority: p.RetryPriority,
		})
	}
	if _, err := q.db.NamedExecContext(ctx, upsertPendingQualitiesQuery, rows); err != nil {
		return fmt.Errorf("failed to upsert qualities: %w", err)
	}
	return nil
}

func (q *qualityRepo) ListByVideo(ctx context.Context, videoID uuid.UUID) ([]models.VideoQuality, error) {
	list := make([]models.VideoQuality, 0)
	if err := q.db.SelectContext(ctx, &list, listQualitiesByVideoQuery, videoID); err != nil {
		return nil, fmt.Errorf("failed to list qualities: %w", err)
	}
	return list, nil
}

func (q *qualityRepo) MarkProcessing(ctx context.Context, videoID uuid.UUID, quality models.QualityName) error {
	return q.exec(ctx, "processing", markQualityProcessingQuery, videoID, quality)
}

func (q *qualityRepo) MarkPending(ctx context.Context, videoID uuid.UUID, quality models.QualityName) error {
	if _, err := q.db.ExecContext(ctx, markQualityPendingQuery, videoID, quality); err != nil {
		return fmt.Errorf("failed to mark quality pending: %w", err)
	}
	return nil
}

func (q *qualityRepo) MarkReady(ctx context.Context, videoID uuid.UUID, quality models.QualityName, playlistPath string, segments int) error {
	return q.exec(ctx, "ready", markQualityReadyQuery, videoID, quality, playlistPath, segments)
}

func (q *qualityRepo) MarkFailed(ctx context.Context, videoID uuid.UUID, quality models.QualityName, message string) error {
	return q.exec(ctx, "failed", markQualityFailedQuery, videoID, quality, message)
}

func (q *qualityRepo) ResetFailed(ctx context.Context, videoID uuid.UUID, maxRetries int) (int64, error) {
	res, err := q.db.ExecContext(ctx, resetFailedQualitiesQuery, videoID, maxRetries)
	if err != nil {
		return 0, fmt.Errorf("failed to reset failed qualities: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return count, nil
}

func (q *qualityRepo) exec(ctx context.Context, status, query string, args ...interface{}) error {
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to mark quality %s: %w", status, err)
	}
	if count, _ := res.RowsAffected(); count == 0 {
		return fmt.Errorf("failed to mark quality %s: no ledger row", status)
	}
	return nil
}
