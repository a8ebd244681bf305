package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/amankumarsingh77/streamscale-pipeline/internal/models"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/videos"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type videoRepo struct {
	db *sqlx.DB
}

func NewVideoRepo(db *sqlx.DB) videos.Repository {
	return &videoRepo{
		db: db,
	}
}

func (v *videoRepo) GetVideoByID(ctx context.Context, videoID uuid.UUID) (*models.Video, error) {
	video := &models.Video{}
	if err := v.db.QueryRowxContext(
		ctx,
		getVideoByIDQuery,
		videoID,
	).StructScan(video); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, videos.ErrVideoNotFound
		}
		return nil, fmt.Errorf("failed to get video by id: %w", err)
	}
	return video, nil
}

func (v *videoRepo) StartProcessing(ctx context.Context, videoID uuid.UUID, countRetry bool) (*models.Video, error) {
	increment := 0
	if countRetry {
		increment = 1
	}
	video := &models.Video{}
	if err := v.db.QueryRowxContext(
		ctx,
		startProcessingQuery,
		videoID,
		increment,
	).StructScan(video); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, videos.ErrVideoCancelled
		}
		return nil, fmt.Errorf("failed to start processing: %w", err)
	}
	return video, nil
}

func (v *videoRepo) MarkFailed(ctx context.Context, videoID uuid.UUID, message string) error {
	if _, err := v.db.ExecContext(ctx, markVideoFailedQuery, videoID, message); err != nil {
		return fmt.Errorf("failed to mark video failed: %w", err)
	}
	return nil
}

func (v *videoRepo) MarkCancelled(ctx context.Context, videoID uuid.UUID) (bool, error) {
	res, err := v.db.ExecContext(ctx, markVideoCancelledQuery, videoID)
	if err != nil {
		return false, fmt.Errorf("failed to mark video cancelled: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return count > 0, nil
}

func (v *videoRepo) Finalize(ctx context.Context, input *models.VideoFinalize) error {
	res, err := v.db.ExecContext(
		ctx,
		finalizeVideoQuery,
		input.VideoID,
		input.Status,
		input.HLSMasterURL,
		input.ThumbnailURL,
		pq.Array(input.AvailableQualities),
		input.Duration,
		input.Width,
		input.Height,
		input.ErrorMessage,
		input.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize video: %w", err)
	}
	count, _ := res.RowsAffected()
	if count == 0 {
		return videos.ErrVideoCancelled
	}
	return nil
}

func (v *videoRepo) HasReferencingPost(ctx context.Context, videoID uuid.UUID) (bool, error) {
	var exists bool
	if err := v.db.GetContext(ctx, &exists, hasReferencingPostQuery, videoID); err != nil {
		return false, fmt.Errorf("failed to check referencing post: %w", err)
	}
	return exists, nil
}

func (v *videoRepo) SoftDelete(ctx context.Context, videoID uuid.UUID, deletedBy uuid.UUID) error {
	res, err := v.db.ExecContext(ctx, softDeleteVideoQuery, videoID, deletedBy)
	if err != nil {
		return fmt.Errorf("failed to soft delete video: %w", err)
	}
	count, _ := res.RowsAffected()
	if count == 0 {
		return videos.ErrVideoNotFound
	}
	return nil
}

func (v *videoRepo) Restore(ctx context.Context, videoID uuid.UUID, deletedAfter time.Time) error {
	res, err := v.db.ExecContext(ctx, restoreVideoQuery, videoID, deletedAfter)
	if err != nil {
		return fmt.Errorf("failed to restore video: %w", err)
	}
	count, _ := res.RowsAffected()
	if count == 0 {
		return videos.ErrVideoNotFound
	}
	return nil
}

func (v *videoRepo) HardDelete(ctx context.Context, videoID uuid.UUID) error {
	tx, err := v.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, deleteVideoQualitiesQuery, videoID); err != nil {
		return fmt.Errorf("failed to delete video qualities: %w", err)
	}
	res, err := tx.ExecContext(ctx, deleteVideoQuery, videoID)
	if err != nil {
		return fmt.Errorf("failed to delete video: %w", err)
	}
	count, _ := res.RowsAffected()
	if count == 0 {
		return videos.ErrVideoNotFound
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

func (v *videoRepo) FindPendingProcessing(ctx context.Context, maxRetries int, limit int) ([]*models.Video, error) {
	return v.selectVideos(ctx, findPendingProcessingQuery, maxRetries, limit)
}

func (v *videoRepo) FindOrphanVideos(ctx context.Context, createdBefore time.Time, limit int) ([]*models.Video, error) {
	return v.selectVideos(ctx, findOrphanVideosQuery, createdBefore, limit)
}

func (v *videoRepo) FindSoftDeleted(ctx context.Context, deletedBefore time.Time, limit int) ([]*models.Video, error) {
	return v.selectVideos(ctx, findSoftDeletedQuery, deletedBefore, limit)
}

func (v *videoRepo) FindRetryCandidates(ctx context.Context, maxQualityRetries int, limit int) ([]*models.Video, error) {
	return v.selectVideos(ctx, findRetryCandidatesQuery, maxQualityRetries, limit)
}

func (v *videoRepo) selectVideos(ctx context.Context, query string, args ...interface{}) ([]*models.Video, error) {
	rows, err := v.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query videos: %w", err)
	}
	defer rows.Close()
	list := make([]*models.Video, 0)
	for rows.Next() {
		var video models.Video
		if err = rows.StructScan(&video); err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		list = append(list, &video)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan videos: %w", err)
	}
	return list, nil
}
