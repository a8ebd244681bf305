//go:build integration

package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/amankumarsingh77/streamscale-pipeline/internal/models"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/videos"
	"github.com/amankumarsingh77/streamscale-pipeline/pkg/utils"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *sqlx.DB {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "postgres",
				"POSTGRES_PASSWORD": "postgres",
				"POSTGRES_DB":       "videos",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		termCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = container.Terminate(termCtx)
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://postgres:postgres@%s:%s/videos?sslmode=disable", host, port.Port())
	db, err := utils.RetryConnect(ctx, func() (*sqlx.DB, error) {
		return sqlx.ConnectContext(ctx, "pgx", dsn)
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	schema, err := os.ReadFile(filepath.Join("..", "..", "..", "migrations", "schema.sql"))
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, string(schema))
	require.NoError(t, err)
	return db
}

func insertVideo(t *testing.T, db *sqlx.DB, status models.VideoStatus, createdAt time.Time) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := db.Exec(`INSERT INTO videos (video_id, user_id, status, raw_file_path, created_at) VALUES ($1, $2, $3, $4, $5)`,
		id, uuid.New(), string(status), "uploads/"+id.String()+".mp4", createdAt)
	require.NoError(t, err)
	return id
}

func TestPostgresRepositories(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	videoRepo := NewVideoRepo(db)
	qualityRepo := NewQualityRepo(db)
	ladder := models.DefaultLadder()

	t.Run("processing run", func(t *testing.T) {
		id := insertVideo(t, db, models.VideoStatusUploaded, time.Now())

		v, err := videoRepo.StartProcessing(ctx, id, false)
		require.NoError(t, err)
		assert.Equal(t, models.VideoStatusProcessing, v.Status)
		assert.Zero(t, v.RetryCount)

		require.NoError(t, qualityRepo.UpsertPending(ctx, id, ladder))
		require.NoError(t, qualityRepo.UpsertPending(ctx, id, ladder))
		rows, err := qualityRepo.ListByVideo(ctx, id)
		require.NoError(t, err)
		require.Len(t, rows, len(ladder))
		assert.Equal(t, models.Quality1080P, rows[0].Quality)

		require.NoError(t, qualityRepo.MarkProcessing(ctx, id, models.Quality720P))
		require.NoError(t, qualityRepo.MarkReady(ctx, id, models.Quality720P, id.String()+"/720p/index.m3u8", 5))
		require.NoError(t, qualityRepo.MarkFailed(ctx, id, models.Quality1080P, "exit status 1"))
		assert.Error(t, qualityRepo.MarkReady(ctx, uuid.New(), models.Quality720P, "x", 1))

		require.NoError(t, qualityRepo.MarkProcessing(ctx, id, models.Quality480P))
		require.NoError(t, qualityRepo.MarkPending(ctx, id, models.Quality480P))
		require.NoError(t, qualityRepo.MarkPending(ctx, id, models.Quality720P))
		rows, err = qualityRepo.ListByVideo(ctx, id)
		require.NoError(t, err)
		for _, row := range rows {
			switch row.Quality {
			case models.Quality480P:
				assert.Equal(t, models.QualityStatusPending, row.Status)
				assert.Nil(t, row.StartedAt)
			case models.Quality720P:
				assert.Equal(t, models.QualityStatusReady, row.Status)
			}
		}

		master := "https://cdn.example.com/encoded/" + id.String() + "/master.m3u8"
		require.NoError(t, videoRepo.Finalize(ctx, &models.VideoFinalize{
			VideoID:            id,
			Status:             models.VideoStatusPartialReady,
			HLSMasterURL:       &master,
			AvailableQualities: []string{"720p", "480p"},
			Duration:           95.5,
			Width:              1920,
			Height:             1080,
			ProcessedAt:        time.Now(),
		}))

		v, err = videoRepo.GetVideoByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.VideoStatusPartialReady, v.Status)
		assert.Equal(t, []string{"720p", "480p"}, []string(v.AvailableQualities))
		require.NotNil(t, v.Duration)
		assert.Equal(t, 95.5, *v.Duration)
		assert.Nil(t, v.ThumbnailURL)

		// a failing re-run keeps the servable status
		require.NoError(t, videoRepo.MarkFailed(ctx, id, "boom"))
		v, err = videoRepo.GetVideoByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.VideoStatusPartialReady, v.Status)

		candidates, err := videoRepo.FindRetryCandidates(ctx, 3, 10)
		require.NoError(t, err)
		assert.Contains(t, videoIDs(candidates), id)

		reset, err := qualityRepo.ResetFailed(ctx, id, 3)
		require.NoError(t, err)
		assert.Equal(t, int64(1), reset)
		rows, err = qualityRepo.ListByVideo(ctx, id)
		require.NoError(t, err)
		for _, row := range rows {
			if row.Quality == models.Quality1080P {
				assert.Equal(t, models.QualityStatusPending, row.Status)
				assert.Equal(t, 1, row.RetryCount)
			}
		}

		v, err = videoRepo.StartProcessing(ctx, id, true)
		require.NoError(t, err)
		assert.Equal(t, models.VideoStatusPartialReady, v.Status)
		assert.Equal(t, 1, v.RetryCount)
	})

	t.Run("cancelled video refuses processing", func(t *testing.T) {
		id := insertVideo(t, db, models.VideoStatusProcessing, time.Now())

		ok, err := videoRepo.MarkCancelled(ctx, id)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = videoRepo.MarkCancelled(ctx, id)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = videoRepo.StartProcessing(ctx, id, false)
		assert.ErrorIs(t, err, videos.ErrVideoCancelled)
		err = videoRepo.Finalize(ctx, &models.VideoFinalize{VideoID: id, Status: models.VideoStatusReady, ProcessedAt: time.Now()})
		assert.ErrorIs(t, err, videos.ErrVideoCancelled)
	})

	t.Run("orphans and deletion", func(t *testing.T) {
		old := time.Now().Add(-48 * time.Hour)
		orphan := insertVideo(t, db, models.VideoStatusReady, old)
		posted := insertVideo(t, db, models.VideoStatusReady, old)
		fresh := insertVideo(t, db, models.VideoStatusReady, time.Now())
		_, err := db.Exec(`INSERT INTO posts (video_id) VALUES ($1)`, posted)
		require.NoError(t, err)
		require.NoError(t, qualityRepo.UpsertPending(ctx, orphan, ladder))

		found, err := videoRepo.FindOrphanVideos(ctx, time.Now().Add(-24*time.Hour), 100)
		require.NoError(t, err)
		ids := videoIDs(found)
		assert.Contains(t, ids, orphan)
		assert.NotContains(t, ids, posted)
		assert.NotContains(t, ids, fresh)

		hasPost, err := videoRepo.HasReferencingPost(ctx, posted)
		require.NoError(t, err)
		assert.True(t, hasPost)

		by := uuid.New()
		require.NoError(t, videoRepo.SoftDelete(ctx, posted, by))
		v, err := videoRepo.GetVideoByID(ctx, posted)
		require.NoError(t, err)
		require.NotNil(t, v.DeletedBy)
		assert.Equal(t, by, *v.DeletedBy)

		soft, err := videoRepo.FindSoftDeleted(ctx, time.Now().Add(time.Minute), 100)
		require.NoError(t, err)
		assert.Contains(t, videoIDs(soft), posted)

		assert.ErrorIs(t, videoRepo.Restore(ctx, posted, time.Now().Add(time.Hour)), videos.ErrVideoNotFound)
		require.NoError(t, videoRepo.Restore(ctx, posted, time.Now().Add(-time.Hour)))

		require.NoError(t, videoRepo.HardDelete(ctx, orphan))
		_, err = videoRepo.GetVideoByID(ctx, orphan)
		assert.ErrorIs(t, err, videos.ErrVideoNotFound)
		rows, err := qualityRepo.ListByVideo(ctx, orphan)
		require.NoError(t, err)
		assert.Empty(t, rows)
		assert.ErrorIs(t, videoRepo.HardDelete(ctx, orphan), videos.ErrVideoNotFound)
	})

	t.Run("resume sweep candidates", func(t *testing.T) {
		stuck := insertVideo(t, db, models.VideoStatusProcessing, time.Now().Add(-time.Hour))
		_, err := db.Exec(`UPDATE videos SET retry_count = 3 WHERE video_id = $1`, insertVideo(t, db, models.VideoStatusProcessing, time.Now()))
		require.NoError(t, err)

		pending, err := videoRepo.FindPendingProcessing(ctx, 3, 100)
		require.NoError(t, err)
		assert.Contains(t, videoIDs(pending), stuck)
		for _, v := range pending {
			assert.Less(t, v.RetryCount, 3)
		}
	})
}

func videoIDs(list []*models.Video) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(list))
	for _, v := range list {
		ids = append(ids, v.VideoID)
	}
	return ids
}
