// Package videostest provides in-memory implementations of the videos interfaces for tests.
package videostest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/amankumarsingh77/streamscale-pipeline/internal/models"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/videos"
	"github.com/google/uuid"
)

// VideoRepo mirrors the conditional updates of the Postgres repository.
type VideoRepo struct {
	mu        sync.Mutex
	videos    map[uuid.UUID]*models.Video
	posts     map[uuid.UUID]bool
	qualities *QualityRepo

	// OnGet runs after every GetVideoByID, outside the lock. Tests use it to cancel mid-run.
	OnGet func(videoID uuid.UUID, calls int)
	gets  map[uuid.UUID]int
}

func NewVideoRepo(qualities *QualityRepo) *VideoRepo {
	return &VideoRepo{
		videos:    make(map[uuid.UUID]*models.Video),
		posts:     make(map[uuid.UUID]bool),
		qualities: qualities,
		gets:      make(map[uuid.UUID]int),
	}
}

var _ videos.Repository = (*VideoRepo)(nil)

// Add stores a copy of the video.
func (r *VideoRepo) Add(video *models.Video) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v := *video
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	r.videos[v.VideoID] = &v
}

// Get returns a copy of the stored video, nil when missing.
func (r *VideoRepo) Get(videoID uuid.UUID) *models.Video {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[videoID]
	if !ok {
		return nil
	}
	cp := *v
	return &cp
}

func (r *VideoRepo) SetStatus(videoID uuid.UUID, status models.VideoStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.videos[videoID]; ok {
		v.Status = status
	}
}

func (r *VideoRepo) AttachPost(videoID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts[videoID] = true
}

func (r *VideoRepo) GetVideoByID(_ context.Context, videoID uuid.UUID) (*models.Video, error) {
	r.mu.Lock()
	v, ok := r.videos[videoID]
	var cp models.Video
	if ok {
		cp = *v
	}
	r.gets[videoID]++
	calls := r.gets[videoID]
	hook := r.OnGet
	r.mu.Unlock()

	if !ok {
		return nil, videos.ErrVideoNotFound
	}
	if hook != nil {
		hook(videoID, calls)
	}
	return &cp, nil
}

func (r *VideoRepo) StartProcessing(_ context.Context, videoID uuid.UUID, countRetry bool) (*models.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[videoID]
	if !ok || v.Status == models.VideoStatusCancelled || v.DeletedAt != nil {
		return nil, videos.ErrVideoCancelled
	}
	if !v.Status.Servable() {
		v.Status = models.VideoStatusProcessing
	}
	if countRetry {
		v.RetryCount++
	}
	v.ErrorMessage = nil
	cp := *v
	return &cp, nil
}

func (r *VideoRepo) MarkFailed(_ context.Context, videoID uuid.UUID, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[videoID]
	if !ok || v.Status == models.VideoStatusCancelled || v.Status.Servable() {
		return nil
	}
	v.Status = models.VideoStatusFailed
	v.ErrorMessage = &message
	return nil
}

func (r *VideoRepo) MarkCancelled(_ context.Context, videoID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[videoID]
	if !ok || !v.Status.InFlight() {
		return false, nil
	}
	v.Status = models.VideoStatusCancelled
	return true, nil
}

func (r *VideoRepo) Finalize(_ context.Context, input *models.VideoFinalize) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[input.VideoID]
	if !ok || v.Status == models.VideoStatusCancelled || v.DeletedAt != nil {
		return videos.ErrVideoCancelled
	}
	v.Status = input.Status
	v.HLSMasterURL = input.HLSMasterURL
	v.ThumbnailURL = input.ThumbnailURL
	v.AvailableQualities = append([]string(nil), input.AvailableQualities...)
	duration, width, height := input.Duration, input.Width, input.Height
	v.Duration, v.Width, v.Height = &duration, &width, &height
	v.ErrorMessage = input.ErrorMessage
	processedAt := input.ProcessedAt
	v.ProcessedAt = &processedAt
	return nil
}

func (r *VideoRepo) HasReferencingPost(_ context.Context, videoID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.posts[videoID], nil
}

func (r *VideoRepo) SoftDelete(_ context.Context, videoID uuid.UUID, deletedBy uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[videoID]
	if !ok {
		return videos.ErrVideoNotFound
	}
	if v.DeletedAt == nil {
		now := time.Now()
		v.DeletedAt = &now
		v.DeletedBy = &deletedBy
	}
	return nil
}

func (r *VideoRepo) Restore(_ context.Context, videoID uuid.UUID, deletedAfter time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[videoID]
	if !ok || v.DeletedAt == nil || !v.DeletedAt.After(deletedAfter) {
		return videos.ErrVideoNotFound
	}
	v.DeletedAt = nil
	v.DeletedBy = nil
	return nil
}

// SetDeletedAt backdates a soft delete.
func (r *VideoRepo) SetDeletedAt(videoID uuid.UUID, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.videos[videoID]; ok {
		v.DeletedAt = &at
	}
}

func (r *VideoRepo) HardDelete(ctx context.Context, videoID uuid.UUID) error {
	r.mu.Lock()
	_, ok := r.videos[videoID]
	delete(r.videos, videoID)
	delete(r.posts, videoID)
	r.mu.Unlock()
	if !ok {
		return videos.ErrVideoNotFound
	}
	if r.qualities != nil {
		r.qualities.deleteVideo(videoID)
	}
	return nil
}

func (r *VideoRepo) FindPendingProcessing(_ context.Context, maxRetries int, limit int) ([]*models.Video, error) {
	return r.find(limit, func(v *models.Video) bool {
		return (v.Status == models.VideoStatusUploading || v.Status == models.VideoStatusProcessing) &&
			v.RetryCount < maxRetries && v.DeletedAt == nil
	}), nil
}

func (r *VideoRepo) FindOrphanVideos(_ context.Context, createdBefore time.Time, limit int) ([]*models.Video, error) {
	r.mu.Lock()
	posts := make(map[uuid.UUID]bool, len(r.posts))
	for k, v := range r.posts {
		posts[k] = v
	}
	r.mu.Unlock()
	return r.find(limit, func(v *models.Video) bool {
		return v.CreatedAt.Before(createdBefore) && v.DeletedAt == nil && !posts[v.VideoID]
	}), nil
}

func (r *VideoRepo) FindSoftDeleted(_ context.Context, deletedBefore time.Time, limit int) ([]*models.Video, error) {
	return r.find(limit, func(v *models.Video) bool {
		return v.DeletedAt != nil && v.DeletedAt.Before(deletedBefore)
	}), nil
}

func (r *VideoRepo) FindRetryCandidates(_ context.Context, maxQualityRetries int, limit int) ([]*models.Video, error) {
	return r.find(limit, func(v *models.Video) bool {
		if v.DeletedAt != nil || (v.Status != models.VideoStatusPartialReady && v.Status != models.VideoStatusFailed) {
			return false
		}
		if r.qualities == nil {
			return false
		}
		for _, q := range r.qualities.snapshot(v.VideoID) {
			if q.Status == models.QualityStatusFailed && q.RetryCount < maxQualityRetries {
				return true
			}
		}
		return false
	}), nil
}

func (r *VideoRepo) find(limit int, match func(v *models.Video) bool) []*models.Video {
	r.mu.Lock()
	all := make([]*models.Video, 0, len(r.videos))
	for _, v := range r.videos {
		cp := *v
		all = append(all, &cp)
	}
	r.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	out := make([]*models.Video, 0)
	for _, v := range all {
		if limit > 0 && len(out) >= limit {
			break
		}
		if match(v) {
			out = append(out, v)
		}
	}
	return out
}

// QualityRepo is an in-memory quality ledger.
type QualityRepo struct {
	mu   sync.Mutex
	rows map[uuid.UUID]map[models.QualityName]*models.VideoQuality
}

func NewQualityRepo() *QualityRepo {
	return &QualityRepo{rows: make(map[uuid.UUID]map[models.QualityName]*models.VideoQuality)}
}

var _ videos.QualityRepository = (*QualityRepo)(nil)

// Put stores a copy of the row.
func (q *QualityRepo) Put(row models.VideoQuality) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.rows[row.VideoID] == nil {
		q.rows[row.VideoID] = make(map[models.QualityName]*models.VideoQuality)
	}
	q.rows[row.VideoID][row.Quality] = &row
}

func (q *QualityRepo) snapshot(videoID uuid.UUID) []models.VideoQuality {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.VideoQuality, 0, len(q.rows[videoID]))
	for _, row := range q.rows[videoID] {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RetryPriority > out[j].RetryPriority })
	return out
}

// Row returns a copy of one ledger row.
func (q *QualityRepo) Row(videoID uuid.UUID, quality models.QualityName) (models.VideoQuality, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	row, ok := q.rows[videoID][quality]
	if !ok {
		return models.VideoQuality{}, false
	}
	return *row, true
}

func (q *QualityRepo) deleteVideo(videoID uuid.UUID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.rows, videoID)
}

func (q *QualityRepo) UpsertPending(_ context.Context, videoID uuid.UUID, profiles []models.QualityProfile) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.rows[videoID] == nil {
		q.rows[videoID] = make(map[models.QualityName]*models.VideoQuality)
	}
	for _, p := range profiles {
		if _, ok := q.rows[videoID][p.Name]; ok {
			continue
		}
		q.rows[videoID][p.Name] = &models.VideoQuality{
			VideoID:       videoID,
			Quality:       p.Name,
			Status:        models.QualityStatusPending,
			RetryPriority: p.RetryPriority,
		}
	}
	return nil
}

func (q *QualityRepo) ListByVideo(_ context.Context, videoID uuid.UUID) ([]models.VideoQuality, error) {
	return q.snapshot(videoID), nil
}

func (q *QualityRepo) update(videoID uuid.UUID, quality models.QualityName, fn func(row *models.VideoQuality)) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	row, ok := q.rows[videoID][quality]
	if !ok {
		return videos.ErrVideoNotFound
	}
	fn(row)
	return nil
}

func (q *QualityRepo) MarkProcessing(_ context.Context, videoID uuid.UUID, quality models.QualityName) error {
	return q.update(videoID, quality, func(row *models.VideoQuality) {
		now := time.Now()
		row.Status = models.QualityStatusProcessing
		row.StartedAt = &now
		row.CompletedAt = nil
		row.ErrorMessage = nil
	})
}

func (q *QualityRepo) MarkPending(_ context.Context, videoID uuid.UUID, quality models.QualityName) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if row, ok := q.rows[videoID][quality]; ok && row.Status == models.QualityStatusProcessing {
		row.Status = models.QualityStatusPending
		row.StartedAt = nil
	}
	return nil
}

func (q *QualityRepo) MarkReady(_ context.Context, videoID uuid.UUID, quality models.QualityName, playlistPath string, segments int) error {
	return q.update(videoID, quality, func(row *models.VideoQuality) {
		now := time.Now()
		row.Status = models.QualityStatusReady
		row.HLSPlaylistPath = &playlistPath
		row.SegmentsCount = &segments
		row.ErrorMessage = nil
		row.CompletedAt = &now
	})
}

func (q *QualityRepo) MarkFailed(_ context.Context, videoID uuid.UUID, quality models.QualityName, message string) error {
	return q.update(videoID, quality, func(row *models.VideoQuality) {
		now := time.Now()
		row.Status = models.QualityStatusFailed
		row.RetryCount++
		row.ErrorMessage = &message
		row.HLSPlaylistPath = nil
		row.SegmentsCount = nil
		row.CompletedAt = &now
	})
}

func (q *QualityRepo) ResetFailed(_ context.Context, videoID uuid.UUID, maxRetries int) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var n int64
	for _, row := range q.rows[videoID] {
		if row.Status == models.QualityStatusFailed && row.RetryCount < maxRetries {
			row.Status = models.QualityStatusPending
			row.ErrorMessage = nil
			row.StartedAt = nil
			row.CompletedAt = nil
			n++
		}
	}
	return n, nil
}
