package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/amankumarsingh77/streamscale-pipeline/internal/models"
	"github.com/amankumarsingh77/streamscale-pipeline/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu   sync.Mutex
	jobs []string
	done chan struct{}
	want int
}

func (h *recordingHandler) Handle(_ context.Context, job *models.Job) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.jobs = append(h.jobs, job.ID)
	if len(h.jobs) == h.want {
		close(h.done)
	}
	return nil
}

func TestWorker_ConsumesQueuedJobs(t *testing.T) {
	f := newFixture(t)
	f.cfg.Worker.Concurrency = 3
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	want := make([]string, 0, 5)
	for range 5 {
		id := uuid.New()
		jobID, err := f.queue.Enqueue(ctx, models.JobPayload{VideoID: id, RawFilePath: "uploads/" + id.String()})
		require.NoError(t, err)
		want = append(want, jobID)
	}

	handler := &recordingHandler{done: make(chan struct{}), want: len(want)}
	w := NewWorker(f.cfg, logger.NewNop(), f.queue, handler, nil)
	w.cpuGate = func() (bool, float64) { return true, 0 }
	w.Start(ctx)

	select {
	case <-handler.done:
	case <-time.After(5 * time.Second):
		t.Fatal("jobs were not consumed")
	}
	cancel()
	w.Wait()

	assert.ElementsMatch(t, want, handler.jobs)
}

func TestWorker_BusyCPUHoldsJobs(t *testing.T) {
	f := newFixture(t)
	f.cfg.Worker.Concurrency = 1
	ctx, cancel := context.WithCancel(context.Background())

	id := uuid.New()
	_, err := f.queue.Enqueue(ctx, models.JobPayload{VideoID: id, RawFilePath: "uploads/" + id.String()})
	require.NoError(t, err)

	handler := &recordingHandler{done: make(chan struct{}), want: 1}
	w := NewWorker(f.cfg, logger.NewNop(), f.queue, handler, nil)
	w.cpuGate = func() (bool, float64) { return false, 99 }
	w.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	cancel()
	w.Wait()

	assert.Empty(t, handler.jobs)
	assert.Len(t, f.queue.Waiting(), 1)
}

func TestSweep_ResumesProcessingVideoWithoutJob(t *testing.T) {
	f := newFixture(t)
	processing := f.addVideo(t, models.VideoStatusProcessing)
	uploading := f.addVideo(t, models.VideoStatusUploading)

	n, err := f.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{models.JobIDForVideo(processing.VideoID)}, f.queue.Waiting())
	assert.Equal(t, models.JobStateMissing, f.jobState(t, uploading.VideoID).State)
}

func TestSweep_LeavesInFlightVideosAlone(t *testing.T) {
	f := newFixture(t)
	video := f.addVideo(t, models.VideoStatusPartialReady)
	f.qualities.Put(models.VideoQuality{
		VideoID:       video.VideoID,
		Quality:       models.Quality1080P,
		Status:        models.QualityStatusFailed,
		RetryCount:    1,
		RetryPriority: 4,
	})
	f.queue.SetState(models.JobPayload{VideoID: video.VideoID, RawFilePath: video.RawFilePath}, models.JobStateActive)

	n, err := f.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	row, ok := f.qualities.Row(video.VideoID, models.Quality1080P)
	require.True(t, ok)
	assert.Equal(t, models.QualityStatusFailed, row.Status)
}

func TestSweep_ResetsRetryableQualities(t *testing.T) {
	f := newFixture(t)
	video := f.addVideo(t, models.VideoStatusPartialReady)
	f.qualities.Put(models.VideoQuality{VideoID: video.VideoID, Quality: models.Quality1080P, Status: models.QualityStatusFailed, RetryCount: 1, RetryPriority: 4})
	f.qualities.Put(models.VideoQuality{VideoID: video.VideoID, Quality: models.Quality360P, Status: models.QualityStatusFailed, RetryCount: 3, RetryPriority: 1})

	n, err := f.sweeper.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	statuses := f.qualityStatuses(video.VideoID)
	assert.Equal(t, models.QualityStatusPending, statuses[models.Quality1080P])
	assert.Equal(t, models.QualityStatusFailed, statuses[models.Quality360P])
	assert.Equal(t, models.JobStateWaiting, f.jobState(t, video.VideoID).State)
}
