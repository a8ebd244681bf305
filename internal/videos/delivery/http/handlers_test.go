package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/amankumarsingh77/streamscale-pipeline/internal/config"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/middleware"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/models"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/videos"
	"github.com/amankumarsingh77/streamscale-pipeline/pkg/logger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockVideoUC struct {
	mock.Mock
}

func (m *mockVideoUC) GetVideo(ctx context.Context, videoID uuid.UUID) (*models.VideoDetails, error) {
	args := m.Called(ctx, videoID)
	details, _ := args.Get(0).(*models.VideoDetails)
	return details, args.Error(1)
}

func (m *mockVideoUC) EnqueueProcessing(ctx context.Context, videoID uuid.UUID) (string, error) {
	args := m.Called(ctx, videoID)
	return args.String(0), args.Error(1)
}

func (m *mockVideoUC) GetJobStatus(ctx context.Context, videoID uuid.UUID) (*models.JobInfo, error) {
	args := m.Called(ctx, videoID)
	info, _ := args.Get(0).(*models.JobInfo)
	return info, args.Error(1)
}

func (m *mockVideoUC) CancelJob(ctx context.Context, videoID uuid.UUID) (bool, error) {
	args := m.Called(ctx, videoID)
	return args.Bool(0), args.Error(1)
}

func (m *mockVideoUC) RetryJob(ctx context.Context, videoID uuid.UUID) error {
	return m.Called(ctx, videoID).Error(0)
}

type mockLifecycleUC struct {
	mock.Mock
}

func (m *mockLifecycleUC) DeleteVideo(ctx context.Context, videoID uuid.UUID, requestedBy uuid.UUID, forceHard bool) (models.DeleteMode, error) {
	args := m.Called(ctx, videoID, requestedBy, forceHard)
	return args.Get(0).(models.DeleteMode), args.Error(1)
}

func (m *mockLifecycleUC) RestoreVideo(ctx context.Context, videoID uuid.UUID) error {
	return m.Called(ctx, videoID).Error(0)
}

func (m *mockLifecycleUC) CleanupOrphans(ctx context.Context, input *models.CleanupInput) (*models.CleanupReport, error) {
	args := m.Called(ctx, input)
	report, _ := args.Get(0).(*models.CleanupReport)
	return report, args.Error(1)
}

func (m *mockLifecycleUC) PurgeSoftDeleted(ctx context.Context, batchSize int) (*models.CleanupReport, error) {
	args := m.Called(ctx, batchSize)
	report, _ := args.Get(0).(*models.CleanupReport)
	return report, args.Error(1)
}

func newTestServer(t *testing.T, apiKey string) (*echo.Echo, *mockVideoUC, *mockLifecycleUC) {
	t.Helper()
	cfg := &config.Config{}
	cfg.Server.APIKey = apiKey
	log := logger.NewNop()

	videoUC := &mockVideoUC{}
	lifecycleUC := &mockLifecycleUC{}
	e := echo.New()
	MapVideoRoutes(e.Group("/videos"), NewVideoHandler(videoUC, lifecycleUC, log), middleware.NewMiddlewareManager(cfg, log))
	t.Cleanup(func() {
		videoUC.AssertExpectations(t)
		lifecycleUC.AssertExpectations(t)
	})
	return e, videoUC, lifecycleUC
}

func do(e *echo.Echo, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestGetVideo(t *testing.T) {
	e, videoUC, _ := newTestServer(t, "")
	id := uuid.New()
	videoUC.On("GetVideo", mock.Anything, id).Return(&models.VideoDetails{
		Video:    &models.Video{VideoID: id, Status: models.VideoStatusPartialReady},
		Retrying: []string{"1080p"},
	}, nil)

	rec := do(e, http.MethodGet, "/videos/"+id.String(), "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "partial_ready", body["status"])
	assert.Equal(t, []interface{}{"1080p"}, body["retrying"])
}

func TestGetVideo_Errors(t *testing.T) {
	e, videoUC, _ := newTestServer(t, "")
	id := uuid.New()
	videoUC.On("GetVideo", mock.Anything, id).Return(nil, videos.ErrVideoNotFound)

	assert.Equal(t, http.StatusBadRequest, do(e, http.MethodGet, "/videos/not-a-uuid", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodGet, "/videos/"+id.String(), "", nil).Code)
}

func TestEnqueueJob(t *testing.T) {
	e, videoUC, _ := newTestServer(t, "")
	id := uuid.New()
	videoUC.On("EnqueueProcessing", mock.Anything, id).Return("video-"+id.String(), nil)

	rec := do(e, http.MethodPost, "/videos/"+id.String()+"/job", "", nil)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "video-"+id.String())
}

func TestRetryJob_InvalidState(t *testing.T) {
	e, videoUC, _ := newTestServer(t, "")
	id := uuid.New()
	videoUC.On("RetryJob", mock.Anything, id).Return(fmt.Errorf("failed to retry job: %w", videos.ErrInvalidQueueState))

	rec := do(e, http.MethodPost, "/videos/"+id.String()+"/job/retry", "", nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCancelJob(t *testing.T) {
	e, videoUC, _ := newTestServer(t, "")
	id := uuid.New()
	videoUC.On("CancelJob", mock.Anything, id).Return(false, nil)

	rec := do(e, http.MethodDelete, "/videos/"+id.String()+"/job", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cancelled":false}`, rec.Body.String())
}

func TestDeleteVideo(t *testing.T) {
	e, _, lifecycleUC := newTestServer(t, "")
	id, by := uuid.New(), uuid.New()
	lifecycleUC.On("DeleteVideo", mock.Anything, id, by, true).Return(models.DeleteModeHard, nil)

	body := fmt.Sprintf(`{"requested_by":%q,"force_hard":true}`, by)
	rec := do(e, http.MethodDelete, "/videos/"+id.String(), body, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"mode":"hard"}`, rec.Body.String())
}

func TestDeleteVideo_RequiresRequester(t *testing.T) {
	e, _, _ := newTestServer(t, "")

	rec := do(e, http.MethodDelete, "/videos/"+uuid.NewString(), `{"force_hard":true}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCleanupOrphans(t *testing.T) {
	e, _, lifecycleUC := newTestServer(t, "")
	expected := &models.CleanupInput{MaxAgeHours: 48, BatchSize: 10, DryRun: true}
	lifecycleUC.On("CleanupOrphans", mock.Anything, expected).Return(&models.CleanupReport{DryRun: true, Candidates: 2}, nil)

	rec := do(e, http.MethodPost, "/videos/cleanup-orphans", `{"max_age_hours":48,"batch_size":10,"dry_run":true}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var report models.CleanupReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.True(t, report.DryRun)
	assert.Equal(t, 2, report.Candidates)
}

func TestPurgeDeleted(t *testing.T) {
	e, _, lifecycleUC := newTestServer(t, "")
	lifecycleUC.On("PurgeSoftDeleted", mock.Anything, 25).Return(&models.CleanupReport{Candidates: 1, Succeeded: 1}, nil)

	rec := do(e, http.MethodPost, "/videos/purge-deleted", `{"batch_size":25}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIKey(t *testing.T) {
	e, _, lifecycleUC := newTestServer(t, "s3cret")
	id := uuid.New()
	lifecycleUC.On("RestoreVideo", mock.Anything, id).Return(nil).Once()

	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodPost, "/videos/"+id.String()+"/restore", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodPost, "/videos/"+id.String()+"/restore", "", map[string]string{"X-API-Key": "nope"}).Code)
	assert.Equal(t, http.StatusOK, do(e, http.MethodPost, "/videos/"+id.String()+"/restore", "", map[string]string{"X-API-Key": "s3cret"}).Code)
}
