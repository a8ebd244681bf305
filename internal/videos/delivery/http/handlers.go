package http

import (
	"errors"
	"net/http"

	"github.com/amankumarsingh77/streamscale-pipeline/internal/models"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/videos"
	"github.com/amankumarsingh77/streamscale-pipeline/pkg/logger"
	"github.com/amankumarsingh77/streamscale-pipeline/pkg/utils"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type videoHandler struct {
	videoUC     videos.UseCase
	lifecycleUC videos.LifecycleUseCase
	logger      logger.Logger
}

func NewVideoHandler(videoUC videos.UseCase, lifecycleUC videos.LifecycleUseCase, log logger.Logger) videos.Handler {
	return &videoHandler{
		videoUC:     videoUC,
		lifecycleUC: lifecycleUC,
		logger:      log,
	}
}

func (h *videoHandler) GetVideo() echo.HandlerFunc {
	return func(c echo.Context) error {
		videoID, err := utils.ParseUUIDParam(c, "video_id")
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid video id"})
		}
		video, err := h.videoUC.GetVideo(c.Request().Context(), videoID)
		if err != nil {
			return h.errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, video)
	}
}

func (h *videoHandler) EnqueueJob() echo.HandlerFunc {
	return func(c echo.Context) error {
		videoID, err := utils.ParseUUIDParam(c, "video_id")
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid video id"})
		}
		jobID, err := h.videoUC.EnqueueProcessing(c.Request().Context(), videoID)
		if err != nil {
			return h.errorResponse(c, err)
		}
		return c.JSON(http.StatusAccepted, map[string]string{"job_id": jobID})
	}
}

func (h *videoHandler) GetJobStatus() echo.HandlerFunc {
	return func(c echo.Context) error {
		videoID, err := utils.ParseUUIDParam(c, "video_id")
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid video id"})
		}
		info, err := h.videoUC.GetJobStatus(c.Request().Context(), videoID)
		if err != nil {
			return h.errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, info)
	}
}

func (h *videoHandler) CancelJob() echo.HandlerFunc {
	return func(c echo.Context) error {
		videoID, err := utils.ParseUUIDParam(c, "video_id")
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid video id"})
		}
		cancelled, err := h.videoUC.CancelJob(c.Request().Context(), videoID)
		if err != nil {
			return h.errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, map[string]bool{"cancelled": cancelled})
	}
}

func (h *videoHandler) RetryJob() echo.HandlerFunc {
	return func(c echo.Context) error {
		videoID, err := utils.ParseUUIDParam(c, "video_id")
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid video id"})
		}
		if err = h.videoUC.RetryJob(c.Request().Context(), videoID); err != nil {
			return h.errorResponse(c, err)
		}
		return c.JSON(http.StatusAccepted, map[string]string{"message": "Job queued for retry"})
	}
}

func (h *videoHandler) DeleteVideo() echo.HandlerFunc {
	return func(c echo.Context) error {
		videoID, err := utils.ParseUUIDParam(c, "video_id")
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid video id"})
		}
		input := &models.DeleteVideoInput{}
		if err = utils.ReadRequest(c, input); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		mode, err := h.lifecycleUC.DeleteVideo(c.Request().Context(), videoID, input.RequestedBy, input.ForceHard)
		if err != nil {
			return h.errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, map[string]string{"mode": string(mode)})
	}
}

func (h *videoHandler) RestoreVideo() echo.HandlerFunc {
	return func(c echo.Context) error {
		videoID, err := utils.ParseUUIDParam(c, "video_id")
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid video id"})
		}
		if err = h.lifecycleUC.RestoreVideo(c.Request().Context(), videoID); err != nil {
			return h.errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, map[string]string{"message": "Video restored"})
	}
}

func (h *videoHandler) CleanupOrphans() echo.HandlerFunc {
	return func(c echo.Context) error {
		input := &models.CleanupInput{}
		if err := utils.ReadRequest(c, input); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		report, err := h.lifecycleUC.CleanupOrphans(c.Request().Context(), input)
		if err != nil {
			return h.errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, report)
	}
}

func (h *videoHandler) PurgeDeleted() echo.HandlerFunc {
	return func(c echo.Context) error {
		input := &models.PurgeInput{}
		if err := utils.ReadRequest(c, input); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		report, err := h.lifecycleUC.PurgeSoftDeleted(c.Request().Context(), input.BatchSize)
		if err != nil {
			return h.errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, report)
	}
}

func (h *videoHandler) errorResponse(c echo.Context, err error) error {
	var validationErrs validator.ValidationErrors
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, videos.ErrVideoNotFound):
		status = http.StatusNotFound
	case errors.Is(err, videos.ErrInvalidQueueState):
		status = http.StatusConflict
	case errors.As(err, &validationErrs):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		h.logger.Errorf("RequestID %s - %v", utils.GetRequestID(c), err)
	}
	return c.JSON(status, map[string]string{"error": err.Error()})
}
