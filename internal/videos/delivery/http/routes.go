package http

import (
	"github.com/amankumarsingh77/streamscale-pipeline/internal/middleware"
	"github.com/amankumarsingh77/streamscale-pipeline/internal/videos"
	"github.com/labstack/echo/v4"
)

func MapVideoRoutes(videoGroup *echo.Group, h videos.Handler, mw *middleware.MiddlewareManager) {
	videoGroup.Use(mw.APIKeyMiddleware)
	videoGroup.POST("/cleanup-orphans", h.CleanupOrphans())
	videoGroup.POST("/purge-deleted", h.PurgeDeleted())
	videoGroup.GET("/:video_id", h.GetVideo())
	videoGroup.DELETE("/:video_id", h.DeleteVideo())
	videoGroup.POST("/:video_id/restore", h.RestoreVideo())
	videoGroup.POST("/:video_id/job", h.EnqueueJob())
	videoGroup.GET("/:video_id/job", h.GetJobStatus())
	videoGroup.DELETE("/:video_id/job", h.CancelJob())
	videoGroup.POST("/:video_id/job/retry", h.RetryJob())
}
