package server

import (
	"net/http"

	"github.com/amankumarsingh77/streamscale-pipeline/internal/middleware"
	videoHttp "github.com/amankumarsingh77/streamscale-pipeline/internal/videos/delivery/http"
	videoRepository "github.com/amankumarsingh77/streamscale-pipeline/internal/videos/repository"
	videoUsecase "github.com/amankumarsingh77/streamscale-pipeline/internal/videos/usecase"
	"github.com/amankumarsingh77/streamscale-pipeline/pkg/utils"
	"github.com/labstack/echo/v4"
)

func (s *Server) MapHandlers(e *echo.Echo) error {
	vRepo := videoRepository.NewVideoRepo(s.db)
	qRepo := videoRepository.NewQualityRepo(s.db)
	jobQueue := videoRepository.NewRedisJobQueue(s.redisClient, s.cfg)

	videoUC := videoUsecase.NewVideoUseCase(s.cfg, vRepo, qRepo, jobQueue, s.logger)
	lifecycleUC := videoUsecase.NewLifecycleUseCase(s.cfg, vRepo, jobQueue, s.store, s.logger)

	videoHandlers := videoHttp.NewVideoHandler(videoUC, lifecycleUC, s.logger)

	mw := middleware.NewMiddlewareManager(s.cfg, s.logger)
	e.Use(mw.RequestLoggerMiddleware)

	v1 := e.Group("/api/v1")
	health := v1.Group("/health")
	videoGroup := v1.Group("/videos")

	videoHttp.MapVideoRoutes(videoGroup, videoHandlers, mw)
	health.GET("", func(c echo.Context) error {
		s.logger.Infof("Health check RequestID: %s", utils.GetRequestID(c))
		ctx := c.Request().Context()
		if err := s.db.PingContext(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "DOWN", "postgres": err.Error()})
		}
		if err := s.redisClient.Ping(ctx).Err(); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "DOWN", "redis": err.Error()})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "OK"})
	})
	return nil
}
