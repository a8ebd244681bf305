package videos

import "github.com/labstack/echo/v4"

type Handler interface {
	GetVideo() echo.HandlerFunc
	EnqueueJob() echo.HandlerFunc
	GetJobStatus() echo.HandlerFunc
	CancelJob() echo.HandlerFunc
	RetryJob() echo.HandlerFunc
	DeleteVideo() echo.HandlerFunc
	RestoreVideo() echo.HandlerFunc
	CleanupOrphans() echo.HandlerFunc
	PurgeDeleted() echo.HandlerFunc
}
