package middleware

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/amankumarsingh77/streamscale-pipeline/pkg/utils"
	"github.com/labstack/echo/v4"
)

const apiKeyHeader = "X-API-Key"

// APIKeyMiddleware guards the ops API. An empty server.apiKey disables the check.
func (mw *MiddlewareManager) APIKeyMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		expected := mw.cfg.Server.APIKey
		if expected == "" {
			return next(c)
		}
		got := c.Request().Header.Get(apiKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			mw.logger.Warnf("APIKeyMiddleware - rejected RequestID: %s, IP: %s", utils.GetRequestID(c), utils.GetIPAddress(c))
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		}
		return next(c)
	}
}

// RequestLoggerMiddleware logs method, path, status and latency of every request.
func (mw *MiddlewareManager) RequestLoggerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		req := c.Request()
		res := c.Response()
		mw.logger.Infof("RequestID: %s, Method: %s, URI: %s, Status: %v, Time: %s",
			utils.GetRequestID(c), req.Method, req.URL.String(), res.Status, time.Since(start),
		)
		return err
	}
}
