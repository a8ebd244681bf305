package middleware

import (
	"github.com/amankumarsingh77/streamscale-pipeline/internal/config"
	"github.com/amankumarsingh77/streamscale-pipeline/pkg/logger"
)

type MiddlewareManager struct {
	cfg    *config.Config
	logger logger.Logger
}

// Middleware manager constructor
func NewMiddlewareManager(cfg *config.Config, logger logger.Logger) *MiddlewareManager {
	return &MiddlewareManager{cfg: cfg, logger: logger}
}
