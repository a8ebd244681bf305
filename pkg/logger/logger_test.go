package logger

import (
	"testing"

	"github.com/amankumarsingh77/streamscale-pipeline/internal/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestGetLoggerLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"info":    zapcore.InfoLevel,
		"error":   zapcore.ErrorLevel,
		"unknown": zapcore.DebugLevel,
	}
	for level, want := range cases {
		l := NewApiLogger(&config.Config{Logger: config.Logger{Level: level}})
		assert.Equal(t, want, l.getLoggerLevel(), level)
	}
}

func TestInitLogger(t *testing.T) {
	l := NewApiLogger(&config.Config{Logger: config.Logger{Level: "warn", Encoding: "console", DisableStacktrace: true}})
	l.InitLogger()
	assert.NotPanics(t, func() {
		l.Infof("worker %d started", 1)
		l.Warnf("cpu at %.1f%%", 95.0)
	})
}
