package utils

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFanoutHandler_RespectsLevels(t *testing.T) {
	var debugBuf, warnBuf bytes.Buffer
	debugHandler := slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug})
	warnHandler := slog.NewTextHandler(&warnBuf, &slog.HandlerOptions{Level: slog.LevelWarn})

	logger := slog.New(NewFanoutHandler(debugHandler, warnHandler))
	logger.Debug("scan", "path", "a.txt")
	logger.Warn("skip", "path", "b.txt")

	assert.Contains(t, debugBuf.String(), "path=a.txt")
	assert.Contains(t, debugBuf.String(), "path=b.txt")
	assert.NotContains(t, warnBuf.String(), "path=a.txt")
	assert.Contains(t, warnBuf.String(), "path=b.txt")
}

func TestFanoutHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	logger := slog.New(NewFanoutHandler(handler)).With("pass", "p1").WithGroup("delta")
	logger.Info("merged", "paths", 3)

	assert.Contains(t, buf.String(), "pass=p1")
	assert.Contains(t, buf.String(), "delta.paths=3")
	assert.False(t, NewFanoutHandler().Enabled(context.Background(), slog.LevelError))
}
