package goGuard

import (
	"context"
	"errors"
	"log/slog"
)

// logFailure records infrastructure failures. Expected rejections (wrong
// code, locked account) are left to the audit stream.
func (e *Engine) logFailure(ctx context.Context, op string, err error) {
	if e == nil || e.logger == nil || err == nil {
		return
	}
	if !errors.Is(err, ErrBackendUnavailable) && !errors.Is(err, ErrEngineNotReady) {
		return
	}
	e.logger.LogAttrs(ctx, slog.LevelError, "security operation failed",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
}
