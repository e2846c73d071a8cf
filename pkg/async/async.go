package async

import (
	"context"
	"runtime/debug"
	"time"
)

// Logger is the slice of a structured logger that background tasks
// report through. Both the slog wrapper and logrus satisfy it.
type Logger interface {
	Errorf(format string, args ...interface{})
}

// Go runs fn on its own goroutine with panic recovery and a deadline.
// The task gets a fresh context, detached from the caller's, so the end
// of a request does not cancel in-flight delivery. Errors are logged,
// never returned; callers that need the result should not be using Go.
func Go(logger Logger, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("panic in %s: %v\n%s", taskName, r, debug.Stack())
			}
		}()

		if err := fn(ctx); err != nil {
			logger.Errorf("%s failed: %v", taskName, err)
		}
	}()
}
