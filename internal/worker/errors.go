package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/cvlogg/musicgrabber2/internal/search"
	"github.com/hibiken/asynq"
)

// ErrQualityTooLow marks an artifact rejected by the bitrate floor.
// Retrying the same candidate cannot improve its quality.
var ErrQualityTooLow = errors.New("audio quality below configured minimum")

// IsRetryable reports whether another attempt can possibly succeed.
// Unavailable or region-locked content never becomes available by waiting;
// rate limits, timeouts and transport errors do clear.
func IsRetryable(err error) bool {
	switch {
	case errors.Is(err, search.ErrContentUnavailable),
		errors.Is(err, search.ErrRegionLocked),
		errors.Is(err, ErrQualityTooLow):
		return false
	case errors.Is(err, context.Canceled):
		return false
	}
	return true
}

// taskError wraps a stage failure for asynq: non-retryable failures carry
// SkipRetry so the queue does not burn attempts on a lost cause.
func taskError(stage string, err error) error {
	wrapped := fmt.Errorf("%s failed: %w", stage, err)
	if !IsRetryable(err) {
		return fmt.Errorf("%w: %w", asynq.SkipRetry, wrapped)
	}
	return wrapped
}
