package resilience

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/sitesearch/pkg/errors"
)

// Bounded runs fn under a deadline and stops waiting when it passes, even
// if fn ignores its context. The returned error then wraps
// apperrors.ErrTimeout. fn keeps running in the background until it
// notices the cancelled context.
func Bounded(ctx context.Context, limit time.Duration, name string, fn func(ctx context.Context) error) error {
	if limit <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if cause := context.Cause(ctx); cause != context.DeadlineExceeded {
			return fmt.Errorf("%s: %w", name, cause)
		}
		return fmt.Errorf("%s: %w after %v", name, apperrors.ErrTimeout, limit)
	}
}
