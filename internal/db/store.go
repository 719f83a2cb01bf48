package db

import (
	"context"
	"errors"
	"time"
)

// ErrStaleData is returned by an entity update when the row's version_id no
// longer matches the value the caller last observed.
var ErrStaleData = errors.New("db: stale data, row was updated concurrently")

// CommitWithRetry invokes fn up to maxAttempts times, backing off 1ms*2^n
// between attempts. fn is responsible for re-reading and re-applying its
// change on ErrStaleData; CommitWithRetry just supplies the retry loop.
func CommitWithRetry(ctx context.Context, maxAttempts int, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	base := time.Millisecond
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !errors.Is(err, ErrStaleData) {
			return err
		}
		if attempt == maxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(base * time.Duration(1<<attempt)):
		}
	}
	return lastErr
}
