// Package transport performs authenticated file upload, listing, and download
// against the regulator's file-transfer endpoint. Two implementations exist:
// the SFTP client for sandbox/production and a local-directory client for
// demo deployments and tests. Selection happens once at startup.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rerfiler/pkg/sentinel"
)

// Client is the file-transport contract the lifecycle manager depends on.
// Download returns pkg/sentinel.ErrNotFound (wrapped) when the remote file
// does not exist; that is an expected outcome while polling, not a failure.
type Client interface {
	Upload(ctx context.Context, filename string, data []byte) error
	List(ctx context.Context, dir string) ([]string, error)
	Download(ctx context.Context, filename string) ([]byte, error)
}

// Error is a transport failure. Ambiguous marks outcomes where bytes may have
// reached the remote side (e.g. a timeout mid-upload); the lifecycle manager
// must not blindly re-upload after one of these.
type Error struct {
	Op        string
	Ambiguous bool
	Err       error
}

func (e *Error) Error() string {
	if e.Ambiguous {
		return fmt.Sprintf("transport %s (outcome ambiguous): %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsAmbiguous reports whether err wraps an ambiguous-delivery transport error.
func IsAmbiguous(err error) bool {
	var te *Error
	return errors.As(err, &te) && te.Ambiguous
}

// RetryPolicy bounds automatic retries on transient failure. Zero values fall
// back to the defaults below.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

const (
	defaultMaxAttempts = 3
	defaultBackoff     = 2 * time.Second
)

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts <= 0 {
		return defaultMaxAttempts
	}
	return p.MaxAttempts
}

func (p RetryPolicy) backoff() time.Duration {
	if p.Backoff <= 0 {
		return defaultBackoff
	}
	return p.Backoff
}

func isNotFound(err error) bool { return errors.Is(err, sentinel.ErrNotFound) }

// withRetry runs fn up to the policy's attempt bound, sleeping the backoff
// between attempts. It stops immediately on context cancellation, on
// not-found results, and on ambiguous outcomes — retrying an ambiguous upload
// is exactly the duplicate-filing risk the caller needs to arbitrate.
func withRetry(ctx context.Context, policy RetryPolicy, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= policy.attempts(); attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if IsAmbiguous(lastErr) || isNotFound(lastErr) {
			return lastErr
		}
		if attempt < policy.attempts() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(policy.backoff()):
			}
		}
	}
	return lastErr
}
