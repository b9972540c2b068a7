package completion

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	openai "github.com/openai/openai-go"
)

const defaultRetryBackoff = 1500 * time.Millisecond

// Retry re-issues transport-level failures of the wrapped service. Model
// output is never inspected here, so validation failures are not retried.
type Retry struct {
	next    Service
	retries int
	backoff time.Duration
	logger  *slog.Logger
}

// WithRetry wraps next with up to retries extra attempts. retries <= 0
// returns next unchanged.
func WithRetry(next Service, retries int, backoff time.Duration, logger *slog.Logger) Service {
	if retries <= 0 {
		return next
	}
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retry{next: next, retries: retries, backoff: backoff, logger: logger}
}

func (r *Retry) Complete(ctx context.Context, req Request) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= r.retries+1; attempt++ {
		out, err := r.next.Complete(ctx, req)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil || !IsRetryable(err) || attempt == r.retries+1 {
			break
		}
		wait := time.Duration(attempt) * r.backoff
		r.logger.Warn("completion retry", "attempt", attempt, "wait", wait, "schema", req.Schema.Name, "err", err)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	return "", lastErr
}

func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.DeadlineExceeded)
}
