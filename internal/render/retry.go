package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"bili_bot/internal/model"
)

// Retrying wraps a Renderer with a bounded number of attempts and a fixed
// delay between them.
type Retrying struct {
	next     Renderer
	attempts uint
	delay    time.Duration
	log      *slog.Logger
}

// NewRetrying wraps next. attempts below one are treated as one.
func NewRetrying(next Renderer, attempts int, delay time.Duration, log *slog.Logger) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	return &Retrying{next: next, attempts: uint(attempts), delay: delay, log: log}
}

// Render calls the wrapped renderer until it succeeds or attempts run out.
func (r *Retrying) Render(ctx context.Context, name string, payload *model.RenderPayload) (string, error) {
	var path string
	err := retry.Do(
		func() error {
			p, err := r.next.Render(ctx, name, payload)
			if errors.Is(err, ErrUnknownTemplate) {
				return retry.Unrecoverable(err)
			}
			if err != nil {
				return err
			}
			path = p
			return nil
		},
		retry.Attempts(r.attempts),
		retry.Delay(r.delay),
		retry.MaxDelay(r.delay),
		retry.MaxJitter(jitter(r.delay)),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			r.log.Warn("render failed, retrying", "attempt", n+1, "template", name, "error", err)
		}),
	)
	if err != nil {
		return "", fmt.Errorf("render after %d attempts: %w", r.attempts, err)
	}
	return path, nil
}

// jitter keeps the delay close to fixed. The retry package needs a positive
// jitter bound.
func jitter(d time.Duration) time.Duration {
	if j := d / 20; j > time.Millisecond {
		return j
	}
	return time.Millisecond
}
