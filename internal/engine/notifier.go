package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/roach88/nudge/internal/ir"
)

// Notifier delivers a reminder notification and returns its id.
type Notifier interface {
	Notify(ctx context.Context, r ir.Reminder) (string, error)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, r ir.Reminder) (string, error)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, r ir.Reminder) (string, error) {
	return f(ctx, r)
}

// Fire adapts n to the controller's FireFunc.
func Fire(n Notifier) FireFunc {
	return n.Notify
}

// LogNotifier writes one line per notification to w.
type LogNotifier struct {
	mu  sync.Mutex
	w   io.Writer
	ids IDGenerator
}

// NewLogNotifier creates a LogNotifier. A nil ids uses UUIDv7Generator.
func NewLogNotifier(w io.Writer, ids IDGenerator) *LogNotifier {
	if ids == nil {
		ids = UUIDv7Generator{}
	}
	return &LogNotifier{w: w, ids: ids}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(_ context.Context, r ir.Reminder) (string, error) {
	id := n.ids.Generate()

	n.mu.Lock()
	defer n.mu.Unlock()

	line := fmt.Sprintf("[%s] %s", r.ID, r.Title)
	if r.Description != "" {
		line += ": " + r.Description
	}
	if _, err := fmt.Fprintf(n.w, "%s (notification=%s)\n", line, id); err != nil {
		return "", fmt.Errorf("write notification: %w", err)
	}
	return id, nil
}

// RetryPolicy bounds notification retries.
type RetryPolicy struct {
	// MaxAttempts includes the first try. Values below 1 mean 1.
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy matches the configuration defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// RetryingNotifier retries transient notification failures with exponential
// backoff. Errors wrapped with backoff.Permanent are returned immediately.
type RetryingNotifier struct {
	next    Notifier
	policy  RetryPolicy
	logger  *slog.Logger
	metrics *Metrics
}

// NewRetryingNotifier wraps next. Nil logger means slog.Default().
func NewRetryingNotifier(next Notifier, policy RetryPolicy, logger *slog.Logger, metrics *Metrics) *RetryingNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryingNotifier{next: next, policy: policy, logger: logger, metrics: metrics}
}

// Notify implements Notifier.
func (n *RetryingNotifier) Notify(ctx context.Context, r ir.Reminder) (string, error) {
	b := backoff.NewExponentialBackOff()
	if n.policy.InitialInterval > 0 {
		b.InitialInterval = n.policy.InitialInterval
	}
	if n.policy.MaxInterval > 0 {
		b.MaxInterval = n.policy.MaxInterval
	}
	// Attempts are bounded by count, not elapsed time.
	b.MaxElapsedTime = 0

	retries := n.policy.MaxAttempts - 1
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)

	op := func() (string, error) {
		return n.next.Notify(ctx, r)
	}
	onRetry := func(err error, wait time.Duration) {
		n.metrics.incNotifyRetry()
		n.logger.Debug("notification retry",
			"reminder_id", r.ID,
			"wait", wait,
			"error", err,
		)
	}
	return backoff.RetryNotifyWithData(op, policy, onRetry)
}
