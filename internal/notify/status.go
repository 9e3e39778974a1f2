package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/cycleforge/flasharb/internal/domain"
)

// Summarizer yields a one-line description of engine activity since startup.
type Summarizer interface {
	Summary() string
}

// StatusReporter periodically pushes an activity summary to the notifier so
// operators can tell a quiet market apart from a dead process.
type StatusReporter struct {
	notifier *Notifier
	stats    Summarizer
	interval time.Duration
	logger   *slog.Logger
}

// NewStatusReporter builds a reporter that emits every interval. A zero or
// negative interval disables reporting.
func NewStatusReporter(n *Notifier, stats Summarizer, interval time.Duration, logger *slog.Logger) *StatusReporter {
	return &StatusReporter{
		notifier: n,
		stats:    stats,
		interval: interval,
		logger:   logger.With(slog.String("component", "status_reporter")),
	}
}

// Run emits status notifications until the context is cancelled.
func (r *StatusReporter) Run(ctx context.Context) error {
	if r.interval <= 0 {
		r.logger.InfoContext(ctx, "status reporting disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			summary := r.stats.Summary()
			r.logger.InfoContext(ctx, "engine status", slog.String("summary", summary))
			_ = r.notifier.Notify(ctx, domain.EventStatus, "Engine Status", summary)
		}
	}
}
