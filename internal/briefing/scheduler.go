package briefing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// DefaultSchedule is 07:00 every day.
const DefaultSchedule = "0 7 * * *"

// PublishFunc delivers a built briefing.
type PublishFunc func(ctx context.Context, br *Briefing)

// Scheduler builds and publishes a briefing at every tick of a cron
// expression.
type Scheduler struct {
	builder *Builder
	expr    string
	publish PublishFunc
	now     func() time.Time
	logger  *slog.Logger
}

// ValidSchedule reports whether expr is a cron expression gronx accepts.
func ValidSchedule(expr string) bool {
	return gronx.New().IsValid(expr)
}

// NewScheduler creates a Scheduler. expr must be a valid cron expression.
func NewScheduler(builder *Builder, expr string, publish PublishFunc, logger *slog.Logger) (*Scheduler, error) {
	if !ValidSchedule(expr) {
		return nil, fmt.Errorf("briefing: invalid schedule %q", expr)
	}
	return &Scheduler{builder: builder, expr: expr, publish: publish, now: time.Now, logger: logger}, nil
}

// Next returns the first tick strictly after t.
func (s *Scheduler) Next(t time.Time) (time.Time, error) {
	return gronx.NextTickAfter(s.expr, t, false)
}

// Run publishes briefings until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		next, err := s.Next(s.now())
		if err != nil {
			return fmt.Errorf("briefing: next tick: %w", err)
		}
		s.logger.Info("briefing: scheduled", slog.Time("at", next))
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce builds and publishes one briefing now.
func (s *Scheduler) RunOnce(ctx context.Context) {
	br, err := s.builder.Build(ctx, s.now())
	if err != nil {
		s.logger.Error("briefing: build failed", slog.String("error", err.Error()))
		return
	}
	s.publish(ctx, br)
	s.logger.Info("briefing: published", slog.Bool("empty", br.Empty()))
}
