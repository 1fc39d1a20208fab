package monitor

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Scheduler fires a monitoring cycle for every configured target on a
// cron schedule, enqueuing them so the queue's concurrency and
// per-target ordering rules apply.
type Scheduler struct {
	schedule string
	targets  []string
	queue    *Queue
	cron     *cron.Cron
}

// NewScheduler creates a Scheduler that enqueues cycles for targets on
// the given cron schedule.
func NewScheduler(schedule string, targets []string, queue *Queue) *Scheduler {
	return &Scheduler{
		schedule: schedule,
		targets:  targets,
		queue:    queue,
		cron:     cron.New(cron.WithParser(cronParser)),
	}
}

// Start registers the cron entry and starts the ticker.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.schedule, s.fire)
	if err != nil {
		return fmt.Errorf("invalid monitor schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	slog.Info("monitor schedule started", "schedule", s.schedule, "targets", len(s.targets))
	return nil
}

// Stop stops the cron ticker. Cycles already enqueued still run.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) fire() {
	now := time.Now()
	for _, target := range s.targets {
		if err := s.queue.Enqueue(&Cycle{Target: target, At: now}); err != nil {
			slog.Warn("dropping monitoring cycle", "target", target, "error", err)
		}
	}
}
