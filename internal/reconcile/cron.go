package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"podbay/internal/logging"
)

// Scheduler runs periodic sweeps on a cron schedule in daemon mode.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewScheduler wires the service's Sweep onto the given cron expression
// (descriptors like "@every 15m" are accepted). The episodes function is
// called per tick so the caller can supply fresh feed knowledge.
func NewScheduler(schedule string, svc *Service, episodes func() []Episode, logger *slog.Logger) (*Scheduler, error) {
	log := logging.NewComponentLogger(logger, "reconcile-cron")
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		var known []Episode
		if episodes != nil {
			known = episodes()
		}
		if _, err := svc.Sweep(context.Background(), known); err != nil {
			log.Error("scheduled sweep failed", logging.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid reconcile schedule %q: %w", schedule, err)
	}
	return &Scheduler{cron: c, logger: log}, nil
}

// Start begins scheduling. Safe to call once.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}
