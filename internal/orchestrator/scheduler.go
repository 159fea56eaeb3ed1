package orchestrator

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"geneingest/pkg/config"
)

// Scheduler drives the one piece of time-based automation the Orchestrator
// owns: a weekly refresh of the bulk-capable sources. It never bypasses
// Trigger, so a scheduled run goes through the same dependency ordering,
// concurrency bounds, and audit trail as an operator-initiated one.
type Scheduler struct {
	cron *cron.Cron
	orch *Orchestrator
	log  *slog.Logger
}

// NewScheduler builds a Scheduler. sources is the set of source names to
// refresh on cfg.WeeklyRefreshCron; an empty expression disables scheduling.
func NewScheduler(cfg config.OrchestratorConfig, orch *Orchestrator, sources []string, log *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(),
		orch: orch,
		log:  log,
	}
	if cfg.WeeklyRefreshCron == "" {
		return s, nil
	}

	for _, name := range sources {
		name := name
		if _, err := s.cron.AddFunc(cfg.WeeklyRefreshCron, func() {
			s.runScheduled(name)
		}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) runScheduled(source string) {
	ctx := context.Background()
	if _, err := s.orch.Trigger(ctx, source); err != nil {
		if s.log != nil {
			s.log.Error("scheduled refresh failed to trigger", "source", source, "error", err)
		}
		return
	}
	if s.log != nil {
		s.log.Info("scheduled weekly refresh triggered", "source", source)
	}
}

// Start begins the cron loop in a background goroutine. Stop should be
// called during shutdown.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the cron loop and waits for any running scheduled job to
// return (the triggered run itself continues independently).
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
