package provision

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"sandboxd/internal/domain"
)

// Scheduler runs the periodic consistency sweep: every active module's
// resources are diagnosed against the external systems and drift is logged
// for operators. Nothing is auto-corrected.
type Scheduler struct {
	runner  *Runner
	modules domain.ModuleRepository
	cron    *cron.Cron
	spec    string
	logger  *slog.Logger
}

// NewScheduler creates a Scheduler with the given cron spec, e.g.
// "*/15 * * * *".
func NewScheduler(runner *Runner, modules domain.ModuleRepository, spec string, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:  runner,
		modules: modules,
		cron:    cron.New(),
		spec:    spec,
		logger:  logger,
	}
}

// Start registers the sweep job and starts the cron loop.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.sweep(context.Background())
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("consistency sweep scheduled", "spec", s.spec)
	return nil
}

// Stop stops the cron loop and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) sweep(ctx context.Context) {
	modules, err := s.modules.ListActive(ctx)
	if err != nil {
		s.logger.Error("consistency sweep: list active modules", "error", err)
		return
	}

	for _, mod := range modules {
		diagnoses, err := s.runner.DiagnoseModule(ctx, mod.ID)
		if err != nil {
			s.logger.Error("consistency sweep failed", "module_id", mod.ID, "error", err)
			continue
		}
		for _, d := range diagnoses {
			if d.Consistent {
				continue
			}
			s.logger.Warn("resource drift detected",
				"module_id", mod.ID, "resource_id", d.ResourceID,
				"kind", d.Kind, "name", d.Name,
				"store_status", d.StoreStatus, "findings", d.Findings)
		}
	}
}
