package provision

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"sandboxd/internal/domain"
)

// DefaultPace is the minimum gap between consecutive external provisioning
// calls during a sweep, to avoid hammering the engine or the Git host.
const DefaultPace = 100 * time.Millisecond

// Runner executes bulk sweeps over a module's roster. Preconditions (module
// exists, roster non-empty) fail the whole batch before any external call;
// once the sweep is running, a per-participant failure is recorded and the
// sweep continues, so one broken item never blocks the rest of the group.
type Runner struct {
	orch    *Orchestrator
	modules domain.ModuleRepository
	roster  domain.AccountRepository
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewRunner wires a Runner. pace <= 0 falls back to DefaultPace.
func NewRunner(orch *Orchestrator, modules domain.ModuleRepository, roster domain.AccountRepository, pace time.Duration, logger *slog.Logger) *Runner {
	if pace <= 0 {
		pace = DefaultPace
	}
	return &Runner{
		orch:    orch,
		modules: modules,
		roster:  roster,
		limiter: rate.NewLimiter(rate.Every(pace), 1),
		logger:  logger,
	}
}

// ProvisionModule reconciles every participant of the module to an active
// resource of the given kind: absent participants get a fresh resource,
// participants with an existing record get a recreate. Items run
// sequentially in roster order.
func (r *Runner) ProvisionModule(ctx context.Context, moduleID string, kind domain.ResourceKind) (*domain.BatchResult, error) {
	roster, err := r.preconditions(ctx, moduleID, kind)
	if err != nil {
		return nil, err
	}

	result := &domain.BatchResult{}
	for _, p := range roster {
		if err := r.limiter.Wait(ctx); err != nil {
			// Canceled mid-sweep: stop launching new items, report what ran.
			return result, err
		}

		item := domain.ItemResult{AccountID: p.AccountID, Login: p.Login}
		res, perr := r.orch.Provision(ctx, moduleID, p, kind)
		if perr != nil {
			item.Success = false
			item.Message = perr.Error()
			r.logger.Warn("sweep item failed",
				"module_id", moduleID, "account_id", p.AccountID, "kind", kind, "error", perr)
		} else {
			item.Success = true
			item.ResourceID = res.ID
			item.Message = res.Name
		}
		result.Add(item)
	}

	r.logger.Info("provision sweep finished",
		"module_id", moduleID, "kind", kind,
		"total", result.Total, "successful", result.Successful, "failed", result.Failed)
	return result, nil
}

// TeardownModule deletes every resource of the given kind recorded for the
// module. It iterates the records, not the roster, so resources belonging to
// since-removed participants are still cleaned up.
func (r *Runner) TeardownModule(ctx context.Context, moduleID string, kind domain.ResourceKind) (*domain.BatchResult, error) {
	if !kind.Valid() {
		return nil, domain.ErrValidation("unknown resource kind %q", kind)
	}
	if _, err := r.modules.GetByID(ctx, moduleID); err != nil {
		return nil, err
	}
	resources, err := r.orch.Resources().ListByModuleKind(ctx, moduleID, kind)
	if err != nil {
		return nil, err
	}

	result := &domain.BatchResult{}
	for i := range resources {
		res := &resources[i]
		if err := r.limiter.Wait(ctx); err != nil {
			return result, err
		}

		item := domain.ItemResult{AccountID: res.AccountID, ResourceID: res.ID}
		if derr := r.orch.Delete(ctx, moduleID, res.AccountID, kind); derr != nil {
			item.Success = false
			item.Message = derr.Error()
			r.logger.Warn("teardown item failed",
				"module_id", moduleID, "resource_id", res.ID, "kind", kind, "error", derr)
		} else {
			item.Success = true
			item.Message = res.Name
		}
		result.Add(item)
	}

	r.logger.Info("teardown sweep finished",
		"module_id", moduleID, "kind", kind,
		"total", result.Total, "successful", result.Successful, "failed", result.Failed)
	return result, nil
}

// DiagnoseModule runs the consistency check across every resource of the
// module and returns one Diagnosis per record. Verification failures against
// the external system mark the item inconsistent rather than aborting the
// sweep.
func (r *Runner) DiagnoseModule(ctx context.Context, moduleID string) ([]domain.Diagnosis, error) {
	if _, err := r.modules.GetByID(ctx, moduleID); err != nil {
		return nil, err
	}
	resources, err := r.orch.Resources().ListByModule(ctx, moduleID)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Diagnosis, 0, len(resources))
	for i := range resources {
		res := &resources[i]
		if err := r.limiter.Wait(ctx); err != nil {
			return out, err
		}

		d, derr := r.orch.Diagnose(ctx, res.ID)
		if derr != nil {
			out = append(out, domain.Diagnosis{
				ResourceID:  res.ID,
				Kind:        res.Kind,
				Name:        res.Name,
				StoreStatus: res.Status,
				Consistent:  false,
				Findings:    []string{"verification failed: " + derr.Error()},
			})
			continue
		}
		out = append(out, *d)
	}
	return out, nil
}

// preconditions validates a provisioning sweep before any external call is
// made. A violated precondition fails the batch as a whole.
func (r *Runner) preconditions(ctx context.Context, moduleID string, kind domain.ResourceKind) ([]domain.Participant, error) {
	if !kind.Valid() {
		return nil, domain.ErrValidation("unknown resource kind %q", kind)
	}
	mod, err := r.modules.GetByID(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	roster, err := r.roster.ListParticipants(ctx, mod.EventID, domain.RoleParticipant)
	if err != nil {
		return nil, err
	}
	if len(roster) == 0 {
		return nil, domain.ErrValidation("module %s has no participants to provision", moduleID)
	}
	return roster, nil
}
