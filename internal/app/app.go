// Package app provides application-level wiring and dependency injection for
// the provisioning control plane.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"sandboxd/internal/config"
	"sandboxd/internal/credentials"
	"sandboxd/internal/db/crypto"
	"sandboxd/internal/db/repository"
	"sandboxd/internal/domain"
	"sandboxd/internal/githost"
	"sandboxd/internal/pgadmin"
	"sandboxd/internal/provision"
)

// Deps holds the external dependencies that main() must provide: database
// handles, config, and the logger.
type Deps struct {
	Cfg     *config.Config
	WriteDB *sql.DB
	ReadDB  *sql.DB
	Logger  *slog.Logger
}

// App holds the fully-wired application: the orchestrator and runner the API
// handler needs, the repositories needed for router setup, and the optional
// consistency-sweep scheduler.
type App struct {
	Orchestrator *provision.Orchestrator
	Runner       *provision.Runner
	Scheduler    *provision.Scheduler // nil when SWEEP_CRON is unset
	APIKeyRepo   *repository.APIKeyRepo
	Registry     *repository.RegistryRepo
	Accounts     *repository.AccountRepo

	pgClient *pgadmin.Client
}

// New wires repositories, external clients, and the orchestrator from the
// provided deps. External clients that are not configured are replaced with
// stubs that fail with UnavailableError, so the rest of the API stays usable.
func New(ctx context.Context, deps Deps) (*App, error) {
	cfg := deps.Cfg

	sealer, err := crypto.NewSealer(cfg.SealingKey)
	if err != nil {
		return nil, fmt.Errorf("sealing key: %w", err)
	}

	// === Repositories ===
	auditRepo := repository.NewAuditRepo(deps.WriteDB)
	accountRepo := repository.NewAccountRepo(deps.WriteDB, sealer, auditRepo)
	resourceRepo := repository.NewResourceRepo(deps.WriteDB)
	registryRepo := repository.NewRegistryRepo(deps.WriteDB)
	apiKeyRepo := repository.NewAPIKeyRepo(deps.ReadDB)

	// === External clients ===
	var dbAdmin domain.DatabaseAdmin
	var pgClient *pgadmin.Client
	if cfg.PGAdminDSN != "" {
		pgClient, err = pgadmin.New(ctx, cfg.PGAdminDSN, cfg.PGAdminRole, deps.Logger.With("component", "pgadmin"))
		if err != nil {
			return nil, fmt.Errorf("database engine: %w", err)
		}
		dbAdmin = pgClient
	} else {
		dbAdmin = unavailableEngine{}
	}

	var gitHost domain.GitHost
	if cfg.GitBaseURL != "" && cfg.GitAdminToken != "" {
		gitHost, err = githost.New(cfg.GitBaseURL, cfg.GitAdminToken, deps.Logger.With("component", "githost"))
		if err != nil {
			return nil, fmt.Errorf("git host: %w", err)
		}
	} else {
		gitHost = unavailableHost{}
	}

	// === Orchestrator + runner ===
	orch := provision.NewOrchestrator(
		resourceRepo, accountRepo, auditRepo,
		dbAdmin, cfg.PGAdminRole,
		gitHost, cfg.GitRepoOwner,
		cfg.EngineLabel, cfg.GitLabel,
		deps.Logger.With("component", "orchestrator"),
	)
	runner := provision.NewRunner(orch, registryRepo, accountRepo, cfg.ProvisionPace,
		deps.Logger.With("component", "runner"))

	var scheduler *provision.Scheduler
	if cfg.SweepCron != "" {
		scheduler = provision.NewScheduler(runner, registryRepo, cfg.SweepCron,
			deps.Logger.With("component", "sweep"))
	}

	// === Seed demo data ===
	if cfg.SeedDemo {
		gen := credentials.NewGenerator(accountRepo)
		if err := seedDemo(ctx, registryRepo, accountRepo, apiKeyRepo, gen, deps.Logger); err != nil {
			deps.Logger.Warn("seed demo data failed", "error", err)
		}
	}

	return &App{
		Orchestrator: orch,
		Runner:       runner,
		Scheduler:    scheduler,
		APIKeyRepo:   apiKeyRepo,
		Registry:     registryRepo,
		Accounts:     accountRepo,
		pgClient:     pgClient,
	}, nil
}

// Close releases the external client pools.
func (a *App) Close() {
	if a.pgClient != nil {
		a.pgClient.Close()
	}
}
