package provision

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandboxd/internal/db"
	"sandboxd/internal/db/crypto"
	"sandboxd/internal/db/repository"
	"sandboxd/internal/domain"
	"sandboxd/internal/testutil"
)

const testSealingKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

type testEnv struct {
	orch     *Orchestrator
	runner   *Runner
	engine   *testutil.FakeEngine
	host     *testutil.FakeHost
	registry *repository.RegistryRepo
	accounts *repository.AccountRepo

	eventID  string
	moduleID string
}

// setupEnv builds a full provisioning stack over a real SQLite store with
// fake external systems and one event/module pair seeded.
func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	writeDB, _ := db.OpenTestSQLite(t)
	sealer, err := crypto.NewSealer(testSealingKey)
	require.NoError(t, err)

	audit := repository.NewAuditRepo(writeDB)
	accounts := repository.NewAccountRepo(writeDB, sealer, audit)
	resources := repository.NewResourceRepo(writeDB)
	registry := repository.NewRegistryRepo(writeDB)

	require.NoError(t, registry.EnsureRole(ctx, domain.RoleParticipant))

	event, err := registry.CreateEvent(ctx, "spring-olympiad")
	require.NoError(t, err)
	module, err := registry.CreateModule(ctx, event.ID, "sql-basics")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := testutil.NewFakeEngine()
	host := testutil.NewFakeHost()

	orch := NewOrchestrator(resources, accounts, audit, engine, "sandbox_admin", host, "sandbox-svc", "pg-1", "git-1", logger)
	runner := NewRunner(orch, registry, accounts, time.Millisecond, logger)

	return &testEnv{
		orch:     orch,
		runner:   runner,
		engine:   engine,
		host:     host,
		registry: registry,
		accounts: accounts,
		eventID:  event.ID,
		moduleID: module.ID,
	}
}

// seedParticipants creates n participant accounts with alphabetical surnames
// so the roster order is predictable.
func (e *testEnv) seedParticipants(t *testing.T, n int) []domain.Participant {
	t.Helper()
	ctx := context.Background()

	surnames := []string{"anders", "brown", "clark", "davis", "evans", "foster", "green", "hill"}
	require.LessOrEqual(t, n, len(surnames))

	for i := 0; i < n; i++ {
		person, err := e.registry.CreatePerson(ctx, surnames[i], "pat", surnames[i]+"@example.com")
		require.NoError(t, err)
		_, err = e.accounts.Create(ctx, &domain.Account{
			PersonID: person.ID,
			EventID:  &e.eventID,
			RoleName: domain.RoleParticipant,
			Login:    surnames[i] + "p1",
		}, fmt.Sprintf("Pw-%s-9!", surnames[i]))
		require.NoError(t, err)
	}

	roster, err := e.accounts.ListParticipants(ctx, e.eventID, domain.RoleParticipant)
	require.NoError(t, err)
	require.Len(t, roster, n)
	return roster
}

func TestProvisionModule_CreatesActiveResources(t *testing.T) {
	env := setupEnv(t)
	env.seedParticipants(t, 4)
	ctx := context.Background()

	result, err := env.runner.ProvisionModule(ctx, env.moduleID, domain.KindDatabase)
	require.NoError(t, err)

	assert.Equal(t, 4, result.Total)
	assert.Equal(t, 4, result.Successful)
	assert.Equal(t, 0, result.Failed)

	records, err := env.orch.Resources().ListByModuleKind(ctx, env.moduleID, domain.KindDatabase)
	require.NoError(t, err)
	require.Len(t, records, 4)
	for _, res := range records {
		assert.Equal(t, domain.StatusActive, res.Status)
		assert.True(t, res.IsActive)
		assert.Contains(t, env.engine.Databases, res.Name)
		assert.Contains(t, env.engine.Roles, res.Name)
	}
}

func TestProvisionModule_RerunRecreates(t *testing.T) {
	env := setupEnv(t)
	env.seedParticipants(t, 3)
	ctx := context.Background()

	_, err := env.runner.ProvisionModule(ctx, env.moduleID, domain.KindDatabase)
	require.NoError(t, err)

	result, err := env.runner.ProvisionModule(ctx, env.moduleID, domain.KindDatabase)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Successful)

	// The rerun tore each sandbox down before rebuilding it.
	assert.Equal(t, 3, env.engine.Count("DropDatabase"))
	assert.Equal(t, 6, env.engine.Count("CreateDatabase"))

	records, err := env.orch.Resources().ListByModuleKind(ctx, env.moduleID, domain.KindDatabase)
	require.NoError(t, err)
	assert.Len(t, records, 3)
}

func TestProvisionModule_ContinuesPastFailedItem(t *testing.T) {
	env := setupEnv(t)
	env.seedParticipants(t, 5)
	env.engine.FailCreateRoleAt = 3
	ctx := context.Background()

	result, err := env.runner.ProvisionModule(ctx, env.moduleID, domain.KindDatabase)
	require.NoError(t, err)

	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 4, result.Successful)
	assert.Equal(t, 1, result.Failed)

	require.Len(t, result.Details, 5)
	assert.False(t, result.Details[2].Success)
	assert.Contains(t, result.Details[2].Message, "engine down")
	// Items after the failure still ran.
	assert.True(t, result.Details[3].Success)
	assert.True(t, result.Details[4].Success)

	records, err := env.orch.Resources().ListByModuleKind(ctx, env.moduleID, domain.KindDatabase)
	require.NoError(t, err)
	assert.Len(t, records, 4)
}

func TestProvisionModule_CancelStopsNewItems(t *testing.T) {
	env := setupEnv(t)
	env.seedParticipants(t, 5)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel while the second participant is mid-provision.
	env.engine.OnCreateRole = func(call int) {
		if call == 2 {
			cancel()
		}
	}

	result, err := env.runner.ProvisionModule(ctx, env.moduleID, domain.KindDatabase)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)

	// No new items started after the cancellation; the sweep reports what ran.
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, 2, env.engine.Count("CreateRole"))

	// Committed records survive and match the reported successes.
	records, err := env.orch.Resources().ListByModuleKind(context.Background(), env.moduleID, domain.KindDatabase)
	require.NoError(t, err)
	assert.Len(t, records, result.Successful)
}

func TestProvisionModule_Preconditions(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	_, err := env.runner.ProvisionModule(ctx, env.moduleID, domain.ResourceKind("bucket"))
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)

	// Empty roster fails the batch before any external call.
	_, err = env.runner.ProvisionModule(ctx, env.moduleID, domain.KindDatabase)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 0, env.engine.Count("CreateRole"))

	_, err = env.runner.ProvisionModule(ctx, domain.NewID(), domain.KindDatabase)
	var nferr *domain.NotFoundError
	require.ErrorAs(t, err, &nferr)
}

func TestCreate_ConflictWhenAlreadyProvisioned(t *testing.T) {
	env := setupEnv(t)
	roster := env.seedParticipants(t, 1)
	ctx := context.Background()

	_, err := env.orch.Create(ctx, env.moduleID, roster[0], domain.KindDatabase)
	require.NoError(t, err)

	_, err = env.orch.Create(ctx, env.moduleID, roster[0], domain.KindDatabase)
	var cerr *domain.ConflictError
	require.ErrorAs(t, err, &cerr)
}

func TestDelete_Idempotent(t *testing.T) {
	env := setupEnv(t)
	roster := env.seedParticipants(t, 1)
	ctx := context.Background()

	_, err := env.orch.Create(ctx, env.moduleID, roster[0], domain.KindDatabase)
	require.NoError(t, err)

	require.NoError(t, env.orch.Delete(ctx, env.moduleID, roster[0].AccountID, domain.KindDatabase))
	drops := env.engine.Count("DropDatabase")

	// Second delete succeeds without touching the external system.
	require.NoError(t, env.orch.Delete(ctx, env.moduleID, roster[0].AccountID, domain.KindDatabase))
	assert.Equal(t, drops, env.engine.Count("DropDatabase"))

	_, err = env.orch.Resources().GetByOwner(ctx, env.moduleID, roster[0].AccountID, domain.KindDatabase)
	var nferr *domain.NotFoundError
	require.ErrorAs(t, err, &nferr)
}

func TestLockUnlock_RestoresOriginalCredential(t *testing.T) {
	env := setupEnv(t)
	roster := env.seedParticipants(t, 1)
	ctx := domain.WithActor(context.Background(), domain.Actor{Name: "organizer-1", IsAdmin: true})

	res, err := env.orch.Create(ctx, env.moduleID, roster[0], domain.KindDatabase)
	require.NoError(t, err)
	originalPassword := env.engine.Roles[res.Name]
	require.NotEmpty(t, originalPassword)

	locked, err := env.orch.Lock(ctx, res.ID, "suspected sharing")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLocked, locked.Status)
	assert.False(t, locked.IsActive)
	require.NotNil(t, locked.Lock)
	assert.Equal(t, originalPassword, locked.Lock.OriginalCredential)
	assert.Equal(t, "organizer-1", locked.Lock.LockedBy)
	assert.Equal(t, "suspected sharing", locked.Lock.Reason)
	assert.True(t, env.engine.ReadOnly[res.Name])
	assert.Equal(t, "sandbox_admin", env.engine.Databases[res.Name])

	// Locking an already-locked resource is a conflict.
	_, err = env.orch.Lock(ctx, res.ID, "again")
	var cerr *domain.ConflictError
	require.ErrorAs(t, err, &cerr)

	unlocked, err := env.orch.Unlock(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, unlocked.Status)
	assert.True(t, unlocked.IsActive)
	assert.Nil(t, unlocked.Lock)
	assert.False(t, env.engine.ReadOnly[res.Name])
	assert.Equal(t, res.Name, env.engine.Databases[res.Name])
	// The credential is restored byte-for-byte.
	assert.Equal(t, originalPassword, env.engine.Roles[res.Name])

	// Unlocking an active resource is a conflict.
	_, err = env.orch.Unlock(ctx, res.ID)
	require.ErrorAs(t, err, &cerr)
}

func TestRepositoryKind_Lifecycle(t *testing.T) {
	env := setupEnv(t)
	roster := env.seedParticipants(t, 1)
	login := roster[0].Login
	ctx := context.Background()

	res, err := env.orch.Create(ctx, env.moduleID, roster[0], domain.KindRepository)
	require.NoError(t, err)

	assert.True(t, env.host.Repos[testutil.RepoKey("sandbox-svc", res.Name)])
	assert.Equal(t, domain.RepoPermissionWrite, env.host.Collabs[testutil.CollabKey("sandbox-svc", res.Name, login)])
	originalPassword := env.host.Users[login]
	require.NotEmpty(t, originalPassword)

	_, err = env.orch.Lock(ctx, res.ID, "deadline passed")
	require.NoError(t, err)
	assert.Equal(t, domain.RepoPermissionRead, env.host.Collabs[testutil.CollabKey("sandbox-svc", res.Name, login)])

	_, err = env.orch.Unlock(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RepoPermissionWrite, env.host.Collabs[testutil.CollabKey("sandbox-svc", res.Name, login)])
	assert.Equal(t, originalPassword, env.host.Users[login])

	require.NoError(t, env.orch.DeleteByID(ctx, res.ID))
	assert.False(t, env.host.Repos[testutil.RepoKey("sandbox-svc", res.Name)])
	// The host user survives teardown; it may serve other modules.
	assert.Contains(t, env.host.Users, login)
}

func TestTeardownModule_RemovesAllRecords(t *testing.T) {
	env := setupEnv(t)
	env.seedParticipants(t, 3)
	ctx := context.Background()

	_, err := env.runner.ProvisionModule(ctx, env.moduleID, domain.KindRepository)
	require.NoError(t, err)

	result, err := env.runner.TeardownModule(ctx, env.moduleID, domain.KindRepository)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 3, result.Successful)

	records, err := env.orch.Resources().ListByModuleKind(ctx, env.moduleID, domain.KindRepository)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Empty(t, env.host.Repos)
}

func TestDiagnose_ReportsDrift(t *testing.T) {
	env := setupEnv(t)
	roster := env.seedParticipants(t, 1)
	ctx := context.Background()

	res, err := env.orch.Create(ctx, env.moduleID, roster[0], domain.KindDatabase)
	require.NoError(t, err)

	d, err := env.orch.Diagnose(ctx, res.ID)
	require.NoError(t, err)
	assert.True(t, d.Consistent)
	assert.True(t, d.ExternalExists)
	assert.True(t, d.ExternalWrite)

	// Someone drops the database behind the orchestrator's back.
	require.NoError(t, env.engine.DropDatabase(ctx, res.Name))

	d, err = env.orch.Diagnose(ctx, res.ID)
	require.NoError(t, err)
	assert.False(t, d.Consistent)
	require.NotEmpty(t, d.Findings)
	assert.True(t, strings.Contains(d.Findings[0], "missing"))
}

func TestDiagnoseModule_FlagsLockedButWritable(t *testing.T) {
	env := setupEnv(t)
	roster := env.seedParticipants(t, 1)
	ctx := context.Background()

	res, err := env.orch.Create(ctx, env.moduleID, roster[0], domain.KindDatabase)
	require.NoError(t, err)
	_, err = env.orch.Lock(ctx, res.ID, "review")
	require.NoError(t, err)

	// Drift: write access restored externally while the record stays locked.
	require.NoError(t, env.engine.RestoreFullAccess(ctx, res.Name, res.Name))

	diagnoses, err := env.runner.DiagnoseModule(ctx, env.moduleID)
	require.NoError(t, err)
	require.Len(t, diagnoses, 1)
	assert.False(t, diagnoses[0].Consistent)
	assert.Equal(t, domain.StatusLocked, diagnoses[0].StoreStatus)
}
