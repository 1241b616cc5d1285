package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandboxd/internal/db"
	"sandboxd/internal/db/crypto"
	"sandboxd/internal/domain"
)

const testSealingKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

type repoFixture struct {
	db        *sql.DB
	sealer    *crypto.Sealer
	resources *ResourceRepo
	accounts  *AccountRepo
	registry  *RegistryRepo
	audit     *AuditRepo
	moduleID  string
	accountID string
}

// newRepoFixture builds a migrated SQLite store with one event, one module,
// and one participant account.
func newRepoFixture(t *testing.T) *repoFixture {
	t.Helper()
	ctx := context.Background()

	writeDB, _ := db.OpenTestSQLite(t)
	sealer, err := crypto.NewSealer(testSealingKey)
	require.NoError(t, err)

	audit := NewAuditRepo(writeDB)
	accounts := NewAccountRepo(writeDB, sealer, audit)
	registry := NewRegistryRepo(writeDB)
	resources := NewResourceRepo(writeDB)

	require.NoError(t, registry.EnsureRole(ctx, domain.RoleParticipant))
	event, err := registry.CreateEvent(ctx, "autumn-olympiad")
	require.NoError(t, err)
	module, err := registry.CreateModule(ctx, event.ID, "sql-basics")
	require.NoError(t, err)
	person, err := registry.CreatePerson(ctx, "Anders", "Kim", "")
	require.NoError(t, err)

	account, err := accounts.Create(ctx, &domain.Account{
		PersonID:     person.ID,
		EventID:      &event.ID,
		RoleName:     domain.RoleParticipant,
		Login:        "andersp1",
		PasswordHash: "$2a$10$fakehashfortests",
	}, "Pw-anders-9!")
	require.NoError(t, err)

	return &repoFixture{
		db:        writeDB,
		sealer:    sealer,
		resources: resources,
		accounts:  accounts,
		registry:  registry,
		audit:     audit,
		moduleID:  module.ID,
		accountID: account.ID,
	}
}

func (f *repoFixture) newResource() *domain.Resource {
	return &domain.Resource{
		ModuleID:  f.moduleID,
		AccountID: f.accountID,
		Kind:      domain.KindDatabase,
		Name:      "andersp1",
		Server:    "pg-1",
		Status:    domain.StatusActive,
		IsActive:  true,
	}
}

func TestResourceRepo_CreateAndGet(t *testing.T) {
	f := newRepoFixture(t)
	ctx := context.Background()

	created, err := f.resources.Create(ctx, f.newResource())
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, domain.StatusActive, created.Status)
	assert.True(t, created.IsActive)
	assert.Nil(t, created.Lock)
	assert.WithinDuration(t, time.Now().UTC(), created.CreatedAt, 5*time.Second)

	got, err := f.resources.GetByOwner(ctx, f.moduleID, f.accountID, domain.KindDatabase)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "pg-1", got.Server)
}

func TestResourceRepo_GetByOwner_NotFound(t *testing.T) {
	f := newRepoFixture(t)

	_, err := f.resources.GetByOwner(context.Background(), f.moduleID, f.accountID, domain.KindRepository)
	require.Error(t, err)

	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestResourceRepo_UniqueConstraint(t *testing.T) {
	f := newRepoFixture(t)
	ctx := context.Background()

	_, err := f.resources.Create(ctx, f.newResource())
	require.NoError(t, err)

	_, err = f.resources.Create(ctx, f.newResource())
	require.Error(t, err)

	var conflict *domain.ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestResourceRepo_SetStatus_LockRoundTrip(t *testing.T) {
	f := newRepoFixture(t)
	ctx := context.Background()

	created, err := f.resources.Create(ctx, f.newResource())
	require.NoError(t, err)

	lockedAt := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	lock := &domain.LockRecord{
		Version:            domain.LockRecordVersion,
		OriginalCredential: "Pw-anders-9!",
		PriorOwner:         "andersp1",
		PriorPrivileges:    []string{"ALL"},
		LockedAt:           lockedAt,
		LockedBy:           "organizer-1",
		Reason:             "exam over",
	}
	require.NoError(t, f.resources.SetStatus(ctx, created.ID, domain.StatusLocked, false, lock))

	got, err := f.resources.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLocked, got.Status)
	assert.False(t, got.IsActive)
	require.NotNil(t, got.Lock)
	assert.Equal(t, "Pw-anders-9!", got.Lock.OriginalCredential)
	assert.Equal(t, []string{"ALL"}, got.Lock.PriorPrivileges)
	assert.True(t, got.Lock.LockedAt.Equal(lockedAt))
	assert.Equal(t, "organizer-1", got.Lock.LockedBy)

	// Unlock clears the stored record whole.
	require.NoError(t, f.resources.SetStatus(ctx, created.ID, domain.StatusActive, true, nil))
	got, err = f.resources.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, got.Status)
	assert.Nil(t, got.Lock)
}

func TestResourceRepo_SetStatus_NotFound(t *testing.T) {
	f := newRepoFixture(t)

	err := f.resources.SetStatus(context.Background(), "missing", domain.StatusLocked, false, nil)
	require.Error(t, err)

	var notFound *domain.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestResourceRepo_Delete_Idempotent(t *testing.T) {
	f := newRepoFixture(t)
	ctx := context.Background()

	created, err := f.resources.Create(ctx, f.newResource())
	require.NoError(t, err)

	require.NoError(t, f.resources.Delete(ctx, created.ID))
	require.NoError(t, f.resources.Delete(ctx, created.ID))

	_, err = f.resources.GetByID(ctx, created.ID)
	assert.Error(t, err)
}

func TestResourceRepo_ListByModuleKind(t *testing.T) {
	f := newRepoFixture(t)
	ctx := context.Background()

	_, err := f.resources.Create(ctx, f.newResource())
	require.NoError(t, err)

	repo := f.newResource()
	repo.Kind = domain.KindRepository
	_, err = f.resources.Create(ctx, repo)
	require.NoError(t, err)

	all, err := f.resources.ListByModule(ctx, f.moduleID)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	dbs, err := f.resources.ListByModuleKind(ctx, f.moduleID, domain.KindDatabase)
	require.NoError(t, err)
	require.Len(t, dbs, 1)
	assert.Equal(t, domain.KindDatabase, dbs[0].Kind)
}
