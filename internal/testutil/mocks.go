// Package testutil provides shared in-memory fakes of the external-system
// interfaces for use in tests across the codebase.
package testutil

import (
	"context"
	"sync"

	"sandboxd/internal/domain"
)

// FakeEngine is an in-memory stand-in for the PostgreSQL admin client. It
// tracks roles, databases, and read-only state, counts calls per operation,
// and can be told to fail the Nth CreateRole call.
type FakeEngine struct {
	mu        sync.Mutex
	Roles     map[string]string // role -> password
	Databases map[string]string // database -> owner
	ReadOnly  map[string]bool

	calls            map[string]int
	FailCreateRoleAt int // 1-based call index to fail, 0 = never

	// OnCreateRole, when set, runs after each successful CreateRole with its
	// 1-based call index. Lets tests cancel a sweep mid-flight.
	OnCreateRole func(call int)
}

var _ domain.DatabaseAdmin = (*FakeEngine)(nil)

// NewFakeEngine creates an empty FakeEngine.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{
		Roles:     make(map[string]string),
		Databases: make(map[string]string),
		ReadOnly:  make(map[string]bool),
		calls:     make(map[string]int),
	}
}

// Count returns how many times the named operation ran.
func (f *FakeEngine) Count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *FakeEngine) CreateRole(ctx context.Context, name, password string) error {
	f.mu.Lock()
	f.calls["CreateRole"]++
	call := f.calls["CreateRole"]
	if f.FailCreateRoleAt > 0 && call == f.FailCreateRoleAt {
		f.mu.Unlock()
		return domain.ErrUnavailable("engine down")
	}
	f.Roles[name] = password
	hook := f.OnCreateRole
	f.mu.Unlock()
	if hook != nil {
		hook(call)
	}
	return nil
}

func (f *FakeEngine) CreateDatabase(ctx context.Context, name, owner string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["CreateDatabase"]++
	f.Databases[name] = owner
	return nil
}

func (f *FakeEngine) GrantBaseline(ctx context.Context, dbName, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["GrantBaseline"]++
	f.ReadOnly[dbName] = false
	return nil
}

func (f *FakeEngine) RevokeToReadOnly(ctx context.Context, dbName, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["RevokeToReadOnly"]++
	f.ReadOnly[dbName] = true
	return nil
}

func (f *FakeEngine) RestoreFullAccess(ctx context.Context, dbName, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["RestoreFullAccess"]++
	f.ReadOnly[dbName] = false
	return nil
}

func (f *FakeEngine) SetDatabaseOwner(ctx context.Context, dbName, owner string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["SetDatabaseOwner"]++
	f.Databases[dbName] = owner
	return nil
}

func (f *FakeEngine) SetRolePassword(ctx context.Context, role, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["SetRolePassword"]++
	f.Roles[role] = password
	return nil
}

func (f *FakeEngine) TerminateSessions(ctx context.Context, dbName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["TerminateSessions"]++
	return nil
}

func (f *FakeEngine) DropDatabase(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["DropDatabase"]++
	delete(f.Databases, name)
	delete(f.ReadOnly, name)
	return nil
}

func (f *FakeEngine) DropRole(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["DropRole"]++
	delete(f.Roles, name)
	return nil
}

func (f *FakeEngine) Privileges(ctx context.Context, role, dbName string) (*domain.DatabasePrivileges, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Privileges"]++
	_, roleOK := f.Roles[role]
	_, dbOK := f.Databases[dbName]
	return &domain.DatabasePrivileges{
		RoleExists:     roleOK,
		DatabaseExists: dbOK,
		CanConnect:     roleOK && dbOK,
		CanCreate:      roleOK && dbOK && !f.ReadOnly[dbName],
	}, nil
}

// FakeHost is an in-memory stand-in for the Git host.
type FakeHost struct {
	mu      sync.Mutex
	Users   map[string]string // login -> password
	Repos   map[string]bool   // owner/name
	Collabs map[string]string // owner/name/login -> permission

	calls map[string]int
}

var _ domain.GitHost = (*FakeHost)(nil)

// NewFakeHost creates an empty FakeHost.
func NewFakeHost() *FakeHost {
	return &FakeHost{
		Users:   make(map[string]string),
		Repos:   make(map[string]bool),
		Collabs: make(map[string]string),
		calls:   make(map[string]int),
	}
}

// Count returns how many times the named operation ran.
func (f *FakeHost) Count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// RepoKey builds the map key used by Repos.
func RepoKey(owner, name string) string { return owner + "/" + name }

// CollabKey builds the map key used by Collabs.
func CollabKey(owner, name, login string) string { return owner + "/" + name + "/" + login }

func (f *FakeHost) CreateUser(ctx context.Context, login, password, fullName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["CreateUser"]++
	if _, ok := f.Users[login]; !ok {
		f.Users[login] = password
	}
	return nil
}

func (f *FakeHost) CreateRepository(ctx context.Context, owner, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["CreateRepository"]++
	f.Repos[RepoKey(owner, name)] = true
	return nil
}

func (f *FakeHost) DeleteRepository(ctx context.Context, owner, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["DeleteRepository"]++
	delete(f.Repos, RepoKey(owner, name))
	return nil
}

func (f *FakeHost) AddCollaborator(ctx context.Context, owner, name, login, permission string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["AddCollaborator"]++
	f.Collabs[CollabKey(owner, name, login)] = permission
	return nil
}

func (f *FakeHost) SetCollaboratorPermission(ctx context.Context, owner, name, login, permission string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["SetCollaboratorPermission"]++
	f.Collabs[CollabKey(owner, name, login)] = permission
	return nil
}

func (f *FakeHost) RemoveCollaborator(ctx context.Context, owner, name, login string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["RemoveCollaborator"]++
	delete(f.Collabs, CollabKey(owner, name, login))
	return nil
}

func (f *FakeHost) SetUserPassword(ctx context.Context, login, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["SetUserPassword"]++
	f.Users[login] = password
	return nil
}

func (f *FakeHost) RepositoryExists(ctx context.Context, owner, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["RepositoryExists"]++
	return f.Repos[RepoKey(owner, name)], nil
}

func (f *FakeHost) CollaboratorCanWrite(ctx context.Context, owner, name, login string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["CollaboratorCanWrite"]++
	return f.Collabs[CollabKey(owner, name, login)] == domain.RepoPermissionWrite, nil
}
