package app

import (
	"context"

	"sandboxd/internal/domain"
)

// unavailableEngine stands in when PG_ADMIN_DSN is not configured. Every
// operation fails with UnavailableError so sweeps report per-item failures
// instead of crashing the process.
type unavailableEngine struct{}

func (unavailableEngine) err() error {
	return domain.ErrUnavailable("database engine is not configured (set PG_ADMIN_DSN)")
}

func (e unavailableEngine) CreateRole(context.Context, string, string) error   { return e.err() }
func (e unavailableEngine) CreateDatabase(context.Context, string, string) error {
	return e.err()
}
func (e unavailableEngine) GrantBaseline(context.Context, string, string) error    { return e.err() }
func (e unavailableEngine) RevokeToReadOnly(context.Context, string, string) error { return e.err() }
func (e unavailableEngine) RestoreFullAccess(context.Context, string, string) error {
	return e.err()
}
func (e unavailableEngine) SetDatabaseOwner(context.Context, string, string) error { return e.err() }
func (e unavailableEngine) SetRolePassword(context.Context, string, string) error  { return e.err() }
func (e unavailableEngine) TerminateSessions(context.Context, string) error        { return e.err() }
func (e unavailableEngine) DropDatabase(context.Context, string) error             { return e.err() }
func (e unavailableEngine) DropRole(context.Context, string) error                 { return e.err() }
func (e unavailableEngine) Privileges(context.Context, string, string) (*domain.DatabasePrivileges, error) {
	return nil, e.err()
}

// unavailableHost stands in when GIT_BASE_URL/GIT_ADMIN_TOKEN are not
// configured.
type unavailableHost struct{}

func (unavailableHost) err() error {
	return domain.ErrUnavailable("git host is not configured (set GIT_BASE_URL and GIT_ADMIN_TOKEN)")
}

func (h unavailableHost) CreateUser(context.Context, string, string, string) error { return h.err() }
func (h unavailableHost) CreateRepository(context.Context, string, string) error   { return h.err() }
func (h unavailableHost) DeleteRepository(context.Context, string, string) error   { return h.err() }
func (h unavailableHost) AddCollaborator(context.Context, string, string, string, string) error {
	return h.err()
}
func (h unavailableHost) SetCollaboratorPermission(context.Context, string, string, string, string) error {
	return h.err()
}
func (h unavailableHost) RemoveCollaborator(context.Context, string, string, string) error {
	return h.err()
}
func (h unavailableHost) SetUserPassword(context.Context, string, string) error { return h.err() }
func (h unavailableHost) RepositoryExists(context.Context, string, string) (bool, error) {
	return false, h.err()
}
func (h unavailableHost) CollaboratorCanWrite(context.Context, string, string, string) (bool, error) {
	return false, h.err()
}
