package domain

import "context"

// ResourceRepository is the system-of-record for provisioned resources.
// Implemented by repository.ResourceRepo over SQLite.
type ResourceRepository interface {
	Create(ctx context.Context, r *Resource) (*Resource, error)
	GetByID(ctx context.Context, id string) (*Resource, error)
	// GetByOwner returns the resource of the given kind for a
	// (module, account) pair, or NotFoundError when absent.
	GetByOwner(ctx context.Context, moduleID, accountID string, kind ResourceKind) (*Resource, error)
	ListByModule(ctx context.Context, moduleID string) ([]Resource, error)
	ListByModuleKind(ctx context.Context, moduleID string, kind ResourceKind) ([]Resource, error)
	// SetStatus updates status, the activity flag, and the lock record in one
	// write. A nil lock clears any stored lock record.
	SetStatus(ctx context.Context, id string, status ResourceStatus, isActive bool, lock *LockRecord) error
	Delete(ctx context.Context, id string) error
}

// AccountRepository provides the participant roster and the audited
// credential store. Implemented by repository.AccountRepo.
type AccountRepository interface {
	Create(ctx context.Context, a *Account, plaintext string) (*Account, error)
	GetByID(ctx context.Context, id string) (*Account, error)
	// ListParticipants returns accounts holding roleName for the event.
	ListParticipants(ctx context.Context, eventID, roleName string) ([]Participant, error)
	LoginExists(ctx context.Context, login string) (bool, error)
	// CredentialForReissue returns the login and recoverable plaintext
	// password for handing to external systems. Every call is audited.
	CredentialForReissue(ctx context.Context, accountID string) (login, password string, err error)
}

// ModuleRepository resolves modules and their owning event.
type ModuleRepository interface {
	GetByID(ctx context.Context, id string) (*Module, error)
	ListActive(ctx context.Context) ([]Module, error)
}

// AuditRepository appends to the audit log.
type AuditRepository interface {
	Insert(ctx context.Context, e *AuditEntry) error
}

// DatabasePrivileges is a capability snapshot for one role on one database.
type DatabasePrivileges struct {
	RoleExists     bool
	DatabaseExists bool
	CanConnect     bool
	CanCreate      bool
}

// DatabaseAdmin is the administrative client for the external database
// engine. All operations are safe to invoke when the target already exists
// or is already absent, so retries converge. Implemented by pgadmin.Client.
type DatabaseAdmin interface {
	CreateRole(ctx context.Context, name, password string) error
	CreateDatabase(ctx context.Context, name, owner string) error
	GrantBaseline(ctx context.Context, dbName, role string) error
	RevokeToReadOnly(ctx context.Context, dbName, role string) error
	RestoreFullAccess(ctx context.Context, dbName, role string) error
	SetDatabaseOwner(ctx context.Context, dbName, owner string) error
	SetRolePassword(ctx context.Context, role, password string) error
	TerminateSessions(ctx context.Context, dbName string) error
	DropDatabase(ctx context.Context, name string) error
	DropRole(ctx context.Context, name string) error
	Privileges(ctx context.Context, role, dbName string) (*DatabasePrivileges, error)
}

// Collaborator permission levels on the Git host.
const (
	RepoPermissionRead  = "read"
	RepoPermissionWrite = "write"
)

// GitHost is the client for the external Git-hosting service. Deletes treat
// an already-absent target as success. Host users are never deleted here:
// teardown keeps them because the same user may collaborate on sandboxes in
// other modules. Implemented by githost.Client.
type GitHost interface {
	CreateUser(ctx context.Context, login, password, fullName string) error
	CreateRepository(ctx context.Context, owner, name string) error
	DeleteRepository(ctx context.Context, owner, name string) error
	AddCollaborator(ctx context.Context, owner, name, login, permission string) error
	SetCollaboratorPermission(ctx context.Context, owner, name, login, permission string) error
	RemoveCollaborator(ctx context.Context, owner, name, login string) error
	SetUserPassword(ctx context.Context, login, password string) error
	RepositoryExists(ctx context.Context, owner, name string) (bool, error)
	CollaboratorCanWrite(ctx context.Context, owner, name, login string) (bool, error)
}
