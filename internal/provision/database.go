package provision

import (
	"context"
	"time"

	"sandboxd/internal/domain"
)

// databaseProvisioner provisions PostgreSQL sandboxes. Each resource gets a
// dedicated login role named after the database, so dropping one sandbox
// never disturbs the participant's resources in other modules.
type databaseProvisioner struct {
	admin     domain.DatabaseAdmin
	adminRole string
	label     string
}

func (p *databaseProvisioner) server() string { return p.label }

func (p *databaseProvisioner) create(ctx context.Context, name string, cred credential) error {
	if err := p.admin.CreateRole(ctx, name, cred.password); err != nil {
		return err
	}
	if err := p.admin.CreateDatabase(ctx, name, name); err != nil {
		return err
	}
	return p.admin.GrantBaseline(ctx, name, name)
}

func (p *databaseProvisioner) teardown(ctx context.Context, name, login string) error {
	if err := p.admin.TerminateSessions(ctx, name); err != nil {
		return err
	}
	if err := p.admin.DropDatabase(ctx, name); err != nil {
		return err
	}
	return p.admin.DropRole(ctx, name)
}

// lock cuts live sessions, strips the role to read-only, and parks database
// ownership on the admin role so the participant cannot ALTER their way back.
func (p *databaseProvisioner) lock(ctx context.Context, name, login string) (string, []string, error) {
	if err := p.admin.TerminateSessions(ctx, name); err != nil {
		return "", nil, err
	}
	if err := p.admin.RevokeToReadOnly(ctx, name, name); err != nil {
		return "", nil, err
	}
	if err := p.admin.SetDatabaseOwner(ctx, name, p.adminRole); err != nil {
		return "", nil, err
	}
	return name, []string{"ALL"}, nil
}

func (p *databaseProvisioner) unlock(ctx context.Context, name string, cred credential, rec *domain.LockRecord) error {
	owner := rec.PriorOwner
	if owner == "" {
		owner = name
	}
	if err := p.admin.SetDatabaseOwner(ctx, name, owner); err != nil {
		return err
	}
	if err := p.admin.RestoreFullAccess(ctx, name, name); err != nil {
		return err
	}
	return p.admin.SetRolePassword(ctx, name, rec.OriginalCredential)
}

func (p *databaseProvisioner) verify(ctx context.Context, name, login string) (bool, bool, error) {
	snap, err := p.admin.Privileges(ctx, name, name)
	if err != nil {
		return false, false, err
	}
	exists := snap.RoleExists && snap.DatabaseExists
	return exists, exists && snap.CanCreate, nil
}

func nowUTC() time.Time { return time.Now().UTC() }
