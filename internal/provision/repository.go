package provision

import (
	"context"

	"sandboxd/internal/domain"
)

// repositoryProvisioner provisions Git repositories. Repositories live under
// a service-owned account; the participant is attached as a collaborator, so
// a lock only downgrades their permission and never touches the repository.
type repositoryProvisioner struct {
	host  domain.GitHost
	owner string
	label string
}

func (p *repositoryProvisioner) server() string { return p.label }

func (p *repositoryProvisioner) create(ctx context.Context, name string, cred credential) error {
	if err := p.host.CreateUser(ctx, cred.login, cred.password, cred.displayName); err != nil {
		return err
	}
	if err := p.host.CreateRepository(ctx, p.owner, name); err != nil {
		return err
	}
	return p.host.AddCollaborator(ctx, p.owner, name, cred.login, domain.RepoPermissionWrite)
}

// teardown removes the repository but keeps the participant's host user: the
// same user may be a collaborator on sandboxes in other modules.
func (p *repositoryProvisioner) teardown(ctx context.Context, name, login string) error {
	if err := p.host.RemoveCollaborator(ctx, p.owner, name, login); err != nil {
		return err
	}
	return p.host.DeleteRepository(ctx, p.owner, name)
}

func (p *repositoryProvisioner) lock(ctx context.Context, name, login string) (string, []string, error) {
	if err := p.host.SetCollaboratorPermission(ctx, p.owner, name, login, domain.RepoPermissionRead); err != nil {
		return "", nil, err
	}
	return p.owner, []string{domain.RepoPermissionWrite}, nil
}

func (p *repositoryProvisioner) unlock(ctx context.Context, name string, cred credential, rec *domain.LockRecord) error {
	permission := domain.RepoPermissionWrite
	if len(rec.PriorPrivileges) > 0 {
		permission = rec.PriorPrivileges[0]
	}
	if err := p.host.SetCollaboratorPermission(ctx, p.owner, name, cred.login, permission); err != nil {
		return err
	}
	return p.host.SetUserPassword(ctx, cred.login, rec.OriginalCredential)
}

func (p *repositoryProvisioner) verify(ctx context.Context, name, login string) (bool, bool, error) {
	exists, err := p.host.RepositoryExists(ctx, p.owner, name)
	if err != nil || !exists {
		return false, false, err
	}
	canWrite, err := p.host.CollaboratorCanWrite(ctx, p.owner, name, login)
	if err != nil {
		return true, false, err
	}
	return true, canWrite, nil
}
