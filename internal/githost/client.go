// Package githost is the client for the external Git-hosting service
// (Gitea). Participant repositories live under a service-owned account; the
// participant is attached as a collaborator so a lock can drop them to
// read-only without touching the repository itself.
//
// Deletes treat 404 responses as success: the artifact is already absent and
// the operation has converged.
package githost

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"code.gitea.io/sdk/gitea"

	"sandboxd/internal/domain"
)

var _ domain.GitHost = (*Client)(nil)

// Client wraps the Gitea SDK with the idempotency rules the orchestrator
// relies on. The SDK itself has no context plumbing; ctx is accepted for
// interface symmetry and honored between calls, not inside them.
type Client struct {
	api    *gitea.Client
	logger *slog.Logger
}

// New creates a Client against the given Gitea base URL using an admin
// token.
func New(baseURL, token string, logger *slog.Logger) (*Client, error) {
	api, err := gitea.NewClient(baseURL, gitea.SetToken(token))
	if err != nil {
		return nil, fmt.Errorf("create gitea client: %w", err)
	}
	return &Client{api: api, logger: logger}, nil
}

// CreateUser creates a participant user. An already-existing user is a
// no-op.
func (c *Client) CreateUser(ctx context.Context, login, password, fullName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mustChange := false
	_, resp, err := c.api.AdminCreateUser(gitea.CreateUserOption{
		Username:           login,
		FullName:           fullName,
		Email:              login + "@sandbox.invalid",
		Password:           password,
		MustChangePassword: &mustChange,
	})
	if err != nil {
		if status(resp) == http.StatusUnprocessableEntity || status(resp) == http.StatusConflict {
			// User already present from an earlier run.
			return nil
		}
		return wrap("create user", login, err)
	}
	return nil
}

// CreateRepository creates a repository under the service owner. An
// already-existing repository is a no-op.
func (c *Client) CreateRepository(ctx context.Context, owner, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, resp, err := c.api.AdminCreateRepo(owner, gitea.CreateRepoOption{
		Name:     name,
		Private:  true,
		AutoInit: true,
	})
	if err != nil {
		if status(resp) == http.StatusConflict || status(resp) == http.StatusUnprocessableEntity {
			return nil
		}
		return wrap("create repository", owner+"/"+name, err)
	}
	return nil
}

// DeleteRepository removes a repository. 404 is success.
func (c *Client) DeleteRepository(ctx context.Context, owner, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	resp, err := c.api.DeleteRepo(owner, name)
	if err != nil && status(resp) != http.StatusNotFound {
		return wrap("delete repository", owner+"/"+name, err)
	}
	return nil
}

// AddCollaborator attaches a user to a repository with the given permission.
func (c *Client) AddCollaborator(ctx context.Context, owner, name, login, permission string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mode := accessMode(permission)
	_, err := c.api.AddCollaborator(owner, name, login, gitea.AddCollaboratorOption{
		Permission: &mode,
	})
	if err != nil {
		return wrap("add collaborator", login, err)
	}
	return nil
}

// SetCollaboratorPermission changes an existing collaborator's permission.
// Gitea's add endpoint is an upsert, so this reuses it.
func (c *Client) SetCollaboratorPermission(ctx context.Context, owner, name, login, permission string) error {
	return c.AddCollaborator(ctx, owner, name, login, permission)
}

// RemoveCollaborator detaches a user from a repository. 404 is success.
func (c *Client) RemoveCollaborator(ctx context.Context, owner, name, login string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	resp, err := c.api.DeleteCollaborator(owner, name, login)
	if err != nil && status(resp) != http.StatusNotFound {
		return wrap("remove collaborator", login, err)
	}
	return nil
}

// SetUserPassword resets a participant user's password, used when reissuing
// the recoverable credential after an unlock.
func (c *Client) SetUserPassword(ctx context.Context, login, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mustChange := false
	_, err := c.api.AdminEditUser(login, gitea.EditUserOption{
		LoginName:          login,
		Password:           password,
		MustChangePassword: &mustChange,
	})
	if err != nil {
		return wrap("set user password", login, err)
	}
	return nil
}

// RepositoryExists reports whether the repository is present on the host.
func (c *Client) RepositoryExists(ctx context.Context, owner, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, resp, err := c.api.GetRepo(owner, name)
	if err != nil {
		if status(resp) == http.StatusNotFound {
			return false, nil
		}
		return false, wrap("get repository", owner+"/"+name, err)
	}
	return true, nil
}

// CollaboratorCanWrite reports whether the collaborator currently has write
// access, used by the consistency diagnostic.
func (c *Client) CollaboratorCanWrite(ctx context.Context, owner, name, login string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	perm, resp, err := c.api.CollaboratorPermission(owner, name, login)
	if err != nil {
		if status(resp) == http.StatusNotFound {
			return false, nil
		}
		return false, wrap("get collaborator permission", login, err)
	}
	if perm == nil {
		return false, nil
	}
	switch perm.Permission {
	case gitea.AccessModeWrite, gitea.AccessModeAdmin, gitea.AccessModeOwner:
		return true, nil
	default:
		return false, nil
	}
}

func accessMode(permission string) gitea.AccessMode {
	if permission == domain.RepoPermissionWrite {
		return gitea.AccessModeWrite
	}
	return gitea.AccessModeRead
}

func status(resp *gitea.Response) int {
	if resp == nil || resp.Response == nil {
		return 0
	}
	return resp.StatusCode
}

func wrap(op, subject string, err error) error {
	return domain.ErrUnavailable("git host: %s %s: %v", op, subject, err)
}
