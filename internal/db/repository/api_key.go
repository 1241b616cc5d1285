package repository

import (
	"context"
	"database/sql"

	"sandboxd/internal/domain"
)

// APIKeyRepo implements middleware.APIKeyLookup over the api_keys table.
type APIKeyRepo struct {
	db *sql.DB
}

// NewAPIKeyRepo creates a new APIKeyRepo. Lookups only read, so the read
// pool is fine here.
func NewAPIKeyRepo(db *sql.DB) *APIKeyRepo {
	return &APIKeyRepo{db: db}
}

// LookupActorByKeyHash returns the actor bound to the given API key hash.
func (r *APIKeyRepo) LookupActorByKeyHash(ctx context.Context, keyHash string) (domain.Actor, error) {
	var (
		a       domain.Actor
		isAdmin int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT actor_name, is_admin FROM api_keys WHERE key_hash = ?`, keyHash).
		Scan(&a.Name, &isAdmin)
	if err != nil {
		return domain.Actor{}, mapDBError(err)
	}
	a.IsAdmin = isAdmin != 0
	return a, nil
}

// CreateKey registers an API key hash for an actor. Used by seeding.
func (r *APIKeyRepo) CreateKey(ctx context.Context, keyHash, actorName string, isAdmin bool) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, key_hash, actor_name, is_admin, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		domain.NewID(), keyHash, actorName, boolToInt(isAdmin), nowText())
	return mapDBError(err)
}
