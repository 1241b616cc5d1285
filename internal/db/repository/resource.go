package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"sandboxd/internal/domain"
)

var _ domain.ResourceRepository = (*ResourceRepo)(nil)

// ResourceRepo is the system-of-record for provisioned resources.
type ResourceRepo struct {
	db *sql.DB
}

// NewResourceRepo creates a new ResourceRepo on the write pool.
func NewResourceRepo(db *sql.DB) *ResourceRepo {
	return &ResourceRepo{db: db}
}

const resourceColumns = `id, module_id, account_id, kind, name, server, status, is_active, lock_info, created_at, updated_at`

// Create inserts a new resource record. The UNIQUE(module_id, account_id,
// kind) constraint surfaces as a ConflictError.
func (r *ResourceRepo) Create(ctx context.Context, res *domain.Resource) (*domain.Resource, error) {
	if res.ID == "" {
		res.ID = domain.NewID()
	}
	lockInfo, err := marshalLock(res.Lock)
	if err != nil {
		return nil, err
	}
	now := nowText()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO resources (`+resourceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.ModuleID, res.AccountID, string(res.Kind), res.Name, res.Server,
		string(res.Status), boolToInt(res.IsActive), lockInfo, now, now,
	)
	if err != nil {
		return nil, mapDBError(err)
	}
	return r.GetByID(ctx, res.ID)
}

// GetByID returns a resource by ID.
func (r *ResourceRepo) GetByID(ctx context.Context, id string) (*domain.Resource, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+resourceColumns+` FROM resources WHERE id = ?`, id)
	return scanResource(row)
}

// GetByOwner returns the resource of the given kind for a (module, account)
// pair, or NotFoundError when absent.
func (r *ResourceRepo) GetByOwner(ctx context.Context, moduleID, accountID string, kind domain.ResourceKind) (*domain.Resource, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+resourceColumns+` FROM resources
		WHERE module_id = ? AND account_id = ? AND kind = ?`,
		moduleID, accountID, string(kind))
	return scanResource(row)
}

// ListByModule returns all resource records for a module.
func (r *ResourceRepo) ListByModule(ctx context.Context, moduleID string) ([]domain.Resource, error) {
	return r.list(ctx, `
		SELECT `+resourceColumns+` FROM resources
		WHERE module_id = ? ORDER BY created_at, id`, moduleID)
}

// ListByModuleKind returns resource records of one kind for a module.
func (r *ResourceRepo) ListByModuleKind(ctx context.Context, moduleID string, kind domain.ResourceKind) ([]domain.Resource, error) {
	return r.list(ctx, `
		SELECT `+resourceColumns+` FROM resources
		WHERE module_id = ? AND kind = ? ORDER BY created_at, id`, moduleID, string(kind))
}

// SetStatus updates status, the activity flag, and the lock record in one
// write. A nil lock clears any stored lock record.
func (r *ResourceRepo) SetStatus(ctx context.Context, id string, status domain.ResourceStatus, isActive bool, lock *domain.LockRecord) error {
	lockInfo, err := marshalLock(lock)
	if err != nil {
		return err
	}
	result, err := r.db.ExecContext(ctx, `
		UPDATE resources SET status = ?, is_active = ?, lock_info = ?, updated_at = ?
		WHERE id = ?`,
		string(status), boolToInt(isActive), lockInfo, nowText(), id)
	if err != nil {
		return mapDBError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound("resource %s not found", id)
	}
	return nil
}

// Delete removes a resource record by ID. Deleting an already-absent record
// is not an error.
func (r *ResourceRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM resources WHERE id = ?`, id)
	return mapDBError(err)
}

func (r *ResourceRepo) list(ctx context.Context, query string, args ...interface{}) ([]domain.Resource, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close()

	var out []domain.Resource
	for rows.Next() {
		res, err := scanResourceRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

func marshalLock(lock *domain.LockRecord) (sql.NullString, error) {
	if lock == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(lock)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal lock record: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func scanResource(row *sql.Row) (*domain.Resource, error) {
	return scanResourceRow(row.Scan)
}

func scanResourceRow(scan func(...interface{}) error) (*domain.Resource, error) {
	var (
		res                  domain.Resource
		kind, status         string
		isActive             int64
		lockInfo             sql.NullString
		createdAt, updatedAt string
	)
	err := scan(&res.ID, &res.ModuleID, &res.AccountID, &kind, &res.Name, &res.Server,
		&status, &isActive, &lockInfo, &createdAt, &updatedAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	res.Kind = domain.ResourceKind(kind)
	res.Status = domain.ResourceStatus(status)
	res.IsActive = isActive != 0
	res.CreatedAt = parseTime(createdAt)
	res.UpdatedAt = parseTime(updatedAt)
	if lockInfo.Valid && lockInfo.String != "" {
		var lock domain.LockRecord
		if err := json.Unmarshal([]byte(lockInfo.String), &lock); err != nil {
			return nil, fmt.Errorf("unmarshal lock record for %s: %w", res.ID, err)
		}
		res.Lock = &lock
	}
	return &res, nil
}
