package repository

import (
	"context"
	"database/sql"

	"sandboxd/internal/domain"
)

var _ domain.AuditRepository = (*AuditRepo)(nil)

// AuditRepo appends to and reads the audit log.
type AuditRepo struct {
	db *sql.DB
}

// NewAuditRepo creates a new AuditRepo on the write pool.
func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// Insert appends one audit entry.
func (r *AuditRepo) Insert(ctx context.Context, e *domain.AuditEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (actor, action, subject, detail, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		e.Actor, e.Action, e.Subject, e.Detail, nowText())
	return mapDBError(err)
}

// ListRecent returns up to limit newest entries, newest first.
func (r *AuditRepo) ListRecent(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, actor, action, subject, detail, created_at
		FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var (
			e         domain.AuditEntry
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.Actor, &e.Action, &e.Subject, &e.Detail, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = parseTime(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}
