package repository

import (
	"context"
	"database/sql"
	"time"

	"sandboxd/internal/domain"
)

var _ domain.ModuleRepository = (*RegistryRepo)(nil)

// RegistryRepo holds the thin entity surface the orchestrator depends on:
// events, modules, people, and roles. It is deliberately not a general CRUD
// layer.
type RegistryRepo struct {
	db *sql.DB
}

// NewRegistryRepo creates a new RegistryRepo on the write pool.
func NewRegistryRepo(db *sql.DB) *RegistryRepo {
	return &RegistryRepo{db: db}
}

// GetByID returns a module with its owning event.
func (r *RegistryRepo) GetByID(ctx context.Context, id string) (*domain.Module, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, event_id, name, starts_at, ends_at, created_at
		FROM modules WHERE id = ?`, id)

	var (
		m                domain.Module
		startsAt, endsAt sql.NullString
		createdAt        string
	)
	err := row.Scan(&m.ID, &m.EventID, &m.Name, &startsAt, &endsAt, &createdAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	if startsAt.Valid {
		t := parseTime(startsAt.String)
		m.StartsAt = &t
	}
	if endsAt.Valid {
		t := parseTime(endsAt.String)
		m.EndsAt = &t
	}
	m.CreatedAt = parseTime(createdAt)
	return &m, nil
}

// ListActive returns modules whose window includes now, or that have no
// window at all. Used by the scheduled diagnostic sweep.
func (r *RegistryRepo) ListActive(ctx context.Context) ([]domain.Module, error) {
	now := time.Now().UTC().Format(timeLayout)
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_id, name, starts_at, ends_at, created_at
		FROM modules
		WHERE (starts_at IS NULL OR starts_at <= ?)
		  AND (ends_at IS NULL OR ends_at >= ?)
		ORDER BY created_at, id`, now, now)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close()

	var out []domain.Module
	for rows.Next() {
		var (
			m                domain.Module
			startsAt, endsAt sql.NullString
			createdAt        string
		)
		if err := rows.Scan(&m.ID, &m.EventID, &m.Name, &startsAt, &endsAt, &createdAt); err != nil {
			return nil, err
		}
		if startsAt.Valid {
			t := parseTime(startsAt.String)
			m.StartsAt = &t
		}
		if endsAt.Valid {
			t := parseTime(endsAt.String)
			m.EndsAt = &t
		}
		m.CreatedAt = parseTime(createdAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

// CreateEvent inserts an event. Used by seeding and tests.
func (r *RegistryRepo) CreateEvent(ctx context.Context, name string) (*domain.Event, error) {
	e := &domain.Event{ID: domain.NewID(), Name: name}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO events (id, name, created_at) VALUES (?, ?, ?)`,
		e.ID, e.Name, nowText())
	if err != nil {
		return nil, mapDBError(err)
	}
	return e, nil
}

// CreateModule inserts a module scoped to an event.
func (r *RegistryRepo) CreateModule(ctx context.Context, eventID, name string) (*domain.Module, error) {
	m := &domain.Module{ID: domain.NewID(), EventID: eventID, Name: name}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO modules (id, event_id, name, created_at) VALUES (?, ?, ?, ?)`,
		m.ID, m.EventID, m.Name, nowText())
	if err != nil {
		return nil, mapDBError(err)
	}
	return m, nil
}

// CreatePerson inserts a person record.
func (r *RegistryRepo) CreatePerson(ctx context.Context, surname, givenName, email string) (*domain.Person, error) {
	p := &domain.Person{ID: domain.NewID(), Surname: surname, GivenName: givenName, Email: email}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO people (id, surname, given_name, email) VALUES (?, ?, ?, ?)`,
		p.ID, p.Surname, p.GivenName, p.Email)
	if err != nil {
		return nil, mapDBError(err)
	}
	return p, nil
}

// EnsureRole inserts a role by name if it does not exist yet.
func (r *RegistryRepo) EnsureRole(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO roles (id, name) VALUES (?, ?)
		ON CONFLICT (name) DO NOTHING`, domain.NewID(), name)
	return mapDBError(err)
}
