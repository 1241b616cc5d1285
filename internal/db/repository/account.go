package repository

import (
	"context"
	"database/sql"
	"fmt"

	"sandboxd/internal/db/crypto"
	"sandboxd/internal/domain"
)

var _ domain.AccountRepository = (*AccountRepo)(nil)

// AccountRepo stores participant accounts. The recoverable plaintext
// credential is sealed at rest and only leaves through CredentialForReissue,
// which writes an audit entry on every call.
type AccountRepo struct {
	db     *sql.DB
	sealer *crypto.Sealer
	audit  domain.AuditRepository
}

// NewAccountRepo creates a new AccountRepo on the write pool.
func NewAccountRepo(db *sql.DB, sealer *crypto.Sealer, audit domain.AuditRepository) *AccountRepo {
	return &AccountRepo{db: db, sealer: sealer, audit: audit}
}

// Create inserts a new account. a.PasswordHash must already be set; plaintext
// is the recoverable credential to seal at rest.
func (r *AccountRepo) Create(ctx context.Context, a *domain.Account, plaintext string) (*domain.Account, error) {
	if a.Login == "" {
		return nil, domain.ErrValidation("account login is required")
	}
	if a.ID == "" {
		a.ID = domain.NewID()
	}
	sealed, err := r.sealer.Seal(plaintext)
	if err != nil {
		return nil, err
	}
	var eventID sql.NullString
	if a.EventID != nil {
		eventID = sql.NullString{String: *a.EventID, Valid: true}
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, person_id, event_id, role_id, login, password_hash, password_sealed, seat_label, created_at)
		VALUES (?, ?, ?, (SELECT id FROM roles WHERE name = ?), ?, ?, ?, ?, ?)`,
		a.ID, a.PersonID, eventID, a.RoleName, a.Login, a.PasswordHash, sealed, a.SeatLabel, nowText(),
	)
	if err != nil {
		return nil, mapDBError(err)
	}
	return r.GetByID(ctx, a.ID)
}

// GetByID returns an account by ID.
func (r *AccountRepo) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT a.id, a.person_id, a.event_id, r.name, a.login, a.password_hash, a.seat_label, a.created_at
		FROM accounts a JOIN roles r ON r.id = a.role_id
		WHERE a.id = ?`, id)

	var (
		a         domain.Account
		eventID   sql.NullString
		createdAt string
	)
	err := row.Scan(&a.ID, &a.PersonID, &eventID, &a.RoleName, &a.Login, &a.PasswordHash, &a.SeatLabel, &createdAt)
	if err != nil {
		return nil, mapDBError(err)
	}
	if eventID.Valid {
		a.EventID = &eventID.String
	}
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

// ListParticipants returns accounts holding roleName for the event, ordered
// by surname for stable sweeps.
func (r *AccountRepo) ListParticipants(ctx context.Context, eventID, roleName string) ([]domain.Participant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.login, p.surname || ' ' || p.given_name
		FROM accounts a
		JOIN roles r ON r.id = a.role_id
		JOIN people p ON p.id = a.person_id
		WHERE a.event_id = ? AND r.name = ?
		ORDER BY p.surname, p.given_name, a.login`,
		eventID, roleName)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close()

	var out []domain.Participant
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.AccountID, &p.Login, &p.DisplayName); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// LoginExists reports whether any account already uses the login.
func (r *AccountRepo) LoginExists(ctx context.Context, login string) (bool, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE login = ?`, login).Scan(&n)
	if err != nil {
		return false, mapDBError(err)
	}
	return n > 0, nil
}

// CredentialForReissue returns the login and recoverable plaintext password
// for handing to external systems. The read is audited with the calling
// actor; the password hash never leaves this package through this path.
func (r *AccountRepo) CredentialForReissue(ctx context.Context, accountID string) (string, string, error) {
	var login, sealed string
	err := r.db.QueryRowContext(ctx, `
		SELECT login, password_sealed FROM accounts WHERE id = ?`, accountID).Scan(&login, &sealed)
	if err != nil {
		return "", "", mapDBError(err)
	}
	password, err := r.sealer.Open(sealed)
	if err != nil {
		return "", "", err
	}

	// The read fails when the audit write fails: plaintext never leaves
	// this package unrecorded.
	actor, _ := domain.ActorFromContext(ctx)
	err = r.audit.Insert(ctx, &domain.AuditEntry{
		Actor:   actor.Name,
		Action:  domain.AuditCredentialRead,
		Subject: accountID,
		Detail:  "credential reissued for provisioning",
	})
	if err != nil {
		return "", "", fmt.Errorf("audit credential read: %w", err)
	}
	return login, password, nil
}
