package domain

import "time"

// Role names with special meaning to the orchestrator.
const (
	RoleParticipant = "participant"
	RoleOrganizer   = "organizer"
)

// Person is the underlying human record. One person may hold several
// accounts across events.
type Person struct {
	ID        string
	Surname   string
	GivenName string
	Email     string
}

// Account identifies one person's access to one event. EventID is nil for
// system accounts not tied to an event. Login is globally unique.
//
// PasswordHash is the bcrypt hash used for local authentication. The
// recoverable plaintext needed for reissuing credentials to the database
// engine and the Git host is never carried on this struct; it is obtained
// through AccountRepository.CredentialForReissue, which audits every read.
type Account struct {
	ID           string
	PersonID     string
	EventID      *string
	RoleName     string
	Login        string
	PasswordHash string
	SeatLabel    string
	CreatedAt    time.Time
}

// Participant is the roster view of an account used by the bulk runner.
type Participant struct {
	AccountID   string
	Login       string
	DisplayName string
}

// Event groups modules and participant accounts.
type Event struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Module is a scoped activity within an event for which sandboxes are
// provisioned.
type Module struct {
	ID        string
	EventID   string
	Name      string
	StartsAt  *time.Time
	EndsAt    *time.Time
	CreatedAt time.Time
}
