package domain

import "time"

// ResourceKind distinguishes the two provisioned artifact variants.
type ResourceKind string

const (
	KindDatabase   ResourceKind = "database"
	KindRepository ResourceKind = "repository"
)

// Valid reports whether k is a known resource kind.
func (k ResourceKind) Valid() bool {
	return k == KindDatabase || k == KindRepository
}

// ResourceStatus is the enumerated lifecycle status of a provisioned
// resource. Statuses are code-level constants, not runtime lookups.
type ResourceStatus string

const (
	StatusActive   ResourceStatus = "active"
	StatusLocked   ResourceStatus = "locked"
	StatusDisabled ResourceStatus = "disabled"
)

// LockRecordVersion is the current serialization version of LockRecord.
const LockRecordVersion = 1

// LockRecord captures the state reversed by an unlock. It is serialized as
// JSON in the resource row and treated as write-once: a lock writes it whole,
// an unlock clears it whole. OriginalCredential is the recoverable secret the
// participant had before the lock; it must round-trip byte-for-byte.
type LockRecord struct {
	Version            int       `json:"version"`
	OriginalCredential string    `json:"original_credential"`
	PriorOwner         string    `json:"prior_owner,omitempty"`
	PriorPrivileges    []string  `json:"prior_privileges,omitempty"`
	LockedAt           time.Time `json:"locked_at"`
	LockedBy           string    `json:"locked_by"`
	Reason             string    `json:"reason,omitempty"`
}

// Resource represents one external artifact (database or repository) bound to
// exactly one participant account and one module. At most one resource of a
// given kind exists per (module, account) pair; the store enforces this with
// a uniqueness constraint.
type Resource struct {
	ID        string
	ModuleID  string
	AccountID string
	Kind      ResourceKind
	Name      string
	Server    string
	Status    ResourceStatus
	IsActive  bool
	Lock      *LockRecord
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Locked reports whether the resource is in the read-only locked state.
func (r *Resource) Locked() bool { return r.Status == StatusLocked }

// Diagnosis is the result of a store-vs-engine consistency check for one
// resource. Mismatches are reported for operator action, never auto-corrected.
type Diagnosis struct {
	ResourceID     string         `json:"resource_id"`
	Kind           ResourceKind   `json:"kind"`
	Name           string         `json:"name"`
	StoreStatus    ResourceStatus `json:"store_status"`
	ExternalExists bool           `json:"external_exists"`
	ExternalWrite  bool           `json:"external_write"`
	Consistent     bool           `json:"consistent"`
	Findings       []string       `json:"findings,omitempty"`
}
