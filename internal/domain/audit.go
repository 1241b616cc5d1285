package domain

import "time"

// AuditEntry is one row in the append-only audit log. Every lifecycle
// transition and every plaintext credential read produces an entry.
type AuditEntry struct {
	ID        int64
	Actor     string
	Action    string
	Subject   string
	Detail    string
	CreatedAt time.Time
}

// Audit actions recorded by the orchestrator and credential store.
const (
	AuditCreateResource   = "CREATE_RESOURCE"
	AuditRecreateResource = "RECREATE_RESOURCE"
	AuditLockResource     = "LOCK_RESOURCE"
	AuditUnlockResource   = "UNLOCK_RESOURCE"
	AuditDeleteResource   = "DELETE_RESOURCE"
	AuditCredentialRead   = "READ_CREDENTIAL"
)
