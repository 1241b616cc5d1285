// Package naming derives deterministic, engine-safe names for provisioned
// resources.
package naming

import (
	"strings"
)

// maxNameLen is the PostgreSQL identifier limit; Git repository names are
// held to the same bound for uniformity.
const maxNameLen = 63

// prefix keeps names from starting with a digit and makes provisioned
// artifacts easy to spot on the external systems.
const prefix = "sbx"

// ResourceName derives the external name for a (module, participant)
// sandbox. It is pure: the same inputs always produce the same name, and
// distinct participants of one module can never collide because the
// participant identifier is part of the name. nonce disambiguates deliberate
// re-provisioning under a changed naming generation and is usually empty.
func ResourceName(moduleID, accountID, nonce string) string {
	parts := []string{prefix, compact(moduleID), compact(accountID)}
	if n := compact(nonce); n != "" {
		parts = append(parts, n)
	}
	name := strings.Join(parts, "_")
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	return name
}

// compact reduces an identifier to its last 12 lowercase alphanumeric
// characters. For UUIDv7 identifiers the tail is the random block — the
// leading characters encode the creation timestamp and would collide for
// rows generated in the same millisecond.
func compact(id string) string {
	runes := make([]rune, 0, len(id))
	for _, r := range strings.ToLower(id) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			runes = append(runes, r)
		}
	}
	if len(runes) > 12 {
		runes = runes[len(runes)-12:]
	}
	return string(runes)
}
