package ledger

import "github.com/google/uuid"

// newID mints record identifiers. Callers never supply their own.
func newID() string {
	return uuid.NewString()
}
