package ids

import (
	"github.com/google/uuid"
)

// Catalog identifiers are opaque monotonic strings. UUIDv7 keeps the
// timestamp in the leading bytes, so the canonical string form orders
// lexicographically by creation time.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the entropy source does; fall back to the
		// random form rather than returning an empty id.
		return uuid.NewString()
	}
	return id.String()
}

// Valid reports whether s parses as a catalog identifier.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
