// Package idgen generates the ULIDs used as primary keys across the
// metadata store (C2), matching the teacher corpus's id-assignment idiom.
package idgen

import "github.com/oklog/ulid/v2"

// New returns a new, lexicographically sortable ULID string.
func New() string {
	return ulid.Make().String()
}
