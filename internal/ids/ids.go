// Package ids generates the identifiers used as primary keys across the
// RBAC tables.
package ids

import "github.com/oklog/ulid/v2"

// New returns a lexicographically sortable identifier. ULIDs keep index
// writes append-mostly and stay readable in logs and URLs.
func New() string {
	return ulid.Make().String()
}
