// Package perm evaluates flattened, tenant-scoped permission sets.
//
// Every function is total: malformed input and empty sets evaluate to
// "no access", never to a panic, so callers may check speculatively
// from render paths.
package perm

import (
	"sort"
	"strings"
)

const (
	// SuperAdmin is the reserved permission name that bypasses all checks.
	SuperAdmin = "super:admin"

	// ActionManage subsumes every other action on the same resource.
	ActionManage = "gestionar"

	superResource = "super"
	separator     = ":"
)

// Permission is a validated resource:action pair.
type Permission struct {
	Resource string
	Action   string
}

func (p Permission) String() string { return p.Resource + separator + p.Action }

// Parse splits a permission name into its resource and action segments.
// Only exactly two non-empty segments are accepted.
func Parse(name string) (Permission, bool) {
	parts := strings.Split(name, separator)
	if len(parts) != 2 {
		return Permission{}, false
	}
	resource := strings.TrimSpace(parts[0])
	action := strings.TrimSpace(parts[1])
	if resource == "" || action == "" {
		return Permission{}, false
	}
	return Permission{Resource: resource, Action: action}, true
}

// Set holds the permission names granted to a user within one tenant scope.
type Set map[string]struct{}

// NewSet builds a Set from raw names, dropping blanks and duplicates.
func NewSet(names []string) Set {
	set := make(Set, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		set[name] = struct{}{}
	}
	return set
}

// Names returns the set's permission names in sorted order.
func (s Set) Names() []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// IsSuperAdmin reports whether the set carries the reserved super-admin marker.
func IsSuperAdmin(set Set) bool {
	_, ok := set[SuperAdmin]
	return ok
}

// Has reports whether the set satisfies the requested permission: super-admin,
// an exact match, or the modular resource:gestionar entry covering any other
// action on the same resource. Malformed requests never match.
func Has(set Set, name string) bool {
	if len(set) == 0 {
		return false
	}
	if IsSuperAdmin(set) {
		return true
	}
	requested, ok := Parse(name)
	if !ok {
		return false
	}
	if _, ok := set[requested.String()]; ok {
		return true
	}
	if requested.Action == ActionManage {
		return false
	}
	_, ok = set[requested.Resource+separator+ActionManage]
	return ok
}

// HasAny reports whether at least one requested permission is satisfied.
// An empty requirement list is false, super-admins included: callers always
// pass at least one concrete permission, so an empty list is a caller bug
// that must fail closed.
func HasAny(set Set, names []string) bool {
	if len(names) == 0 {
		return false
	}
	if IsSuperAdmin(set) {
		return true
	}
	for _, name := range names {
		if Has(set, name) {
			return true
		}
	}
	return false
}

// HasAll reports whether every requested permission is satisfied. Empty
// requirement lists are false, as with HasAny.
func HasAll(set Set, names []string) bool {
	if len(names) == 0 {
		return false
	}
	if IsSuperAdmin(set) {
		return true
	}
	for _, name := range names {
		if !Has(set, name) {
			return false
		}
	}
	return true
}

// HasResource reports whether any granted permission touches the resource.
func HasResource(set Set, resource string) bool {
	resource = strings.TrimSpace(resource)
	if resource == "" || len(set) == 0 {
		return false
	}
	if IsSuperAdmin(set) {
		return true
	}
	for name := range set {
		if p, ok := Parse(name); ok && p.Resource == resource {
			return true
		}
	}
	return false
}

// Resources returns the distinct resource segments across the set in sorted
// order, excluding the reserved super-admin segment.
func Resources(set Set) []string {
	seen := make(map[string]struct{}, len(set))
	for name := range set {
		p, ok := Parse(name)
		if !ok || p.Resource == superResource {
			continue
		}
		seen[p.Resource] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for resource := range seen {
		out = append(out, resource)
	}
	sort.Strings(out)
	return out
}

// ForResource returns the sorted permission names scoped to one resource.
func ForResource(set Set, resource string) []string {
	resource = strings.TrimSpace(resource)
	if resource == "" {
		return nil
	}
	var out []string
	for name := range set {
		if p, ok := Parse(name); ok && p.Resource == resource {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
