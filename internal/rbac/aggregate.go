package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"peopleflow.org/internal/perm"
)

// Aggregator flattens a user's role grants into the effective permission set
// for one tenant scope. It is the only sanctioned way to compute a working
// permission set: every entry point takes an explicit tenant id (nil meaning
// global scope only) so no caller can accidentally union permissions across
// all of a user's tenants.
type Aggregator struct {
	store Store
}

var _ Source = (*Aggregator)(nil)

// NewAggregator constructs an Aggregator over the given store.
func NewAggregator(store Store) (*Aggregator, error) {
	if store == nil {
		return nil, errors.New("rbac store is required")
	}
	return &Aggregator{store: store}, nil
}

// UserPermissions returns the deduplicated permission names granted to the
// user within the given tenant scope, plus grants from global (super-admin)
// roles. A user without matching roles yields an empty set, not an error.
func (a *Aggregator) UserPermissions(ctx context.Context, userID string, tenantID *string) ([]string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if tenantID != nil {
		trimmed := strings.TrimSpace(*tenantID)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: tenant_id must be nil or non-empty", ErrInvalidInput)
		}
		tenantID = &trimmed
	}
	names, err := a.store.UserPermissions(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	return dedupeStrings(names), nil
}

// PermissionSet is UserPermissions flattened into an evaluation set.
func (a *Aggregator) PermissionSet(ctx context.Context, userID string, tenantID *string) (perm.Set, error) {
	names, err := a.UserPermissions(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	return perm.NewSet(names), nil
}

// IsSuperAdmin checks the user's global (tenant-less) grants for the reserved
// marker. Tenant-scoped roles cannot confer super-admin.
func (a *Aggregator) IsSuperAdmin(ctx context.Context, userID string) (bool, error) {
	names, err := a.UserPermissions(ctx, userID, nil)
	if err != nil {
		return false, err
	}
	return perm.IsSuperAdmin(perm.NewSet(names)), nil
}
