package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"peopleflow.org/internal/perm"
)

// BindingState describes where a session sits in the active-tenant state
// machine.
type BindingState string

const (
	// StateBound: the session's active tenant is set and still accessible.
	StateBound BindingState = "bound"
	// StateAutoBound: exactly one accessible tenant, bound automatically on
	// this resolution instead of forcing an explicit selection step.
	StateAutoBound BindingState = "auto_bound"
	// StateUnselected: multiple accessible tenants and none chosen yet.
	StateUnselected BindingState = "unselected"
	// StateSuperAdmin: the user holds the global super-admin role and is never
	// forced through tenant selection.
	StateSuperAdmin BindingState = "super_admin"
	// StateDenied: the user has no accessible tenant at all. Resolve signals
	// this with ErrNoAccessibleTenant; the HTTP layer maps it to this state so
	// authenticated-but-tenantless sessions carry an explicit marker instead
	// of an empty binding.
	StateDenied BindingState = "denied"
)

// Binding is the outcome of resolving a session's tenant scope.
type Binding struct {
	State          BindingState `json:"state"`
	ActiveTenantID *string      `json:"active_tenant_id"`
	Tenants        []Tenant     `json:"tenants,omitempty"`
}

// Sessions resolves which tenants a user may act within and which one is
// active on a session. Super-admin detection runs before tenant resolution;
// switching is check-then-act so a session never points, even transiently, at
// a tenant its user cannot access.
type Sessions struct {
	store    Store
	sessions SessionStore
	source   Source
}

// NewSessions constructs the tenant session binding service. source is used
// for super-admin detection and normally goes through the permission cache.
func NewSessions(store Store, sessions SessionStore, source Source) (*Sessions, error) {
	if store == nil || sessions == nil {
		return nil, errors.New("rbac store and session store are required")
	}
	if source == nil {
		return nil, errors.New("permission source is required")
	}
	return &Sessions{store: store, sessions: sessions, source: source}, nil
}

// Create opens a session for the user with a freshly generated token.
func (s *Sessions) Create(ctx context.Context, userID string, ttl time.Duration) (Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Session{}, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	if ttl <= 0 {
		return Session{}, fmt.Errorf("%w: session ttl must be positive", ErrInvalidInput)
	}
	now := time.Now().UTC()
	sess := Session{
		Token:     uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.sessions.CreateSession(ctx, sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// Logout removes the session. A missing session is not an error.
func (s *Sessions) Logout(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: session token is required", ErrInvalidInput)
	}
	if err := s.sessions.DeleteSession(ctx, token); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// AccessibleTenants lists the distinct tenants reachable through the user's
// role assignments.
func (s *Sessions) AccessibleTenants(ctx context.Context, userID string) ([]Tenant, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.store.AccessibleTenants(ctx, userID)
}

// CanAccessTenant reports whether an assignment row exists for the pair.
func (s *Sessions) CanAccessTenant(ctx context.Context, userID, tenantID string) (bool, error) {
	userID = strings.TrimSpace(userID)
	tenantID = strings.TrimSpace(tenantID)
	if userID == "" || tenantID == "" {
		return false, fmt.Errorf("%w: user_id and tenant_id are required", ErrInvalidInput)
	}
	return s.store.UserBelongsToTenant(ctx, userID, tenantID)
}

// SwitchTenant rebinds the session to tenantID, or clears the binding when
// tenantID is nil. The access check completes before any session write; an
// unauthorized target leaves the session row untouched and returns
// ErrTenantAccessDenied.
func (s *Sessions) SwitchTenant(ctx context.Context, token string, tenantID *string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: session token is required", ErrInvalidInput)
	}
	sess, err := s.sessions.FindSession(ctx, token)
	if err != nil {
		return err
	}
	if tenantID != nil {
		target := strings.TrimSpace(*tenantID)
		if target == "" {
			return fmt.Errorf("%w: tenant_id must be nil or non-empty", ErrInvalidInput)
		}
		ok, err := s.CanAccessTenant(ctx, sess.UserID, target)
		if err != nil {
			return err
		}
		if !ok {
			return ErrTenantAccessDenied
		}
		tenantID = &target
	}
	return s.sessions.SetActiveTenant(ctx, token, tenantID)
}

// Resolve walks the session through the tenant binding state machine:
//
//	super-admin           -> StateSuperAdmin (tenant selection never forced)
//	0 accessible tenants  -> ErrNoAccessibleTenant (distinct deny path)
//	active still valid    -> StateBound
//	1 tenant, none active -> StateAutoBound (persisted)
//	>1 tenants, none set  -> StateUnselected
//
// A stale binding (tenant no longer accessible) is cleared and re-resolved
// within the same call.
func (s *Sessions) Resolve(ctx context.Context, token string) (Binding, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Binding{}, fmt.Errorf("%w: session token is required", ErrInvalidInput)
	}
	sess, err := s.sessions.FindSession(ctx, token)
	if err != nil {
		return Binding{}, err
	}

	globals, err := s.source.UserPermissions(ctx, sess.UserID, nil)
	if err != nil {
		return Binding{}, err
	}
	if perm.IsSuperAdmin(perm.NewSet(globals)) {
		return Binding{State: StateSuperAdmin, ActiveTenantID: sess.ActiveTenantID}, nil
	}

	tenants, err := s.store.AccessibleTenants(ctx, sess.UserID)
	if err != nil {
		return Binding{}, err
	}
	if len(tenants) == 0 {
		return Binding{}, ErrNoAccessibleTenant
	}

	if sess.ActiveTenantID != nil {
		for _, t := range tenants {
			if t.ID == *sess.ActiveTenantID {
				return Binding{State: StateBound, ActiveTenantID: sess.ActiveTenantID, Tenants: tenants}, nil
			}
		}
		// Assignment was revoked since the tenant was bound.
		if err := s.sessions.SetActiveTenant(ctx, token, nil); err != nil {
			return Binding{}, err
		}
	}

	if len(tenants) == 1 {
		id := tenants[0].ID
		if err := s.sessions.SetActiveTenant(ctx, token, &id); err != nil {
			return Binding{}, err
		}
		return Binding{State: StateAutoBound, ActiveTenantID: &id, Tenants: tenants}, nil
	}
	return Binding{State: StateUnselected, Tenants: tenants}, nil
}
