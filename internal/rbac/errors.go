package rbac

import "errors"

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("resource conflict")
	ErrTenantAccessDenied = errors.New("tenant access denied")
	ErrNoAccessibleTenant = errors.New("no accessible tenant")
)
