package authz

import "errors"

// Domain errors for authorization checks.
var (
	// ErrUnauthenticated signals that no authenticated principal was present
	// for the requested guard. Distinct from a denial: the caller should ask
	// for authentication, not report forbidden.
	ErrUnauthenticated = errors.New("authz.unauthenticated")

	// ErrPermissionDenied signals that the principal is authenticated but
	// holds no permission implying any of the requested ones.
	ErrPermissionDenied = errors.New("authz.permission_denied")
)
