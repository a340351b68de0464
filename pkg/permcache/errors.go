package permcache

import "errors"

// Domain errors for permission cache operations.
var (
	// ErrStoreUnavailable is returned when the backing cache store cannot be
	// reached. Authorization must fail closed on this error.
	ErrStoreUnavailable = errors.New("permcache.store_unavailable")

	// ErrSourceUnavailable is returned when the durable store cannot be
	// queried during a cache reload.
	ErrSourceUnavailable = errors.New("permcache.source_unavailable")

	// ErrPermissionNotFound is returned when a referenced permission has no
	// backing record.
	ErrPermissionNotFound = errors.New("permcache.permission_not_found")

	// ErrRoleNotFound is returned when a referenced role has no backing record.
	ErrRoleNotFound = errors.New("permcache.role_not_found")

	// ErrPermissionAlreadyExists is returned when creating a permission whose
	// name/guard pair is already taken.
	ErrPermissionAlreadyExists = errors.New("permcache.permission_already_exists")

	// ErrRoleAlreadyExists is returned when creating a role whose name/guard
	// pair is already taken.
	ErrRoleAlreadyExists = errors.New("permcache.role_already_exists")
)

// errStaleFormat marks a cached entry in a legacy or foreign format. Handled
// internally by forcing a reload; never returned to callers.
var errStaleFormat = errors.New("permcache.stale_cache_format")
