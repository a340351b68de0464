package permcache

import (
	"context"
	"sync"
)

// Source is the durable store boundary: a single bulk read returning every
// permission with its attached roles populated.
type Source interface {
	Load(ctx context.Context) ([]Permission, error)
}

// MemorySource is a Source backed by a fixed in-memory permission set. It
// deep-copies on construction and on every Load so callers cannot mutate its
// state, and doubles as the test fixture source.
type MemorySource struct {
	mu          sync.RWMutex
	permissions []Permission
}

// NewMemorySource creates a source from the given permissions.
func NewMemorySource(permissions []Permission) *MemorySource {
	s := &MemorySource{}
	s.Replace(permissions)
	return s
}

// Load returns a deep copy of the permission set.
func (s *MemorySource) Load(ctx context.Context) ([]Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Permission, len(s.permissions))
	for i, p := range s.permissions {
		out[i] = clonePermission(p)
	}
	return out, nil
}

// Replace swaps the permission set. The change is only visible to the cache
// after the next reload; callers pair it with Registrar.Forget.
func (s *MemorySource) Replace(permissions []Permission) {
	copied := make([]Permission, len(permissions))
	for i, p := range permissions {
		copied[i] = clonePermission(p)
	}

	s.mu.Lock()
	s.permissions = copied
	s.mu.Unlock()
}
