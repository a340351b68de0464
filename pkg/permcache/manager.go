package permcache

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// AdminStore performs administrative mutations on the durable store. All
// finds use the name/guard pair as the natural key.
type AdminStore interface {
	FindRole(ctx context.Context, name, guard string) (*Role, error)
	CreateRole(ctx context.Context, name, guard string, teamID *string) (*Role, error)
	FindPermission(ctx context.Context, name, guard string) (*Permission, error)
	CreatePermission(ctx context.Context, name, guard string) (*Permission, error)
	GrantPermission(ctx context.Context, roleID, permissionID uuid.UUID) error
	RevokePermission(ctx context.Context, roleID, permissionID uuid.UUID) error
}

// Manager couples administrative writes with cache invalidation: every
// successful mutation forgets the cached permission entry so the next lookup
// reflects durable-store state.
type Manager struct {
	admin     AdminStore
	registrar *Registrar
}

// NewManager creates a Manager over the given admin store and registrar.
func NewManager(admin AdminStore, registrar *Registrar) *Manager {
	return &Manager{admin: admin, registrar: registrar}
}

// CreateRole finds or creates the role and grants it the named permissions.
// Each permission name must reference an existing record; a missing one is
// ErrPermissionNotFound and aborts the operation.
func (m *Manager) CreateRole(ctx context.Context, name, guard string, permissions ...string) (*Role, error) {
	role, err := m.admin.FindRole(ctx, name, guard)
	if errors.Is(err, ErrRoleNotFound) {
		role, err = m.admin.CreateRole(ctx, name, guard, nil)
	}
	if err != nil {
		return nil, err
	}

	if err := m.grant(ctx, role, permissions); err != nil {
		return nil, err
	}

	if err := m.registrar.Forget(ctx); err != nil {
		return nil, err
	}
	return role, nil
}

// CreatePermission creates a permission record. The name/guard pair must be
// free; otherwise ErrPermissionAlreadyExists.
func (m *Manager) CreatePermission(ctx context.Context, name, guard string) (*Permission, error) {
	permission, err := m.admin.CreatePermission(ctx, name, guard)
	if err != nil {
		return nil, err
	}

	if err := m.registrar.Forget(ctx); err != nil {
		return nil, err
	}
	return permission, nil
}

// GivePermissionTo grants the named permissions to an existing role.
func (m *Manager) GivePermissionTo(ctx context.Context, roleName, guard string, permissions ...string) error {
	role, err := m.admin.FindRole(ctx, roleName, guard)
	if err != nil {
		return err
	}

	if err := m.grant(ctx, role, permissions); err != nil {
		return err
	}
	return m.registrar.Forget(ctx)
}

// RevokePermissionFrom removes the named permissions from an existing role.
func (m *Manager) RevokePermissionFrom(ctx context.Context, roleName, guard string, permissions ...string) error {
	role, err := m.admin.FindRole(ctx, roleName, guard)
	if err != nil {
		return err
	}

	for _, name := range permissions {
		permission, err := m.admin.FindPermission(ctx, name, guard)
		if err != nil {
			return err
		}
		if err := m.admin.RevokePermission(ctx, role.ID, permission.ID); err != nil {
			return err
		}
	}
	return m.registrar.Forget(ctx)
}

func (m *Manager) grant(ctx context.Context, role *Role, permissions []string) error {
	for _, name := range permissions {
		permission, err := m.admin.FindPermission(ctx, name, role.Guard)
		if err != nil {
			return fmt.Errorf("grant %q to role %q: %w", name, role.Name, err)
		}
		if err := m.admin.GrantPermission(ctx, role.ID, permission.ID); err != nil {
			return err
		}
	}
	return nil
}
