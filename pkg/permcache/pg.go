package permcache

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the Postgres error code for unique constraint breaches.
const uniqueViolation = "23505"

// PostgresSource loads the permission graph from Postgres in a single bulk
// read. Expected schema: permissions(id, name, guard), roles(id, name, guard,
// team_id) and the role_has_permissions(role_id, permission_id) join table.
type PostgresSource struct {
	pool *pgxpool.Pool
}

// NewPostgresSource creates a Source over the given connection pool.
func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

// Load returns every permission with its attached roles. Order is stable
// (permission name, then role name) so cache payloads are deterministic.
func (s *PostgresSource) Load(ctx context.Context) ([]Permission, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id::text, p.name, p.guard,
		       r.id::text, r.name, r.guard, r.team_id
		FROM permissions p
		LEFT JOIN role_has_permissions rp ON rp.permission_id = p.id
		LEFT JOIN roles r ON r.id = rp.role_id
		ORDER BY p.name, p.id, r.name`)
	if err != nil {
		return nil, errors.Join(ErrSourceUnavailable, err)
	}
	defer rows.Close()

	var (
		order   []string
		byID    = make(map[string]*Permission)
		roleMap = make(map[string]*Role)
	)

	for rows.Next() {
		var (
			permID, permName, permGuard string
			roleID, roleName, roleGuard *string
			teamID                      *string
		)
		if err := rows.Scan(&permID, &permName, &permGuard, &roleID, &roleName, &roleGuard, &teamID); err != nil {
			return nil, errors.Join(ErrSourceUnavailable, err)
		}

		p, ok := byID[permID]
		if !ok {
			id, err := uuid.Parse(permID)
			if err != nil {
				return nil, fmt.Errorf("permcache: invalid permission id %q: %w", permID, err)
			}
			p = &Permission{ID: id, Name: permName, Guard: permGuard}
			byID[permID] = p
			order = append(order, permID)
		}

		if roleID == nil {
			continue
		}
		role, ok := roleMap[*roleID]
		if !ok {
			id, err := uuid.Parse(*roleID)
			if err != nil {
				return nil, fmt.Errorf("permcache: invalid role id %q: %w", *roleID, err)
			}
			role = &Role{ID: id, TeamID: teamID}
			if roleName != nil {
				role.Name = *roleName
			}
			if roleGuard != nil {
				role.Guard = *roleGuard
			}
			roleMap[*roleID] = role
		}
		p.Roles = append(p.Roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrSourceUnavailable, err)
	}

	permissions := make([]Permission, 0, len(order))
	for _, id := range order {
		permissions = append(permissions, *byID[id])
	}
	return permissions, nil
}

// PostgresAdminStore performs administrative mutations against the same
// schema PostgresSource reads from.
type PostgresAdminStore struct {
	pool *pgxpool.Pool
}

// NewPostgresAdminStore creates an AdminStore over the given connection pool.
func NewPostgresAdminStore(pool *pgxpool.Pool) *PostgresAdminStore {
	return &PostgresAdminStore{pool: pool}
}

// FindRole returns the role with the given name and guard, or ErrRoleNotFound.
func (s *PostgresAdminStore) FindRole(ctx context.Context, name, guard string) (*Role, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id::text, name, guard, team_id FROM roles WHERE name = $1 AND guard = $2`,
		name, guard)
	return scanRole(row)
}

// CreateRole inserts a role, returning ErrRoleAlreadyExists when the
// name/guard pair is taken.
func (s *PostgresAdminStore) CreateRole(ctx context.Context, name, guard string, teamID *string) (*Role, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO roles (id, name, guard, team_id) VALUES ($1, $2, $3, $4)`,
		id, name, guard, teamID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrRoleAlreadyExists, name, guard)
		}
		return nil, errors.Join(ErrSourceUnavailable, err)
	}
	return &Role{ID: id, Name: name, Guard: guard, TeamID: teamID}, nil
}

// FindPermission returns the permission with the given name and guard, or
// ErrPermissionNotFound.
func (s *PostgresAdminStore) FindPermission(ctx context.Context, name, guard string) (*Permission, error) {
	var (
		idText   string
		permName string
		pGuard   string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id::text, name, guard FROM permissions WHERE name = $1 AND guard = $2`,
		name, guard).Scan(&idText, &permName, &pGuard)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrPermissionNotFound, name, guard)
	}
	if err != nil {
		return nil, errors.Join(ErrSourceUnavailable, err)
	}

	id, err := uuid.Parse(idText)
	if err != nil {
		return nil, fmt.Errorf("permcache: invalid permission id %q: %w", idText, err)
	}
	return &Permission{ID: id, Name: permName, Guard: pGuard}, nil
}

// CreatePermission inserts a permission, returning ErrPermissionAlreadyExists
// when the name/guard pair is taken.
func (s *PostgresAdminStore) CreatePermission(ctx context.Context, name, guard string) (*Permission, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO permissions (id, name, guard) VALUES ($1, $2, $3)`,
		id, name, guard)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s/%s", ErrPermissionAlreadyExists, name, guard)
		}
		return nil, errors.Join(ErrSourceUnavailable, err)
	}
	return &Permission{ID: id, Name: name, Guard: guard}, nil
}

// GrantPermission attaches a permission to a role. Granting twice is a no-op.
func (s *PostgresAdminStore) GrantPermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO role_has_permissions (role_id, permission_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		roleID, permissionID)
	if err != nil {
		return errors.Join(ErrSourceUnavailable, err)
	}
	return nil
}

// RevokePermission detaches a permission from a role. Revoking a missing
// assignment is a no-op.
func (s *PostgresAdminStore) RevokePermission(ctx context.Context, roleID, permissionID uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM role_has_permissions WHERE role_id = $1 AND permission_id = $2`,
		roleID, permissionID)
	if err != nil {
		return errors.Join(ErrSourceUnavailable, err)
	}
	return nil
}

func scanRole(row pgx.Row) (*Role, error) {
	var (
		idText, name, guard string
		teamID              *string
	)
	err := row.Scan(&idText, &name, &guard, &teamID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRoleNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrSourceUnavailable, err)
	}

	id, err := uuid.Parse(idText)
	if err != nil {
		return nil, fmt.Errorf("permcache: invalid role id %q: %w", idText, err)
	}
	return &Role{ID: id, Name: name, Guard: guard, TeamID: teamID}, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
