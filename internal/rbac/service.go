package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-approvals/internal/shared"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("rbac: not found")

// ErrForeignRole indicates a role id owned by a different tenant.
var ErrForeignRole = errors.New("rbac: role belongs to another tenant")

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Service reads roles and permissions. It is the identity/role collaborator
// of the approval engine.
type Service struct {
	pool *pgxpool.Pool
	db   querier
}

// NewService constructs a Service backed by the provided pool.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool, db: pool}
}

// ListRoles returns the roles of a tenant ordered by name.
func (s *Service) ListRoles(ctx context.Context, tenantID int64) ([]Role, error) {
	rows, err := s.db.Query(ctx, `
		SELECT r.id, r.tenant_id, r.name, r.super_admin,
			COALESCE(array_agg(rp.permission ORDER BY rp.permission) FILTER (WHERE rp.permission IS NOT NULL), '{}')
		FROM roles r
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		WHERE r.tenant_id = $1
		GROUP BY r.id
		ORDER BY r.name`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	roles := []Role{}
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.TenantID, &role.Name, &role.SuperAdmin, &role.Permissions); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// EnsureRole upserts a role by name and returns it.
func (s *Service) EnsureRole(ctx context.Context, tenantID int64, name string, superAdmin bool) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("rbac: role name required")
	}
	role := Role{TenantID: tenantID, Name: name, SuperAdmin: superAdmin}
	err := s.db.QueryRow(ctx, `
		INSERT INTO roles (tenant_id, name, super_admin) VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, name) DO UPDATE SET super_admin = EXCLUDED.super_admin
		RETURNING id`, tenantID, name, superAdmin).Scan(&role.ID)
	if err != nil {
		return Role{}, err
	}
	return role, nil
}

// SetRolePermissions replaces the permissions of a role.
func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, perms []string) error {
	normalized := normalizePermissions(perms)
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return err
	}
	for _, p := range normalized {
		if _, err := tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission) VALUES ($1, $2)`, roleID, p); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// AssignRole assigns a role to the given user. The role must belong to the
// same tenant.
func (s *Service) AssignRole(ctx context.Context, tenantID, userID, roleID int64) error {
	var owner int64
	err := s.db.QueryRow(ctx, `SELECT tenant_id FROM roles WHERE id = $1`, roleID).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if owner != tenantID {
		return fmt.Errorf("%w: role %d tenant %d", ErrForeignRole, roleID, tenantID)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO user_roles (tenant_id, user_id, role_id)
		SELECT $1, $2, r.id FROM roles r WHERE r.id = $3 AND r.tenant_id = $1
		ON CONFLICT DO NOTHING`, tenantID, userID, roleID)
	return err
}

// RemoveRole removes a role from a user.
func (s *Service) RemoveRole(ctx context.Context, tenantID, userID, roleID int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM user_roles WHERE tenant_id = $1 AND user_id = $2 AND role_id = $3`, tenantID, userID, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ActorRoleIDs returns the role ids a user holds in a tenant.
func (s *Service) ActorRoleIDs(ctx context.Context, tenantID, userID int64) ([]int64, error) {
	rows, err := s.db.Query(ctx, `
		SELECT ur.role_id
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id AND r.tenant_id = ur.tenant_id
		WHERE ur.tenant_id = $1 AND ur.user_id = $2
		ORDER BY ur.role_id`, tenantID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IsSuperAdmin reports whether the user holds the tenant super-admin role.
func (s *Service) IsSuperAdmin(ctx context.Context, tenantID, userID int64) (bool, error) {
	var super bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM user_roles ur
			JOIN roles r ON r.id = ur.role_id AND r.tenant_id = ur.tenant_id
			WHERE ur.tenant_id = $1 AND ur.user_id = $2 AND r.super_admin
		)`, tenantID, userID).Scan(&super)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}
	return super, nil
}

// EffectivePermissions returns deduplicated permission names for a user.
// Super-admins hold every approval permission.
func (s *Service) EffectivePermissions(ctx context.Context, tenantID, userID int64) ([]string, error) {
	super, err := s.IsSuperAdmin(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	if super {
		return shared.ApprovalScopes(), nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT rp.permission
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id AND r.tenant_id = ur.tenant_id
		JOIN role_permissions rp ON rp.role_id = r.id
		WHERE ur.tenant_id = $1 AND ur.user_id = $2
		ORDER BY rp.permission`, tenantID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	perms := []string{}
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}
