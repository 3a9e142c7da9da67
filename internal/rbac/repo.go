package rbac

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-admin/meridian-admin/internal/permissions"
)

// Repository resolves role and permission associations for principals.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UserExists reports whether the principal id resolves.
func (r *Repository) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	return exists, err
}

// ListUserRoles returns every role assigned to the user, enabled or not.
func (r *Repository) ListUserRoles(ctx context.Context, userID int64) ([]RoleRef, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.id, r.code, r.name, r.enable, r.is_superuser
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []RoleRef
	for rows.Next() {
		var role RoleRef
		if err := rows.Scan(&role.ID, &role.Code, &role.Name, &role.Enable, &role.IsSuperuser); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// ListGrantedPermissions returns the permission summaries reachable
// through the user's enabled roles, in role then permission order.
// Overlapping roles yield duplicates; the aggregator dedups first-seen.
func (r *Repository) ListGrantedPermissions(ctx context.Context, userID int64) ([]permissions.Summary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.name, p.code, p.kind, p.parent_id
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		JOIN roles r ON r.id = rp.role_id AND r.enable
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.id, p.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []permissions.Summary
	for rows.Next() {
		var s permissions.Summary
		if err := rows.Scan(&s.ID, &s.Name, &s.Code, &s.Kind, &s.ParentID); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return summaries, nil
}
