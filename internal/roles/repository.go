package roles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-admin/meridian-admin/internal/permissions"
	"github.com/meridian-admin/meridian-admin/internal/platform/db"
	"github.com/meridian-admin/meridian-admin/internal/shared"
)

// ListFilters narrows role listings.
type ListFilters struct {
	Code   string
	Name   string
	Enable *bool
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// List returns a filtered page of roles plus the total match count.
func (r *Repository) List(ctx context.Context, filters ListFilters, limit, offset int) ([]Role, int, error) {
	where, args := filterClauses(filters)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM roles`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT id, code, name, enable, is_superuser FROM roles%s ORDER BY id LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	roles, err := scanRoles(rows)
	if err != nil {
		return nil, 0, err
	}
	return roles, total, nil
}

// GetByID fetches a role by id.
func (r *Repository) GetByID(ctx context.Context, id int64) (Role, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, code, name, enable, is_superuser FROM roles WHERE id = $1`, id)
	role, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// Create inserts a new role.
func (r *Repository) Create(ctx context.Context, role Role) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO roles (code, name, enable, is_superuser)
		VALUES ($1, $2, $3, $4)
		RETURNING id, code, name, enable, is_superuser`,
		role.Code, role.Name, role.Enable, role.IsSuperuser)
	created, err := scanRole(row)
	if err != nil {
		return Role{}, conflictOr(err)
	}
	return created, nil
}

// Update overwrites an existing role.
func (r *Repository) Update(ctx context.Context, role Role) (Role, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE roles SET code = $2, name = $3, enable = $4, is_superuser = $5
		WHERE id = $1
		RETURNING id, code, name, enable, is_superuser`,
		role.ID, role.Code, role.Name, role.Enable, role.IsSuperuser)
	updated, err := scanRole(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, conflictOr(err)
	}
	return updated, nil
}

// Delete removes a role and its associations.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE role_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// ListPermissions returns permission summaries granted to the role.
func (r *Repository) ListPermissions(ctx context.Context, roleID int64) ([]permissions.Summary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.id, p.name, p.code, p.kind, p.parent_id
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1
		ORDER BY p.id`, roleID)
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

// ListPermissionIDs returns the permission id set per role for the given
// role ids.
func (r *Repository) ListPermissionIDs(ctx context.Context, roleIDs []int64) (map[int64][]int64, error) {
	result := make(map[int64][]int64, len(roleIDs))
	if len(roleIDs) == 0 {
		return result, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT role_id, permission_id FROM role_permissions WHERE role_id = ANY($1) ORDER BY role_id, permission_id`,
		roleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var roleID, permID int64
		if err := rows.Scan(&roleID, &permID); err != nil {
			return nil, err
		}
		result[roleID] = append(result[roleID], permID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ReplacePermissions clears and reinstalls a role's permission set inside
// one transaction, so a crash cannot leave the association empty.
func (r *Repository) ReplacePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		return insertRolePermissions(ctx, tx, roleID, permissionIDs)
	})
}

// AddPermissions merges the given permission ids into the role's set.
func (r *Repository) AddPermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return insertRolePermissions(ctx, tx, roleID, permissionIDs)
	})
}

// ListMembers returns users holding the role.
func (r *Repository) ListMembers(ctx context.Context, roleID int64) ([]Member, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.id, u.username, u.enable
		FROM users u
		JOIN user_roles ur ON ur.user_id = u.id
		WHERE ur.role_id = $1
		ORDER BY u.id`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ID, &m.Username, &m.Enable); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return members, nil
}

// CountRoles returns total and enabled role counts.
func (r *Repository) CountRoles(ctx context.Context) (total, active int, err error) {
	err = r.pool.QueryRow(ctx, `SELECT COUNT(*), COUNT(*) FILTER (WHERE enable) FROM roles`).Scan(&total, &active)
	return total, active, err
}

// CountUsers returns the total user count.
func (r *Repository) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// CountPermissions returns the total permission count.
func (r *Repository) CountPermissions(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM permissions`).Scan(&n)
	return n, err
}

func insertRolePermissions(ctx context.Context, tx pgx.Tx, roleID int64, permissionIDs []int64) error {
	for _, permID := range permissionIDs {
		_, err := tx.Exec(ctx,
			`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			roleID, permID)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23503" {
				return fmt.Errorf("%w: permission %d does not exist", shared.ErrInvalidInput, permID)
			}
			return err
		}
	}
	return nil
}

func filterClauses(filters ListFilters) (string, []any) {
	clauses := make([]string, 0, 3)
	args := make([]any, 0, 3)
	if filters.Code != "" {
		args = append(args, "%"+filters.Code+"%")
		clauses = append(clauses, fmt.Sprintf("code ILIKE $%d", len(args)))
	}
	if filters.Name != "" {
		args = append(args, "%"+filters.Name+"%")
		clauses = append(clauses, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	if filters.Enable != nil {
		args = append(args, *filters.Enable)
		clauses = append(clauses, fmt.Sprintf("enable = $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanRoles(rows pgx.Rows) ([]Role, error) {
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Code, &role.Name, &role.Enable, &role.IsSuperuser)
	return role, err
}

func conflictOr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.ErrConflict
	}
	return err
}
