package permissions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-admin/meridian-admin/internal/shared"
)

const permissionColumns = `id, name, code, kind, parent_id, path, redirect, icon, component, layout, keep_alive, method, description, show, enable, sort_order`

// ListFilters narrows permission listings.
type ListFilters struct {
	Name   string
	Code   string
	Kind   Kind
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

// ListAll returns every permission ordered by weight then id.
func (r *Repository) ListAll(ctx context.Context) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+permissionColumns+` FROM permissions ORDER BY sort_order NULLS LAST, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// List returns a filtered page of permissions plus the total match count.
func (r *Repository) List(ctx context.Context, filters ListFilters, limit, offset int) ([]Permission, int, error) {
	where, args := filterClauses(filters)

	var total int
	countQuery := `SELECT COUNT(*) FROM permissions` + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM permissions%s ORDER BY sort_order NULLS LAST, id LIMIT $%d OFFSET $%d`,
		permissionColumns, where, len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	perms, err := scanPermissions(rows)
	if err != nil {
		return nil, 0, err
	}
	return perms, total, nil
}

// GetByID fetches a permission by id.
func (r *Repository) GetByID(ctx context.Context, id int64) (Permission, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = $1`, id)
	p, err := scanPermission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, shared.ErrNotFound
		}
		return Permission{}, err
	}
	return p, nil
}

// ListByIDs fetches permissions for the given id set, preserving the
// repository's weight ordering.
func (r *Repository) ListByIDs(ctx context.Context, ids []int64) ([]Permission, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+permissionColumns+` FROM permissions WHERE id = ANY($1) ORDER BY sort_order NULLS LAST, id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// ListButtons returns enabled BUTTON permissions under the given menu.
func (r *Repository) ListButtons(ctx context.Context, menuID int64) ([]Permission, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+permissionColumns+` FROM permissions WHERE kind = $1 AND parent_id = $2 AND enable ORDER BY sort_order NULLS LAST, id`,
		KindButton, menuID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPermissions(rows)
}

// Create inserts a new permission.
func (r *Repository) Create(ctx context.Context, p Permission) (Permission, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO permissions (name, code, kind, parent_id, path, redirect, icon, component, layout, keep_alive, method, description, show, enable, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING `+permissionColumns,
		p.Name, p.Code, p.Kind, p.ParentID, p.Path, p.Redirect, p.Icon, p.Component, p.Layout,
		p.KeepAlive, p.Method, p.Description, p.Show, p.Enable, p.Order)
	created, err := scanPermission(row)
	if err != nil {
		return Permission{}, conflictOr(err)
	}
	return created, nil
}

// Update overwrites an existing permission.
func (r *Repository) Update(ctx context.Context, p Permission) (Permission, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE permissions
		SET name = $2, code = $3, kind = $4, parent_id = $5, path = $6, redirect = $7, icon = $8,
		    component = $9, layout = $10, keep_alive = $11, method = $12, description = $13,
		    show = $14, enable = $15, sort_order = $16
		WHERE id = $1
		RETURNING `+permissionColumns,
		p.ID, p.Name, p.Code, p.Kind, p.ParentID, p.Path, p.Redirect, p.Icon, p.Component,
		p.Layout, p.KeepAlive, p.Method, p.Description, p.Show, p.Enable, p.Order)
	updated, err := scanPermission(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, shared.ErrNotFound
		}
		return Permission{}, conflictOr(err)
	}
	return updated, nil
}

// Delete removes a permission by id.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Stats aggregates kind and state counts in one scan.
func (r *Repository) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE kind = $1),
			COUNT(*) FILTER (WHERE kind = $2),
			COUNT(*) FILTER (WHERE enable),
			COUNT(*) FILTER (WHERE NOT enable)
		FROM permissions`, KindMenu, KindButton).
		Scan(&s.MenuCount, &s.ButtonCount, &s.EnabledCount, &s.DisabledCount)
	if err != nil {
		return Stats{}, err
	}
	return s, nil
}

func filterClauses(filters ListFilters) (string, []any) {
	clauses := make([]string, 0, 4)
	args := make([]any, 0, 4)
	if filters.Name != "" {
		args = append(args, "%"+filters.Name+"%")
		clauses = append(clauses, fmt.Sprintf("name ILIKE $%d", len(args)))
	}
	if filters.Code != "" {
		args = append(args, "%"+filters.Code+"%")
		clauses = append(clauses, fmt.Sprintf("code ILIKE $%d", len(args)))
	}
	if filters.Kind != "" {
		args = append(args, filters.Kind)
		clauses = append(clauses, fmt.Sprintf("kind = $%d", len(args)))
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

func scanPermissions(rows pgx.Rows) ([]Permission, error) {
	var perms []Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perms, nil
}

func scanPermission(row pgx.Row) (Permission, error) {
	var p Permission
	err := row.Scan(&p.ID, &p.Name, &p.Code, &p.Kind, &p.ParentID, &p.Path, &p.Redirect, &p.Icon,
		&p.Component, &p.Layout, &p.KeepAlive, &p.Method, &p.Description, &p.Show, &p.Enable, &p.Order)
	return p, err
}

func conflictOr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.ErrConflict
	}
	return err
}
