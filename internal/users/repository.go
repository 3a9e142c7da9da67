package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-admin/meridian-admin/internal/platform/db"
	"github.com/meridian-admin/meridian-admin/internal/shared"
)

// ListFilters narrows user listings.
type ListFilters struct {
	Username string
	Enable   *bool
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, username, password_hash, enable, created_at, updated_at`

// List returns a filtered page of users plus the total match count.
func (r *Repository) List(ctx context.Context, filters ListFilters, limit, offset int) ([]User, int, error) {
	where, args := filterClauses(filters)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM users%s ORDER BY id LIMIT $%d OFFSET $%d`,
		userColumns, where, len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// GetByID fetches a user by id.
func (r *Repository) GetByID(ctx context.Context, id int64) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

// GetByUsername fetches a user by unique username.
func (r *Repository) GetByUsername(ctx context.Context, username string) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	return user, nil
}

// Create inserts a user with an empty profile and optional initial roles
// in one transaction.
func (r *Repository) Create(ctx context.Context, username, passwordHash string, enable bool, roleIDs []int64) (User, error) {
	var created User
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		now := time.Now().UTC()
		row := tx.QueryRow(ctx, `
			INSERT INTO users (username, password_hash, enable, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $4)
			RETURNING `+userColumns,
			username, passwordHash, enable, now)
		user, err := scanUser(row)
		if err != nil {
			return conflictOr(err)
		}

		if _, err := tx.Exec(ctx, `INSERT INTO profiles (user_id, avatar) VALUES ($1, $2)`, user.ID, DefaultAvatar); err != nil {
			return err
		}
		if err := insertUserRoles(ctx, tx, user.ID, roleIDs); err != nil {
			return err
		}
		created = user
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return created, nil
}

// Update overwrites username and enable flag.
func (r *Repository) Update(ctx context.Context, user User) (User, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE users SET username = $2, enable = $3, updated_at = $4
		WHERE id = $1
		RETURNING `+userColumns,
		user.ID, user.Username, user.Enable, time.Now().UTC())
	updated, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, conflictOr(err)
	}
	return updated, nil
}

// UpdatePassword stores a new credential hash.
func (r *Repository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id, passwordHash, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes a user together with profile and role links.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM profiles WHERE user_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// GetProfile fetches the user's profile if one exists.
func (r *Repository) GetProfile(ctx context.Context, userID int64) (Profile, error) {
	var p Profile
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, gender, avatar, email, phone, nick_name FROM profiles WHERE user_id = $1`, userID).
		Scan(&p.ID, &p.UserID, &p.Gender, &p.Avatar, &p.Email, &p.Phone, &p.NickName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, shared.ErrNotFound
		}
		return Profile{}, err
	}
	return p, nil
}

// UpsertProfile creates or updates the user's profile.
func (r *Repository) UpsertProfile(ctx context.Context, p Profile) (Profile, error) {
	if p.Avatar == "" {
		p.Avatar = DefaultAvatar
	}
	var out Profile
	err := r.pool.QueryRow(ctx, `
		INSERT INTO profiles (user_id, gender, avatar, email, phone, nick_name)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE
		SET gender = EXCLUDED.gender, avatar = EXCLUDED.avatar, email = EXCLUDED.email,
		    phone = EXCLUDED.phone, nick_name = EXCLUDED.nick_name
		RETURNING id, user_id, gender, avatar, email, phone, nick_name`,
		p.UserID, p.Gender, p.Avatar, p.Email, p.Phone, p.NickName).
		Scan(&out.ID, &out.UserID, &out.Gender, &out.Avatar, &out.Email, &out.Phone, &out.NickName)
	if err != nil {
		return Profile{}, err
	}
	return out, nil
}

// ListRoles returns role summaries for a user.
func (r *Repository) ListRoles(ctx context.Context, userID int64) ([]RoleSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT r.id, r.code, r.name, r.enable
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []RoleSummary
	for rows.Next() {
		var role RoleSummary
		if err := rows.Scan(&role.ID, &role.Code, &role.Name, &role.Enable); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

// IsSuperuserRole reports whether the given role carries the superuser
// capability flag.
func (r *Repository) IsSuperuserRole(ctx context.Context, roleID int64) (bool, error) {
	var flag bool
	err := r.pool.QueryRow(ctx, `SELECT is_superuser FROM roles WHERE id = $1`, roleID).Scan(&flag)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, shared.ErrNotFound
		}
		return false, err
	}
	return flag, nil
}

// ReplaceRoles clears and reinstalls the user's role set in one
// transaction.
func (r *Repository) ReplaceRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID); err != nil {
			return err
		}
		return insertUserRoles(ctx, tx, userID, roleIDs)
	})
}

func insertUserRoles(ctx context.Context, tx pgx.Tx, userID int64, roleIDs []int64) error {
	for _, roleID := range roleIDs {
		_, err := tx.Exec(ctx,
			`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			userID, roleID)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23503" {
				return fmt.Errorf("%w: role %d does not exist", shared.ErrInvalidInput, roleID)
			}
			return err
		}
	}
	return nil
}

func filterClauses(filters ListFilters) (string, []any) {
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 2)
	if filters.Username != "" {
		args = append(args, "%"+filters.Username+"%")
		clauses = append(clauses, fmt.Sprintf("username ILIKE $%d", len(args)))
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

func scanUser(row pgx.Row) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Enable, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}

func conflictOr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return shared.ErrConflict
	}
	return err
}
