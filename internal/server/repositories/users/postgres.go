package users

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

const selectUser = `
	SELECT id, email, name, username, password_hash, role, provider, provider_id,
	       is_email_verified, profile, profile_picture, created_at, updated_at
	FROM users
`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// wrapWriteErr maps unique-index clashes to the matching sentinel. The driver
// error is dropped there because its text names our indexes.
func wrapWriteErr(err error) error {
	if name, ok := dbx.UniqueViolation(err); ok {
		switch name {
		case "users_username_key":
			return common.ErrUsernameTaken
		case "users_email_key":
			return common.ErrEmailTaken
		default:
			return common.ErrConflict
		}
	}
	return wrapReadErr(err)
}

// wrapReadErr treats a parameter Postgres cannot parse (a malformed UUID) as
// a lookup that matched nothing.
func wrapReadErr(err error) error {
	if dbx.IsInvalidTextRepresentation(err) {
		return common.ErrorNotFound
	}
	return fmt.Errorf("db error: %w", err)
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	profile, err := json.Marshal(user.Profile)
	if err != nil {
		return nil, fmt.Errorf("marshal profile: %w", err)
	}

	query := `
		INSERT INTO users (email, name, username, password_hash, role, provider, provider_id, is_email_verified, profile, profile_picture)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`

	err = r.db.QueryRowContext(ctx, query,
		models.NormalizeEmail(user.Email), user.Name, user.Username, user.PasswordHash,
		string(user.Role), string(user.Provider), user.ProviderID, user.IsEmailVerified,
		profile, user.ProfilePicture,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, wrapWriteErr(err)
	}

	user.Email = models.NormalizeEmail(user.Email)
	return user, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner, extra ...any) (*models.User, error) {
	user := &models.User{}
	var profile []byte

	dest := []any{
		&user.ID, &user.Email, &user.Name, &user.Username, &user.PasswordHash,
		&user.Role, &user.Provider, &user.ProviderID, &user.IsEmailVerified,
		&profile, &user.ProfilePicture, &user.CreatedAt, &user.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	if len(profile) > 0 {
		if err := json.Unmarshal(profile, &user.Profile); err != nil {
			return nil, fmt.Errorf("decode profile: %w", err)
		}
	}

	return user, nil
}

func (r *PostgresRepository) getOne(ctx context.Context, where string, arg any) (*models.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, selectUser+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, wrapReadErr(err)
	}
	return user, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, `WHERE id = $1 AND deleted_at IS NULL`, id)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, `WHERE lower(email) = $1 AND deleted_at IS NULL`, models.NormalizeEmail(email))
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getOne(ctx, `WHERE username = $1 AND deleted_at IS NULL`, username)
}

func (r *PostgresRepository) Update(ctx context.Context, user *models.User) (*models.User, error) {
	profile, err := json.Marshal(user.Profile)
	if err != nil {
		return nil, fmt.Errorf("marshal profile: %w", err)
	}

	query := `
		UPDATE users
		SET email = $2, name = $3, username = $4, profile = $5, profile_picture = $6, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING updated_at
	`

	err = r.db.QueryRowContext(ctx, query,
		user.ID, models.NormalizeEmail(user.Email), user.Name, user.Username, profile, user.ProfilePicture,
	).Scan(&user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, wrapWriteErr(err)
	}

	user.Email = models.NormalizeEmail(user.Email)
	return user, nil
}

var sortColumns = map[string]string{
	"createdAt": "created_at",
	"email":     "email",
	"name":      "name",
	"username":  "username",
}

func (r *PostgresRepository) List(ctx context.Context, opts ListOptions) ([]*models.User, int, error) {
	col, ok := sortColumns[opts.SortBy]
	if !ok {
		col = "created_at"
	}
	dir := "ASC"
	if opts.Desc {
		dir = "DESC"
	}

	query := `
		SELECT id, email, name, username, password_hash, role, provider, provider_id,
		       is_email_verified, profile, profile_picture, created_at, updated_at,
		       count(*) OVER ()
		FROM users
		WHERE deleted_at IS NULL
		ORDER BY ` + col + ` ` + dir + `, id
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var (
		users []*models.User
		total int
	)
	for rows.Next() {
		u, err := scanUser(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("db error: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	return users, total, nil
}

// execOne runs a single-row update and reports ErrorNotFound when nothing matched.
func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapReadErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	return r.execOne(ctx, `
		UPDATE users SET password_hash = $2, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id, passwordHash)
}

func (r *PostgresRepository) SetEmailVerified(ctx context.Context, id string) error {
	return r.execOne(ctx, `
		UPDATE users SET is_email_verified = true, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, id string) error {
	return r.execOne(ctx, `
		UPDATE users SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL
	`, id)
}
