package tokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, token *models.Token) error {
	query := `
		INSERT INTO tokens (token, user_id, type, expires_at, blacklisted)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		token.Token, token.UserID, string(token.Type), token.Expires, token.Blacklisted,
	).Scan(&token.ID, &token.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return fmt.Errorf("%w: token already stored", common.ErrConflict)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindActive(ctx context.Context, token string, typ models.TokenType) (*models.Token, error) {
	query := `
		SELECT id, token, user_id, type, expires_at, blacklisted, created_at
		FROM tokens
		WHERE token = $1 AND type = $2 AND blacklisted = false
	`
	t := &models.Token{}
	err := r.db.QueryRowContext(ctx, query, token, string(typ)).
		Scan(&t.ID, &t.Token, &t.UserID, &t.Type, &t.Expires, &t.Blacklisted, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) Invalidate(ctx context.Context, token string, typ models.TokenType) (bool, error) {
	query := `
		DELETE FROM tokens
		WHERE token = $1 AND type = $2 AND blacklisted = false
	`
	res, err := r.db.ExecContext(ctx, query, token, string(typ))
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

// Blacklist flags a live record. Only one of several concurrent callers
// succeeds; the rest get common.ErrorNotFound.
func (r *PostgresRepository) Blacklist(ctx context.Context, token string) error {
	query := `
		UPDATE tokens SET blacklisted = true
		WHERE token = $1 AND blacklisted = false
	`
	res, err := r.db.ExecContext(ctx, query, token)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
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

func (r *PostgresRepository) DeleteByUser(ctx context.Context, userID string, typ models.TokenType) error {
	query := `
		DELETE FROM tokens
		WHERE user_id = $1 AND type = $2
	`
	if _, err := r.db.ExecContext(ctx, query, userID, string(typ)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
