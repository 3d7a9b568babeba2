// Package tokens declares the token store: persisted refresh, reset-password
// and verify-email tokens.
package tokens

import (
	"context"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// Repository defines operations for issuing, retrieving and revoking tokens.
type Repository interface {
	// Create stores the token and fills in ID and CreatedAt.
	Create(ctx context.Context, token *models.Token) error

	// FindActive returns the non-blacklisted record of the given type, or
	// common.ErrorNotFound.
	FindActive(ctx context.Context, token string, typ models.TokenType) (*models.Token, error)

	// Invalidate deletes the non-blacklisted record of the given type and
	// reports whether a row was removed. Concurrent callers race on this;
	// at most one of them sees true.
	Invalidate(ctx context.Context, token string, typ models.TokenType) (bool, error)

	// Blacklist flags a not yet blacklisted record so it can no longer be
	// found or consumed, and reports common.ErrorNotFound when there is none.
	Blacklist(ctx context.Context, token string) error

	// DeleteByUser removes every token of typ that belongs to userID.
	DeleteByUser(ctx context.Context, userID string, typ models.TokenType) error
}
