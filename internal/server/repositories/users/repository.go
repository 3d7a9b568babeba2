// Package users declares the credential store: persistence of user accounts.
package users

import (
	"context"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

// Repository stores users. Soft-deleted users are invisible to every lookup,
// which returns common.ErrorNotFound for them.
type Repository interface {
	// Create inserts the user and fills in ID and timestamps.
	// A clash on email or username yields common.ErrConflict.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	GetByID(ctx context.Context, id string) (*models.User, error)

	// GetByEmail matches case-insensitively.
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	GetByUsername(ctx context.Context, username string) (*models.User, error)

	// Update writes the mutable profile fields (name, email, username,
	// profile, profile picture) and bumps UpdatedAt.
	Update(ctx context.Context, user *models.User) (*models.User, error)

	// List returns one page of live users plus the total count.
	List(ctx context.Context, opts ListOptions) ([]*models.User, int, error)

	UpdatePassword(ctx context.Context, id string, passwordHash string) error
	SetEmailVerified(ctx context.Context, id string) error
	SoftDelete(ctx context.Context, id string) error
}

// ListOptions pages through users. SortBy is one of "createdAt", "email",
// "name" or "username"; anything else sorts by creation time.
type ListOptions struct {
	SortBy string
	Desc   bool
	Limit  int
	Offset int
}
