package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
)

const (
	RightUserRead   = "user:read"
	RightUserCreate = "user:create"
	RightUserUpdate = "user:update"
	RightUserDelete = "user:delete"
)

// RoleRights maps each role to the rights it grants.
type RoleRights map[models.Role][]string

func DefaultRoleRights() RoleRights {
	return RoleRights{
		models.RoleUser:  {},
		models.RoleAdmin: {RightUserRead, RightUserCreate, RightUserUpdate, RightUserDelete},
	}
}

// Holds reports whether role grants every one of required.
func (rr RoleRights) Holds(role models.Role, required ...string) bool {
	granted := rr[role]
	for _, r := range required {
		if !slices.Contains(granted, r) {
			return false
		}
	}
	return true
}

type UserLookup interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// Guard authenticates bearer access tokens and enforces role rights.
type Guard struct {
	issuer *Issuer
	users  UserLookup
	rights RoleRights
	logger logging.Logger
}

func NewGuard(issuer *Issuer, users UserLookup, rights RoleRights, logger logging.Logger) *Guard {
	if rights == nil {
		rights = DefaultRoleRights()
	}
	return &Guard{issuer: issuer, users: users, rights: rights, logger: logger.With("module", "guard")}
}

// Authenticate resolves the user behind an access token.
func (g *Guard) Authenticate(ctx context.Context, accessToken string) (*models.User, error) {
	claims, err := g.issuer.Verify(accessToken, models.TokenAccess, nil)
	if err != nil {
		g.logger.Debug(ctx, "access token rejected", "error", err)
		return nil, common.ErrorUnauthorized
	}

	user, err := g.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	return user, nil
}

// Authorize authenticates the token and, when required is non-empty, checks
// that the user's role holds all of it. Acting on one's own id
// (targetUserID == user.ID) is always allowed.
func (g *Guard) Authorize(ctx context.Context, accessToken, targetUserID string, required ...string) (*models.User, error) {
	user, err := g.Authenticate(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	if len(required) == 0 {
		return user, nil
	}

	if g.rights.Holds(user.Role, required...) || (targetUserID != "" && targetUserID == user.ID) {
		return user, nil
	}

	g.logger.Info(ctx, "access denied", "user_id", user.ID, "role", user.Role, "required", required)
	return nil, common.ErrForbidden
}
