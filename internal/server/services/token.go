// Package services contains server-side business logic: issuing and
// checking tokens, the register/login/refresh flows and user management.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/users"
)

// IssuedToken is a signed token and its absolute expiry.
type IssuedToken struct {
	Token   string
	Expires time.Time
}

// AuthTokens bundles a short-lived access token and a long-lived refresh token.
type AuthTokens struct {
	Access  IssuedToken
	Refresh IssuedToken
}

// TokenService mints tokens and performs the two-part validity check for
// persisted ones: the JWT must verify and the stored record must still be live.
type TokenService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	issuer      *auth.Issuer
	logger      logging.Logger

	verifyEmailSecret []byte

	accessTTL      time.Duration
	refreshTTL     time.Duration
	resetTTL       time.Duration
	verifyEmailTTL time.Duration
}

func NewTokenService(db *sql.DB, m repomanager.RepositoryManager, issuer *auth.Issuer, cfg *config.Config, logger logging.Logger) *TokenService {
	return &TokenService{
		db:                db,
		repomanager:       m,
		issuer:            issuer,
		logger:            logger.With("module", "token_service"),
		verifyEmailSecret: []byte(cfg.VerifyEmailSecret),
		accessTTL:         cfg.AccessTokenTTL,
		refreshTTL:        cfg.RefreshTokenTTL,
		resetTTL:          cfg.ResetTokenTTL,
		verifyEmailTTL:    cfg.VerifyEmailTokenTTL,
	}
}

// secretFor returns nil (the issuer default) for everything but verify-email tokens.
func (s *TokenService) secretFor(typ models.TokenType) []byte {
	if typ == models.TokenVerifyEmail {
		return s.verifyEmailSecret
	}
	return nil
}

// issueAndSave signs a token and persists it through db.
func (s *TokenService) issueAndSave(ctx context.Context, db dbx.DBTX, userID string, typ models.TokenType, ttl time.Duration) (*IssuedToken, error) {
	signed, expires, err := s.issuer.Issue(userID, typ, ttl, s.secretFor(typ))
	if err != nil {
		return nil, fmt.Errorf("issue %s token: %w", typ, err)
	}

	rec := &models.Token{Token: signed, UserID: userID, Type: typ, Expires: expires}
	if err := s.repomanager.Tokens(db).Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("save %s token: %w", typ, err)
	}

	return &IssuedToken{Token: signed, Expires: expires}, nil
}

// GenerateAuthTokens mints an access token (not stored) and a refresh token
// persisted through db, which may be a transaction.
func (s *TokenService) GenerateAuthTokens(ctx context.Context, db dbx.DBTX, userID string) (*AuthTokens, error) {
	access, accessExpires, err := s.issuer.Issue(userID, models.TokenAccess, s.accessTTL, nil)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	refresh, err := s.issueAndSave(ctx, db, userID, models.TokenRefresh, s.refreshTTL)
	if err != nil {
		return nil, err
	}

	return &AuthTokens{
		Access:  IssuedToken{Token: access, Expires: accessExpires},
		Refresh: *refresh,
	}, nil
}

// GenerateResetPasswordToken looks the user up by email or username and
// issues a reset-password token for them.
func (s *TokenService) GenerateResetPasswordToken(ctx context.Context, identifier string) (*models.User, *IssuedToken, error) {
	user, err := findByIdentifier(ctx, s.repomanager.Users(s.db), identifier)
	if err != nil {
		return nil, nil, err
	}

	tok, err := s.issueAndSave(ctx, s.db, user.ID, models.TokenResetPassword, s.resetTTL)
	if err != nil {
		return nil, nil, err
	}
	return user, tok, nil
}

// GenerateVerifyEmailToken issues a verify-email token signed with its own secret.
func (s *TokenService) GenerateVerifyEmailToken(ctx context.Context, user *models.User) (*IssuedToken, error) {
	return s.issueAndSave(ctx, s.db, user.ID, models.TokenVerifyEmail, s.verifyEmailTTL)
}

// VerifyToken accepts a persisted token only if the JWT verifies for typ, a
// non-blacklisted record exists, it belongs to the token's subject and it has
// not expired. A failed check wraps common.ErrInvalidToken (or the issuer's
// more specific error); store failures are returned as is.
func (s *TokenService) VerifyToken(ctx context.Context, db dbx.DBTX, token string, typ models.TokenType) (*models.Token, error) {
	claims, err := s.issuer.Verify(token, typ, s.secretFor(typ))
	if err != nil {
		return nil, err
	}

	rec, err := s.repomanager.Tokens(db).FindActive(ctx, token, typ)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: no active record", common.ErrInvalidToken)
		}
		return nil, err
	}

	if rec.UserID != claims.Subject {
		return nil, fmt.Errorf("%w: subject mismatch", common.ErrInvalidToken)
	}
	if !rec.Usable(s.issuer.Now()) {
		return nil, fmt.Errorf("%w: record expired", common.ErrTokenExpired)
	}

	return rec, nil
}

// findByIdentifier resolves an email (anything containing "@") or a username.
func findByIdentifier(ctx context.Context, repo users.Repository, identifier string) (*models.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, fmt.Errorf("%w: email or username is required", common.ErrorValidation)
	}
	if strings.Contains(identifier, "@") {
		return repo.GetByEmail(ctx, identifier)
	}
	return repo.GetByUsername(ctx, identifier)
}
