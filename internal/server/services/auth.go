package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/notify"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
)

type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// AuthService implements the credential flows. Refresh tokens move through
// issued → consumed (replaced by a new one), revoked (logout) or expired.
type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	users       *UserService
	tokens      *TokenService
	hasher      PasswordHasher
	notifier    notify.Notifier
	logger      logging.Logger
}

func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, users *UserService, tokens *TokenService,
	hasher PasswordHasher, notifier notify.Notifier, logger logging.Logger) *AuthService {
	return &AuthService{
		db:          db,
		repomanager: m,
		users:       users,
		tokens:      tokens,
		hasher:      hasher,
		notifier:    notifier,
		logger:      logger.With("module", "auth_service"),
	}
}

// Register creates a regular user.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	return s.users.Create(ctx, CreateUserInput{
		Email:    in.Email,
		Password: in.Password,
		Name:     in.Name,
		Role:     models.RoleUser,
	})
}

// IssueTokens mints a fresh access/refresh pair for userID.
func (s *AuthService) IssueTokens(ctx context.Context, userID string) (*AuthTokens, error) {
	return s.tokens.GenerateAuthTokens(ctx, s.db, userID)
}

// Login checks the password of the user named by identifier (email when it
// contains "@", else username). Unknown users are common.ErrorNotFound, wrong
// passwords common.ErrorUnauthorized.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*models.User, error) {
	user, err := findByIdentifier(ctx, s.repomanager.Users(s.db), identifier)
	if err != nil {
		return nil, err
	}

	ok, err := s.hasher.Verify(ctx, password, user.PasswordHash)
	if err != nil {
		s.logger.Error(ctx, "stored password hash unusable", "user_id", user.ID, "error", err)
		return nil, fmt.Errorf("%w: incorrect email or password", common.ErrorUnauthorized)
	}
	if !ok {
		return nil, fmt.Errorf("%w: incorrect email or password", common.ErrorUnauthorized)
	}

	return user, nil
}

// Logout revokes a refresh token by blacklisting its record; the row stays
// until the owner is deleted. A token that is unknown, already consumed or
// already revoked yields common.ErrorNotFound, so a second logout fails.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	repo := s.repomanager.Tokens(s.db)

	rec, err := repo.FindActive(ctx, refreshToken, models.TokenRefresh)
	if err != nil {
		return err
	}

	if err := repo.Blacklist(ctx, refreshToken); err != nil {
		return err
	}

	s.logger.Info(ctx, "refresh token revoked", "user_id", rec.UserID)
	return nil
}

func errPleaseAuthenticate() error {
	return fmt.Errorf("%w: please authenticate", common.ErrorUnauthorized)
}

// Refresh consumes a refresh token and returns a new pair. The old record is
// deleted conditionally inside the same transaction that stores the new one,
// so of two concurrent calls with the same token at most one succeeds.
// Every failure is reported as common.ErrorUnauthorized.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthTokens, error) {
	var pair *AuthTokens

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		rec, err := s.tokens.VerifyToken(ctx, tx, refreshToken, models.TokenRefresh)
		if err != nil {
			return fmt.Errorf("verify: %w", err)
		}

		user, err := s.repomanager.Users(tx).GetByID(ctx, rec.UserID)
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}

		consumed, err := s.repomanager.Tokens(tx).Invalidate(ctx, refreshToken, models.TokenRefresh)
		if err != nil {
			return fmt.Errorf("consume: %w", err)
		}
		if !consumed {
			return errors.New("consume: token already used")
		}

		pair, err = s.tokens.GenerateAuthTokens(ctx, tx, user.ID)
		return err
	})
	if err != nil {
		s.logger.Info(ctx, "refresh rejected", "error", err)
		return nil, errPleaseAuthenticate()
	}

	return pair, nil
}

// ForgotPassword issues a reset-password token for the user and publishes a
// notification carrying it. The token is also returned to the caller.
func (s *AuthService) ForgotPassword(ctx context.Context, identifier string) (string, error) {
	user, tok, err := s.tokens.GenerateResetPasswordToken(ctx, identifier)
	if err != nil {
		return "", err
	}

	err = s.notifier.Notify(ctx, notify.Event{
		Type:       notify.EventPasswordResetRequested,
		UserID:     user.ID,
		Email:      user.Email,
		Name:       user.Name,
		Token:      tok.Token,
		ExpiresAt:  tok.Expires,
		OccurredAt: s.tokens.issuer.Now(),
	})
	if err != nil {
		return "", err
	}

	return tok.Token, nil
}

// ResetPassword replaces the password of the reset token's owner and revokes
// all of their reset-password tokens.
func (s *AuthService) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	hash, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		return err
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		rec, err := s.tokens.VerifyToken(ctx, tx, resetToken, models.TokenResetPassword)
		if err != nil {
			return err
		}

		users := s.repomanager.Users(tx)
		user, err := users.GetByID(ctx, rec.UserID)
		if err != nil {
			return err
		}

		if err := users.UpdatePassword(ctx, user.ID, hash); err != nil {
			return err
		}
		return s.repomanager.Tokens(tx).DeleteByUser(ctx, user.ID, models.TokenResetPassword)
	})
	if err != nil {
		s.logger.Info(ctx, "password reset rejected", "error", err)
		return fmt.Errorf("%w: password reset failed", common.ErrorUnauthorized)
	}

	return nil
}

// SendVerificationEmail issues a verify-email token for userID and publishes it.
func (s *AuthService) SendVerificationEmail(ctx context.Context, userID string) (string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}

	tok, err := s.tokens.GenerateVerifyEmailToken(ctx, user)
	if err != nil {
		return "", err
	}

	err = s.notifier.Notify(ctx, notify.Event{
		Type:       notify.EventVerifyEmailRequested,
		UserID:     user.ID,
		Email:      user.Email,
		Name:       user.Name,
		Token:      tok.Token,
		ExpiresAt:  tok.Expires,
		OccurredAt: s.tokens.issuer.Now(),
	})
	if err != nil {
		return "", err
	}

	return tok.Token, nil
}

// VerifyEmail marks the token owner's email as verified and revokes their
// verify-email tokens.
func (s *AuthService) VerifyEmail(ctx context.Context, verifyToken string) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		rec, err := s.tokens.VerifyToken(ctx, tx, verifyToken, models.TokenVerifyEmail)
		if err != nil {
			return err
		}

		users := s.repomanager.Users(tx)
		if _, err := users.GetByID(ctx, rec.UserID); err != nil {
			return err
		}

		if err := s.repomanager.Tokens(tx).DeleteByUser(ctx, rec.UserID, models.TokenVerifyEmail); err != nil {
			return err
		}
		return users.SetEmailVerified(ctx, rec.UserID)
	})
	if err != nil {
		s.logger.Info(ctx, "email verification rejected", "error", err)
		return fmt.Errorf("%w: email verification failed", common.ErrorUnauthorized)
	}

	return nil
}
