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
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/users"
	"github.com/dmitrijs2005/gophauth/internal/server/storage"
)

type PasswordHasher interface {
	Hash(ctx context.Context, password string) (string, error)
	Verify(ctx context.Context, password, hash string) (bool, error)
}

type AvatarStorage interface {
	PresignUpload(ctx context.Context, userID, contentType string) (key string, url string, err error)
	PresignDownload(ctx context.Context, key string) (string, error)
}

type CreateUserInput struct {
	Email    string
	Password string
	Name     string
	Role     models.Role
}

// UpdateUserInput carries the fields to change; nil means keep.
type UpdateUserInput struct {
	Email    *string
	Name     *string
	Password *string
	Profile  *models.Profile
}

// UserPage is one page of a user listing.
type UserPage struct {
	Users        []*models.User
	Page         int
	Limit        int
	TotalPages   int
	TotalResults int
}

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
	usernameAttempts = 5
)

type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      PasswordHasher
	avatars     AvatarStorage
	logger      logging.Logger
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, hasher PasswordHasher, avatars AvatarStorage, logger logging.Logger) *UserService {
	return &UserService{
		db:          db,
		repomanager: m,
		hasher:      hasher,
		avatars:     avatars,
		logger:      logger.With("module", "user_service"),
	}
}

// GetByID returns a live user or common.ErrorNotFound.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	return s.repomanager.Users(s.db).GetByID(ctx, id)
}

// GetByIdentifier looks up by email when identifier contains "@", else by username.
func (s *UserService) GetByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	return findByIdentifier(ctx, s.repomanager.Users(s.db), identifier)
}

// Create hashes the password and stores a password-provider user. A taken
// email yields common.ErrConflict. A username taken between the availability
// check and the insert is retried with a fresh suffix.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (*models.User, error) {
	repo := s.repomanager.Users(s.db)

	if _, err := repo.GetByEmail(ctx, in.Email); err == nil {
		return nil, common.ErrEmailTaken
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return nil, err
	}

	base := models.DeriveUsername(in.Name, in.Email)
	username, err := s.uniqueUsername(ctx, repo, base, "")
	if err != nil {
		return nil, err
	}

	role := in.Role
	if role == "" {
		role = models.RoleUser
	}

	for attempt := 1; ; attempt++ {
		user := &models.User{
			Email:        in.Email,
			Name:         in.Name,
			Username:     username,
			PasswordHash: hash,
			Role:         role,
			Provider:     models.ProviderPassword,
			Profile:      models.Profile{Gender: models.GenderOther, Links: []models.Link{}},
		}

		created, err := repo.Create(ctx, user)
		if err == nil {
			s.logger.Info(ctx, "user created", "user_id", created.ID, "role", created.Role)
			return created, nil
		}
		if !errors.Is(err, common.ErrUsernameTaken) {
			return nil, err
		}
		if attempt >= usernameAttempts {
			return nil, fmt.Errorf("%w: could not derive a free username", common.ErrConflict)
		}

		s.logger.Debug(ctx, "username taken on insert, retrying", "username", username, "attempt", attempt)
		if username, err = suffixed(base); err != nil {
			return nil, err
		}
	}
}

func suffixed(base string) (string, error) {
	suffix, err := common.MakeRandHexString(2)
	if err != nil {
		return "", err
	}
	return base + "." + suffix, nil
}

// uniqueUsername returns base, or base with a short random suffix when another
// live user (not selfID) already holds it.
func (s *UserService) uniqueUsername(ctx context.Context, repo users.Repository, base, selfID string) (string, error) {
	candidate := base
	for i := 0; i < usernameAttempts; i++ {
		other, err := repo.GetByUsername(ctx, candidate)
		if errors.Is(err, common.ErrorNotFound) || (err == nil && other.ID == selfID) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}

		if candidate, err = suffixed(base); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: could not derive a free username", common.ErrConflict)
}

// List returns users page by page (1-based).
func (s *UserService) List(ctx context.Context, sortBy string, desc bool, page, limit int) (*UserPage, error) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if page <= 0 {
		page = 1
	}

	list, total, err := s.repomanager.Users(s.db).List(ctx, users.ListOptions{
		SortBy: sortBy,
		Desc:   desc,
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		return nil, err
	}

	return &UserPage{
		Users:        list,
		Page:         page,
		Limit:        limit,
		TotalPages:   (total + limit - 1) / limit,
		TotalResults: total,
	}, nil
}

// Update applies in to user id. Changing the name re-derives the username;
// changing the password rehashes it and drops the user's refresh tokens.
func (s *UserService) Update(ctx context.Context, id string, in UpdateUserInput) (*models.User, error) {
	var updated *models.User

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		user, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}

		if in.Email != nil && models.NormalizeEmail(*in.Email) != user.Email {
			if _, err := repo.GetByEmail(ctx, *in.Email); err == nil {
				return fmt.Errorf("%w: email already taken", common.ErrConflict)
			} else if !errors.Is(err, common.ErrorNotFound) {
				return err
			}
			user.Email = *in.Email
			user.IsEmailVerified = false
		}

		if in.Name != nil {
			user.Name = *in.Name
			username, err := s.uniqueUsername(ctx, repo, models.DeriveUsername(user.Name, user.Email), user.ID)
			if err != nil {
				return err
			}
			user.Username = username
		}

		if in.Profile != nil {
			user.Profile = *in.Profile
		}

		if updated, err = repo.Update(ctx, user); err != nil {
			return err
		}

		if in.Password != nil {
			hash, err := s.hasher.Hash(ctx, *in.Password)
			if err != nil {
				return err
			}
			if err := repo.UpdatePassword(ctx, user.ID, hash); err != nil {
				return err
			}
			if err := s.repomanager.Tokens(tx).DeleteByUser(ctx, user.ID, models.TokenRefresh); err != nil {
				return err
			}
			updated.PasswordHash = hash
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// Delete soft-deletes the user and revokes every stored token they hold.
func (s *UserService) Delete(ctx context.Context, id string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Users(tx).SoftDelete(ctx, id); err != nil {
			return err
		}

		tokens := s.repomanager.Tokens(tx)
		for _, typ := range []models.TokenType{models.TokenRefresh, models.TokenResetPassword, models.TokenVerifyEmail} {
			if err := tokens.DeleteByUser(ctx, id, typ); err != nil {
				return err
			}
		}

		s.logger.Info(ctx, "user deleted", "user_id", id)
		return nil
	})
}

// AvatarUploadURL presigns an upload under a fresh key and records the key as
// the user's profile picture.
func (s *UserService) AvatarUploadURL(ctx context.Context, id, contentType string) (string, string, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return "", "", err
	}

	key, url, err := s.avatars.PresignUpload(ctx, user.ID, contentType)
	if err != nil {
		return "", "", err
	}

	user.ProfilePicture = key
	if _, err := s.repomanager.Users(s.db).Update(ctx, user); err != nil {
		return "", "", err
	}

	return key, url, nil
}

// AvatarURL presigns a download of the user's current profile picture.
func (s *UserService) AvatarURL(ctx context.Context, id string) (string, error) {
	user, err := s.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	if user.ProfilePicture == "" || !storage.OwnsKey(user.ID, user.ProfilePicture) {
		return "", fmt.Errorf("%w: no profile picture", common.ErrorNotFound)
	}
	return s.avatars.PresignDownload(ctx, user.ProfilePicture)
}
