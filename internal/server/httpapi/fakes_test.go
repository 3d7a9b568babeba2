package httpapi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
)

// memBackend stands in for both services. Refresh tokens are single use.
type memBackend struct {
	mu        sync.Mutex
	issuer    *auth.Issuer
	users     map[string]*models.User
	passwords map[string]string
	refresh   map[string]string
	seq       int

	lastList struct {
		sortBy      string
		desc        bool
		page, limit int
	}
	resetCalls []string
}

func newMemBackend(iss *auth.Issuer) *memBackend {
	return &memBackend{
		issuer:    iss,
		users:     map[string]*models.User{},
		passwords: map[string]string{},
		refresh:   map[string]string{},
	}
}

func (m *memBackend) add(email, password, name string, role models.Role) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	email = models.NormalizeEmail(email)
	for _, u := range m.users {
		if u.Email == email {
			return nil, fmt.Errorf("%w: email already taken", common.ErrConflict)
		}
	}
	m.seq++
	u := &models.User{
		ID:       fmt.Sprintf("u%d", m.seq),
		Email:    email,
		Name:     name,
		Username: models.DeriveUsername(name, email),
		Role:     role,
		Profile:  models.Profile{Gender: models.GenderOther},
	}
	m.users[u.ID] = u
	m.passwords[u.ID] = password
	cp := *u
	return &cp, nil
}

func (m *memBackend) Register(_ context.Context, in services.RegisterInput) (*models.User, error) {
	return m.add(in.Email, in.Password, in.Name, models.RoleUser)
}

func (m *memBackend) IssueTokens(_ context.Context, userID string) (*services.AuthTokens, error) {
	access, accessExp, err := m.issuer.Issue(userID, models.TokenAccess, time.Hour, nil)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := m.issuer.Issue(userID, models.TokenRefresh, 24*time.Hour, nil)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.refresh[refresh] = userID
	m.mu.Unlock()

	return &services.AuthTokens{
		Access:  services.IssuedToken{Token: access, Expires: accessExp},
		Refresh: services.IssuedToken{Token: refresh, Expires: refreshExp},
	}, nil
}

func (m *memBackend) Login(_ context.Context, identifier, password string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, u := range m.users {
		if u.Email == models.NormalizeEmail(identifier) || u.Username == identifier {
			if m.passwords[id] != password {
				return nil, fmt.Errorf("%w: incorrect email or password", common.ErrorUnauthorized)
			}
			cp := *u
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (m *memBackend) Logout(_ context.Context, refreshToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.refresh[refreshToken]; !ok {
		return common.ErrorNotFound
	}
	delete(m.refresh, refreshToken)
	return nil
}

func (m *memBackend) Refresh(ctx context.Context, refreshToken string) (*services.AuthTokens, error) {
	m.mu.Lock()
	userID, ok := m.refresh[refreshToken]
	delete(m.refresh, refreshToken)
	m.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: please authenticate", common.ErrorUnauthorized)
	}
	return m.IssueTokens(ctx, userID)
}

func (m *memBackend) ForgotPassword(_ context.Context, identifier string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if u.Email == models.NormalizeEmail(identifier) || u.Username == identifier {
			return "reset-" + u.ID, nil
		}
	}
	return "", common.ErrorNotFound
}

func (m *memBackend) ResetPassword(_ context.Context, resetToken, newPassword string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resetCalls = append(m.resetCalls, resetToken)
	for id := range m.users {
		if resetToken == "reset-"+id {
			m.passwords[id] = newPassword
			return nil
		}
	}
	return fmt.Errorf("%w: password reset failed", common.ErrorUnauthorized)
}

func (m *memBackend) SendVerificationEmail(_ context.Context, userID string) (string, error) {
	return "verify-" + userID, nil
}

func (m *memBackend) VerifyEmail(_ context.Context, verifyToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, u := range m.users {
		if verifyToken == "verify-"+id {
			u.IsEmailVerified = true
			return nil
		}
	}
	return fmt.Errorf("%w: email verification failed", common.ErrorUnauthorized)
}

func (m *memBackend) GetByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memBackend) Create(_ context.Context, in services.CreateUserInput) (*models.User, error) {
	return m.add(in.Email, in.Password, in.Name, in.Role)
}

func (m *memBackend) List(_ context.Context, sortBy string, desc bool, page, limit int) (*services.UserPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastList.sortBy, m.lastList.desc, m.lastList.page, m.lastList.limit = sortBy, desc, page, limit

	out := &services.UserPage{Page: 1, Limit: 10, TotalPages: 1}
	for _, u := range m.users {
		cp := *u
		out.Users = append(out.Users, &cp)
	}
	out.TotalResults = len(out.Users)
	return out, nil
}

func (m *memBackend) Update(_ context.Context, id string, in services.UpdateUserInput) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	if in.Email != nil {
		u.Email = models.NormalizeEmail(*in.Email)
	}
	if in.Name != nil {
		u.Name = *in.Name
	}
	if in.Profile != nil {
		u.Profile = *in.Profile
	}
	cp := *u
	return &cp, nil
}

func (m *memBackend) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return common.ErrorNotFound
	}
	delete(m.users, id)
	return nil
}

func (m *memBackend) AvatarUploadURL(_ context.Context, id, contentType string) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return "", "", common.ErrorNotFound
	}
	u.ProfilePicture = "avatars/" + id + "/k1"
	return u.ProfilePicture, "https://s3.test/" + u.ProfilePicture + "?put", nil
}

func (m *memBackend) AvatarURL(_ context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok || u.ProfilePicture == "" {
		return "", common.ErrorNotFound
	}
	return "https://s3.test/" + u.ProfilePicture + "?get", nil
}
