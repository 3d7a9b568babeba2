package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/notify"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/tokens"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/users"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- in-memory users repository ---

type memUsers struct {
	mu   sync.Mutex
	rows map[string]*models.User
	seq  int

	// beforeCreate runs under the lock ahead of the uniqueness checks; tests
	// use it to simulate a concurrent insert.
	beforeCreate func(u *models.User)
}

func newMemUsers() *memUsers { return &memUsers{rows: map[string]*models.User{}} }

func clone(u *models.User) *models.User {
	c := *u
	return &c
}

func (m *memUsers) live(match func(*models.User) bool) *models.User {
	for _, u := range m.rows {
		if u.DeletedAt == nil && match(u) {
			return u
		}
	}
	return nil
}

func (m *memUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.beforeCreate != nil {
		m.beforeCreate(u)
	}

	email := models.NormalizeEmail(u.Email)
	if m.live(func(x *models.User) bool { return x.Email == email }) != nil {
		return nil, common.ErrEmailTaken
	}
	if m.live(func(x *models.User) bool { return x.Username == u.Username }) != nil {
		return nil, common.ErrUsernameTaken
	}

	m.seq++
	u.ID = fmt.Sprintf("u%d", m.seq)
	u.Email = email
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	m.rows[u.ID] = clone(u)
	return u, nil
}

func (m *memUsers) find(match func(*models.User) bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u := m.live(match); u != nil {
		return clone(u), nil
	}
	return nil, common.ErrorNotFound
}

func (m *memUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.ID == id })
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	email = models.NormalizeEmail(email)
	return m.find(func(u *models.User) bool { return u.Email == email })
}

func (m *memUsers) GetByUsername(_ context.Context, username string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.Username == username })
}

func (m *memUsers) List(_ context.Context, opts users.ListOptions) ([]*models.User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []*models.User
	for _, u := range m.rows {
		if u.DeletedAt == nil {
			all = append(all, clone(u))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	total := len(all)
	if opts.Offset >= total {
		return nil, total, nil
	}
	end := min(opts.Offset+opts.Limit, total)
	return all[opts.Offset:end], total, nil
}

func (m *memUsers) Update(_ context.Context, u *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.rows[u.ID]
	if !ok || cur.DeletedAt != nil {
		return nil, common.ErrorNotFound
	}
	email := models.NormalizeEmail(u.Email)
	if m.live(func(x *models.User) bool { return x.ID != u.ID && (x.Email == email || x.Username == u.Username) }) != nil {
		return nil, common.ErrConflict
	}

	u.Email = email
	u.PasswordHash = cur.PasswordHash
	u.UpdatedAt = time.Now()
	m.rows[u.ID] = clone(u)
	return u, nil
}

func (m *memUsers) mutate(id string, fn func(*models.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.rows[id]
	if !ok || u.DeletedAt != nil {
		return common.ErrorNotFound
	}
	fn(u)
	return nil
}

func (m *memUsers) UpdatePassword(_ context.Context, id, hash string) error {
	return m.mutate(id, func(u *models.User) { u.PasswordHash = hash })
}

func (m *memUsers) SetEmailVerified(_ context.Context, id string) error {
	return m.mutate(id, func(u *models.User) { u.IsEmailVerified = true })
}

func (m *memUsers) SoftDelete(_ context.Context, id string) error {
	return m.mutate(id, func(u *models.User) {
		now := time.Now()
		u.DeletedAt = &now
	})
}

// --- in-memory tokens repository ---

type memTokens struct {
	mu   sync.Mutex
	rows map[string]*models.Token

	// afterFind runs once FindActive has returned a record; tests use it to
	// simulate a concurrent consumer.
	afterFind func(token string)
}

func newMemTokens() *memTokens { return &memTokens{rows: map[string]*models.Token{}} }

func (m *memTokens) Create(_ context.Context, t *models.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[t.Token]; ok {
		return common.ErrConflict
	}
	t.ID = fmt.Sprintf("t%d", len(m.rows)+1)
	t.CreatedAt = time.Now()
	c := *t
	m.rows[t.Token] = &c
	return nil
}

func (m *memTokens) FindActive(_ context.Context, token string, typ models.TokenType) (*models.Token, error) {
	m.mu.Lock()
	t, ok := m.rows[token]
	m.mu.Unlock()

	if !ok || t.Type != typ || t.Blacklisted {
		return nil, common.ErrorNotFound
	}
	c := *t
	if m.afterFind != nil {
		m.afterFind(token)
	}
	return &c, nil
}

func (m *memTokens) Invalidate(_ context.Context, token string, typ models.TokenType) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[token]
	if !ok || t.Type != typ || t.Blacklisted {
		return false, nil
	}
	delete(m.rows, token)
	return true, nil
}

func (m *memTokens) Blacklist(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.rows[token]
	if !ok || t.Blacklisted {
		return common.ErrorNotFound
	}
	t.Blacklisted = true
	return nil
}

func (m *memTokens) DeleteByUser(_ context.Context, userID string, typ models.TokenType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, t := range m.rows {
		if t.UserID == userID && t.Type == typ {
			delete(m.rows, k)
		}
	}
	return nil
}

func (m *memTokens) count(userID string, typ models.TokenType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.rows {
		if t.UserID == userID && t.Type == typ {
			n++
		}
	}
	return n
}

// --- repository manager ---

type fakeRepoManager struct {
	u *memUsers
	t *memTokens
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository              { return m.u }
func (m *fakeRepoManager) Tokens(dbx.DBTX) tokens.Repository            { return m.t }

// --- collaborators ---

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingNotifier struct {
	events []notify.Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, e notify.Event) error {
	if n.err != nil {
		return n.err
	}
	n.events = append(n.events, e)
	return nil
}

func (n *recordingNotifier) Close() error { return nil }

type fakeAvatars struct {
	putErr error
}

func (f *fakeAvatars) PresignUpload(_ context.Context, userID, contentType string) (string, string, error) {
	if f.putErr != nil {
		return "", "", f.putErr
	}
	return "avatars/" + userID + "/k1", "http://s3/put?ct=" + contentType, nil
}

func (f *fakeAvatars) PresignDownload(_ context.Context, key string) (string, error) {
	return "http://s3/get/" + key, nil
}

// --- environment ---

type testEnv struct {
	db       *sql.DB
	mock     sqlmock.Sqlmock
	clock    *fakeClock
	issuer   *auth.Issuer
	users    *memUsers
	tokens   *memTokens
	notifier *recordingNotifier
	cfg      *config.Config

	tokenSvc *TokenService
	userSvc  *UserService
	authSvc  *AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		JWTSecret:           "access-secret",
		VerifyEmailSecret:   "verify-secret",
		AccessTokenTTL:      30 * time.Minute,
		RefreshTokenTTL:     30 * 24 * time.Hour,
		ResetTokenTTL:       10 * time.Minute,
		VerifyEmailTokenTTL: 10 * time.Minute,
	}

	e := &testEnv{
		db:       db,
		mock:     mock,
		clock:    &fakeClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		users:    newMemUsers(),
		tokens:   newMemTokens(),
		notifier: &recordingNotifier{},
		cfg:      cfg,
	}
	e.issuer = auth.NewIssuer([]byte(cfg.JWTSecret), auth.WithClock(e.clock.Now))

	rm := &fakeRepoManager{u: e.users, t: e.tokens}
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)

	e.tokenSvc = NewTokenService(db, rm, e.issuer, cfg, logging.Nop{})
	e.userSvc = NewUserService(db, rm, hasher, &fakeAvatars{}, logging.Nop{})
	e.authSvc = NewAuthService(db, rm, e.userSvc, e.tokenSvc, hasher, e.notifier, logging.Nop{})
	return e
}

// expectTx queues one transaction that either commits or rolls back.
func (e *testEnv) expectTx(commit bool) {
	e.mock.ExpectBegin()
	if commit {
		e.mock.ExpectCommit()
	} else {
		e.mock.ExpectRollback()
	}
}

func (e *testEnv) register(t *testing.T, email, password, name string) *models.User {
	t.Helper()
	u, err := e.authSvc.Register(context.Background(), RegisterInput{Email: email, Password: password, Name: name})
	require.NoError(t, err)
	return u
}
