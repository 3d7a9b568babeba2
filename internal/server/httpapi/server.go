// Package httpapi exposes the auth and user flows over JSON/HTTP.
//
// Routing is done with chi. The only place where service errors are turned
// into status codes is writeError in errors.go.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
)

// AuthAPI is the subset of services.AuthService used by the handlers.
type AuthAPI interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.User, error)
	IssueTokens(ctx context.Context, userID string) (*services.AuthTokens, error)
	Login(ctx context.Context, identifier, password string) (*models.User, error)
	Logout(ctx context.Context, refreshToken string) error
	Refresh(ctx context.Context, refreshToken string) (*services.AuthTokens, error)
	ForgotPassword(ctx context.Context, identifier string) (string, error)
	ResetPassword(ctx context.Context, resetToken, newPassword string) error
	SendVerificationEmail(ctx context.Context, userID string) (string, error)
	VerifyEmail(ctx context.Context, verifyToken string) error
}

// UserAPI is the subset of services.UserService used by the handlers.
type UserAPI interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, in services.CreateUserInput) (*models.User, error)
	List(ctx context.Context, sortBy string, desc bool, page, limit int) (*services.UserPage, error)
	Update(ctx context.Context, id string, in services.UpdateUserInput) (*models.User, error)
	Delete(ctx context.Context, id string) error
	AvatarUploadURL(ctx context.Context, id, contentType string) (string, string, error)
	AvatarURL(ctx context.Context, id string) (string, error)
}

// Authorizer resolves bearer tokens to users and checks their rights.
type Authorizer interface {
	Authenticate(ctx context.Context, accessToken string) (*models.User, error)
	Authorize(ctx context.Context, accessToken, targetUserID string, required ...string) (*models.User, error)
}

type Server struct {
	httpServer *http.Server
	router     chi.Router
	auth       AuthAPI
	users      UserAPI
	guard      Authorizer
	logger     logging.Logger
	now        func() time.Time
}

type Option func(*Server)

// WithClock replaces the clock used by the access log.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

func NewServer(addr string, corsOrigins []string, a AuthAPI, u UserAPI, g Authorizer, logger logging.Logger, opts ...Option) *Server {
	s := &Server{
		auth:   a,
		users:  u,
		guard:  g,
		logger: logger.With("module", "http"),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	s.router = r
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	r := s.router

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)
		r.Post("/refresh-tokens", s.handleRefresh)
		r.Post("/forgot-password", s.handleForgotPassword)
		r.Post("/reset-password", s.handleResetPassword)
		r.With(s.RequireAuth()).Post("/send-verification-email", s.handleSendVerificationEmail)
		r.Post("/verify-email", s.handleVerifyEmail)
	})

	r.Route("/v1/users", func(r chi.Router) {
		r.With(s.RequireAuth(auth.RightUserRead)).Get("/", s.handleListUsers)
		r.With(s.RequireAuth(auth.RightUserCreate)).Post("/", s.handleCreateUser)
		r.With(s.RequireAuth()).Get("/me", s.handleMe)

		r.Route("/{userId}", func(r chi.Router) {
			r.With(s.RequireAuth(auth.RightUserRead)).Get("/", s.handleGetUser)
			r.With(s.RequireAuth(auth.RightUserUpdate)).Patch("/", s.handleUpdateUser)
			r.With(s.RequireAuth(auth.RightUserDelete)).Delete("/", s.handleDeleteUser)
			r.With(s.RequireAuth(auth.RightUserUpdate)).Post("/avatar", s.handleAvatarUpload)
			r.With(s.RequireAuth(auth.RightUserRead)).Get("/avatar", s.handleAvatarURL)
		})
	})
}

// Handler returns the root handler, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start blocks serving HTTP until Shutdown is called. http.ErrServerClosed is
// not reported as an error.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
