package models

import "time"

type TokenType string

const (
	TokenAccess        TokenType = "access"
	TokenRefresh       TokenType = "refresh"
	TokenResetPassword TokenType = "resetPassword"
	TokenVerifyEmail   TokenType = "verifyEmail"
)

// Token is a persisted refresh, reset-password or verify-email JWT.
// Access tokens are never stored.
type Token struct {
	ID          string
	Token       string
	UserID      string
	Type        TokenType
	Expires     time.Time
	Blacklisted bool
	CreatedAt   time.Time
}

// Usable reports whether the stored record still allows consumption at now.
// Signature checks are the issuer's job.
func (t *Token) Usable(now time.Time) bool {
	return !t.Blacklisted && now.Before(t.Expires)
}
