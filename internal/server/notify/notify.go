// Package notify hands account notifications (password reset, email
// verification) to whatever delivers mail. The server never talks SMTP itself.
package notify

import (
	"context"
	"time"
)

const (
	EventPasswordResetRequested = "password_reset_requested"
	EventVerifyEmailRequested   = "verify_email_requested"
)

// Event is the message body consumers receive. Token is the signed JWT the
// user has to present back.
type Event struct {
	Type       string    `json:"type"`
	UserID     string    `json:"userId"`
	Email      string    `json:"email"`
	Name       string    `json:"name,omitempty"`
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expiresAt"`
	OccurredAt time.Time `json:"occurredAt"`
}

type Notifier interface {
	Notify(ctx context.Context, e Event) error
	Close() error
}
