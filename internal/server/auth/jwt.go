// Package auth holds the crypto side of authentication: signing and
// verifying typed JWTs, hashing passwords and checking role rights.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the payload of every token we mint. Subject carries the user id.
type Claims struct {
	jwt.RegisteredClaims
	Type models.TokenType `json:"type"`
}

type TokenErrorKind int

const (
	TokenInvalid TokenErrorKind = iota
	TokenExpired
	TokenTypeMismatch
)

// TokenError describes why Verify rejected a token. It matches
// common.ErrInvalidToken, common.ErrTokenExpired or common.ErrTokenTypeMismatch
// under errors.Is.
type TokenError struct {
	Kind TokenErrorKind
	Err  error
}

func (e *TokenError) sentinel() error {
	switch e.Kind {
	case TokenExpired:
		return common.ErrTokenExpired
	case TokenTypeMismatch:
		return common.ErrTokenTypeMismatch
	default:
		return common.ErrInvalidToken
	}
}

func (e *TokenError) Error() string {
	if e.Err == nil {
		return e.sentinel().Error()
	}
	return fmt.Sprintf("%v: %v", e.sentinel(), e.Err)
}

func (e *TokenError) Is(target error) bool { return target == e.sentinel() }

func (e *TokenError) Unwrap() error { return e.Err }

// Issuer signs and verifies HS256 tokens. The default secret is used when a
// call passes a nil secret; verify-email tokens pass their own.
type Issuer struct {
	secret []byte
	name   string
	now    func() time.Time
}

type IssuerOption func(*Issuer)

// WithClock replaces time.Now for issuance and expiry checks.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) { i.now = now }
}

// WithIssuerName sets the iss claim and requires it on verification.
func WithIssuerName(name string) IssuerOption {
	return func(i *Issuer) { i.name = name }
}

func NewIssuer(secret []byte, opts ...IssuerOption) *Issuer {
	i := &Issuer{secret: secret, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Now exposes the issuer clock so callers compare expiries on the same time base.
func (i *Issuer) Now() time.Time {
	return i.now()
}

func (i *Issuer) key(secret []byte) []byte {
	if secret == nil {
		return i.secret
	}
	return secret
}

// Issue signs a token of type typ for userID valid for ttl. The returned
// expiry equals the exp claim (second precision).
func (i *Issuer) Issue(userID string, typ models.TokenType, ttl time.Duration, secret []byte) (string, time.Time, error) {
	if ttl <= 0 {
		return "", time.Time{}, errors.New("token ttl must be positive")
	}

	now := i.now()
	expires := jwt.NewNumericDate(now.Add(ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.name,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: expires,
			// jti keeps tokens minted for one user within the same second distinct.
			ID: uuid.NewString(),
		},
		Type: typ,
	})

	signed, err := token.SignedString(i.key(secret))
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expires.Time, nil
}

// Verify checks signature, expiry and that the token carries the expected type.
func (i *Issuer) Verify(signed string, expected models.TokenType, secret []byte) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	}
	if i.name != "" {
		opts = append(opts, jwt.WithIssuer(i.name))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(signed, claims, func(t *jwt.Token) (any, error) {
		return i.key(secret), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, &TokenError{Kind: TokenExpired, Err: err}
		}
		return nil, &TokenError{Kind: TokenInvalid, Err: err}
	}

	if !token.Valid || claims.Subject == "" {
		return nil, &TokenError{Kind: TokenInvalid}
	}

	if claims.Type != expected {
		return nil, &TokenError{
			Kind: TokenTypeMismatch,
			Err:  fmt.Errorf("got %q, want %q", claims.Type, expected),
		}
	}

	return claims, nil
}
