package models

import (
	"strings"
	"time"
	"unicode"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAdmin
}

type Provider string

const (
	ProviderPassword Provider = "password"
	ProviderGoogle   Provider = "google"
	ProviderFacebook Provider = "facebook"
)

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
	GenderOther  Gender = "other"
)

func (g Gender) IsValid() bool {
	return g == GenderMale || g == GenderFemale || g == GenderOther
}

type Link struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Profile is stored as a JSONB document next to the user row.
type Profile struct {
	Bio      string     `json:"bio"`
	Birthday *time.Time `json:"birthday,omitempty"`
	Gender   Gender     `json:"gender"`
	Links    []Link     `json:"links"`
}

type User struct {
	ID              string
	Email           string
	Name            string
	Username        string
	PasswordHash    string
	Role            Role
	Provider        Provider
	ProviderID      string
	IsEmailVerified bool
	Profile         Profile
	ProfilePicture  string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       *time.Time
}

// NormalizeEmail lower-cases and trims an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DeriveUsername builds the public handle from the display name, or from the
// email when the name is blank: lower-cased, whitespace runs replaced by ".".
func DeriveUsername(name, email string) string {
	src := strings.TrimSpace(name)
	if src == "" {
		src = strings.TrimSpace(email)
	}
	return strings.Join(strings.FieldsFunc(strings.ToLower(src), unicode.IsSpace), ".")
}
