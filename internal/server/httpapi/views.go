package httpapi

import (
	"time"

	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
)

// userView is the public shape of a user. The password hash never leaves
// the service layer.
type userView struct {
	ID              string         `json:"id"`
	Email           string         `json:"email"`
	Name            string         `json:"name"`
	Username        string         `json:"username"`
	Role            models.Role    `json:"role"`
	IsEmailVerified bool           `json:"isEmailVerified"`
	Profile         models.Profile `json:"profile"`
	ProfilePicture  string         `json:"profilePicture,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

func newUserView(u *models.User) userView {
	return userView{
		ID:              u.ID,
		Email:           u.Email,
		Name:            u.Name,
		Username:        u.Username,
		Role:            u.Role,
		IsEmailVerified: u.IsEmailVerified,
		Profile:         u.Profile,
		ProfilePicture:  u.ProfilePicture,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

type tokenView struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type tokensView struct {
	Access  tokenView `json:"access"`
	Refresh tokenView `json:"refresh"`
}

func newTokensView(t *services.AuthTokens) tokensView {
	return tokensView{
		Access:  tokenView{Token: t.Access.Token, Expires: t.Access.Expires},
		Refresh: tokenView{Token: t.Refresh.Token, Expires: t.Refresh.Expires},
	}
}

type authView struct {
	User   userView   `json:"user"`
	Tokens tokensView `json:"tokens"`
}

type userPageView struct {
	Results      []userView `json:"results"`
	Page         int        `json:"page"`
	Limit        int        `json:"limit"`
	TotalPages   int        `json:"totalPages"`
	TotalResults int        `json:"totalResults"`
}

func newUserPageView(p *services.UserPage) userPageView {
	out := userPageView{
		Results:      make([]userView, 0, len(p.Users)),
		Page:         p.Page,
		Limit:        p.Limit,
		TotalPages:   p.TotalPages,
		TotalResults: p.TotalResults,
	}
	for _, u := range p.Users {
		out.Results = append(out.Results, newUserView(u))
	}
	return out
}
