package httpapi

import (
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	user, err := s.auth.Register(r.Context(), services.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	tokens, err := s.auth.IssueTokens(r.Context(), user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, authView{User: newUserView(user), Tokens: newTokensView(tokens)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	user, err := s.auth.Login(r.Context(), req.identifier(), req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	tokens, err := s.auth.IssueTokens(r.Context(), user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, authView{User: newUserView(user), Tokens: newTokensView(tokens)})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	tokens, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, newTokensView(tokens))
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if _, err := s.auth.ForgotPassword(r.Context(), req.identifier()); err != nil {
		s.writeError(w, r, err)
		return
	}

	noContent(w)
}

func queryToken(r *http.Request) (string, error) {
	token := r.URL.Query().Get("token")
	if token == "" {
		return "", fmt.Errorf("%w: token is required", common.ErrorValidation)
	}
	return token, nil
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	token, err := queryToken(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var req resetPasswordRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.auth.ResetPassword(r.Context(), token, req.Password); err != nil {
		s.writeError(w, r, err)
		return
	}

	noContent(w)
}

func (s *Server) handleSendVerificationEmail(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	if _, err := s.auth.SendVerificationEmail(r.Context(), user.ID); err != nil {
		s.writeError(w, r, err)
		return
	}

	noContent(w)
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	token, err := queryToken(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.auth.VerifyEmail(r.Context(), token); err != nil {
		s.writeError(w, r, err)
		return
	}

	noContent(w)
}
