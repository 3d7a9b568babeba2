package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/dmitrijs2005/gophauth/internal/common"
)

type errorResponse struct {
	Code    int               `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// fieldErrors carries per-field validation failures to the response.
type fieldErrors struct {
	errs validation.Errors
}

func (e *fieldErrors) Error() string { return e.errs.Error() }

func (e *fieldErrors) Unwrap() error { return common.ErrorValidation }

// invalid wraps a request validation failure as common.ErrorValidation.
func invalid(err error) error {
	var errs validation.Errors
	if errors.As(err, &errs) {
		return &fieldErrors{errs: errs}
	}
	return errors.Join(common.ErrorValidation, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrorValidation), errors.Is(err, common.ErrEmptyPassword):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrTokenTypeMismatch):
		return http.StatusUnauthorized
	case errors.Is(err, common.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := errorResponse{Code: status, Message: err.Error()}

	if status == http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		resp.Message = http.StatusText(status)
	}

	var fe *fieldErrors
	if errors.As(err, &fe) {
		resp.Message = common.ErrorValidation.Error()
		resp.Fields = make(map[string]string, len(fe.errs))
		for field, e := range fe.errs {
			resp.Fields[field] = e.Error()
		}
	}

	writeJSON(w, status, resp)
}

func noContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
