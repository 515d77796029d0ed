package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	errorsx "github.com/soreniverson/shipped-backend/internal/pkg/errors"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondDomainError maps the error taxonomy onto HTTP statuses so handler
// bodies stay one call.
func RespondDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errorsx.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, errorsx.ErrInvalidArgument):
		RespondError(c, http.StatusBadRequest, "invalid_argument", err)
	case errorsx.IsValidation(err):
		RespondError(c, http.StatusBadRequest, "validation_error", err)
	case errorsx.IsLimit(err):
		RespondError(c, http.StatusTooManyRequests, "rate_limited", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal", err)
	}
}
