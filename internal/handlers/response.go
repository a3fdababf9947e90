package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/normgate/normgate-backend/internal/pkg/apierr"
)

type APIError struct {
	Message string   `json:"message"`
	Code    string   `json:"code,omitempty"`
	Details []string `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondError translates an error into the wire envelope. Typed errors carry
// their own status and kind; anything else is an opaque 500.
func RespondError(c *gin.Context, err error) {
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		c.JSON(apierr.HTTPStatus(apiErr), ErrorEnvelope{
			Error: APIError{
				Message: apiErr.Message,
				Code:    string(apiErr.Kind),
				Details: apiErr.Details,
			},
		})
		return
	}
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(http.StatusInternalServerError, ErrorEnvelope{
		Error: APIError{Message: msg, Code: "internal"},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}
