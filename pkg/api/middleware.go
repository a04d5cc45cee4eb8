package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mhrivnak/orderflow/pkg/errdef"
	"github.com/mhrivnak/orderflow/pkg/hooks"
)

// APIError represents a structured API error response
type APIError struct {
	Code    int    `json:"code"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// NewAPIError creates a new API error response
func NewAPIError(code int, message string) *APIError {
	return &APIError{Code: code, Error: http.StatusText(code), Message: message}
}

// statusFor maps an error to the HTTP status it is reported with.
func statusFor(err error) int {
	var failure *hooks.FailureError
	switch {
	case errdef.IsBadRequest(err):
		return http.StatusBadRequest
	case errdef.IsUnauthorized(err):
		return http.StatusUnauthorized
	case errdef.IsForbidden(err):
		return http.StatusForbidden
	case errdef.IsNotFound(err):
		return http.StatusNotFound
	case errdef.IsDuplicated(err), errdef.IsConflict(err):
		return http.StatusConflict
	case errors.As(err, &failure):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// errorHandler writes the last error a handler recorded with c.Error. Unexpected errors are
// logged and reported without their details.
func errorHandler(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}
		err := last.Err

		code := statusFor(err)
		message := err.Error()
		if code == http.StatusInternalServerError {
			log.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
			message = "an unexpected error occurred"
		}
		c.AbortWithStatusJSON(code, NewAPIError(code, message))
	}
}
