package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// fieldFailure details one request-validation failure.
type fieldFailure struct {
	Path   string   `json:"path"`
	Errors []string `json:"errors"`
}

// envelope is the uniform response body shared by every endpoint.
type envelope struct {
	Success    bool           `json:"success"`
	Message    string         `json:"message"`
	StatusCode int            `json:"statusCode"`
	Data       interface{}    `json:"data,omitempty"`
	Errors     []fieldFailure `json:"errors,omitempty"`
}

func respondSuccess(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, envelope{
		Success:    true,
		Message:    message,
		StatusCode: status,
		Data:       data,
	})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, envelope{
		Success:    false,
		Message:    message,
		StatusCode: status,
	})
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, envelope{
		Success:    false,
		Message:    "Unauthorized",
		StatusCode: http.StatusUnauthorized,
	})
}

// respondValidationError maps gin binding failures into the envelope's
// per-field error array.
func respondValidationError(c *gin.Context, err error) {
	failures := []fieldFailure{}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, fieldError := range validationErrors {
			failures = append(failures, fieldFailure{
				Path:   strings.ToLower(fieldError.Field()),
				Errors: []string{validationMessage(fieldError)},
			})
		}
	} else {
		failures = append(failures, fieldFailure{
			Path:   "body",
			Errors: []string{err.Error()},
		})
	}
	c.JSON(http.StatusBadRequest, envelope{
		Success:    false,
		Message:    "Validation failed",
		StatusCode: http.StatusBadRequest,
		Errors:     failures,
	})
}

func validationMessage(fieldError validator.FieldError) string {
	switch fieldError.Tag() {
	case "required":
		return "is required"
	case "min":
		return "is too short"
	case "max":
		return "is too long"
	case "oneof":
		return "must be one of: " + fieldError.Param()
	default:
		return "is invalid"
	}
}
