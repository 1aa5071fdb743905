package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/nexusguard/internal/audit/domain"
	"github.com/smallbiznis/nexusguard/internal/authorization"
	jrdomain "github.com/smallbiznis/nexusguard/internal/joinrequest/domain"
	orgdomain "github.com/smallbiznis/nexusguard/internal/organization/domain"
	"github.com/smallbiznis/nexusguard/pkg/db"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type      string            `json:"type"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable"`
	Errors    []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}
		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{{Field: field, Code: code, Message: message}},
	}
}

// mapError turns a domain error into its HTTP status and envelope. Domain
// error codes are surfaced verbatim as the message.
func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}

	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{Type: "unauthorized", Message: "identity required"}
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: err.Error()}
	case errors.Is(err, orgdomain.ErrForbidden):
		return http.StatusForbidden, errorPayload{Type: "forbidden", Message: err.Error()}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: err.Error()}
	case errors.Is(err, orgdomain.ErrDuplicateRole),
		errors.Is(err, orgdomain.ErrDuplicateMember):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: err.Error()}
	case errors.Is(err, jrdomain.ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{Type: "rate_limited", Message: err.Error(), Retryable: true}
	case errors.Is(err, db.ErrStoreUnavailable),
		errors.Is(err, orgdomain.ErrEIDExhausted),
		errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{Type: "service_unavailable", Message: "service unavailable", Retryable: true}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, orgdomain.ErrInvalidName),
		errors.Is(err, orgdomain.ErrInvalidIdentity),
		errors.Is(err, orgdomain.ErrEmptyDefinition),
		errors.Is(err, orgdomain.ErrUnknownPrivilege),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, authorization.ErrInvalidActor),
		errors.Is(err, authorization.ErrInvalidObject),
		errors.Is(err, authorization.ErrInvalidAction):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, orgdomain.ErrUnknownTarget),
		errors.Is(err, orgdomain.ErrUnknownRole),
		errors.Is(err, jrdomain.ErrUnknownRequest):
		return true
	default:
		return false
	}
}

// classifyErrorForLog feeds the request logger the same type the client
// sees.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	return payload.Type, payload.Message
}
