package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	webhookdomain "github.com/smallbiznis/subsync/internal/webhook/domain"
)

// StatusClientClosedRequest is the nginx convention for a client that went
// away before a response could be written.
const StatusClientClosedRequest = 499

type errorPayload struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrPayloadTooLarge    = errors.New("payload_too_large")
	ErrNotFound           = errors.New("not_found")
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
		c.Header("Content-Type", "application/json")
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

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if werr, ok := webhookdomain.AsError(err); ok {
		payload := errorPayload{
			Type:      string(werr.Class),
			Message:   werr.Code,
			Retryable: werr.Retryable(),
		}
		switch werr.Class {
		case webhookdomain.ClassSecurity:
			return http.StatusBadRequest, payload
		case webhookdomain.ClassData:
			return http.StatusConflict, payload
		case webhookdomain.ClassCanceled:
			return StatusClientClosedRequest, payload
		default:
			return http.StatusServiceUnavailable, payload
		}
	}

	switch {
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: "invalid request",
		}
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, errorPayload{
			Type:    "invalid_request",
			Message: "payload too large",
		}
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:      "service_unavailable",
			Message:   "service unavailable",
			Retryable: true,
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:      "internal_error",
			Message:   "internal server error",
			Retryable: true,
		}
	}
}

// classifyErrorForLog returns the error type and code logged by the
// request middleware.
func classifyErrorForLog(err error) (string, string) {
	if werr, ok := webhookdomain.AsError(err); ok {
		return string(werr.Class), werr.Code
	}
	_, payload := mapError(err)
	return payload.Type, payload.Message
}
