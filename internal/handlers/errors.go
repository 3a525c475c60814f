package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/sony/gobreaker/v2"

	"github.com/example/ai-detect/internal/detection"
)

// StatusFor maps a classification error to the HTTP status returned to clients.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, detection.ErrInvalidInput),
		errors.Is(err, detection.ErrFetch),
		errors.Is(err, detection.ErrDecode):
		return http.StatusBadRequest
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return http.StatusServiceUnavailable
	case errors.Is(err, detection.ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
