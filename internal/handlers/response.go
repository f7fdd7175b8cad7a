package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/paulohenriquevn/lovedcrm-sub002/internal/cache"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/domain"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/middleware"
	"github.com/paulohenriquevn/lovedcrm-sub002/internal/twofactor"
)

// responder holds the JSON helpers shared by every handler
type responder struct {
	logger *zap.Logger
}

// respondJSON sends a JSON response
func (h responder) respondJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err),
		)
	}
}

// respondError sends an error response
func (h responder) respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	h.respondJSON(w, r, status, map[string]string{
		"error":      message,
		"request_id": middleware.GetRequestID(r.Context()),
	})
}

// fail maps err onto a status code. Unexpected errors are logged and hidden from the client.
func (h responder) fail(w http.ResponseWriter, r *http.Request, action string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("failed to "+action,
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.String("organization_id", middleware.OrganizationID(r.Context())),
			zap.Error(err),
		)
		h.respondError(w, r, status, "failed to "+action)
		return
	}
	h.respondError(w, r, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrFeatureNotAvailable):
		return http.StatusPaymentRequired
	case errors.Is(err, twofactor.ErrInvalidCode), errors.Is(err, twofactor.ErrCodeReused):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrPaymentUnavailable), errors.Is(err, cache.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// decode reads a JSON body, rejecting unknown fields
func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", domain.ErrInvalidInput)
	}
	return nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter: %w", name, domain.ErrInvalidInput)
	}
	return n, nil
}

func queryFloat(r *http.Request, name string) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 {
		return 0, fmt.Errorf("invalid %s parameter: %w", name, domain.ErrInvalidInput)
	}
	return f, nil
}

func queryBool(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s parameter: %w", name, domain.ErrInvalidInput)
	}
	return b, nil
}
