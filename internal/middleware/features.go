package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/paulohenriquevn/lovedcrm-sub002/internal/domain"
)

// FeatureChecker decides whether an organization's plan includes a feature
type FeatureChecker interface {
	Require(ctx context.Context, orgID, feature string) error
}

// RequireFeature answers 402 when the caller's plan lacks feature. It must run after
// Authenticator.Middleware.
func RequireFeature(checker FeatureChecker, feature string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := GetRequestID(r.Context())
			orgID := OrganizationID(r.Context())
			if orgID == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", requestID)
				return
			}

			err := checker.Require(r.Context(), orgID, feature)
			switch {
			case err == nil:
				next.ServeHTTP(w, r)
			case errors.Is(err, domain.ErrFeatureNotAvailable):
				writeError(w, http.StatusPaymentRequired, feature+" is not available on the current plan", requestID)
			default:
				logger.Error("feature check failed",
					zap.String("request_id", requestID),
					zap.String("organization_id", orgID),
					zap.String("feature", feature),
					zap.Error(err),
				)
				writeError(w, http.StatusInternalServerError, "internal server error", requestID)
			}
		})
	}
}

// CORS allows browser calls from origins
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
