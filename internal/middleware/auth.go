package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/paulohenriquevn/lovedcrm-sub002/internal/domain"
)

var (
	ErrMissingToken = errors.New("missing authentication token")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims carries the caller identity. Subject is the user id.
type Claims struct {
	OrganizationID string `json:"org_id"`
	Email          string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type principalKey struct{}

// Principal is the authenticated caller attached to the request context
type Principal struct {
	UserID       string
	Email        string
	Organization *domain.Organization
}

// PrincipalFrom returns the caller set by Authenticator.Middleware
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok
}

// OrganizationID returns the caller's tenant or "" outside an authenticated request
func OrganizationID(ctx context.Context) string {
	if p, ok := PrincipalFrom(ctx); ok {
		return p.Organization.GetID()
	}
	return ""
}

// WithPrincipal attaches p to ctx
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// Authenticator validates HS256 bearer tokens
type Authenticator struct {
	secret []byte
	issuer string
	logger *zap.Logger
}

func NewAuthenticator(secret, issuer string, logger *zap.Logger) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer, logger: logger}
}

// Parse validates a raw token, with or without the "Bearer " prefix
func (a *Authenticator) Parse(raw string) (*Claims, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
	if raw == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.OrganizationID == "" || claims.Subject == "" {
		return nil, fmt.Errorf("%w: org_id and sub are required", ErrInvalidToken)
	}
	return claims, nil
}

// Issue signs a token for userID in orgID. Used by the operator CLI and tests.
func (a *Authenticator) Issue(userID, orgID string, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = userID
	if claims.Issuer == "" {
		claims.Issuer = a.issuer
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		OrganizationID:   orgID,
		RegisteredClaims: claims,
	})
	return token.SignedString(a.secret)
}

// Middleware rejects requests without a valid bearer token with 401
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.Parse(r.Header.Get("Authorization"))
		if err != nil {
			a.logger.Debug("request rejected",
				zap.String("request_id", GetRequestID(r.Context())),
				zap.Error(err),
			)
			writeError(w, http.StatusUnauthorized, "unauthorized", GetRequestID(r.Context()))
			return
		}

		annotateOrganization(r.Context(), claims.OrganizationID)
		ctx := WithPrincipal(r.Context(), &Principal{
			UserID:       claims.Subject,
			Email:        claims.Email,
			Organization: &domain.Organization{ID: claims.OrganizationID},
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
