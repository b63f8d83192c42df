// Package middleware provides HTTP middleware for the service layer
package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mynews-app/service_layer/internal/httputil"
	"github.com/mynews-app/service_layer/internal/logging"
)

// Claims represents the JWT claims issued by the auth provider. The user id
// travels in the registered "sub" claim.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// ErrInvalidToken is returned for tokens that fail validation.
var ErrInvalidToken = errors.New("invalid token")

// AuthMiddleware provides JWT authentication
type AuthMiddleware struct {
	hmacSecret []byte
	publicKey  interface{}
	issuer     string
	logger     *logging.Logger
	skipPaths  map[string]bool
}

// AuthConfig selects how tokens are verified. Exactly one of HMACSecret or
// PublicKey is expected.
type AuthConfig struct {
	HMACSecret []byte
	PublicKey  interface{}
	Issuer     string
	SkipPaths  []string
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(cfg AuthConfig, logger *logging.Logger) *AuthMiddleware {
	skip := make(map[string]bool)
	for _, path := range cfg.SkipPaths {
		skip[path] = true
	}

	return &AuthMiddleware{
		hmacSecret: cfg.HMACSecret,
		publicKey:  cfg.PublicKey,
		issuer:     cfg.Issuer,
		logger:     logger,
		skipPaths:  skip,
	}
}

// Handler returns the middleware handler
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		tokenString, err := bearerToken(r)
		if err != nil {
			m.respondError(w, r, err)
			return
		}

		claims, err := m.validateToken(tokenString)
		if err != nil {
			m.respondError(w, r, err)
			return
		}

		ctx := logging.WithUserID(r.Context(), claims.Subject)
		m.logger.WithContext(ctx).Debug("Authentication successful")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the token from the Authorization header. WebSocket
// clients that cannot set headers may pass it as access_token instead.
func bearerToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if token := r.URL.Query().Get("access_token"); token != "" && isUpgrade(r) {
			return token, nil
		}
		return "", fmt.Errorf("%w: missing Authorization header", ErrInvalidToken)
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", fmt.Errorf("%w: invalid Authorization header format", ErrInvalidToken)
	}
	return parts[1], nil
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// validateToken validates a JWT token and returns claims
func (m *AuthMiddleware) validateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodHMAC:
			if len(m.hmacSecret) == 0 {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return m.hmacSecret, nil
		case *jwt.SigningMethodRSA:
			if m.publicKey == nil {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return m.publicKey, nil
		default:
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return claims, nil
}

// respondError sends an error response
func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	httputil.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "authentication failed")

	m.logger.LogSecurityEvent(r.Context(), "auth_failed", map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
		"reason": err.Error(),
	})
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) string {
	return logging.UserID(ctx)
}
