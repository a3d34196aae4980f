package middleware

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/agentstation/sails/internal/server/response"
	"github.com/agentstation/sails/pkg/errors"
)

// AuthConfig holds authentication configuration. A request passes when it
// carries the API key, or a bearer JWT signed with JWTSecret.
type AuthConfig struct {
	Enabled     bool
	APIKey      string
	HeaderName  string
	JWTSecret   string
	JWTIssuer   string
	PublicPaths []string
}

// DefaultAuthConfig returns default authentication configuration.
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		Enabled:     false,
		HeaderName:  "X-API-Key",
		PublicPaths: []string{"/health", "/ready"},
	}
}

type subjectKey struct{}

// Subject returns the authenticated subject stored by Auth: the JWT "sub"
// claim, or "api-key" for key authentication.
func Subject(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey{}).(string)
	return s
}

// Auth middleware validates credentials for protected endpoints.
func Auth(config AuthConfig, logger *zerolog.Logger) func(http.Handler) http.Handler {
	if config.HeaderName == "" {
		config.HeaderName = "X-API-Key"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !config.Enabled || slices.Contains(config.PublicPaths, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			subject, err := authenticate(r, config)
			if err != nil {
				logger.Warn().
					Err(err).
					Str("path", r.URL.Path).
					Str("remote_addr", r.RemoteAddr).
					Msg("Authentication failed")

				response.Unauthorized(w, "Invalid or missing credentials",
					"Provide an API key in the "+config.HeaderName+" header or a bearer token")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), subjectKey{}, subject)))
		})
	}
}

func authenticate(r *http.Request, config AuthConfig) (string, error) {
	if key := r.Header.Get(config.HeaderName); key != "" {
		return checkAPIKey(key, config)
	}

	auth := r.Header.Get("Authorization")
	if auth == "" {
		return "", fmt.Errorf("no credentials: %w", errors.ErrUnauthorized)
	}
	token, isBearer := strings.CutPrefix(auth, "Bearer ")
	if !isBearer {
		return checkAPIKey(auth, config)
	}
	if config.JWTSecret != "" && strings.Count(token, ".") == 2 {
		return checkJWT(token, config)
	}
	return checkAPIKey(token, config)
}

func checkAPIKey(key string, config AuthConfig) (string, error) {
	if config.APIKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(config.APIKey)) != 1 {
		return "", fmt.Errorf("api key rejected: %w", errors.ErrUnauthorized)
	}
	return "api-key", nil
}

func checkJWT(tokenString string, config AuthConfig) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if config.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(config.JWTIssuer))
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(config.JWTSecret), nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("token validation failed: %v: %w", err, errors.ErrUnauthorized)
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf("token has no subject: %w", errors.ErrUnauthorized)
	}
	return subject, nil
}
