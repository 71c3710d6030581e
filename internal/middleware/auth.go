package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/quickai/quickai/internal/identity"
	"github.com/quickai/quickai/internal/model"
)

// IdentityResolver fetches the authoritative identity for a user.
type IdentityResolver interface {
	GetUser(ctx context.Context, userID string) (*model.Identity, error)
}

// IdentityCache is a short-lived identity lookaside.
type IdentityCache interface {
	GetIdentity(ctx context.Context, userID string) (*model.Identity, error)
	SetIdentity(ctx context.Context, id *model.Identity) error
}

// TokenVerifier validates a bearer token and returns the subject.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Logger   *slog.Logger
	Verifier TokenVerifier
	Resolver IdentityResolver
	Cache    IdentityCache
}

// Auth returns a middleware that authenticates requests. It verifies
// the bearer token, resolves the caller's identity (plan and free
// usage) through the cache with a provider fallback, and injects the
// identity into the request context.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				unauthorized(w, cfg.Logger, r, "missing_token")
				return
			}

			userID, err := cfg.Verifier.Verify(token)
			if err != nil {
				reason := "invalid_token"
				if errors.Is(err, identity.ErrTokenExpired) {
					reason = "token_expired"
				}
				unauthorized(w, cfg.Logger, r, reason)
				return
			}

			id, err := resolveIdentity(r.Context(), cfg, userID)
			if err != nil {
				if errors.Is(err, identity.ErrUserNotFound) {
					unauthorized(w, cfg.Logger, r, "unknown_user")
					return
				}
				cfg.Logger.Error("identity resolution failed",
					slog.String("request_id", GetRequestID(r.Context())),
					slog.String("user_id", userID),
					slog.Any("error", err),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"success":false,"message":"An internal error occurred"}`))
				return
			}

			ctx := identity.ContextWithIdentity(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// resolveIdentity consults the cache first and falls back to the
// provider, refilling the cache on a miss. Cache errors degrade to
// provider reads rather than failing the request.
func resolveIdentity(ctx context.Context, cfg AuthConfig, userID string) (*model.Identity, error) {
	if cfg.Cache != nil {
		id, err := cfg.Cache.GetIdentity(ctx, userID)
		if err != nil {
			cfg.Logger.Warn("identity cache read failed",
				slog.String("user_id", userID),
				slog.Any("error", err),
			)
		} else if id != nil {
			return id, nil
		}
	}

	id, err := cfg.Resolver.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if cfg.Cache != nil {
		if err := cfg.Cache.SetIdentity(ctx, id); err != nil {
			cfg.Logger.Warn("identity cache write failed",
				slog.String("user_id", userID),
				slog.Any("error", err),
			)
		}
	}

	return id, nil
}

// extractBearerToken pulls the token out of the Authorization header.
func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}

	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}

// unauthorized writes the uniform 401 response. The reason goes to the
// log only, never to the client.
func unauthorized(w http.ResponseWriter, logger *slog.Logger, r *http.Request, reason string) {
	logger.Warn("authentication failed",
		slog.String("reason", reason),
		slog.String("ip", r.RemoteAddr),
		slog.String("endpoint", r.Method+" "+r.URL.Path),
		slog.String("request_id", GetRequestID(r.Context())),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"success":false,"message":"Authentication required"}`))
}
