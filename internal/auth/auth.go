// Package auth resolves bearer tokens issued by the account service to user
// identities. Token issuance lives elsewhere; this package only reads.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/redis/go-redis/v9"
)

var ErrInvalidToken = errors.New("invalid or expired token")

type Resolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// RedisResolver looks tokens up under "session:<token>", where the account
// service stores the user id with the session's TTL.
type RedisResolver struct {
	client *redis.Client
}

func NewRedisResolver(client *redis.Client) *RedisResolver {
	return &RedisResolver{client: client}
}

func (r *RedisResolver) Resolve(ctx context.Context, token string) (string, error) {
	userID, err := r.client.Get(ctx, sessionKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", fmt.Errorf("redis get failed: %w", err)
	}
	if userID == "" {
		return "", ErrInvalidToken
	}
	return userID, nil
}

func sessionKey(token string) string {
	return fmt.Sprintf("session:%s", token)
}

type userIDKey struct{}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

func UserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey{}).(string)
	return userID, ok && userID != ""
}

// Middleware rejects requests without a valid bearer token and stores the
// resolved user id in the request context.
func Middleware(resolver Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeError(w, logger, http.StatusUnauthorized, "missing bearer token")
				return
			}

			userID, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				if errors.Is(err, ErrInvalidToken) {
					writeError(w, logger, http.StatusUnauthorized, "invalid token")
					return
				}
				logger.Error("failed to resolve token", "error", err)
				writeError(w, logger, http.StatusServiceUnavailable, "authentication unavailable")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeError(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		logger.Error("failed to encode error response", "error", err)
	}
}
