// Package middleware provides the HTTP middleware stack: authentication,
// request IDs, and per-client rate limiting.
package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"sandboxd/internal/domain"
)

// APIKeyLookup resolves a hashed API key to the actor it belongs to.
// Implemented by repository.APIKeyRepo.
type APIKeyLookup interface {
	LookupActorByKeyHash(ctx context.Context, keyHash string) (domain.Actor, error)
}

// Auth tries a JWT bearer token first, then an API key. Both failing yields
// 401. The resolved actor is stored in the request context for audit trails.
func Auth(jwtSecret []byte, keys APIKeyLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				tokenStr := strings.TrimPrefix(auth, "Bearer ")
				if actor, ok := actorFromJWT(tokenStr, jwtSecret); ok {
					ctx := domain.WithActor(r.Context(), actor)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			if apiKey := r.Header.Get("X-API-Key"); apiKey != "" && keys != nil {
				hash := sha256.Sum256([]byte(apiKey))
				actor, err := keys.LookupActorByKeyHash(r.Context(), hex.EncodeToString(hash[:]))
				if err == nil {
					ctx := domain.WithActor(r.Context(), actor)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"error":   "unauthorized: provide a valid JWT bearer token or API key",
			})
		})
	}
}

// RequireAdmin rejects non-admin actors. It must run after Auth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := domain.ActorFromContext(r.Context())
		if !ok || !actor.IsAdmin {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"error":   "forbidden: administrative access required",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func actorFromJWT(tokenStr string, secret []byte) (domain.Actor, bool) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return domain.Actor{}, false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Actor{}, false
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return domain.Actor{}, false
	}
	admin, _ := claims["admin"].(bool)
	return domain.Actor{Name: sub, IsAdmin: admin}, true
}
