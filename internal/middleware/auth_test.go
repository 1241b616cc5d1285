package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sandboxd/internal/domain"
)

var testSecret = []byte("test-secret-for-hs256")

type fakeKeyLookup struct {
	actors map[string]domain.Actor // keyHash -> actor
}

func (f *fakeKeyLookup) LookupActorByKeyHash(_ context.Context, keyHash string) (domain.Actor, error) {
	a, ok := f.actors[keyHash]
	if !ok {
		return domain.Actor{}, domain.ErrNotFound("api key not found")
	}
	return a, nil
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(testSecret)
	require.NoError(t, err)
	return signed
}

func echoActor() (http.Handler, *domain.Actor) {
	var captured domain.Actor
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = domain.ActorFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}), &captured
}

func TestAuth_ValidJWT(t *testing.T) {
	next, captured := echoActor()
	handler := Auth(testSecret, nil)(next)

	tok := signToken(t, jwt.MapClaims{
		"sub":   "organizer-1",
		"admin": true,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "organizer-1", captured.Name)
	assert.True(t, captured.IsAdmin)
}

func TestAuth_ExpiredJWT(t *testing.T) {
	next, _ := echoActor()
	handler := Auth(testSecret, nil)(next)

	tok := signToken(t, jwt.MapClaims{
		"sub": "organizer-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_APIKey(t *testing.T) {
	hash := sha256.Sum256([]byte("sk-live-abc"))
	keys := &fakeKeyLookup{actors: map[string]domain.Actor{
		hex.EncodeToString(hash[:]): {Name: "svc-robot", IsAdmin: false},
	}}

	next, captured := echoActor()
	handler := Auth(testSecret, keys)(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "sk-live-abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "svc-robot", captured.Name)
}

func TestAuth_RejectsUnknownKey(t *testing.T) {
	next, _ := echoActor()
	handler := Auth(testSecret, &fakeKeyLookup{actors: map[string]domain.Actor{}})(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "sk-bogus")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_NoCredentials(t *testing.T) {
	next, _ := echoActor()
	handler := Auth(testSecret, nil)(next)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAdmin(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RequireAdmin(next)

	req := httptest.NewRequest(http.MethodDelete, "/", nil)
	req = req.WithContext(domain.WithActor(req.Context(), domain.Actor{Name: "p1", IsAdmin: false}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/", nil)
	req = req.WithContext(domain.WithActor(req.Context(), domain.Actor{Name: "adm", IsAdmin: true}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
