package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mynews-app/service_layer/internal/logging"
)

var testSecret = []byte("test-secret")

func generateTestKeys(t *testing.T) (*rsa.PrivateKey, *rsa.PublicKey) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return privateKey, &privateKey.PublicKey
}

func signHS256(t *testing.T, subject string, expiresIn time.Duration) string {
	claims := &Claims{
		Email: "reader@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)
	return token
}

func captureUser(got *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*got = GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_SkipPaths(t *testing.T) {
	m := NewAuthMiddleware(AuthConfig{HMACSecret: testSecret, SkipPaths: []string{"/health"}}, logging.Discard())

	var uid string
	rec := httptest.NewRecorder()
	m.Handler(captureUser(&uid)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, uid)
}

func TestAuthMiddleware_ValidHS256Token(t *testing.T) {
	m := NewAuthMiddleware(AuthConfig{HMACSecret: testSecret}, logging.Discard())

	req := httptest.NewRequest(http.MethodGet, "/v1/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+signHS256(t, "uid-123", time.Hour))

	var uid string
	rec := httptest.NewRecorder()
	m.Handler(captureUser(&uid)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "uid-123", uid)
}

func TestAuthMiddleware_ValidRS256Token(t *testing.T) {
	privateKey, publicKey := generateTestKeys(t)
	m := NewAuthMiddleware(AuthConfig{PublicKey: publicKey, Issuer: "auth.mynews"}, logging.Discard())

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "uid-rsa",
			Issuer:    "auth.mynews",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(privateKey)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/friends", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	var uid string
	rec := httptest.NewRecorder()
	m.Handler(captureUser(&uid)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "uid-rsa", uid)
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	m := NewAuthMiddleware(AuthConfig{HMACSecret: testSecret}, logging.Discard())

	otherSecret, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "uid",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte("other"))
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "uid"},
	}).SignedString(testSecret)
	require.NoError(t, err)

	testCases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic abc"},
		{"empty token", "Bearer "},
		{"garbage", "Bearer not.a.jwt"},
		{"expired", "Bearer " + signHS256(t, "uid", -time.Hour)},
		{"missing subject", "Bearer " + signHS256(t, "", time.Hour)},
		{"wrong secret", "Bearer " + otherSecret},
		{"no expiry", "Bearer " + noExpiry},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/saved", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			called := false
			rec := httptest.NewRecorder()
			m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			})).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.False(t, called)
		})
	}
}

func TestAuthMiddleware_RSAKeyRejectsHMAC(t *testing.T) {
	_, publicKey := generateTestKeys(t)
	m := NewAuthMiddleware(AuthConfig{PublicKey: publicKey}, logging.Discard())

	req := httptest.NewRequest(http.MethodGet, "/v1/saved", nil)
	req.Header.Set("Authorization", "Bearer "+signHS256(t, "uid", time.Hour))
	rec := httptest.NewRecorder()
	m.Handler(http.NotFoundHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_WebSocketQueryToken(t *testing.T) {
	m := NewAuthMiddleware(AuthConfig{HMACSecret: testSecret}, logging.Discard())
	token := signHS256(t, "uid-ws", time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/v1/social/feed/ws?access_token="+token, nil)
	req.Header.Set("Upgrade", "websocket")

	var uid string
	rec := httptest.NewRecorder()
	m.Handler(captureUser(&uid)).ServeHTTP(rec, req)
	assert.Equal(t, "uid-ws", uid)

	// Query tokens are only honoured on upgrade requests.
	req = httptest.NewRequest(http.MethodGet, "/v1/social/feed?access_token="+token, nil)
	rec = httptest.NewRecorder()
	m.Handler(captureUser(&uid)).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
