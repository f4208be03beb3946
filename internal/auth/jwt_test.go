package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facturaIA/invoice-extraction-service/internal/models"
)

func newManager(t *testing.T, cfg models.AuthConfig) *Manager {
	t.Helper()
	m, err := New(cfg, nil)
	require.NoError(t, err)
	return m
}

func TestNew_RequiresSecret(t *testing.T) {
	_, err := New(models.AuthConfig{}, nil)
	assert.Error(t, err)

	_, err = New(models.AuthConfig{Disabled: true}, nil)
	assert.NoError(t, err)
}

func TestGenerateAndParse(t *testing.T) {
	m := newManager(t, models.AuthConfig{Secret: "s3cret", Issuer: "invoices"})
	token, err := m.GenerateToken("batch", "operator")
	require.NoError(t, err)

	claims, err := m.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "batch", claims.UserID)
	assert.Equal(t, "operator", claims.Role)
	assert.Equal(t, "invoices", claims.Issuer)

	other := newManager(t, models.AuthConfig{Secret: "other", Issuer: "invoices"})
	_, err = other.ParseToken(token)
	assert.Error(t, err)

	wrongIssuer := newManager(t, models.AuthConfig{Secret: "s3cret", Issuer: "someone-else"})
	_, err = wrongIssuer.ParseToken(token)
	assert.Error(t, err)
}

func TestParse_Expired(t *testing.T) {
	m := newManager(t, models.AuthConfig{Secret: "s3cret"})
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: "u",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})
	signed, err := expired.SignedString([]byte("s3cret"))
	require.NoError(t, err)

	_, err = m.ParseToken(signed)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestMiddleware(t *testing.T) {
	m := newManager(t, models.AuthConfig{Secret: "s3cret"})
	valid, err := m.GenerateToken("u1", "operator")
	require.NoError(t, err)

	var seen *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = GetClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	h := m.Middleware(next)

	tests := []struct {
		name       string
		path       string
		header     string
		wantStatus int
		wantClaims bool
	}{
		{"health is public", "/health", "", http.StatusOK, false},
		{"metrics is public", "/metrics", "", http.StatusOK, false},
		{"missing token", "/api/invoices", "", http.StatusUnauthorized, false},
		{"not bearer", "/api/invoices", "Basic abc", http.StatusUnauthorized, false},
		{"garbage token", "/api/invoices", "Bearer abc.def.ghi", http.StatusUnauthorized, false},
		{"valid token", "/api/invoices", "Bearer " + valid, http.StatusOK, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantClaims {
				require.NotNil(t, seen)
				assert.Equal(t, "u1", seen.UserID)
			} else {
				assert.Nil(t, seen)
			}
		})
	}
}

func TestMiddleware_Disabled(t *testing.T) {
	m := newManager(t, models.AuthConfig{Disabled: true})
	called := false
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/invoices", nil))
	assert.True(t, called)

	_, err := m.GenerateToken("u", "r")
	assert.Error(t, err)
}
