package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ordersync/backend/internal/infrastructure/auth"
	"github.com/ordersync/backend/internal/infrastructure/config"
	"github.com/ordersync/backend/internal/interfaces/http/dto"
)

func newTestVerifier() *auth.TokenVerifier {
	return auth.NewTokenVerifier(config.JWTConfig{
		Secret: "test-secret-key-at-least-32-chars",
		Issuer: "test-issuer",
	})
}

func jwtRouter(t *testing.T, verifier TokenVerifier, handler gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(RequestID(), JWTAuthMiddlewareWithConfig(JWTMiddlewareConfig{
		Verifier:  verifier,
		SkipPaths: []string{"/public"},
		Logger:    zaptest.NewLogger(t),
	}))
	router.GET("/test", handler)
	router.GET("/public", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) *dto.ErrorInfo {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	return resp.Error
}

func TestJWTAuthMiddleware_ValidToken(t *testing.T) {
	verifier := newTestVerifier()
	tenantID, userID := uuid.New(), uuid.New()
	token, err := verifier.Sign(tenantID, userID, []string{"integration:sync"}, time.Minute)
	require.NoError(t, err)

	router := jwtRouter(t, verifier, func(c *gin.Context) {
		claims := GetJWTClaims(c)
		require.NotNil(t, claims)
		assert.True(t, claims.HasPermission("integration:sync"))
		assert.Equal(t, tenantID.String(), GetJWTTenantID(c))
		assert.Equal(t, userID.String(), GetJWTUserID(c))
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(AuthHeaderKey, BearerPrefix+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJWTAuthMiddleware_Rejections(t *testing.T) {
	verifier := newTestVerifier()
	expired, err := verifier.Sign(uuid.New(), uuid.New(), nil, -time.Minute)
	require.NoError(t, err)
	otherSecret, err := auth.NewTokenVerifier(config.JWTConfig{
		Secret: "another-secret-key-at-least-32-chars",
		Issuer: "test-issuer",
	}).Sign(uuid.New(), uuid.New(), nil, time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{"missing header", "", dto.ErrCodeUnauthorized},
		{"wrong scheme", "Basic abc", dto.ErrCodeUnauthorized},
		{"empty token", BearerPrefix + " ", dto.ErrCodeUnauthorized},
		{"garbage", BearerPrefix + "not-a-jwt", dto.ErrCodeTokenInvalid},
		{"bad signature", BearerPrefix + otherSecret, dto.ErrCodeTokenInvalid},
		{"expired", BearerPrefix + expired, dto.ErrCodeTokenExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := jwtRouter(t, verifier, func(c *gin.Context) {
				t.Fatal("handler must not run")
			})

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set(AuthHeaderKey, tt.header)
			}
			req.Header.Set(RequestIDHeader, "req-auth")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			info := decodeError(t, rec)
			assert.Equal(t, tt.code, info.Code)
			assert.Equal(t, "req-auth", info.RequestID)
		})
	}
}

func TestJWTAuthMiddleware_SkipPaths(t *testing.T) {
	router := jwtRouter(t, newTestVerifier(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/public", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetJWTClaims_Unauthenticated(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, GetJWTClaims(c))
	assert.Empty(t, GetJWTTenantID(c))
}
