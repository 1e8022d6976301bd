package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocomet/ridematch/internal/api/dto"
	"github.com/gocomet/ridematch/pkg/identity"
	"github.com/gocomet/ridematch/pkg/logger"
)

func newRouter(verifier identity.Verifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	g := r.Group("/", Authenticate(verifier, logger.NewNop()))
	g.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"userId": Principal(c).UserID})
	})
	g.GET("/drivers-only", RequireRole(identity.RoleDriver), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()
	var body dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAuthenticate(t *testing.T) {
	verifier := identity.NewJWTVerifier("test-secret")
	r := newRouter(verifier)

	riderToken, err := verifier.Issue("rider-1", identity.RoleRider, time.Hour)
	require.NoError(t, err)
	expired, err := verifier.Issue("rider-1", identity.RoleRider, -time.Minute)
	require.NoError(t, err)

	t.Run("missing token", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "UNAUTHENTICATED", decodeError(t, w).Code)
	})

	t.Run("expired token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+expired)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("header token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Authorization", "Bearer "+riderToken)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"userId":"rider-1"}`, w.Body.String())
	})

	t.Run("query token", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me?token="+riderToken, nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRequireRole(t *testing.T) {
	verifier := identity.NewJWTVerifier("test-secret")
	r := newRouter(verifier)

	riderToken, err := verifier.Issue("rider-1", identity.RoleRider, time.Hour)
	require.NoError(t, err)
	driverToken, err := verifier.Issue("driver-1", identity.RoleDriver, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/drivers-only", nil)
	req.Header.Set("Authorization", "Bearer "+riderToken)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", decodeError(t, w).Code)

	req = httptest.NewRequest(http.MethodGet, "/drivers-only", nil)
	req.Header.Set("Authorization", "Bearer "+driverToken)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
