package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func mustToken(t *testing.T, s Session, ttl time.Duration) string {
	t.Helper()
	token, err := NewToken(s, "test", ttl, testSecret)
	require.NoError(t, err)
	return token
}

func TestParseJWT(t *testing.T) {
	token := mustToken(t, Session{UserID: "u-1", Name: "Alice", Role: RoleAdmin}, time.Hour)

	claims, err := ParseJWT(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, Session{UserID: "u-1", Name: "Alice", Role: RoleAdmin}, claims.Session())

	_, err = ParseJWT(token, []byte("other-secret"))
	assert.Error(t, err)

	_, err = ParseJWT("", testSecret)
	assert.Error(t, err)
}

func TestParseJWT_Expired(t *testing.T) {
	token := mustToken(t, Session{UserID: "u-1"}, -time.Minute)
	_, err := ParseJWT(token, testSecret)
	assert.Error(t, err)
}

func TestParseJWT_RejectsUnknownRole(t *testing.T) {
	claims := Claims{
		Role: "root",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)

	_, err = ParseJWT(signed, testSecret)
	assert.Error(t, err)
}

func TestNewToken_DefaultsToUserRole(t *testing.T) {
	token := mustToken(t, Session{UserID: "u-2"}, time.Hour)
	claims, err := ParseJWT(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, RoleUser, claims.Session().Role)
	assert.False(t, claims.Session().IsAdmin())
}

func setupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	m := NewMiddleware(testSecret)
	r := gin.New()
	r.GET("/me", m.RequireSession(), func(c *gin.Context) {
		s, _ := SessionFrom(c)
		c.JSON(http.StatusOK, gin.H{"user_id": s.UserID})
	})
	r.GET("/admin", m.RequireSession(), m.RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestMiddleware(t *testing.T) {
	router := setupRouter()
	userToken := mustToken(t, Session{UserID: "u-1", Role: RoleUser}, time.Hour)
	adminToken := mustToken(t, Session{UserID: "op", Role: RoleAdmin}, time.Hour)

	testCases := []struct {
		name     string
		path     string
		token    string
		expected int
	}{
		{"no token", "/me", "", http.StatusUnauthorized},
		{"garbage token", "/me", "abc", http.StatusUnauthorized},
		{"user token", "/me", userToken, http.StatusOK},
		{"user on admin route", "/admin", userToken, http.StatusForbidden},
		{"admin on admin route", "/admin", adminToken, http.StatusOK},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.token != "" {
				req.Header.Set("Authorization", "Bearer "+tc.token)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tc.expected, w.Code)
		})
	}
}
