package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/coherency-auth/pkg/helpers"
)

func init() { gin.SetMode(gin.TestMode) }

func TestClientOrigin(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded first hop", map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.1", "X-Real-IP": "10.0.0.2"}, "10.0.0.3:5000", "198.51.100.1"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.9"}, "10.0.0.3:5000", "198.51.100.9"},
		{"garbage header falls through", map[string]string{"X-Forwarded-For": "nope"}, "192.0.2.4:1234", "192.0.2.4"},
		{"remote only", nil, "192.0.2.5:80", "192.0.2.5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			c.Request.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				c.Request.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, ClientOrigin(c))
		})
	}
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(w.Body.String())
	require.NoError(t, err)
	assert.Equal(t, w.Body.String(), w.Header().Get(HeaderRequestID))

	incoming := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, incoming)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, incoming, w.Body.String())
}

func TestAuth(t *testing.T) {
	jwtm, err := helpers.NewJWTManager(helpers.JWTConfig{SecretKey: "k", Issuer: "i", Audience: "a", TTL: time.Minute})
	require.NoError(t, err)
	tok, err := jwtm.Issue(helpers.Identity{ID: "u-1", Username: "alice", Email: "a@ex.com", IsActive: true})
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", Auth(jwtm), func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		require.True(t, ok)
		c.String(http.StatusOK, c.GetString("userID")+"|"+claims.Username)
	})

	do := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := do("Bearer " + tok.Value)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u-1|alice", w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, do("").Code)
	assert.Equal(t, http.StatusUnauthorized, do("Bearer not-a-token").Code)
	assert.Equal(t, http.StatusUnauthorized, do("Basic abc").Code)
}
