package app

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func protectedRouter(password string) *gin.Engine {
	router := gin.New()
	router.GET("/metrics", basicAuthMiddleware("metrics", "prometheus", password), func(c *gin.Context) {
		c.String(http.StatusOK, "metrics")
	})
	return router
}

func basic(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func TestBasicAuthMiddleware_NoPasswordIsOpen(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	protectedRouter("").ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "metrics", w.Body.String())
}

func TestBasicAuthMiddleware(t *testing.T) {
	router := protectedRouter("secret123")

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid", basic("prometheus", "secret123"), http.StatusOK},
		{"wrong username", basic("wronguser", "secret123"), http.StatusUnauthorized},
		{"wrong password", basic("prometheus", "wrongpass"), http.StatusUnauthorized},
		{"no header", "", http.StatusUnauthorized},
		{"only basic", "Basic", http.StatusUnauthorized},
		{"invalid base64", "Basic notbase64!!!", http.StatusUnauthorized},
		{"bearer token", "Bearer sometoken", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusUnauthorized {
				assert.Equal(t, `Basic realm="metrics"`, w.Header().Get("WWW-Authenticate"))
			}
		})
	}
}
