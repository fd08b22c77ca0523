package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/playmatatu/experiment/internal/auth"
	"github.com/playmatatu/experiment/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireSession(t *testing.T) {
	iss := auth.NewIssuer("secret", time.Hour)
	r := gin.New()
	r.GET("/me", RequireSession(iss), func(c *gin.Context) {
		c.String(http.StatusOK, Claims(c).SessionID)
	})

	if w := serve(r, httptest.NewRequest(http.MethodGet, "/me", nil)); w.Code != http.StatusUnauthorized {
		t.Errorf("no token: %d", w.Code)
	}

	tok, _ := iss.Issue("s1")
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	if w := serve(r, req); w.Code != http.StatusOK || w.Body.String() != "s1" {
		t.Errorf("bearer: %d %q", w.Code, w.Body.String())
	}

	if w := serve(r, httptest.NewRequest(http.MethodGet, "/me?token="+tok, nil)); w.Code != http.StatusOK {
		t.Errorf("query token: %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer nope")
	if w := serve(r, req); w.Code != http.StatusUnauthorized {
		t.Errorf("bad token: %d", w.Code)
	}
}

func TestAdminAuth(t *testing.T) {
	hash, err := HashAdminKey("letmein")
	if err != nil {
		t.Fatal(err)
	}
	r := gin.New()
	r.GET("/admin", AdminAuth(&config.Config{AdminKeyHash: hash}), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("X-Admin-Key", "letmein")
	if w := serve(r, req); w.Code != http.StatusNoContent {
		t.Errorf("good key: %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("X-Admin-Key", "wrong")
	if w := serve(r, req); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: %d", w.Code)
	}

	disabled := gin.New()
	disabled.GET("/admin", AdminAuth(&config.Config{}), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("X-Admin-Key", "letmein")
	if w := serve(disabled, req); w.Code != http.StatusUnauthorized {
		t.Errorf("no hash configured: %d", w.Code)
	}
}

func TestWebSocketCORSCheck(t *testing.T) {
	cfg := &config.Config{Environment: "production", FrontendURL: "https://lab.example.org"}
	r := gin.New()
	r.GET("/ws", WebSocketCORSCheck(cfg), func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		origin string
		code   int
	}{
		{"https://lab.example.org", http.StatusOK},
		{"https://evil.example.org", http.StatusForbidden},
		{"", http.StatusBadRequest},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		req.Header.Set("Upgrade", "websocket")
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if w := serve(r, req); w.Code != tt.code {
			t.Errorf("origin %q: %d, want %d", tt.origin, w.Code, tt.code)
		}
	}

	// Plain requests are not origin-checked.
	if w := serve(r, httptest.NewRequest(http.MethodGet, "/ws", nil)); w.Code != http.StatusOK {
		t.Errorf("non-upgrade request: %d", w.Code)
	}
}
