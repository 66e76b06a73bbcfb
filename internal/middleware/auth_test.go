package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

// TestHashAPIKey verifies that hashing is deterministic and produces
// the expected SHA-256 output.
func TestHashAPIKey(t *testing.T) {
	// SHA-256 of "abc"
	const abc = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := HashAPIKey("abc"); got != abc {
		t.Errorf("HashAPIKey(%q) = %q, want %q", "abc", got, abc)
	}

	t.Run("different inputs different outputs", func(t *testing.T) {
		if HashAPIKey("key_one") == HashAPIKey("key_two") {
			t.Error("HashAPIKey produced same hash for different inputs")
		}
	})

	t.Run("output length", func(t *testing.T) {
		if hash := HashAPIKey("any_key"); len(hash) != 64 {
			t.Errorf("HashAPIKey output length = %d, want 64", len(hash))
		}
	})
}

func TestAdminAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/admin", AdminAuth("top-secret"), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	tests := []struct {
		name   string
		key    string
		status int
	}{
		{"valid key", "top-secret", http.StatusOK},
		{"wrong key", "top-secret-2", http.StatusUnauthorized},
		{"missing key", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
		})
	}
}
