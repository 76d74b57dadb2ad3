package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"resumatch/internal/auth"
)

func newTestAuthService(t *testing.T) *auth.AuthService {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	service, err := auth.NewAuthService(privPEM, pubPEM, 15*time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	return service
}

func newGinContext(t *testing.T) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/protected", nil)
	return c, w
}

func TestAuthMiddleware_AllowsValidAccessToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := newTestAuthService(t)

	pair, err := service.GenerateTokenPair(7, "student")
	if err != nil {
		t.Fatalf("generate token pair: %v", err)
	}

	c, w := newGinContext(t)
	c.Request.Header.Set("Authorization", "Bearer "+pair.AccessToken)

	AuthMiddleware(service)(c)

	if c.IsAborted() {
		t.Fatalf("expected request to pass, got %d body=%s", w.Code, w.Body.String())
	}
	if value, _ := c.Get("userID"); value != uint(7) {
		t.Fatalf("userID in context = %v", value)
	}
	if value, _ := c.Get("userRole"); value != "student" {
		t.Fatalf("userRole in context = %v", value)
	}
}

// 刷新令牌不能当访问令牌用。
func TestAuthMiddleware_RejectsRefreshToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := newTestAuthService(t)

	pair, err := service.GenerateTokenPair(7, "student")
	if err != nil {
		t.Fatalf("generate token pair: %v", err)
	}

	c, w := newGinContext(t)
	c.Request.Header.Set("Authorization", "Bearer "+pair.RefreshToken)

	AuthMiddleware(service)(c)

	if !c.IsAborted() || w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", w.Code)
	}
}

func TestAuthMiddleware_RejectsMissingOrMalformedHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := newTestAuthService(t)
	handler := AuthMiddleware(service)

	for _, header := range []string{"", "Bearer", "Token abc", "Bearer "} {
		c, w := newGinContext(t)
		if header != "" {
			c.Request.Header.Set("Authorization", header)
		}
		handler(c)
		if !c.IsAborted() || w.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401 got %d", header, w.Code)
		}
	}
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	gate := RequireRole("placement")

	tests := []struct {
		name     string
		role     any
		setRole  bool
		wantCode int
		wantPass bool
	}{
		{name: "matching role passes", role: "placement", setRole: true, wantPass: true},
		{name: "other role forbidden", role: "student", setRole: true, wantCode: http.StatusForbidden},
		{name: "missing role unauthorized", setRole: false, wantCode: http.StatusUnauthorized},
		{name: "empty role unauthorized", role: "", setRole: true, wantCode: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newGinContext(t)
			if tt.setRole {
				c.Set("userRole", tt.role)
			}
			gate(c)
			if tt.wantPass {
				if c.IsAborted() {
					t.Fatalf("expected pass, got %d", w.Code)
				}
				return
			}
			if !c.IsAborted() || w.Code != tt.wantCode {
				t.Fatalf("expected %d got %d", tt.wantCode, w.Code)
			}
		})
	}
}
