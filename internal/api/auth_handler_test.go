package api

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"resumatch/internal/auth"
	"resumatch/internal/database"
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

	service, err := auth.NewAuthService(privPEM, pubPEM, 15*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	return service
}

func newAuthHandler(t *testing.T, store *database.Store) *AuthHandler {
	t.Helper()
	return NewAuthHandler(store, newTestAuthService(t), newSessionRedis(t), nil)
}

func postJSON(t *testing.T, handler gin.HandlerFunc, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	handler(c)
	c.Writer.WriteHeaderNow()
	return w
}

func TestRegister_DuplicateEmail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newTestStore(t)
	h := newAuthHandler(t, store)

	payload := gin.H{
		"name":     "First",
		"email":    "dup@example.com",
		"password": "secret-pass-1",
		"role":     database.RoleStudent,
	}
	if w := postJSON(t, h.Register, "/v1/auth/register", payload); w.Code != http.StatusCreated {
		t.Fatalf("first register expected 201 got %d body=%s", w.Code, w.Body.String())
	}

	payload["name"] = "Second"
	if w := postJSON(t, h.Register, "/v1/auth/register", payload); w.Code != http.StatusConflict {
		t.Fatalf("duplicate register expected 409 got %d body=%s", w.Code, w.Body.String())
	}
}

func TestRegister_RejectsUnknownRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newTestStore(t)
	h := newAuthHandler(t, store)

	w := postJSON(t, h.Register, "/v1/auth/register", gin.H{
		"name":     "Nope",
		"email":    "nope@example.com",
		"password": "secret-pass-1",
		"role":     "admin",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d body=%s", w.Code, w.Body.String())
	}
}

func TestLogin_IssuesTokens(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newTestStore(t)
	h := newAuthHandler(t, store)

	register := gin.H{
		"name":     "Login User",
		"email":    "login@example.com",
		"password": "secret-pass-1",
		"role":     database.RoleStudent,
	}
	if w := postJSON(t, h.Register, "/v1/auth/register", register); w.Code != http.StatusCreated {
		t.Fatalf("register expected 201 got %d body=%s", w.Code, w.Body.String())
	}

	w := postJSON(t, h.Login, "/v1/auth/login", gin.H{
		"email":    "login@example.com",
		"password": "secret-pass-1",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login expected 200 got %d body=%s", w.Code, w.Body.String())
	}

	var resp tokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatal("expected access token")
	}
	if resp.TokenType != "Bearer" {
		t.Fatalf("token type = %q", resp.TokenType)
	}
	if resp.Role != database.RoleStudent || resp.Name != "Login User" {
		t.Fatalf("unexpected identity fields: role=%q name=%q", resp.Role, resp.Name)
	}

	var refreshCookie *http.Cookie
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == refreshTokenCookieName {
			refreshCookie = cookie
		}
	}
	if refreshCookie == nil || refreshCookie.Value == "" {
		t.Fatal("expected refresh token cookie")
	}
	if !refreshCookie.HttpOnly {
		t.Fatal("refresh cookie must be http-only")
	}
}

// 未注册邮箱与错误密码必须返回同一个 401 响应。
func TestLogin_UniformInvalidCredentials(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newTestStore(t)
	h := newAuthHandler(t, store)

	register := gin.H{
		"name":     "Known",
		"email":    "known@example.com",
		"password": "secret-pass-1",
		"role":     database.RoleStudent,
	}
	if w := postJSON(t, h.Register, "/v1/auth/register", register); w.Code != http.StatusCreated {
		t.Fatalf("register expected 201 got %d", w.Code)
	}

	wrongPassword := postJSON(t, h.Login, "/v1/auth/login", gin.H{
		"email":    "known@example.com",
		"password": "wrong-pass",
	})
	unknownEmail := postJSON(t, h.Login, "/v1/auth/login", gin.H{
		"email":    "ghost@example.com",
		"password": "secret-pass-1",
	})

	if wrongPassword.Code != http.StatusUnauthorized || unknownEmail.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401/401 got %d/%d", wrongPassword.Code, unknownEmail.Code)
	}
	if wrongPassword.Body.String() != unknownEmail.Body.String() {
		t.Fatalf("responses differ: %s vs %s", wrongPassword.Body.String(), unknownEmail.Body.String())
	}
}
