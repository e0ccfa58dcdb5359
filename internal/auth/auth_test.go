package auth_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/captals/primechain/internal/auth"
)

const issuer = "https://chaind.test"

func newIssuer() *auth.TokenIssuer {
	return auth.NewTokenIssuer([]byte("test-secret-0123456789"), issuer, time.Hour)
}

func TestTokenIssuer_roundTrip(t *testing.T) {
	ti := newIssuer()
	token, err := ti.Issue("indexer-1", []string{auth.ScopeAppend})
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if parts := strings.Split(token, "."); len(parts) != 3 {
		t.Errorf("expected 3-part JWT, got %d parts", len(parts))
	}

	claims, err := ti.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if claims.Subject != "indexer-1" {
		t.Errorf("Subject: got %q", claims.Subject)
	}
	if !claims.HasScope(auth.ScopeAppend) {
		t.Errorf("expected scope %q in %v", auth.ScopeAppend, claims.Scopes)
	}
	if claims.HasScope("chain:admin") {
		t.Error("unexpected scope")
	}
}

func TestTokenIssuer_rejects(t *testing.T) {
	ti := newIssuer()
	valid, _ := ti.Issue("s", []string{auth.ScopeAppend})

	expired, _ := auth.NewTokenIssuer([]byte("test-secret-0123456789"), issuer, time.Nanosecond).Issue("s", nil)
	time.Sleep(2 * time.Millisecond)

	otherSecret, _ := auth.NewTokenIssuer([]byte("another-secret"), issuer, time.Hour).Issue("s", nil)
	otherIssuer, _ := auth.NewTokenIssuer([]byte("test-secret-0123456789"), "https://elsewhere", time.Hour).Issue("s", nil)
	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"iss": issuer, "exp": time.Now().Add(time.Hour).Unix()}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	cases := map[string]string{
		"expired":      expired,
		"other secret": otherSecret,
		"other issuer": otherIssuer,
		"alg none":     unsigned,
		"garbage":      "not.a.jwt",
		"truncated":    valid[:len(valid)-4],
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ti.Verify(tok); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRequireScope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ti := newIssuer()
	withScope, _ := ti.Issue("s", []string{auth.ScopeAppend})
	withoutScope, _ := ti.Issue("s", []string{"chain:read"})

	router := gin.New()
	router.POST("/append", auth.RequireScope(ti, auth.ScopeAppend), func(c *gin.Context) {
		c.String(http.StatusOK, auth.ClaimsFromCtx(c).Subject)
	})

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"invalid token", "Bearer junk", http.StatusUnauthorized},
		{"missing scope", "Bearer " + withoutScope, http.StatusForbidden},
		{"ok", "Bearer " + withScope, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/append", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Errorf("status: got %d, want %d (%s)", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestRequireScope_nilIssuerDisablesCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/append", auth.RequireScope(nil, auth.ScopeAppend), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/append", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("status: got %d", w.Code)
	}
}
