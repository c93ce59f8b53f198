package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestValidateToken_HS256Valid(t *testing.T) {
	cfg := JWTCfg{HS256Secret: "test-secret"}
	tok := signHS256(t, cfg.HS256Secret, jwt.MapClaims{
		"sub": "operator-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	sub, err := ValidateToken(tok, cfg)
	if err != nil {
		t.Fatalf("expected valid token, got error: %v", err)
	}
	if sub != "operator-1" {
		t.Fatalf("expected sub=operator-1, got %s", sub)
	}
}

func TestValidateToken_EmptyToken(t *testing.T) {
	if _, err := ValidateToken("", JWTCfg{HS256Secret: "test-secret"}); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	tok := signHS256(t, "right-secret", jwt.MapClaims{"sub": "operator-1"})
	if _, err := ValidateToken(tok, JWTCfg{HS256Secret: "wrong-secret"}); err == nil {
		t.Fatal("expected error for signature mismatch")
	}
}

func TestValidateToken_MissingSub(t *testing.T) {
	cfg := JWTCfg{HS256Secret: "test-secret"}
	tok := signHS256(t, cfg.HS256Secret, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	if _, err := ValidateToken(tok, cfg); err == nil {
		t.Fatal("expected error for missing sub claim")
	}
}

func TestValidateToken_IssuerMismatch(t *testing.T) {
	cfg := JWTCfg{HS256Secret: "test-secret", Issuer: "https://issuer.example.com"}
	tok := signHS256(t, cfg.HS256Secret, jwt.MapClaims{"sub": "operator-1", "iss": "https://other.example.com"})
	if _, err := ValidateToken(tok, cfg); err == nil {
		t.Fatal("expected error for issuer mismatch")
	}
}

func TestMiddleware_RejectsMissingBearer(t *testing.T) {
	cfg := JWTCfg{HS256Secret: "test-secret"}
	handler := Middleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/client-systems/quickbooks/desktop/qwc", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestMiddleware_AcceptsValidBearer(t *testing.T) {
	cfg := JWTCfg{HS256Secret: "test-secret"}
	tok := signHS256(t, cfg.HS256Secret, jwt.MapClaims{"sub": "operator-1"})

	var gotSub string
	handler := Middleware(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSub = Subject(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/client-systems/quickbooks/desktop/qwc", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if gotSub != "operator-1" {
		t.Fatalf("expected subject operator-1, got %s", gotSub)
	}
}
