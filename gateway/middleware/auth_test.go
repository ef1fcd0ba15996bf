package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"deedescrow/crypto"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testSubject() (string, [20]byte) {
	var raw [20]byte
	raw[19] = 0x42
	return crypto.FormatIdentity(raw), raw
}

func TestAuthenticatorAttachesIdentity(t *testing.T) {
	subject, raw := testSubject()
	token, err := SignToken(TokenRequest{Secret: testSecret, Issuer: "deed", Audience: "rpc", Subject: subject, Scopes: []string{ScopeAdmin}, TTL: time.Minute})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	auth := NewAuthenticator(AuthConfig{HMACSecret: testSecret, Issuer: "deed", Audience: "rpc"}, nil)

	var got Identity
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodPost, "/rpc", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("expected success, got %d", res.Code)
	}
	if got.Address != raw || !got.HasScope(ScopeAdmin) {
		t.Fatalf("unexpected identity %+v", got)
	}
}

func TestAuthenticatorRejections(t *testing.T) {
	subject, _ := testSubject()
	auth := NewAuthenticator(AuthConfig{HMACSecret: testSecret, Issuer: "deed", AllowAnonymous: true}, nil)
	expired, _ := SignToken(TokenRequest{Secret: testSecret, Issuer: "deed", Subject: subject, TTL: time.Minute, Now: time.Now().Add(-time.Hour)})
	wrongIssuer, _ := SignToken(TokenRequest{Secret: testSecret, Issuer: "other", Subject: subject})
	wrongKey, _ := SignToken(TokenRequest{Secret: "another-secret-another-secret-xx", Issuer: "deed", Subject: subject})
	badSubject, _ := SignToken(TokenRequest{Secret: testSecret, Issuer: "deed", Subject: "nobody"})

	for name, token := range map[string]string{
		"expired": expired, "issuer": wrongIssuer, "key": wrongKey, "subject": badSubject,
	} {
		if _, err := auth.Authenticate(token); err == nil {
			t.Fatalf("%s: expected rejection", name)
		}
	}

	called := false
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, called = IdentityFromContext(r.Context())
		called = !called
	}))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/rpc", nil))
	if res.Code != http.StatusOK || !called {
		t.Fatalf("expected anonymous request to pass without identity")
	}
}

func TestAuthenticatorRequiresTokenWhenAnonymousDisabled(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{HMACSecret: testSecret}, nil)
	handler := auth.Middleware(okHandler())
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/rpc", nil))
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
}
