package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func nextWithClaims(t *testing.T, got **Claims) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := FromContext(r.Context())
		*got = claims
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareAcceptsBearerToken(t *testing.T) {
	cfg := testConfig()
	token, err := Issue(cfg, "sess-1", "5", "Pat")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	var claims *Claims
	handler := NewMiddleware(cfg, nil).Wrap(nextWithClaims(t, &claims))

	req := httptest.NewRequest(http.MethodGet, "/v1/courses", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	if claims == nil || claims.SessionID != "sess-1" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestMiddlewareAcceptsSessionCookie(t *testing.T) {
	cfg := testConfig()
	token, err := Issue(cfg, "sess-2", "5", "Pat")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	var claims *Claims
	handler := NewMiddleware(cfg, nil).Wrap(nextWithClaims(t, &claims))

	req := httptest.NewRequest(http.MethodGet, "/v1/courses", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: token})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	if claims == nil || claims.SessionID != "sess-2" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	var claims *Claims
	handler := NewMiddleware(testConfig(), nil).Wrap(nextWithClaims(t, &claims))

	req := httptest.NewRequest(http.MethodGet, "/v1/courses", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
}

func TestMiddlewareRejectsExpiredToken(t *testing.T) {
	cfg := testConfig()
	expired := cfg
	expired.TTL = -time.Minute
	token, err := Issue(expired, "sess-3", "5", "Pat")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	var claims *Claims
	handler := NewMiddleware(cfg, nil).Wrap(nextWithClaims(t, &claims))

	req := httptest.NewRequest(http.MethodGet, "/v1/courses", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
}

func TestMiddlewareSkipperBypassesAuth(t *testing.T) {
	skipper := func(r *http.Request) bool { return r.URL.Path == "/healthz" }

	var claims *Claims
	handler := NewMiddleware(testConfig(), skipper).Wrap(nextWithClaims(t, &claims))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
	if claims != nil {
		t.Fatal("expected no claims on skipped route")
	}
}
