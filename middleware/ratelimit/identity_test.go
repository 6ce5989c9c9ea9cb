package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDefaultIdentityFunc_PrefersAuthenticatedUserFromContext(t *testing.T) {
	fn := DefaultIdentityFunc("X-Authenticated-User", true)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	r.Header.Set("X-Authenticated-User", "header-user")
	r = r.WithContext(WithUser(r.Context(), "ctx-user"))

	id := fn(r)
	if id.Key != "user:ctx-user" || id.UserID != "ctx-user" {
		t.Fatalf("expected context user, got %+v", id)
	}
	if id.IP != "10.0.0.1" {
		t.Fatalf("expected IP to be resolved anyway, got %q", id.IP)
	}
}

func TestDefaultIdentityFunc_UsesUserHeaderWhenSet(t *testing.T) {
	fn := DefaultIdentityFunc("X-Authenticated-User", false)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	r.Header.Set("X-Authenticated-User", " client-123 ")

	if got := fn(r).Key; got != "user:client-123" {
		t.Fatalf("expected header user, got %q", got)
	}
}

func TestDefaultIdentityFunc_IgnoresUserHeaderWhenNotConfigured(t *testing.T) {
	fn := DefaultIdentityFunc("", false)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.7:1234"
	r.Header.Set("X-Authenticated-User", "vip-user")

	id := fn(r)
	if id.Key != "10.0.0.7" || id.UserID != "" {
		t.Fatalf("expected forged header to be ignored, got %+v", id)
	}
}

func TestDefaultIdentityFunc_TrustXForwardedForUsesFirstIP(t *testing.T) {
	fn := DefaultIdentityFunc("", true)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")

	if got := fn(r).Key; got != "1.2.3.4" {
		t.Fatalf("expected first XFF ip, got %q", got)
	}
}

func TestDefaultIdentityFunc_FallbacksToRemoteAddrHost(t *testing.T) {
	fn := DefaultIdentityFunc("", false)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	r.Header.Set("X-Forwarded-For", "1.2.3.4")

	if got := fn(r).Key; got != "10.0.0.9" {
		t.Fatalf("expected remote host, got %q", got)
	}
}

func TestRoutePath_UsesMuxPattern(t *testing.T) {
	var got string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /admin/breakers/{service}/reset", func(w http.ResponseWriter, r *http.Request) {
		got = RoutePath(r)
	})

	r := httptest.NewRequest(http.MethodPost, "http://example/admin/breakers/TOKEN_GUARD/reset", nil)
	mux.ServeHTTP(httptest.NewRecorder(), r)

	if got != "/admin/breakers/{service}/reset" {
		t.Fatalf("expected route pattern path, got %q", got)
	}
}
