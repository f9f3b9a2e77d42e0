package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/padak/ceo-xmass-review/internal/services"
)

func TestIdentityResolution(t *testing.T) {
	mk := func(header, value string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			r.Header.Set(header, value)
		}
		return r
	}

	ir := IdentityResolver{Header: "X-Forwarded-Email"}
	if got := ir.Resolve(mk("X-Forwarded-Email", "petr@example.com")); got != "petr@example.com" {
		t.Fatalf("header identity: %q", got)
	}
	if got := ir.Resolve(mk("", "")); got != services.AnonymousIdentity {
		t.Fatalf("missing header must be anonymous, got %q", got)
	}
	if got := ir.Resolve(mk("X-Forwarded-Email", "   ")); got != services.AnonymousIdentity {
		t.Fatalf("blank header must be anonymous, got %q", got)
	}

	dev := IdentityResolver{Header: "X-Forwarded-Email", DevOverride: "dev@local"}
	if got := dev.Resolve(mk("X-Forwarded-Email", "petr@example.com")); got != "dev@local" {
		t.Fatalf("dev override must win, got %q", got)
	}
}

func TestIdentityMiddlewareContext(t *testing.T) {
	ir := IdentityResolver{Header: "X-Forwarded-Email"}
	var got string
	h := ir.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Forwarded-Email", "petr@example.com")
	h.ServeHTTP(httptest.NewRecorder(), r)
	if got != "petr@example.com" {
		t.Fatalf("identity not in context: %q", got)
	}
}
