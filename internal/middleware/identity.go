package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/padak/ceo-xmass-review/internal/services"
)

type identityCtxKey int

const identityKey identityCtxKey = 1

// IdentityResolver derives the respondent identity once per request.
// Priority: dev override, then the trusted proxy header, then anonymous.
// The header is trusted verbatim — this service must only be reachable
// through the authenticating proxy that injects it.
type IdentityResolver struct {
	// Header is the proxy-injected header name, e.g. X-Forwarded-Email.
	Header string
	// DevOverride short-circuits resolution for local development.
	DevOverride string
}

// Resolve returns the identity for one request.
func (ir IdentityResolver) Resolve(r *http.Request) string {
	if ir.DevOverride != "" {
		return ir.DevOverride
	}
	if v := strings.TrimSpace(r.Header.Get(ir.Header)); v != "" {
		return v
	}
	return services.AnonymousIdentity
}

// Middleware stores the resolved identity in the request context.
func (ir IdentityResolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), identityKey, ir.Resolve(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IdentityFromContext returns the identity stored by the resolver.
func IdentityFromContext(ctx context.Context) (string, bool) {
	if id, ok := ctx.Value(identityKey).(string); ok && id != "" {
		return id, true
	}
	return "", false
}
