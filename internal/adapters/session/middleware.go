package session

import (
	"context"
	"net/http"

	"github.com/stackapp/auth-service/internal/ports"
)

type contextKey struct{}

var sessionKey contextKey

// Attach installs a per-request delegated session into the request context.
// Handlers retrieve it with FromContext. The session holds both the request
// and the response writer, so cookie writes it performs are visible to later
// reads within the same request.
func Attach(provider *Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if provider == nil {
				next.ServeHTTP(w, r)
				return
			}
			sess := provider.ForRequest(w, r)
			ctx := context.WithValue(r.Context(), sessionKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext returns the delegated session attached to the request, or nil
// when the session layer is not wired. Callers that require a session must
// treat nil as a configuration defect, not as "logged out".
func FromContext(ctx context.Context) ports.SessionProvider {
	sess, ok := ctx.Value(sessionKey).(*Session)
	if !ok {
		return nil
	}
	return sess
}
