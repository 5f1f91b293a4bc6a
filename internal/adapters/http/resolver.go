package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stackapp/auth-service/internal/adapters/session"
	"github.com/stackapp/auth-service/internal/domain"
)

const (
	// bearerCookieName is the legacy cookie some clients still use to carry
	// the self-issued token. Checked before the Authorization header.
	bearerCookieName = "jwt"

	identitySourceDelegated = "delegated"
	identitySourceBearer    = "bearer"
)

// ResolvedIdentity is who the request is acting as, after the resolver has
// settled on one credential source.
type ResolvedIdentity struct {
	// UserID is the local account ID. Zero for delegated identities that
	// have not been mapped onto a local account.
	UserID        uuid.UUID
	Subject       string
	Email         string
	WalletAddress string
	Source        string
	Extra         map[string]any
}

// IdentityFrom returns the identity the resolver attached, if any.
func IdentityFrom(ctx context.Context) (ResolvedIdentity, bool) {
	v := ctx.Value(ctxKeyIdentity)
	identity, ok := v.(ResolvedIdentity)
	return identity, ok
}

func contextWithIdentity(ctx context.Context, identity ResolvedIdentity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, identity)
}

// resolveDelegated inspects the delegated provider session. Returns a nil
// identity with a nil error when the caller simply is not logged in; that is
// the signal RequireAuth uses to try the bearer fallback. An active session
// that yields no identity is an error, never a silent fallback.
func (h *Handler) resolveDelegated(r *http.Request) (*ResolvedIdentity, error) {
	sess := session.FromContext(r.Context())
	if sess == nil {
		return nil, domain.ErrSessionNotConfigured
	}
	loggedIn, err := sess.IsLoggedIn(r.Context())
	if err != nil {
		return nil, domain.ErrUnauthorized
	}
	if !loggedIn {
		return nil, nil
	}
	user, err := sess.CurrentUser(r.Context())
	if err != nil || user == nil {
		return nil, domain.ErrUnauthorized
	}
	return &ResolvedIdentity{
		Subject:       user.Subject,
		Email:         user.Email,
		WalletAddress: user.WalletAddress,
		Source:        identitySourceDelegated,
		Extra:         user.Extra,
	}, nil
}

func (h *Handler) resolveBearer(r *http.Request) (*ResolvedIdentity, error) {
	var raw string
	if cookie, err := r.Cookie(bearerCookieName); err == nil {
		raw = strings.TrimSpace(cookie.Value)
	}
	if raw == "" {
		token, err := bearerTokenFromHeader(r.Header.Get("Authorization"))
		if err != nil {
			return nil, domain.ErrUnauthorized
		}
		raw = token
	}
	claims, err := h.service.ValidateToken(r.Context(), raw)
	if err != nil {
		return nil, err
	}
	return &ResolvedIdentity{
		UserID:        claims.UserID,
		Subject:       claims.UserID.String(),
		Email:         claims.Email,
		WalletAddress: claims.WalletAddress,
		Source:        identitySourceBearer,
	}, nil
}

// RequireDelegated admits only requests with an active delegated session.
// A missing session layer is a wiring defect and surfaces as 500, not 401.
func (h *Handler) RequireDelegated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := h.resolveDelegated(r)
		if err != nil {
			writeMappedError(r.Context(), w, "require_delegated", err)
			return
		}
		if identity == nil {
			writeMappedError(r.Context(), w, "require_delegated", domain.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(contextWithIdentity(r.Context(), *identity)))
	})
}

// RequireAuth admits requests with either an active delegated session or a
// valid bearer token, in that order. The bearer fallback runs only when the
// delegated layer reports the caller as logged out; a missing session layer
// is a wiring defect and fails closed with a configuration error, never by
// downgrading to the bearer path.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := h.resolveAny(r)
		if err != nil {
			writeMappedError(r.Context(), w, "require_auth", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(contextWithIdentity(r.Context(), *identity)))
	})
}

// OptionalAuth resolves an identity when one is present and lets the request
// through anonymously otherwise.
func (h *Handler) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := h.resolveAny(r)
		if err != nil || identity == nil {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(contextWithIdentity(r.Context(), *identity)))
	})
}

func (h *Handler) resolveAny(r *http.Request) (*ResolvedIdentity, error) {
	identity, err := h.resolveDelegated(r)
	if err != nil {
		// Configuration errors and active-session failures both stop the
		// resolution; only a logged-out caller reaches the bearer fallback.
		return nil, err
	}
	if identity != nil {
		return identity, nil
	}
	return h.resolveBearer(r)
}

// RequireWalletOwnership rejects requests whose authenticated identity does
// not own the wallet named in the path. Must run after RequireAuth.
func (h *Handler) RequireWalletOwnership(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFrom(r.Context())
		if !ok {
			writeMappedError(r.Context(), w, "require_wallet_ownership", domain.ErrUnauthorized)
			return
		}
		requested := strings.TrimSpace(chi.URLParam(r, "wallet_address"))
		if requested == "" || identity.WalletAddress == "" ||
			!strings.EqualFold(requested, identity.WalletAddress) {
			writeMappedError(r.Context(), w, "require_wallet_ownership", domain.ErrWalletMismatch)
			return
		}
		next.ServeHTTP(w, r)
	})
}
