// Package session wraps the delegated identity provider's per-request
// session state: a cookie-backed named-value store scoped to one HTTP
// exchange, and a provider session that answers is-logged-in /
// current-identity / clear over it.
package session

import (
	"net/http"
	"strings"
)

// CookieStore is a per-request named-value store over the in-flight
// request/response pair. The provider persists its own session state through
// it; the store itself never outlives the request.
//
// Writes are visible to subsequent reads within the same request, because
// the provider's logic may write-then-read before the response is sent.
type CookieStore struct {
	r       *http.Request
	w       http.ResponseWriter
	secure  bool
	overlay map[string]*string
}

// NewCookieStore binds a store to one HTTP exchange. Secure-channel
// detection drives cookie attributes: HTTPS (direct or forwarded) gets
// Secure + SameSite=None for cross-origin frontends, plain HTTP gets
// SameSite=Lax for local development.
func NewCookieStore(w http.ResponseWriter, r *http.Request) *CookieStore {
	secure := r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
	return &CookieStore{
		r:       r,
		w:       w,
		secure:  secure,
		overlay: make(map[string]*string),
	}
}

// Get returns the named value, honoring any Set/Delete already performed on
// this request before falling back to the incoming cookies.
func (s *CookieStore) Get(key string) (string, bool) {
	if v, ok := s.overlay[key]; ok {
		if v == nil {
			return "", false
		}
		return *v, true
	}
	c, err := s.r.Cookie(key)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}

// Set writes an outgoing cookie and records the value for same-request reads.
func (s *CookieStore) Set(key, value string) {
	http.SetCookie(s.w, &http.Cookie{
		Name:     key,
		Value:    value,
		Path:     "/",
		Secure:   s.secure,
		SameSite: s.sameSite(),
		HttpOnly: false,
	})
	v := value
	s.overlay[key] = &v
}

// Delete clears the cookie on the response and hides it from same-request reads.
func (s *CookieStore) Delete(key string) {
	http.SetCookie(s.w, &http.Cookie{
		Name:     key,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   s.secure,
		SameSite: s.sameSite(),
		HttpOnly: false,
	})
	s.overlay[key] = nil
}

// Secure reports whether the exchange arrived over a secure channel.
func (s *CookieStore) Secure() bool {
	return s.secure
}

func (s *CookieStore) sameSite() http.SameSite {
	if s.secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}
