package session

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/stackapp/auth-service/internal/ports"
)

// idTokenVerifier validates a raw provider session token.
type idTokenVerifier interface {
	VerifyIDToken(ctx context.Context, raw string) (*ports.ProviderIdentity, error)
}

// Provider builds a per-request delegated session from the incoming request.
// It is safe for concurrent use; the sessions it produces are not.
type Provider struct {
	verifier   idTokenVerifier
	cookieName string
	logger     *slog.Logger
}

func NewProvider(verifier idTokenVerifier, cookieName string, logger *slog.Logger) *Provider {
	if strings.TrimSpace(cookieName) == "" {
		cookieName = "idp_session"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{verifier: verifier, cookieName: cookieName, logger: logger}
}

// ForRequest binds a session to one request/response pair. The session caches
// the verification result, so repeated CurrentUser calls within the request
// cost a single token validation.
func (p *Provider) ForRequest(w http.ResponseWriter, r *http.Request) *Session {
	return &Session{
		provider: p,
		cookies:  NewCookieStore(w, r),
	}
}

// Session is a per-request view of the delegated provider session. It
// implements ports.SessionProvider.
type Session struct {
	provider *Provider
	cookies  *CookieStore

	resolved bool
	identity *ports.ProviderIdentity
}

func (s *Session) IsLoggedIn(ctx context.Context) (bool, error) {
	identity, err := s.resolve(ctx)
	if err != nil {
		return false, err
	}
	return identity != nil, nil
}

func (s *Session) CurrentUser(ctx context.Context) (*ports.ProviderIdentity, error) {
	identity, err := s.resolve(ctx)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, ports.ErrNoDelegatedSession
	}
	return identity, nil
}

func (s *Session) Clear(ctx context.Context) error {
	s.cookies.Delete(s.provider.cookieName)
	s.resolved = true
	s.identity = nil
	return nil
}

// resolve reads the session cookie (honoring writes made earlier in this
// request) and validates it once. An absent cookie means no session; a cookie
// that fails validation is treated the same way, since stale provider tokens
// are routine after key rotation or expiry.
func (s *Session) resolve(ctx context.Context) (*ports.ProviderIdentity, error) {
	if s.resolved {
		return s.identity, nil
	}
	raw, ok := s.cookies.Get(s.provider.cookieName)
	if !ok || strings.TrimSpace(raw) == "" {
		s.resolved = true
		s.identity = nil
		return nil, nil
	}
	identity, err := s.provider.verifier.VerifyIDToken(ctx, raw)
	if err != nil {
		s.provider.logger.Debug("delegated session token rejected",
			slog.String("service", "stack-auth-service"),
			slog.String("module", "auth"),
			slog.String("layer", "adapter"),
			slog.String("operation", "session.resolve"),
			slog.String("outcome", "rejected"),
			slog.String("error", err.Error()),
		)
		s.resolved = true
		s.identity = nil
		return nil, nil
	}
	s.resolved = true
	s.identity = identity
	return identity, nil
}
