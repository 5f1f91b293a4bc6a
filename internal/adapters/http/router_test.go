package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stackapp/auth-service/internal/adapters/session"
	"github.com/stackapp/auth-service/internal/application"
	"github.com/stackapp/auth-service/internal/domain"
	"github.com/stackapp/auth-service/internal/ports"
)

func TestRequireAuthBearerHeader(t *testing.T) {
	t.Parallel()

	f := newHTTPFixture(t)
	router := NewRouter(f.handler, f.sessions)

	r := httptest.NewRequest(http.MethodGet, "/auth/v1/me", nil)
	r.Header.Set("Authorization", "Bearer "+f.token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeEnvelope(t, w)
	if body["success"] != true {
		t.Fatalf("expected success envelope, got %v", body)
	}
	user, _ := body["user"].(map[string]any)
	if user["email"] != "bearer@example.com" {
		t.Fatalf("unexpected user in response: %v", body)
	}
}

func TestRequireAuthBearerCookieBeforeHeader(t *testing.T) {
	t.Parallel()

	f := newHTTPFixture(t)
	router := NewRouter(f.handler, f.sessions)

	r := httptest.NewRequest(http.MethodGet, "/auth/v1/me", nil)
	r.AddCookie(&http.Cookie{Name: "jwt", Value: f.token})
	r.Header.Set("Authorization", "Bearer malformed-token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("cookie token should win over header, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRequireAuthWithoutCredentials(t *testing.T) {
	t.Parallel()

	f := newHTTPFixture(t)
	router := NewRouter(f.handler, f.sessions)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/v1/me", nil))

	assertAPIError(t, w, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestRequireAuthRejectionsAreUniform(t *testing.T) {
	t.Parallel()

	f := newHTTPFixture(t)
	router := NewRouter(f.handler, f.sessions)

	// Expired and malformed tokens must be indistinguishable to the caller.
	for _, token := range []string{f.expiredToken, "malformed-token"} {
		r := httptest.NewRequest(http.MethodGet, "/auth/v1/me", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, r)

		assertAPIError(t, w, http.StatusUnauthorized, "UNAUTHORIZED")
		body := decodeEnvelope(t, w)
		if body["error"] != "invalid or missing credentials" {
			t.Fatalf("rejection message must not name the cause, got %v", body)
		}
	}
}

func TestRequireAuthWithoutSessionLayerIsConfigError(t *testing.T) {
	t.Parallel()

	f := newHTTPFixture(t)
	router := NewRouter(f.handler, nil)

	// A valid bearer token must not mask the missing session layer.
	r := httptest.NewRequest(http.MethodGet, "/auth/v1/me", nil)
	r.Header.Set("Authorization", "Bearer "+f.token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	assertAPIError(t, w, http.StatusInternalServerError, "SESSION_NOT_CONFIGURED")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/v1/me", nil))
	assertAPIError(t, w, http.StatusInternalServerError, "SESSION_NOT_CONFIGURED")
}

func TestDelegatedSessionWinsOverBearer(t *testing.T) {
	t.Parallel()

	f := newHTTPFixture(t)
	router := NewRouter(f.handler, f.sessions)

	r := httptest.NewRequest(http.MethodGet, "/auth/v1/me", nil)
	r.AddCookie(&http.Cookie{Name: "idp_session", Value: "delegated-token"})
	r.AddCookie(&http.Cookie{Name: "jwt", Value: f.token})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeEnvelope(t, w)
	user, _ := body["user"].(map[string]any)
	if user["email"] != "delegated@example.com" {
		t.Fatalf("delegated identity should take precedence, got %v", body)
	}
}

func TestRequireAuthFallsBackWhenLoggedOut(t *testing.T) {
	t.Parallel()

	f := newHTTPFixture(t)
	router := NewRouter(f.handler, f.sessions)

	// Session layer wired but no provider cookie; the bearer token carries.
	r := httptest.NewRequest(http.MethodGet, "/auth/v1/me", nil)
	r.Header.Set("Authorization", "Bearer "+f.token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected bearer fallback to succeed, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRequireDelegatedWithoutSessionLayer(t *testing.T) {
	t.Parallel()

	f := newHTTPFixture(t)
	router := NewRouter(f.handler, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/v1/session", nil))

	assertAPIError(t, w, http.StatusInternalServerError, "SESSION_NOT_CONFIGURED")
}

func TestRequireDelegatedRejectsBearerOnly(t *testing.T) {
	t.Parallel()

	f := newHTTPFixture(t)
	router := NewRouter(f.handler, f.sessions)

	r := httptest.NewRequest(http.MethodGet, "/auth/v1/session", nil)
	r.Header.Set("Authorization", "Bearer "+f.token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assertAPIError(t, w, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestDelegatedSessionEndpoint(t *testing.T) {
	t.Parallel()

	f := newHTTPFixture(t)
	router := NewRouter(f.handler, f.sessions)

	r := httptest.NewRequest(http.MethodGet, "/auth/v1/session", nil)
	r.AddCookie(&http.Cookie{Name: "idp_session", Value: "delegated-token"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decodeEnvelope(t, w)
	if body["subject"] != "idp-sub-1" || body["email"] != "delegated@example.com" {
		t.Fatalf("unexpected session payload: %v", body)
	}
}

func TestWalletOwnership(t *testing.T) {
	t.Parallel()

	f := newHTTPFixture(t)
	router := NewRouter(f.handler, f.sessions)

	// Ownership comparison is case-insensitive.
	r := httptest.NewRequest(http.MethodGet, "/wallet/v1/0xBEARERWALLET", nil)
	r.Header.Set("Authorization", "Bearer "+f.token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for owned wallet, got %d: %s", w.Code, w.Body.String())
	}

	r = httptest.NewRequest(http.MethodGet, "/wallet/v1/0xsomeoneelse", nil)
	r.Header.Set("Authorization", "Bearer "+f.token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, r)
	assertAPIError(t, w, http.StatusForbidden, "WALLET_OWNERSHIP")
}

func TestOptionalAuthPassesAnonymously(t *testing.T) {
	t.Parallel()

	f := newHTTPFixture(t)

	var identity ResolvedIdentity
	var resolved bool
	handler := session.Attach(f.sessions)(f.handler.OptionalAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, resolved = IdentityFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusNoContent || resolved {
		t.Fatalf("expected anonymous pass-through, got %d, resolved=%v", w.Code, resolved)
	}

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Bearer "+f.token)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if !resolved || identity.Email != "bearer@example.com" {
		t.Fatalf("expected resolved bearer identity, got %+v", identity)
	}
}

func TestLoginInvalidCredentialsEnvelope(t *testing.T) {
	t.Parallel()

	f := newHTTPFixture(t)
	router := NewRouter(f.handler, nil)

	r := httptest.NewRequest(http.MethodPost, "/auth/v1/login",
		strings.NewReader(`{"email":"bearer@example.com","password":"wrong-password"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assertAPIError(t, w, http.StatusUnauthorized, "INVALID_CREDENTIALS")
}

func TestMalformedBodyRejected(t *testing.T) {
	t.Parallel()

	f := newHTTPFixture(t)
	router := NewRouter(f.handler, nil)

	r := httptest.NewRequest(http.MethodPost, "/auth/v1/verify-otp",
		strings.NewReader(`{"email":"x@example.com","unknown":true}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assertAPIError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestLogoutClearsDelegatedSession(t *testing.T) {
	t.Parallel()

	f := newHTTPFixture(t)
	router := NewRouter(f.handler, f.sessions)

	r := httptest.NewRequest(http.MethodPost, "/auth/v1/logout", nil)
	r.AddCookie(&http.Cookie{Name: "idp_session", Value: "delegated-token"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var cleared bool
	for _, c := range w.Result().Cookies() {
		if c.Name == "idp_session" && c.MaxAge == -1 {
			cleared = true
		}
	}
	if !cleared {
		t.Fatalf("expected expiring idp_session cookie, got %+v", w.Result().Cookies())
	}
}

func TestRequestIDPropagation(t *testing.T) {
	t.Parallel()

	f := newHTTPFixture(t)
	router := NewRouter(f.handler, nil)

	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.Header.Set("X-Request-Id", "req-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	if got := w.Header().Get("X-Request-Id"); got != "req-42" {
		t.Fatalf("expected request id echoed, got %q", got)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected generated request id")
	}
}

type httpFixture struct {
	handler      *Handler
	sessions     *session.Provider
	token        string
	expiredToken string
}

func newHTTPFixture(t *testing.T) *httpFixture {
	t.Helper()

	bearerUser := domain.User{
		UserID:        uuid.New(),
		Email:         "bearer@example.com",
		PasswordHash:  "hashed:SecurePass123!",
		DisplayName:   "Bearer User",
		WalletAddress: "0xbearerwallet",
		EmailVerified: true,
		IsActive:      true,
	}
	delegatedUser := domain.User{
		UserID:        uuid.New(),
		Email:         "delegated@example.com",
		DisplayName:   "Delegated User",
		WalletAddress: "0xdelegatedwallet",
		EmailVerified: true,
		IsActive:      true,
	}

	users := &stubUsers{byEmail: map[string]domain.User{
		bearerUser.Email:    bearerUser,
		delegatedUser.Email: delegatedUser,
	}, byID: map[uuid.UUID]domain.User{
		bearerUser.UserID:    bearerUser,
		delegatedUser.UserID: delegatedUser,
	}}
	signer := &stubSigner{tokens: map[string]ports.IdentityClaims{}, errs: map[string]error{}}

	now := time.Now().UTC()
	token := "bearer-token-ok"
	signer.tokens[token] = ports.IdentityClaims{
		UserID:        bearerUser.UserID,
		Email:         bearerUser.Email,
		WalletAddress: bearerUser.WalletAddress,
		IssuedAt:      now,
		ExpiresAt:     now.Add(time.Hour),
	}
	expired := "bearer-token-expired"
	signer.errs[expired] = domain.ErrTokenExpired

	svc := application.NewService(application.Dependencies{
		Config:        application.Config{TokenTTL: time.Hour},
		Users:         users,
		LoginAttempts: stubAttempts{},
		Hasher:        stubHasher{},
		TokenSigner:   signer,
	})

	verifier := &stubIDTokenVerifier{identities: map[string]*ports.ProviderIdentity{
		"delegated-token": {
			Subject:       "idp-sub-1",
			Email:         delegatedUser.Email,
			WalletAddress: delegatedUser.WalletAddress,
		},
	}}

	return &httpFixture{
		handler:      NewHandler(svc),
		sessions:     session.NewProvider(verifier, "idp_session", nil),
		token:        token,
		expiredToken: expired,
	}
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return body
}

func assertAPIError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, w.Code, w.Body.String())
	}
	body := decodeEnvelope(t, w)
	if body["success"] != false || body["code"] != code {
		t.Fatalf("expected error code %s, got %v", code, body)
	}
}

type stubUsers struct {
	mu      sync.Mutex
	byEmail map[string]domain.User
	byID    map[uuid.UUID]domain.User
}

func (s *stubUsers) CreateWithOutboxTx(context.Context, ports.CreateUserTxParams, ports.OutboxEvent) (domain.User, error) {
	return domain.User{}, errors.New("not supported in this fixture")
}

func (s *stubUsers) GetByEmail(_ context.Context, email string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byEmail[email]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (s *stubUsers) GetByID(_ context.Context, userID uuid.UUID) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

type stubAttempts struct{}

func (stubAttempts) Insert(context.Context, domain.LoginAttempt) error { return nil }

func (stubAttempts) ListByUser(context.Context, uuid.UUID, int, int) ([]domain.LoginAttempt, error) {
	return nil, nil
}

type stubHasher struct{}

func (stubHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }

func (stubHasher) Compare(hash, password string) error {
	if hash != "hashed:"+password {
		return errors.New("password mismatch")
	}
	return nil
}

type stubSigner struct {
	mu     sync.Mutex
	tokens map[string]ports.IdentityClaims
	errs   map[string]error
}

func (s *stubSigner) Sign(claims ports.IdentityClaims) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := "token-" + uuid.NewString()
	s.tokens[token] = claims
	return token, nil
}

func (s *stubSigner) Verify(raw string) (ports.IdentityClaims, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.errs[raw]; ok {
		return ports.IdentityClaims{}, err
	}
	claims, ok := s.tokens[raw]
	if !ok {
		return ports.IdentityClaims{}, domain.ErrTokenMalformed
	}
	return claims, nil
}

type stubIDTokenVerifier struct {
	identities map[string]*ports.ProviderIdentity
}

func (v *stubIDTokenVerifier) VerifyIDToken(_ context.Context, raw string) (*ports.ProviderIdentity, error) {
	if identity, ok := v.identities[raw]; ok {
		return identity, nil
	}
	return nil, errors.New("token rejected")
}
