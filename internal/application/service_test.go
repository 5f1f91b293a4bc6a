package application_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stackapp/auth-service/internal/application"
	"github.com/stackapp/auth-service/internal/domain"
	"github.com/stackapp/auth-service/internal/ports"
)

func TestSignupAndLoginEndToEnd(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	otpRes, err := f.service.RequestOTP(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("request otp failed: %v", err)
	}
	if !otpRes.ExpiresAt.After(f.clock.Now()) {
		t.Fatalf("otp expiry should be in the future")
	}

	code := f.otps.currentCode(t, "user@example.com")
	if err := f.service.VerifyOTP(ctx, "user@example.com", code); err != nil {
		t.Fatalf("verify otp failed: %v", err)
	}

	signupRes, err := f.service.CompleteSignup(ctx, application.CompleteSignupRequest{
		Email:       "user@example.com",
		Password:    "SecurePass123!",
		DisplayName: "Test User",
		PhoneNumber: "+15550001111",
		Nationality: "US",
	}, "idem-1")
	if err != nil {
		t.Fatalf("complete signup failed: %v", err)
	}
	if signupRes.Token == "" {
		t.Fatalf("signup token should not be empty")
	}
	if signupRes.User.ID == uuid.Nil {
		t.Fatalf("signup returned empty user id")
	}
	if signupRes.User.WalletAddress == "" {
		t.Fatalf("signup should provision a wallet address")
	}

	loginRes, err := f.service.Login(ctx, application.LoginRequest{
		Email:     "user@example.com",
		Password:  "SecurePass123!",
		IPAddress: "127.0.0.1",
		UserAgent: "unit-test",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if loginRes.Token == "" {
		t.Fatalf("login token should not be empty")
	}
	if loginRes.User.ID != signupRes.User.ID {
		t.Fatalf("login returned a different user")
	}
}

func defaultTestConfig() application.Config {
	return application.Config{
		TokenTTL:             time.Hour,
		OTPTTL:               10 * time.Minute,
		OTPRequestCooldown:   time.Minute,
		FailedLoginThreshold: 5,
		LockoutDuration:      30 * time.Minute,
	}
}

func newFixture() *fixture {
	return newFixtureWithConfig(defaultTestConfig())
}

func newFixtureWithConfig(cfg application.Config) *fixture {
	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	users := &fakeUsers{
		byEmail: make(map[string]domain.User),
		byID:    make(map[uuid.UUID]domain.User),
	}
	otps := &fakeOTPs{byEmail: make(map[string]domain.OTP)}
	loginAttempts := &fakeLoginAttempts{}
	outbox := &fakeOutbox{}
	idem := &fakeIdempotency{records: map[string]ports.IdempotencyRecord{}}
	lockouts := &fakeLockouts{state: map[string]ports.LockoutState{}}

	svc := application.NewService(application.Dependencies{
		Config:        cfg,
		Users:         users,
		OTPs:          otps,
		LoginAttempts: loginAttempts,
		Outbox:        outbox,
		Idempotency:   idem,
		Lockouts:      lockouts,
		Hasher:        &fakeHasher{},
		TokenSigner:   &fakeSigner{tokens: map[string]ports.IdentityClaims{}},
		Wallets:       &fakeWallets{},
		Now:           clock.Now,
	})

	return &fixture{
		service:       svc,
		clock:         clock,
		users:         users,
		otps:          otps,
		loginAttempts: loginAttempts,
		outbox:        outbox,
		idempotency:   idem,
		lockouts:      lockouts,
	}
}

type fixture struct {
	service       *application.Service
	clock         *testClock
	users         *fakeUsers
	otps          *fakeOTPs
	loginAttempts *fakeLoginAttempts
	outbox        *fakeOutbox
	idempotency   *fakeIdempotency
	lockouts      *fakeLockouts
}

// requestAndVerify runs the OTP leg of signup for tests that only care about
// what happens afterwards.
func (f *fixture) requestAndVerify(t *testing.T, email string) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.service.RequestOTP(ctx, email); err != nil {
		t.Fatalf("request otp failed: %v", err)
	}
	if err := f.service.VerifyOTP(ctx, email, f.otps.currentCode(t, email)); err != nil {
		t.Fatalf("verify otp failed: %v", err)
	}
}

func signupRequest(email string) application.CompleteSignupRequest {
	return application.CompleteSignupRequest{
		Email:       email,
		Password:    "SecurePass123!",
		DisplayName: "Test User",
		PhoneNumber: "+15550001111",
		Nationality: "US",
	}
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeUsers struct {
	mu      sync.Mutex
	byEmail map[string]domain.User
	byID    map[uuid.UUID]domain.User
	events  []ports.OutboxEvent
}

func (f *fakeUsers) CreateWithOutboxTx(_ context.Context, params ports.CreateUserTxParams, outboxEvent ports.OutboxEvent) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byEmail[params.Email]; ok {
		return domain.User{}, domain.ErrConflict
	}
	u := domain.User{
		UserID:        uuid.New(),
		Email:         params.Email,
		PasswordHash:  params.PasswordHash,
		DisplayName:   params.DisplayName,
		WalletAddress: params.WalletAddress,
		PhoneNumber:   params.PhoneNumber,
		Nationality:   params.Nationality,
		ReferralCode:  params.ReferralCode,
		EmailVerified: params.EmailVerified,
		IsActive:      true,
		CreatedAt:     params.RegisteredAtUTC,
		UpdatedAt:     params.RegisteredAtUTC,
	}
	f.byEmail[u.Email] = u
	f.byID[u.UserID] = u
	f.events = append(f.events, outboxEvent)
	return u, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byEmail[email]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetByID(_ context.Context, userID uuid.UUID) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) seed(u domain.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byEmail[u.Email] = u
	f.byID[u.UserID] = u
}

type fakeOTPs struct {
	mu      sync.Mutex
	byEmail map[string]domain.OTP
}

func (f *fakeOTPs) Replace(_ context.Context, otp domain.OTP) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byEmail[otp.Email] = otp
	return nil
}

func (f *fakeOTPs) ConsumeLive(_ context.Context, email, code string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.byEmail[email]
	if !ok || rec.Code != code || !rec.IsLive(now) {
		return false, nil
	}
	rec.Verified = true
	f.byEmail[email] = rec
	return true, nil
}

func (f *fakeOTPs) IncrementAttempts(_ context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.byEmail[email]
	if !ok {
		return domain.ErrNotFound
	}
	if !rec.Verified {
		rec.Attempts++
		f.byEmail[email] = rec
	}
	return nil
}

func (f *fakeOTPs) HasVerified(_ context.Context, email string, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.byEmail[email]
	return ok && rec.Verified && rec.ExpiresAt.After(now), nil
}

func (f *fakeOTPs) GetByEmail(_ context.Context, email string) (domain.OTP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.byEmail[email]
	if !ok {
		return domain.OTP{}, domain.ErrNotFound
	}
	return rec, nil
}

func (f *fakeOTPs) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for email, rec := range f.byEmail {
		if !rec.ExpiresAt.After(now) {
			delete(f.byEmail, email)
			count++
		}
	}
	return count, nil
}

func (f *fakeOTPs) currentCode(t *testing.T, email string) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.byEmail[email]
	if !ok {
		t.Fatalf("no otp record for %s", email)
	}
	return rec.Code
}

type fakeLoginAttempts struct {
	mu       sync.Mutex
	attempts []domain.LoginAttempt
}

func (f *fakeLoginAttempts) Insert(_ context.Context, attempt domain.LoginAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, attempt)
	return nil
}

func (f *fakeLoginAttempts) ListByUser(_ context.Context, userID uuid.UUID, limit, offset int) ([]domain.LoginAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []domain.LoginAttempt
	for i := len(f.attempts) - 1; i >= 0; i-- {
		a := f.attempts[i]
		if a.UserID != nil && *a.UserID == userID {
			matched = append(matched, a)
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (f *fakeLoginAttempts) byStatus(status string) []domain.LoginAttempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.LoginAttempt
	for _, a := range f.attempts {
		if a.Status == status {
			out = append(out, a)
		}
	}
	return out
}

type fakeOutbox struct {
	mu     sync.Mutex
	events []ports.OutboxEvent
}

func (f *fakeOutbox) Enqueue(_ context.Context, event ports.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeOutbox) ClaimUnpublished(context.Context, int, string, time.Time) ([]ports.OutboxRecord, error) {
	return nil, nil
}

func (f *fakeOutbox) MarkPublished(context.Context, uuid.UUID, string, time.Time) error { return nil }

func (f *fakeOutbox) MarkFailed(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}

func (f *fakeOutbox) MarkDeadLettered(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}

func (f *fakeOutbox) byType(eventType string) []ports.OutboxEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ports.OutboxEvent
	for _, e := range f.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fakeIdempotency struct {
	mu      sync.Mutex
	records map[string]ports.IdempotencyRecord
}

func (f *fakeIdempotency) Get(_ context.Context, key string) (*ports.IdempotencyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (f *fakeIdempotency) Reserve(_ context.Context, key, requestHash string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[key]; ok {
		return domain.ErrConflict
	}
	f.records[key] = ports.IdempotencyRecord{Key: key, RequestHash: requestHash, Status: "PENDING", ExpiresAt: expiresAt}
	return nil
}

func (f *fakeIdempotency) Complete(_ context.Context, key string, responseCode int, responseBody []byte, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[key]
	if !ok {
		return domain.ErrNotFound
	}
	rec.Status = "COMPLETED"
	rec.ResponseCode = responseCode
	rec.ResponseBody = responseBody
	rec.UpdatedAt = at
	f.records[key] = rec
	return nil
}

type fakeLockouts struct {
	mu    sync.Mutex
	state map[string]ports.LockoutState
}

func (f *fakeLockouts) Get(_ context.Context, key string) (ports.LockoutState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state[key], nil
}

func (f *fakeLockouts) RecordFailure(_ context.Context, key string, now time.Time, threshold int, lockoutWindow time.Duration) (ports.LockoutState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state := f.state[key]
	state.FailedCount++
	if state.FailedCount >= threshold {
		until := now.Add(lockoutWindow)
		state.LockedUntil = &until
	}
	f.state[key] = state
	return state, nil
}

func (f *fakeLockouts) Clear(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.state, key)
	return nil
}

type fakeHasher struct{}

func (fakeHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }

func (fakeHasher) Compare(hash, password string) error {
	if hash != "hashed:"+password {
		return errors.New("password mismatch")
	}
	return nil
}

type fakeSigner struct {
	mu     sync.Mutex
	tokens map[string]ports.IdentityClaims
}

func (f *fakeSigner) Sign(claims ports.IdentityClaims) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	token := "token-" + uuid.NewString()
	f.tokens[token] = claims
	return token, nil
}

func (f *fakeSigner) Verify(raw string) (ports.IdentityClaims, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	claims, ok := f.tokens[raw]
	if !ok {
		return ports.IdentityClaims{}, domain.ErrTokenMalformed
	}
	return claims, nil
}

type fakeWallets struct{}

func (fakeWallets) CreateWallet(_ context.Context, email string) (string, error) {
	return "0xw-" + email, nil
}
