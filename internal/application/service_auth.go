package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stackapp/auth-service/internal/domain"
	"github.com/stackapp/auth-service/internal/ports"
)

// CompleteSignup finishes the two-step flow: the email must carry a verified,
// unexpired OTP from an earlier VerifyOTP call.
func (s *Service) CompleteSignup(ctx context.Context, req CompleteSignupRequest, idempotencyKey string) (AuthResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return AuthResponse{}, err
	}
	if err := validateSignupFields(req); err != nil {
		return AuthResponse{}, err
	}

	verified, err := s.otps.HasVerified(ctx, email, s.nowFn())
	if err != nil {
		return AuthResponse{}, fmt.Errorf("check otp verification: %w", err)
	}
	if !verified {
		return AuthResponse{}, domain.ErrInvalidOTP
	}

	return s.createAccount(ctx, email, req, idempotencyKey)
}

// Signup is the legacy single-step flow: code verification and account
// creation in one call.
func (s *Service) Signup(ctx context.Context, req SignupRequest, idempotencyKey string) (AuthResponse, error) {
	if err := s.VerifyOTP(ctx, req.Email, req.OTP); err != nil {
		return AuthResponse{}, err
	}

	email, err := normalizeEmail(req.Email)
	if err != nil {
		return AuthResponse{}, err
	}
	if err := validateSignupFields(req.CompleteSignupRequest); err != nil {
		return AuthResponse{}, err
	}
	return s.createAccount(ctx, email, req.CompleteSignupRequest, idempotencyKey)
}

func (s *Service) createAccount(ctx context.Context, email string, req CompleteSignupRequest, idempotencyKey string) (AuthResponse, error) {
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return AuthResponse{}, domain.ErrEmailExists
	} else if !errors.Is(err, domain.ErrNotFound) {
		return AuthResponse{}, fmt.Errorf("lookup user: %w", err)
	}

	if idempotencyKey != "" {
		requestHash := hashRequest(req)
		if err := s.idempotency.Reserve(ctx, idempotencyKey, requestHash, s.nowFn().Add(7*24*time.Hour)); err != nil {
			return AuthResponse{}, fmt.Errorf("%w: %v", domain.ErrIdempotencyConflict, err)
		}
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return AuthResponse{}, fmt.Errorf("hash password: %w", err)
	}

	walletAddress, err := s.wallets.CreateWallet(ctx, email)
	if err != nil {
		return AuthResponse{}, fmt.Errorf("provision wallet: %w", err)
	}

	now := s.nowFn()
	payload, _ := json.Marshal(map[string]any{
		"email":          email,
		"wallet_address": walletAddress,
		"registered_at":  now,
	})
	event := ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    "user.registered",
		PartitionKey: email,
		Payload:      payload,
		OccurredAt:   now,
	}

	user, err := s.users.CreateWithOutboxTx(ctx, ports.CreateUserTxParams{
		Email:           email,
		PasswordHash:    passwordHash,
		DisplayName:     strings.TrimSpace(req.DisplayName),
		WalletAddress:   walletAddress,
		PhoneNumber:     strings.TrimSpace(req.PhoneNumber),
		Nationality:     strings.TrimSpace(req.Nationality),
		ReferralCode:    strings.TrimSpace(req.ReferralCode),
		EmailVerified:   true,
		IdempotencyKey:  idempotencyKey,
		RegisteredAtUTC: now,
	}, event)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return AuthResponse{}, domain.ErrEmailExists
		}
		return AuthResponse{}, err
	}

	token, err := s.signToken(user)
	if err != nil {
		return AuthResponse{}, err
	}

	res := AuthResponse{Token: token, User: toUserSummary(user)}
	if idempotencyKey != "" {
		responseBody, _ := json.Marshal(res)
		_ = s.idempotency.Complete(ctx, idempotencyKey, 201, responseBody, s.nowFn())
	}
	return res, nil
}

// Login authenticates with email and password. Failed attempts feed the
// lockout store; the email-verified check runs only after the password
// matches so unverified accounts cannot be probed with wrong passwords.
func (s *Service) Login(ctx context.Context, req LoginRequest) (AuthResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return AuthResponse{}, err
	}
	if req.Password == "" {
		return AuthResponse{}, fmt.Errorf("%w: password is required", domain.ErrInvalidInput)
	}

	lockKey := "login:" + email
	if s.lockouts != nil {
		state, lockErr := s.lockouts.Get(ctx, lockKey)
		if lockErr == nil && state.LockedUntil != nil && state.LockedUntil.After(s.nowFn()) {
			return AuthResponse{}, domain.ErrRateLimited
		}
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		s.recordFailure(ctx, nil, req, "USER_NOT_FOUND")
		return AuthResponse{}, domain.ErrInvalidCredentials
	}

	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		s.recordFailure(ctx, &user.UserID, req, "INVALID_PASSWORD")
		if s.lockouts != nil {
			_, _ = s.lockouts.RecordFailure(ctx, lockKey, s.nowFn(), s.cfg.FailedLoginThreshold, s.cfg.LockoutDuration)
		}
		return AuthResponse{}, domain.ErrInvalidCredentials
	}

	if !user.EmailVerified {
		s.recordFailure(ctx, &user.UserID, req, "EMAIL_NOT_VERIFIED")
		return AuthResponse{}, domain.ErrEmailNotVerified
	}

	if s.lockouts != nil {
		_ = s.lockouts.Clear(ctx, lockKey)
	}

	now := s.nowFn()
	if err := s.loginAttempts.Insert(ctx, domain.LoginAttempt{
		UserID:    &user.UserID,
		AttemptAt: now,
		IPAddress: req.IPAddress,
		Status:    "SUCCESS",
		UserAgent: req.UserAgent,
	}); err != nil {
		s.logWarn(ctx, "login", "failed to persist login attempt", err)
	}

	payload, _ := json.Marshal(map[string]any{
		"user_id":   user.UserID,
		"logged_at": now,
	})
	if err := s.outbox.Enqueue(ctx, ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    "user.logged_in",
		PartitionKey: user.UserID.String(),
		Payload:      payload,
		OccurredAt:   now,
	}); err != nil {
		s.logWarn(ctx, "login", "failed to enqueue login event", err)
	}

	token, err := s.signToken(user)
	if err != nil {
		return AuthResponse{}, err
	}
	return AuthResponse{Token: token, User: toUserSummary(user)}, nil
}

// ValidateToken verifies a self-issued bearer token and returns its claims.
// Used by the resolver's fallback path.
func (s *Service) ValidateToken(_ context.Context, raw string) (ports.IdentityClaims, error) {
	return s.tokenSigner.Verify(raw)
}

// GetUser loads the account behind a resolved identity.
func (s *Service) GetUser(ctx context.Context, userID uuid.UUID) (UserSummary, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return UserSummary{}, err
	}
	return toUserSummary(user), nil
}

// GetUserByEmail maps a delegated identity, which carries no local user ID,
// onto its local account.
func (s *Service) GetUserByEmail(ctx context.Context, rawEmail string) (UserSummary, error) {
	email, err := normalizeEmail(rawEmail)
	if err != nil {
		return UserSummary{}, err
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return UserSummary{}, err
	}
	return toUserSummary(user), nil
}

// ListLoginHistory returns recent attempts for the authenticated user.
func (s *Service) ListLoginHistory(ctx context.Context, userID uuid.UUID, query LoginHistoryQuery) ([]LoginAttemptSummary, error) {
	if query.Limit <= 0 || query.Limit > 100 {
		query.Limit = 20
	}
	if query.Page <= 0 {
		query.Page = 1
	}
	attempts, err := s.loginAttempts.ListByUser(ctx, userID, query.Limit, (query.Page-1)*query.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]LoginAttemptSummary, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, LoginAttemptSummary{
			AttemptAt:     a.AttemptAt,
			IPAddress:     a.IPAddress,
			Status:        a.Status,
			FailureReason: a.FailureReason,
			UserAgent:     a.UserAgent,
		})
	}
	return out, nil
}

func (s *Service) signToken(user domain.User) (string, error) {
	now := s.nowFn()
	token, err := s.tokenSigner.Sign(ports.IdentityClaims{
		UserID:        user.UserID,
		Email:         user.Email,
		WalletAddress: user.WalletAddress,
		IssuedAt:      now,
		ExpiresAt:     now.Add(s.cfg.TokenTTL),
	})
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

func toUserSummary(user domain.User) UserSummary {
	return UserSummary{
		ID:            user.UserID,
		Email:         user.Email,
		DisplayName:   user.DisplayName,
		WalletAddress: user.WalletAddress,
		PhoneNumber:   user.PhoneNumber,
		Nationality:   user.Nationality,
	}
}
