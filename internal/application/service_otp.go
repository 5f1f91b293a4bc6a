package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/stackapp/auth-service/internal/domain"
	"github.com/stackapp/auth-service/internal/ports"
)

// RequestOTP issues a fresh code for an unregistered email. Any prior record
// for the email is superseded, which also resets its attempt counter; the
// per-email cooldown bounds how often that reset can happen.
func (s *Service) RequestOTP(ctx context.Context, rawEmail string) (RequestOTPResponse, error) {
	email, err := normalizeEmail(rawEmail)
	if err != nil {
		return RequestOTPResponse{}, err
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return RequestOTPResponse{}, domain.ErrEmailExists
	} else if !errors.Is(err, domain.ErrNotFound) {
		return RequestOTPResponse{}, fmt.Errorf("lookup user: %w", err)
	}

	return s.issueOTP(ctx, email)
}

// ResendOTP re-issues a code without the already-registered guard, matching
// the dedicated resend endpoint.
func (s *Service) ResendOTP(ctx context.Context, rawEmail string) (RequestOTPResponse, error) {
	email, err := normalizeEmail(rawEmail)
	if err != nil {
		return RequestOTPResponse{}, err
	}
	return s.issueOTP(ctx, email)
}

func (s *Service) issueOTP(ctx context.Context, email string) (RequestOTPResponse, error) {
	if err := s.enforceCooldown(ctx, "otp:req:"+email); err != nil {
		return RequestOTPResponse{}, err
	}

	now := s.nowFn()
	code, err := randomOTPCode()
	if err != nil {
		return RequestOTPResponse{}, fmt.Errorf("generate otp code: %w", err)
	}

	otp := domain.OTP{
		Email:     email,
		Code:      code,
		ExpiresAt: now.Add(s.cfg.OTPTTL),
		Verified:  false,
		Attempts:  0,
		CreatedAt: now,
	}
	if err := s.otps.Replace(ctx, otp); err != nil {
		return RequestOTPResponse{}, fmt.Errorf("store otp: %w", err)
	}

	// The code itself leaves the service only via the outbox; the
	// notification worker owns email delivery.
	payload, _ := json.Marshal(map[string]any{
		"email":      email,
		"code":       code,
		"expires_at": otp.ExpiresAt,
	})
	if err := s.outbox.Enqueue(ctx, ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    "auth.otp.requested",
		PartitionKey: email,
		Payload:      payload,
		OccurredAt:   now,
	}); err != nil {
		return RequestOTPResponse{}, fmt.Errorf("enqueue otp event: %w", err)
	}

	return RequestOTPResponse{ExpiresAt: otp.ExpiresAt}, nil
}

// VerifyOTP consumes a live code exactly once. A failed attempt increments
// the record's counter even when the submitted code matches nothing, so
// wrong guesses are penalized without revealing whether the email exists.
func (s *Service) VerifyOTP(ctx context.Context, rawEmail, code string) error {
	email, err := normalizeEmail(rawEmail)
	if err != nil {
		return err
	}
	if err := validateOTPShape(code); err != nil {
		return err
	}

	now := s.nowFn()
	consumed, err := s.otps.ConsumeLive(ctx, email, code, now)
	if err != nil {
		return fmt.Errorf("consume otp: %w", err)
	}
	if consumed {
		return nil
	}

	if err := s.otps.IncrementAttempts(ctx, email); err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logWarn(ctx, "verify_otp", "failed to increment otp attempts", err)
	}

	// Exhaustion stays distinguishable internally; callers see the same
	// invalid-OTP response either way.
	if rec, getErr := s.otps.GetByEmail(ctx, email); getErr == nil &&
		!rec.Verified && rec.Attempts >= domain.OTPAttemptCeiling {
		return fmt.Errorf("%w: %w", domain.ErrInvalidOTP, domain.ErrOTPExhausted)
	}
	return domain.ErrInvalidOTP
}

// HasValidOTP gates the completion step of the two-step signup without
// re-submitting the code.
func (s *Service) HasValidOTP(ctx context.Context, rawEmail string) (bool, error) {
	email, err := normalizeEmail(rawEmail)
	if err != nil {
		return false, err
	}
	return s.otps.HasVerified(ctx, email, s.nowFn())
}

// CleanupExpiredOTPs removes records past expiry. Runs from the worker, not
// per-request; the count is for observability only.
func (s *Service) CleanupExpiredOTPs(ctx context.Context) (int64, error) {
	count, err := s.otps.DeleteExpired(ctx, s.nowFn())
	if err != nil {
		return 0, fmt.Errorf("delete expired otps: %w", err)
	}
	return count, nil
}

// enforceCooldown throttles OTP issuance per normalized email. Without it a
// caller could reset the attempt ceiling at will by re-requesting codes.
func (s *Service) enforceCooldown(ctx context.Context, key string) error {
	if s.lockouts == nil || s.cfg.OTPRequestCooldown <= 0 {
		return nil
	}

	state, err := s.lockouts.Get(ctx, key)
	if err == nil && state.LockedUntil != nil && state.LockedUntil.After(s.nowFn()) {
		return domain.ErrRateLimited
	}

	if _, err := s.lockouts.RecordFailure(ctx, key, s.nowFn(), 1, s.cfg.OTPRequestCooldown); err != nil {
		// Cache unavailability must not take down OTP issuance.
		s.logWarn(ctx, "otp_cooldown", "cooldown state unavailable", err)
	}
	return nil
}
