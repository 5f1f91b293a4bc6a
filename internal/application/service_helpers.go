package application

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/stackapp/auth-service/internal/domain"
)

// normalizeEmail canonicalizes and validates email format before
// persistence or comparison. All OTP and user records key on this form.
func normalizeEmail(email string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(email))
	if trimmed == "" {
		return "", fmt.Errorf("%w: email is required", domain.ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(trimmed); err != nil {
		return "", fmt.Errorf("%w: invalid email", domain.ErrInvalidInput)
	}
	return trimmed, nil
}

// validateOTPShape rejects malformed codes before any storage round trip.
func validateOTPShape(code string) error {
	if len(code) != 6 {
		return fmt.Errorf("%w: otp must be 6 digits", domain.ErrInvalidInput)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: otp must be 6 digits", domain.ErrInvalidInput)
		}
	}
	return nil
}

func validateSignupFields(req CompleteSignupRequest) error {
	if err := domain.ValidatePassword(req.Password); err != nil {
		return err
	}
	if strings.TrimSpace(req.DisplayName) == "" {
		return fmt.Errorf("%w: display name is required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(req.PhoneNumber) == "" {
		return fmt.Errorf("%w: phone number is required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(req.Nationality) == "" {
		return fmt.Errorf("%w: nationality is required", domain.ErrInvalidInput)
	}
	return nil
}

// randomOTPCode draws a uniformly random 6-digit code in [100000, 999999].
func randomOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// hashRequest computes a deterministic request fingerprint for idempotency
// conflict detection.
func hashRequest(req any) string {
	raw, _ := json.Marshal(req)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// recordFailure stores failed login context for audit and lockout policies.
func (s *Service) recordFailure(ctx context.Context, userID *uuid.UUID, req LoginRequest, reason string) {
	if err := s.loginAttempts.Insert(ctx, domain.LoginAttempt{
		UserID:        userID,
		AttemptAt:     s.nowFn(),
		IPAddress:     req.IPAddress,
		Status:        "FAILED",
		FailureReason: reason,
		UserAgent:     req.UserAgent,
	}); err != nil {
		s.logWarn(ctx, "record_login_failure", "failed to persist login attempt", err)
	}
}

func (s *Service) logWarn(ctx context.Context, operation, message string, err error) {
	slog.Default().WarnContext(ctx, message,
		"service", "stack-auth-service",
		"module", "application",
		"layer", "application",
		"operation", operation,
		"outcome", "failure",
		"error", err,
	)
}
