package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the canonical account aggregate for the auth service.
// It keeps only signup/login-relevant state; portfolio and basket data live
// in their own services.
type User struct {
	UserID        uuid.UUID
	Email         string
	PasswordHash  string
	DisplayName   string
	WalletAddress string
	PhoneNumber   string
	Nationality   string
	ReferralCode  string
	EmailVerified bool
	IsActive      bool
	DeletedAt     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OTP is a one-time passcode proving control of an email address during
// signup. At most one record exists per email: creating a new code
// supersedes any prior one.
type OTP struct {
	Email     string
	Code      string
	ExpiresAt time.Time
	Verified  bool
	Attempts  int
	CreatedAt time.Time
}

// OTPAttemptCeiling bounds verification guesses per issued code.
// The ceiling is evaluated before code comparison, so a correct code
// submitted after exhaustion still fails.
const OTPAttemptCeiling = 5

// IsLive reports whether the record can still be consumed by a verification
// attempt at the given instant.
func (o OTP) IsLive(now time.Time) bool {
	return !o.Verified && o.Attempts < OTPAttemptCeiling && o.ExpiresAt.After(now)
}

// LoginAttempt records authentication outcomes for audit and lockout controls.
type LoginAttempt struct {
	ID            int64
	UserID        *uuid.UUID
	AttemptAt     time.Time
	IPAddress     string
	Status        string
	FailureReason string
	UserAgent     string
}
