package application

import (
	"time"

	"github.com/google/uuid"
)

// Config carries application-level tunables. All secrets and knobs arrive
// through this struct at construction time; there is no ambient global state.
type Config struct {
	TokenTTL time.Duration

	OTPTTL             time.Duration
	OTPRequestCooldown time.Duration

	FailedLoginThreshold int
	LockoutDuration      time.Duration
}

type RequestOTPResponse struct {
	ExpiresAt time.Time `json:"expiresAt"`
}

type CompleteSignupRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	DisplayName  string `json:"displayName"`
	PhoneNumber  string `json:"phoneNumber"`
	Nationality  string `json:"nationality"`
	ReferralCode string `json:"referralCode,omitempty"`
}

// SignupRequest is the legacy single-step flow: OTP verification and account
// creation in one call.
type SignupRequest struct {
	CompleteSignupRequest
	OTP string `json:"otp"`
}

type LoginRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

// UserSummary is the public projection of an account returned by signup and
// login. Password hash and soft-delete state never leave the service.
type UserSummary struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"displayName"`
	WalletAddress string    `json:"walletAddress"`
	PhoneNumber   string    `json:"phoneNumber"`
	Nationality   string    `json:"nationality"`
}

type AuthResponse struct {
	Token string      `json:"token"`
	User  UserSummary `json:"user"`
}

type LoginHistoryQuery struct {
	Page  int
	Limit int
}

type LoginAttemptSummary struct {
	AttemptAt     time.Time `json:"attemptAt"`
	IPAddress     string    `json:"ipAddress"`
	Status        string    `json:"status"`
	FailureReason string    `json:"failureReason,omitempty"`
	UserAgent     string    `json:"userAgent,omitempty"`
}
