package domain

import "errors"

var (
	// ErrNotFound is returned when the requested resource does not exist.
	// Keeping this sentinel in domain allows adapters to map it consistently to 404.
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidCredentials hides whether email or password failed.
	// The reason is to prevent account-enumeration side channels.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailNotVerified blocks login until the signup OTP flow completed.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrEmailExists signals a signup or OTP request for an already registered address.
	ErrEmailExists = errors.New("email already registered")
	// ErrInvalidOTP covers wrong, expired, and superseded codes uniformly.
	// Callers must not be able to tell which condition failed.
	ErrInvalidOTP = errors.New("invalid or expired otp")
	// ErrOTPExhausted marks the attempt ceiling being hit. It wraps into the
	// same external response as ErrInvalidOTP but stays distinguishable for
	// internal alerting.
	ErrOTPExhausted = errors.New("otp attempts exhausted")
	// ErrSessionNotConfigured means the delegated session adapter was never
	// attached to the request. This is a wiring defect, not an auth failure.
	ErrSessionNotConfigured = errors.New("delegated session not configured")
	// ErrWalletMismatch is an authorization (not authentication) failure.
	ErrWalletMismatch = errors.New("wallet address does not belong to caller")

	ErrUnauthorized        = errors.New("unauthorized")
	ErrTokenExpired        = errors.New("token expired")
	ErrTokenMalformed      = errors.New("token malformed or badly signed")
	ErrInvalidInput        = errors.New("invalid input")
	ErrConflict            = errors.New("conflict")
	ErrIdempotencyConflict = errors.New("idempotency conflict")
	ErrRateLimited         = errors.New("rate limited")
)
