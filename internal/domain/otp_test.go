package domain

import (
	"testing"
	"time"
)

func TestOTPIsLive(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	live := OTP{Code: "123456", ExpiresAt: now.Add(time.Minute)}
	if !live.IsLive(now) {
		t.Fatalf("fresh record should be live")
	}

	expired := live
	expired.ExpiresAt = now.Add(-time.Second)
	if expired.IsLive(now) {
		t.Fatalf("expired record should not be live")
	}

	verified := live
	verified.Verified = true
	if verified.IsLive(now) {
		t.Fatalf("verified record should not be live")
	}

	exhausted := live
	exhausted.Attempts = OTPAttemptCeiling
	if exhausted.IsLive(now) {
		t.Fatalf("exhausted record should not be live")
	}
}
