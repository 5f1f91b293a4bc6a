package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/stackapp/auth-service/internal/application"
)

// OTPSweeper periodically deletes expired OTP records. Verification never
// depends on the sweep; it only keeps the table from accumulating dead rows.
type OTPSweeper struct {
	logger   *slog.Logger
	service  *application.Service
	interval time.Duration
}

func NewOTPSweeper(logger *slog.Logger, service *application.Service, interval time.Duration) *OTPSweeper {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &OTPSweeper{
		logger:   logger,
		service:  service,
		interval: interval,
	}
}

func (w *OTPSweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		removed, err := w.service.CleanupExpiredOTPs(ctx)
		if err != nil {
			w.logger.ErrorContext(ctx, "otp sweep iteration failed",
				"module", "events.otp_sweeper",
				"layer", "adapter",
				"operation", "cleanup_expired_otps",
				"outcome", "failure",
				"error", err,
			)
		} else if removed > 0 {
			w.logger.InfoContext(ctx, "expired otps removed",
				"module", "events.otp_sweeper",
				"layer", "adapter",
				"operation", "cleanup_expired_otps",
				"outcome", "success",
				"removed_count", removed,
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
