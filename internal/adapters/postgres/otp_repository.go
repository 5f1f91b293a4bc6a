package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/stackapp/auth-service/internal/domain"
	"gorm.io/gorm"
)

type otpRepository struct {
	db *gorm.DB
}

// Replace supersedes any prior code for the email. Delete-then-insert runs in
// one transaction so a concurrent verification never sees both records or
// neither.
func (r *otpRepository) Replace(ctx context.Context, otp domain.OTP) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("email = ?", otp.Email).Delete(&otpModel{}).Error; err != nil {
			return err
		}
		rec := otpModel{
			Email:     otp.Email,
			Code:      otp.Code,
			ExpiresAt: otp.ExpiresAt,
			Verified:  otp.Verified,
			Attempts:  otp.Attempts,
			CreatedAt: otp.CreatedAt,
		}
		return tx.Create(&rec).Error
	})
}

// ConsumeLive is a single conditional update: of two racing correct-code
// attempts, exactly one observes RowsAffected == 1.
func (r *otpRepository) ConsumeLive(ctx context.Context, email, code string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&otpModel{}).
		Where("email = ?", email).
		Where("code = ?", code).
		Where("verified = FALSE").
		Where("attempts < ?", domain.OTPAttemptCeiling).
		Where("expires_at > ?", now).
		Update("verified", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *otpRepository) IncrementAttempts(ctx context.Context, email string) error {
	return r.db.WithContext(ctx).
		Model(&otpModel{}).
		Where("email = ?", email).
		Where("verified = FALSE").
		Update("attempts", gorm.Expr("attempts + 1")).Error
}

func (r *otpRepository) HasVerified(ctx context.Context, email string, now time.Time) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&otpModel{}).
		Where("email = ?", email).
		Where("verified = TRUE").
		Where("expires_at > ?", now).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *otpRepository) GetByEmail(ctx context.Context, email string) (domain.OTP, error) {
	var rec otpModel
	if err := r.db.WithContext(ctx).Where("email = ?", email).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.OTP{}, domain.ErrNotFound
		}
		return domain.OTP{}, err
	}
	return toDomainOTP(rec), nil
}

func (r *otpRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&otpModel{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
