package postgres

import (
	"errors"
	"strings"

	"github.com/stackapp/auth-service/internal/domain"
	"gorm.io/gorm"
)

func toDomainUser(row userModel) domain.User {
	referral := ""
	if row.ReferralCode != nil {
		referral = *row.ReferralCode
	}
	return domain.User{
		UserID:        row.UserID,
		Email:         row.Email,
		PasswordHash:  row.PasswordHash,
		DisplayName:   row.DisplayName,
		WalletAddress: row.WalletAddress,
		PhoneNumber:   row.PhoneNumber,
		Nationality:   row.Nationality,
		ReferralCode:  referral,
		EmailVerified: row.EmailVerified,
		IsActive:      row.IsActive,
		DeletedAt:     row.DeletedAt,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
}

func toDomainOTP(row otpModel) domain.OTP {
	return domain.OTP{
		Email:     row.Email,
		Code:      row.Code,
		ExpiresAt: row.ExpiresAt,
		Verified:  row.Verified,
		Attempts:  row.Attempts,
		CreatedAt: row.CreatedAt,
	}
}

func toDomainLoginAttempt(row loginAttemptModel) domain.LoginAttempt {
	ip := ""
	if row.IPAddress != nil {
		ip = *row.IPAddress
	}
	return domain.LoginAttempt{
		ID:            row.ID,
		UserID:        row.UserID,
		AttemptAt:     row.AttemptAt,
		IPAddress:     ip,
		Status:        row.Status,
		FailureReason: row.FailureReason,
		UserAgent:     row.UserAgent,
	}
}

func nullableString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
