package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// IdentityClaims is the minimal claim set carried by a self-issued bearer
// token. Expiry is the only bound on its lifetime; there is no revocation
// list because the bearer path is the fallback behind the delegated session,
// which does support explicit logout.
type IdentityClaims struct {
	UserID        uuid.UUID `json:"user_id"`
	Email         string    `json:"email"`
	WalletAddress string    `json:"wallet_address,omitempty"`
	IssuedAt      time.Time `json:"issued_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// TokenSigner issues and validates self-verifying bearer tokens.
// Verify distinguishes domain.ErrTokenExpired from domain.ErrTokenMalformed
// so the resolver can log the difference without leaking it to callers.
type TokenSigner interface {
	Sign(claims IdentityClaims) (string, error)
	Verify(raw string) (IdentityClaims, error)
}

// WalletProvisioner creates a custodial wallet address during signup.
// Address generation itself is an external collaborator.
type WalletProvisioner interface {
	CreateWallet(ctx context.Context, email string) (string, error)
}
