package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/stackapp/auth-service/internal/domain"
	"github.com/stackapp/auth-service/internal/ports"
)

// JWTSigner implements HS256 signing/verification for self-issued bearer
// tokens. The secret arrives through the constructor; nothing reads the
// environment from here.
type JWTSigner struct {
	secret []byte
}

func NewJWTSigner(secret string) (*JWTSigner, error) {
	if secret == "" {
		return nil, errors.New("jwt signing secret is required")
	}
	if len(secret) < 32 {
		return nil, errors.New("jwt signing secret must be at least 32 bytes")
	}
	return &JWTSigner{secret: []byte(secret)}, nil
}

type identityJWTClaims struct {
	UserID        string `json:"userId"`
	Email         string `json:"email"`
	WalletAddress string `json:"walletAddress,omitempty"`
	jwt.RegisteredClaims
}

func (s *JWTSigner) Sign(claims ports.IdentityClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, identityJWTClaims{
		UserID:        claims.UserID.String(),
		Email:         claims.Email,
		WalletAddress: claims.WalletAddress,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	})
	return token.SignedString(s.secret)
}

// Verify validates signature and expiry. Expired tokens and malformed or
// badly signed tokens map to distinct sentinels so the resolver can log the
// difference; callers receive the same 401 either way.
func (s *JWTSigner) Verify(raw string) (ports.IdentityClaims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &identityJWTClaims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(30*time.Second))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ports.IdentityClaims{}, fmt.Errorf("%w: %v", domain.ErrTokenExpired, err)
		}
		return ports.IdentityClaims{}, fmt.Errorf("%w: %v", domain.ErrTokenMalformed, err)
	}
	claims, ok := parsed.Claims.(*identityJWTClaims)
	if !ok || !parsed.Valid {
		return ports.IdentityClaims{}, domain.ErrTokenMalformed
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return ports.IdentityClaims{}, fmt.Errorf("%w: bad userId claim", domain.ErrTokenMalformed)
	}

	out := ports.IdentityClaims{
		UserID:        userID,
		Email:         claims.Email,
		WalletAddress: claims.WalletAddress,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time.UTC()
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return out, nil
}
