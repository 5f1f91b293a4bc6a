package security

import (
	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher satisfies ports.PasswordHasher with bcrypt. The work factor
// comes from configuration; production deploys run a higher cost than the
// library default.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher builds a hasher at the given cost. Zero or negative costs
// fall back to bcrypt.DefaultCost rather than failing.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (h *BcryptHasher) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
