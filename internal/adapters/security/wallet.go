package security

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// DevWalletProvisioner hands out random hex addresses. Production deployments
// swap in an adapter backed by the wallet service; address generation is an
// external collaborator, not an auth concern.
type DevWalletProvisioner struct{}

func NewDevWalletProvisioner() *DevWalletProvisioner {
	return &DevWalletProvisioner{}
}

func (p *DevWalletProvisioner) CreateWallet(_ context.Context, _ string) (string, error) {
	raw := make([]byte, 20)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate wallet address: %w", err)
	}
	return "0x" + hex.EncodeToString(raw), nil
}
