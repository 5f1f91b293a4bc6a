package ports

import (
	"context"
	"errors"
)

// ErrNoDelegatedSession is returned by CurrentUser when the request carries
// no valid delegated session.
var ErrNoDelegatedSession = errors.New("no delegated session")

// ProviderIdentity is what the delegated identity provider knows about the
// caller. Known fields are copied explicitly into the resolved identity; any
// provider-specific extras travel in the side-channel map rather than being
// flattened onto it.
type ProviderIdentity struct {
	Subject       string
	Email         string
	WalletAddress string
	Extra         map[string]any
}

// SessionProvider is the per-request capability over the delegated identity
// provider's session state. Instances are bound to one request/response pair
// and must never be cached or shared across requests.
type SessionProvider interface {
	IsLoggedIn(ctx context.Context) (bool, error)
	CurrentUser(ctx context.Context) (*ProviderIdentity, error)
	Clear(ctx context.Context) error
}
