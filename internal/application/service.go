package application

import (
	"time"

	"github.com/stackapp/auth-service/internal/ports"
)

// Service implements the auth use-cases: OTP issuance/verification, signup,
// login, and token validation. Adapters on both sides talk to it through the
// ports package only.
type Service struct {
	cfg           Config
	users         ports.UserRepository
	otps          ports.OTPRepository
	loginAttempts ports.LoginAttemptRepository
	outbox        ports.OutboxRepository
	idempotency   ports.IdempotencyRepository
	lockouts      ports.LockoutStore
	hasher        ports.PasswordHasher
	tokenSigner   ports.TokenSigner
	wallets       ports.WalletProvisioner
	nowFn         func() time.Time
}

type Dependencies struct {
	Config        Config
	Users         ports.UserRepository
	OTPs          ports.OTPRepository
	LoginAttempts ports.LoginAttemptRepository
	Outbox        ports.OutboxRepository
	Idempotency   ports.IdempotencyRepository
	Lockouts      ports.LockoutStore
	Hasher        ports.PasswordHasher
	TokenSigner   ports.TokenSigner
	Wallets       ports.WalletProvisioner

	// Now overrides the service clock. Nil means time.Now in UTC.
	Now func() time.Time
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 7 * 24 * time.Hour
	}
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = 10 * time.Minute
	}
	nowFn := deps.Now
	if nowFn == nil {
		nowFn = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		cfg:           cfg,
		users:         deps.Users,
		otps:          deps.OTPs,
		loginAttempts: deps.LoginAttempts,
		outbox:        deps.Outbox,
		idempotency:   deps.Idempotency,
		lockouts:      deps.Lockouts,
		hasher:        deps.Hasher,
		tokenSigner:   deps.TokenSigner,
		wallets:       deps.Wallets,
		nowFn:         nowFn,
	}
}
