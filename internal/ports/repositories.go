package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stackapp/auth-service/internal/domain"
)

// CreateUserTxParams captures atomic user-creation inputs.
// Idempotency metadata rides along so signup can be durable and replay-safe.
type CreateUserTxParams struct {
	Email           string
	PasswordHash    string
	DisplayName     string
	WalletAddress   string
	PhoneNumber     string
	Nationality     string
	ReferralCode    string
	EmailVerified   bool
	IdempotencyKey  string
	RegisteredAtUTC time.Time
}

// UserRepository defines persistence operations for user accounts.
// The transactional create method exists to enforce user+outbox consistency.
type UserRepository interface {
	CreateWithOutboxTx(ctx context.Context, params CreateUserTxParams, outboxEvent OutboxEvent) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByID(ctx context.Context, userID uuid.UUID) (domain.User, error)
}

// OTPRepository owns the one-time passcode lifecycle.
//
// Replace and ConsumeLive must be atomic at the storage layer: Replace runs
// delete-then-insert in one transaction so a concurrent verification never
// observes a stale record, and ConsumeLive is a single conditional update so
// two racing correct-code attempts consume the record at most once.
type OTPRepository interface {
	// Replace deletes any existing record for the email and inserts the new one.
	Replace(ctx context.Context, otp domain.OTP) error

	// ConsumeLive flips verified=true on the record matching email+code that
	// is unexpired, unverified, and under the attempt ceiling. Returns false
	// when no such record exists.
	ConsumeLive(ctx context.Context, email, code string, now time.Time) (bool, error)

	// IncrementAttempts bumps the attempt counter on any unverified record
	// for the email. Called after a failed consume regardless of why it failed.
	IncrementAttempts(ctx context.Context, email string) error

	// HasVerified reports whether a verified, unexpired record exists for the
	// email. Gates the completion step of the two-step signup.
	HasVerified(ctx context.Context, email string, now time.Time) (bool, error)

	// GetByEmail returns the current record, verified or not.
	GetByEmail(ctx context.Context, email string) (domain.OTP, error)

	// DeleteExpired removes every record past its expiry and returns the count.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// LoginAttemptRepository stores login outcomes used by lockout and history endpoints.
type LoginAttemptRepository interface {
	Insert(ctx context.Context, attempt domain.LoginAttempt) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.LoginAttempt, error)
}

// OutboxEvent is the write-side event payload prior to storage.
// It is adapter-neutral to keep application code independent of broker specifics.
type OutboxEvent struct {
	EventID      uuid.UUID
	EventType    string
	PartitionKey string
	Payload      []byte
	OccurredAt   time.Time
}

// OutboxRecord represents durable outbox state, including retry/error metadata.
type OutboxRecord struct {
	OutboxID       uuid.UUID
	EventType      string
	PartitionKey   string
	Payload        []byte
	RetryCount     int
	LastError      *string
	CreatedAt      time.Time
	PublishedAt    *time.Time
	LastErrorAt    *time.Time
	FirstSeenAt    time.Time
	ClaimToken     *string
	ClaimUntil     *time.Time
	DeadLetteredAt *time.Time
}

// OutboxRepository controls the publish-retry workflow for domain events.
// OTP emails leave the service this way: the notification worker consumes
// auth.otp.requested rather than this service talking SMTP.
type OutboxRepository interface {
	Enqueue(ctx context.Context, event OutboxEvent) error
	ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error
	MarkFailed(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
	MarkDeadLettered(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
}

// IdempotencyRecord tracks a previously accepted mutating request.
// Storing response metadata lets handlers return stable replay responses.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	Status       string
	ResponseCode int
	ResponseBody []byte
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IdempotencyRepository enforces idempotent mutation semantics.
type IdempotencyRepository interface {
	Get(ctx context.Context, key string) (*IdempotencyRecord, error)
	Reserve(ctx context.Context, key, requestHash string, expiresAt time.Time) error
	Complete(ctx context.Context, key string, responseCode int, responseBody []byte, at time.Time) error
}
