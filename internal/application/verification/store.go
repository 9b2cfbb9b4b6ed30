package verification

import (
	"context"
	"time"

	"github.com/go-recovery-api/internal/domain"
)

// CodeStore is a shared TTL key-value store holding at most one live code per key.
// Implementations wrap backend failures with domain.ErrStoreUnavailable.
type CodeStore interface {
	// Put upserts unconditionally, replacing any live entry for key.
	Put(ctx context.Context, key string, code *domain.VerificationCode, ttl time.Duration) error
	// PutIfAbsent writes only when no live entry exists for key and reports
	// whether it did.
	PutIfAbsent(ctx context.Context, key string, code *domain.VerificationCode, ttl time.Duration) (bool, error)
	// Get returns domain.ErrCodeNotFound when the entry is absent or expired.
	Get(ctx context.Context, key string) (*domain.VerificationCode, error)
	// RemoveIfEquals deletes the entry only while it is live and holds expected.
	// Among concurrent callers with the same expected value exactly one sees true.
	RemoveIfEquals(ctx context.Context, key, expected string) (bool, error)
	// Remove is idempotent.
	Remove(ctx context.Context, key string) error
}

// AttemptCounter counts failed confirmations per code key.
type AttemptCounter interface {
	Increment(ctx context.Context, key string, ttl time.Duration) (int, error)
	Reset(ctx context.Context, key string) error
}

// AccountStore is the external account collaborator. Lookups return
// domain.ErrAccountNotFound when absent and wrap backend failures with
// domain.ErrAccountStoreUnavailable.
type AccountStore interface {
	// FindByIdentifier resolves a username or an email address.
	FindByIdentifier(ctx context.Context, identifier string) (*domain.Account, error)
	Get(ctx context.Context, accountID string) (*domain.Account, error)
	Begin(ctx context.Context) AccountTx
}

// AccountTx stages account mutations; nothing is persisted until Commit.
type AccountTx interface {
	UpdateCredential(accountID string, change domain.CredentialChange)
	MarkChannelConfirmed(accountID string, ch domain.Channel)
	Commit(ctx context.Context) error
}
