package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-recovery-api/internal/application/verification"
	"github.com/go-recovery-api/internal/domain"
)

// AccountStore keeps accounts in a map keyed by account id.
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[string]domain.Account
	now      func() time.Time
}

func NewAccountStore(now func() time.Time, seed ...domain.Account) *AccountStore {
	if now == nil {
		now = time.Now
	}
	s := &AccountStore{accounts: make(map[string]domain.Account, len(seed)), now: now}
	for _, a := range seed {
		s.accounts[a.AccountID] = a
	}
	return s
}

func (s *AccountStore) FindByIdentifier(ctx context.Context, identifier string) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("find account: %w: %w", domain.ErrAccountStoreUnavailable, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if a.Username == identifier {
			return copyAccount(a), nil
		}
	}
	for _, a := range s.accounts {
		if a.Email != "" && strings.EqualFold(a.Email, identifier) {
			return copyAccount(a), nil
		}
	}
	return nil, domain.ErrAccountNotFound
}

func (s *AccountStore) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("get account: %w: %w", domain.ErrAccountStoreUnavailable, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	return copyAccount(a), nil
}

func (s *AccountStore) Begin(context.Context) verification.AccountTx {
	return &accountTx{store: s}
}

type accountTx struct {
	store *AccountStore
	ops   []func(map[string]domain.Account, time.Time) error
}

func (tx *accountTx) UpdateCredential(accountID string, change domain.CredentialChange) {
	tx.ops = append(tx.ops, func(m map[string]domain.Account, now time.Time) error {
		a, ok := m[accountID]
		if !ok {
			return domain.ErrAccountNotFound
		}
		a.PasswordHash = change.PasswordHash
		a.PasswordHistory = append([]string(nil), change.PasswordHistory...)
		a.FailedAttempts = 0
		a.LockedUntil = nil
		a.UpdatedAt = now
		m[accountID] = a
		return nil
	})
}

func (tx *accountTx) MarkChannelConfirmed(accountID string, ch domain.Channel) {
	tx.ops = append(tx.ops, func(m map[string]domain.Account, now time.Time) error {
		a, ok := m[accountID]
		if !ok {
			return domain.ErrAccountNotFound
		}
		switch ch {
		case domain.ChannelEmail:
			a.EmailConfirmed = true
		case domain.ChannelSMS:
			a.PhoneConfirmed = true
		}
		a.UpdatedAt = now
		m[accountID] = a
		return nil
	})
}

// Commit applies every staged change or none of them.
func (tx *accountTx) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit account changes: %w: %w", domain.ErrAccountStoreUnavailable, err)
	}
	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	draft := make(map[string]domain.Account, len(s.accounts))
	for k, v := range s.accounts {
		draft[k] = v
	}
	now := s.now()
	for _, op := range tx.ops {
		if err := op(draft, now); err != nil {
			return fmt.Errorf("commit account changes: %w", err)
		}
	}
	s.accounts = draft
	tx.ops = nil
	return nil
}

func copyAccount(a domain.Account) *domain.Account {
	a.PasswordHistory = append([]string(nil), a.PasswordHistory...)
	return &a
}
