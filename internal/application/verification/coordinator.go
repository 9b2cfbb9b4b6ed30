// Package verification implements the issue/confirm life cycle of single-use,
// time-bounded verification codes.
package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-recovery-api/internal/application/notification"
	"github.com/go-recovery-api/internal/domain"
	"github.com/go-recovery-api/internal/pkg/otp"
)

type dispatcher interface {
	Dispatch(msg notification.Message) bool
}

// Settings tunes the code life cycle.
type Settings struct {
	Validity     time.Duration
	CodeLength   int
	MaxAttempts  int // 0 disables the cap
	StoreTimeout time.Duration
}

type Deps struct {
	Codes      CodeStore
	Attempts   AttemptCounter // optional
	Accounts   AccountStore
	Dispatcher dispatcher
	Now        func() time.Time
	Settings   Settings
}

// Coordinator is stateless; all cross-call state lives in the code store.
type Coordinator struct {
	codes      CodeStore
	attempts   AttemptCounter
	accounts   AccountStore
	dispatcher dispatcher
	now        func() time.Time
	settings   Settings
}

func NewCoordinator(deps Deps) *Coordinator {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	s := deps.Settings
	if s.CodeLength == 0 {
		s.CodeLength = otp.DefaultLength
	}
	return &Coordinator{
		codes:      deps.Codes,
		attempts:   deps.Attempts,
		accounts:   deps.Accounts,
		dispatcher: deps.Dispatcher,
		now:        now,
		settings:   s,
	}
}

// Issue stores a fresh code for the account behind identifier and queues its
// delivery. Unknown accounts and accounts without an address on channel are a
// silent no-op so the result never reveals whether an account exists.
func (c *Coordinator) Issue(ctx context.Context, purpose domain.Purpose, identifier string, channel domain.Channel) error {
	acc, err := c.lookup(ctx, identifier)
	if errors.Is(err, domain.ErrAccountNotFound) {
		slog.Info("verification not issued: account not found", "purpose", purpose, "identifier", identifier)
		return nil
	}
	if err != nil {
		return err
	}
	address := acc.Address(channel)
	if address == "" {
		slog.Info("verification not issued: no address for channel", "purpose", purpose, "account_id", acc.AccountID, "channel", channel)
		return nil
	}

	value, err := otp.Generate(c.settings.CodeLength)
	if err != nil {
		return err
	}
	code := domain.NewVerificationCode(purpose, acc.AccountID, value, c.now(), c.settings.Validity)
	code.Channel = channel

	sctx, cancel := c.storeContext(ctx)
	defer cancel()
	if err := c.codes.Put(sctx, code.Key, code, c.settings.Validity); err != nil {
		return fmt.Errorf("issue %s code: %w", purpose, err)
	}
	if c.attempts != nil {
		if err := c.attempts.Reset(sctx, code.Key); err != nil {
			slog.Warn("failed to reset confirm attempts", "key", code.Key, "err", err)
		}
	}

	queued := c.dispatcher.Dispatch(notification.Message{
		Purpose:   purpose,
		Channel:   channel,
		AccountID: acc.AccountID,
		Address:   address,
		Name:      acc.DisplayName(),
		Code:      value,
		Validity:  c.settings.Validity,
	})
	if !queued {
		slog.Warn("verification code stored but notification dropped", "purpose", purpose, "account_id", acc.AccountID, "channel", channel)
	}
	return nil
}

// Confirm consumes the live code for the account behind identifier when
// presented matches it. The store's RemoveIfEquals is the single-success gate:
// of concurrent matching calls only the first returns the account.
func (c *Coordinator) Confirm(ctx context.Context, purpose domain.Purpose, identifier, presented string) (*domain.Account, error) {
	return c.confirm(ctx, purpose, identifier, "", presented)
}

// ConfirmChannel is Confirm restricted to a code delivered over ch. A live code
// sent over another channel is reported as not found and left untouched.
func (c *Coordinator) ConfirmChannel(ctx context.Context, purpose domain.Purpose, identifier string, ch domain.Channel, presented string) (*domain.Account, error) {
	return c.confirm(ctx, purpose, identifier, ch, presented)
}

func (c *Coordinator) confirm(ctx context.Context, purpose domain.Purpose, identifier string, ch domain.Channel, presented string) (*domain.Account, error) {
	acc, err := c.lookup(ctx, identifier)
	if errors.Is(err, domain.ErrAccountNotFound) {
		slog.Info("verification not confirmed: account not found", "purpose", purpose, "identifier", identifier)
		return nil, fmt.Errorf("confirm %s: %w", purpose, domain.ErrCodeNotFound)
	}
	if err != nil {
		return nil, err
	}
	key := domain.CodeKey(purpose, acc.AccountID)

	sctx, cancel := c.storeContext(ctx)
	defer cancel()

	stored, err := c.codes.Get(sctx, key)
	if err != nil {
		return nil, fmt.Errorf("confirm %s: %w", purpose, err)
	}
	now := c.now()
	if !stored.IsLive(now) {
		return nil, fmt.Errorf("confirm %s: %w", purpose, domain.ErrCodeNotFound)
	}
	if ch != "" && stored.Channel != ch {
		slog.Info("verification code issued on another channel", "purpose", purpose, "account_id", acc.AccountID, "channel", ch)
		return nil, fmt.Errorf("confirm %s: %w", purpose, domain.ErrCodeNotFound)
	}
	if !stored.Matches(presented) {
		c.recordMismatch(sctx, stored, now)
		return nil, fmt.Errorf("confirm %s: %w", purpose, domain.ErrCodeMismatch)
	}

	removed, err := c.codes.RemoveIfEquals(sctx, key, stored.Value)
	if err != nil {
		return nil, fmt.Errorf("confirm %s: %w", purpose, err)
	}
	if !removed {
		slog.Info("verification confirm lost race", "purpose", purpose, "account_id", acc.AccountID)
		return nil, fmt.Errorf("confirm %s: %w", purpose, domain.ErrCodeNotFound)
	}
	if c.attempts != nil {
		if err := c.attempts.Reset(sctx, key); err != nil {
			slog.Warn("failed to reset confirm attempts", "key", key, "err", err)
		}
	}
	return acc, nil
}

// Invalidate destroys any outstanding code for the account behind identifier
// and clears its attempt count. It is idempotent; unknown accounts are a no-op.
func (c *Coordinator) Invalidate(ctx context.Context, purpose domain.Purpose, identifier string) error {
	acc, err := c.lookup(ctx, identifier)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	key := domain.CodeKey(purpose, acc.AccountID)

	sctx, cancel := c.storeContext(ctx)
	defer cancel()
	if err := c.codes.Remove(sctx, key); err != nil {
		return fmt.Errorf("invalidate %s code: %w", purpose, err)
	}
	if c.attempts != nil {
		if err := c.attempts.Reset(sctx, key); err != nil {
			slog.Warn("failed to reset confirm attempts", "key", key, "err", err)
		}
	}
	slog.Info("verification code invalidated", "purpose", purpose, "account_id", acc.AccountID)
	return nil
}

// recordMismatch counts a failed attempt and burns the code once the cap is hit.
func (c *Coordinator) recordMismatch(ctx context.Context, stored *domain.VerificationCode, now time.Time) {
	slog.Info("verification code mismatch", "purpose", stored.Purpose, "account_id", stored.AccountID)
	if c.attempts == nil || c.settings.MaxAttempts <= 0 {
		return
	}
	n, err := c.attempts.Increment(ctx, stored.Key, stored.TTL(now))
	if err != nil {
		slog.Warn("failed to count confirm attempt", "key", stored.Key, "err", err)
		return
	}
	if n < c.settings.MaxAttempts {
		return
	}
	if _, err := c.codes.RemoveIfEquals(ctx, stored.Key, stored.Value); err != nil {
		slog.Warn("failed to invalidate code after too many attempts", "key", stored.Key, "err", err)
		return
	}
	slog.Warn("verification code invalidated after too many attempts", "purpose", stored.Purpose, "account_id", stored.AccountID, "attempts", n)
	if err := c.attempts.Reset(ctx, stored.Key); err != nil {
		slog.Warn("failed to reset confirm attempts", "key", stored.Key, "err", err)
	}
}

func (c *Coordinator) lookup(ctx context.Context, identifier string) (*domain.Account, error) {
	sctx, cancel := c.storeContext(ctx)
	defer cancel()
	acc, err := c.accounts.FindByIdentifier(sctx, identifier)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) || errors.Is(err, domain.ErrAccountStoreUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrAccountStoreUnavailable, err)
	}
	return acc, nil
}

func (c *Coordinator) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return StoreContext(ctx, c.settings.StoreTimeout)
}

// StoreContext bounds a store call so it fails with a transient error instead of hanging.
func StoreContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
