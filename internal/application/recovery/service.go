// Package recovery implements the caller-facing password recovery flow:
// request a code, confirm it for a single-use token, complete with a new password.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-recovery-api/internal/application/credential"
	"github.com/go-recovery-api/internal/application/verification"
	"github.com/go-recovery-api/internal/domain"
	jwtinfra "github.com/go-recovery-api/internal/infrastructure/jwt"
	"github.com/go-recovery-api/internal/pkg/id"
)

type RecoveryRequest struct {
	Username string `json:"username" validate:"required,max=254"`
	Channel  string `json:"channel" validate:"required,channel"`
}

type ConfirmRequest struct {
	Username string `json:"username" validate:"required,max=254"`
	Code     string `json:"code" validate:"required,numeric,min=6,max=10"`
}

type CompleteRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

// Confirmation is handed back by a successful confirm and spent by complete.
type Confirmation struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Service interface {
	RequestRecovery(ctx context.Context, req RecoveryRequest) error
	ConfirmRecovery(ctx context.Context, req ConfirmRequest) (*Confirmation, error)
	CompleteRecovery(ctx context.Context, req CompleteRequest) error
}

type coordinator interface {
	Issue(ctx context.Context, purpose domain.Purpose, identifier string, channel domain.Channel) error
	Confirm(ctx context.Context, purpose domain.Purpose, identifier, presented string) (*domain.Account, error)
	Invalidate(ctx context.Context, purpose domain.Purpose, identifier string) error
}

type tokenProvider interface {
	Sign(accountID string, purpose domain.Purpose, grantID string, ttl time.Duration) (string, time.Time, error)
	Verify(tokenStr string, purpose domain.Purpose) (*jwtinfra.Claims, error)
}

type ServiceDeps struct {
	Coordinator  coordinator
	Codes        verification.CodeStore
	Accounts     verification.AccountStore
	Tokens       tokenProvider
	Policy       credential.Policy
	GrantTTL     time.Duration
	StoreTimeout time.Duration
	Now          func() time.Time
}

type service struct {
	coordinator  coordinator
	codes        verification.CodeStore
	accounts     verification.AccountStore
	tokens       tokenProvider
	policy       credential.Policy
	grantTTL     time.Duration
	storeTimeout time.Duration
	now          func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		coordinator:  deps.Coordinator,
		codes:        deps.Codes,
		accounts:     deps.Accounts,
		tokens:       deps.Tokens,
		policy:       deps.Policy,
		grantTTL:     deps.GrantTTL,
		storeTimeout: deps.StoreTimeout,
		now:          now,
	}
}

func (s *service) RequestRecovery(ctx context.Context, req RecoveryRequest) error {
	ch, ok := domain.ParseChannel(req.Channel)
	if !ok {
		return fmt.Errorf("unsupported channel %q: %w", req.Channel, domain.ErrBadRequest)
	}
	return s.coordinator.Issue(ctx, domain.PurposePasswordRecovery, req.Username, ch)
}

// ConfirmRecovery consumes the code and mints a grant. Only one grant is live
// per account; a newer confirmation invalidates the previous token.
func (s *service) ConfirmRecovery(ctx context.Context, req ConfirmRequest) (*Confirmation, error) {
	acc, err := s.coordinator.Confirm(ctx, domain.PurposePasswordRecovery, req.Username, req.Code)
	if err != nil {
		return nil, err
	}

	grantID := id.NewAt(s.now())
	grant := domain.NewVerificationCode(domain.PurposeRecoveryGrant, acc.AccountID, grantID, s.now(), s.grantTTL)
	sctx, cancel := verification.StoreContext(ctx, s.storeTimeout)
	defer cancel()
	if err := s.codes.Put(sctx, grant.Key, grant, s.grantTTL); err != nil {
		return nil, fmt.Errorf("store recovery grant: %w", err)
	}

	token, exp, err := s.tokens.Sign(acc.AccountID, domain.PurposeRecoveryGrant, grantID, s.grantTTL)
	if err != nil {
		return nil, err
	}
	slog.Info("password recovery confirmed", "account_id", acc.AccountID)
	return &Confirmation{Token: token, ExpiresAt: exp}, nil
}

// CompleteRecovery spends the grant behind token and replaces the credential.
// A policy rejection leaves the grant live so the caller can retry.
func (s *service) CompleteRecovery(ctx context.Context, req CompleteRequest) error {
	claims, err := s.tokens.Verify(req.Token, domain.PurposeRecoveryGrant)
	if err != nil {
		slog.Info("recovery token rejected", "err", err)
		return err
	}
	accountID, grantID := claims.Subject, claims.ID
	key := domain.CodeKey(domain.PurposeRecoveryGrant, accountID)

	sctx, cancel := verification.StoreContext(ctx, s.storeTimeout)
	defer cancel()

	grant, err := s.codes.Get(sctx, key)
	if errors.Is(err, domain.ErrCodeNotFound) {
		return fmt.Errorf("recovery grant not found: %w", domain.ErrTokenInvalid)
	}
	if err != nil {
		return fmt.Errorf("load recovery grant: %w", err)
	}
	now := s.now()
	if !grant.IsLive(now) || !grant.Matches(grantID) {
		return fmt.Errorf("recovery grant superseded or expired: %w", domain.ErrTokenInvalid)
	}

	acc, err := s.accounts.Get(sctx, accountID)
	if errors.Is(err, domain.ErrAccountNotFound) {
		return fmt.Errorf("account for recovery grant: %w", domain.ErrTokenInvalid)
	}
	if err != nil {
		return fmt.Errorf("load account: %w", err)
	}

	change, err := s.policy.Apply(acc, req.NewPassword)
	if err != nil {
		slog.Info("new password rejected by policy", "account_id", accountID, "err", err)
		return err
	}

	removed, err := s.codes.RemoveIfEquals(sctx, key, grantID)
	if err != nil {
		return fmt.Errorf("spend recovery grant: %w", err)
	}
	if !removed {
		return fmt.Errorf("recovery grant already used: %w", domain.ErrTokenInvalid)
	}

	tx := s.accounts.Begin(sctx)
	tx.UpdateCredential(accountID, change)
	if err := tx.Commit(sctx); err != nil {
		return s.restoreGrant(ctx, grant, err)
	}
	slog.Info("password recovered", "account_id", accountID)

	// A code requested after the confirmation must not outlive the new password.
	if err := s.coordinator.Invalidate(ctx, domain.PurposePasswordRecovery, acc.Username); err != nil {
		slog.Warn("failed to invalidate pending recovery code", "account_id", accountID, "err", err)
	}
	return nil
}

// restoreGrant puts a spent grant back after a failed commit so the caller can
// retry with the same token. A grant minted meanwhile by a newer confirmation
// wins; the old one stays spent.
func (s *service) restoreGrant(ctx context.Context, grant *domain.VerificationCode, commitErr error) error {
	if errors.Is(commitErr, domain.ErrAccountNotFound) {
		return fmt.Errorf("update credential: %w", domain.ErrTokenInvalid)
	}
	slog.Error("credential update failed", "account_id", grant.AccountID, "err", commitErr)

	if ttl := grant.TTL(s.now()); ttl > 0 {
		rctx, cancel := verification.StoreContext(context.WithoutCancel(ctx), s.storeTimeout)
		defer cancel()
		restored, err := s.codes.PutIfAbsent(rctx, grant.Key, grant, ttl)
		switch {
		case err != nil:
			slog.Error("failed to restore recovery grant", "account_id", grant.AccountID, "err", err)
		case !restored:
			slog.Info("recovery grant not restored: superseded by a newer confirmation", "account_id", grant.AccountID)
		}
	}
	if domain.IsTransient(commitErr) {
		return fmt.Errorf("update credential: %w", commitErr)
	}
	return fmt.Errorf("update credential: %w: %w", domain.ErrAccountStoreUnavailable, commitErr)
}
