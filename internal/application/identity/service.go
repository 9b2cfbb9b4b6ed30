// Package identity confirms that an account owns its email address or phone number.
package identity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-recovery-api/internal/application/verification"
	"github.com/go-recovery-api/internal/domain"
)

type ConfirmationRequest struct {
	Username string `json:"username" validate:"required,max=254"`
	Channel  string `json:"channel" validate:"required,channel"`
}

type ConfirmRequest struct {
	Username string `json:"username" validate:"required,max=254"`
	Channel  string `json:"channel" validate:"required,channel"`
	Code     string `json:"code" validate:"required,numeric,min=6,max=10"`
}

type Service interface {
	RequestConfirmation(ctx context.Context, req ConfirmationRequest) error
	ConfirmIdentity(ctx context.Context, req ConfirmRequest) error
}

type coordinator interface {
	Issue(ctx context.Context, purpose domain.Purpose, identifier string, channel domain.Channel) error
	ConfirmChannel(ctx context.Context, purpose domain.Purpose, identifier string, ch domain.Channel, presented string) (*domain.Account, error)
}

type ServiceDeps struct {
	Coordinator  coordinator
	Accounts     verification.AccountStore
	StoreTimeout time.Duration
}

type service struct {
	coordinator  coordinator
	accounts     verification.AccountStore
	storeTimeout time.Duration
}

func NewService(deps ServiceDeps) Service {
	return &service{
		coordinator:  deps.Coordinator,
		accounts:     deps.Accounts,
		storeTimeout: deps.StoreTimeout,
	}
}

func (s *service) RequestConfirmation(ctx context.Context, req ConfirmationRequest) error {
	ch, err := parseChannel(req.Channel)
	if err != nil {
		return err
	}
	return s.coordinator.Issue(ctx, domain.PurposeIdentityConfirmation, req.Username, ch)
}

// ConfirmIdentity marks the channel confirmed once its code is consumed. The
// code is spent even if the update fails; the caller requests a new one.
func (s *service) ConfirmIdentity(ctx context.Context, req ConfirmRequest) error {
	ch, err := parseChannel(req.Channel)
	if err != nil {
		return err
	}
	acc, err := s.coordinator.ConfirmChannel(ctx, domain.PurposeIdentityConfirmation, req.Username, ch, req.Code)
	if err != nil {
		return err
	}

	sctx, cancel := verification.StoreContext(ctx, s.storeTimeout)
	defer cancel()
	tx := s.accounts.Begin(sctx)
	tx.MarkChannelConfirmed(acc.AccountID, ch)
	if err := tx.Commit(sctx); err != nil {
		slog.Error("failed to mark channel confirmed", "account_id", acc.AccountID, "channel", ch, "err", err)
		if domain.IsTransient(err) {
			return fmt.Errorf("confirm %s: %w", ch, err)
		}
		return fmt.Errorf("confirm %s: %w: %w", ch, domain.ErrAccountStoreUnavailable, err)
	}
	slog.Info("channel confirmed", "account_id", acc.AccountID, "channel", ch)
	return nil
}

func parseChannel(s string) (domain.Channel, error) {
	ch, ok := domain.ParseChannel(s)
	if !ok {
		return "", fmt.Errorf("unsupported channel %q: %w", s, domain.ErrBadRequest)
	}
	return ch, nil
}
