// Package credential applies the password policy to a proposed credential change.
package credential

import (
	"fmt"
	"unicode"

	"github.com/go-recovery-api/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

const (
	MinLength = 8
	// MaxLength is bcrypt's input limit.
	MaxLength = 72
)

// Policy validates a new password for account and returns the change to persist.
type Policy interface {
	Apply(account *domain.Account, newPassword string) (domain.CredentialChange, error)
}

// BcryptPolicy hashes with bcrypt and refuses reuse of the current password
// or any of the last History passwords.
type BcryptPolicy struct {
	History int
	Cost    int
}

func NewBcryptPolicy(history int) *BcryptPolicy {
	return &BcryptPolicy{History: history, Cost: bcrypt.DefaultCost}
}

func (p *BcryptPolicy) Apply(account *domain.Account, newPassword string) (domain.CredentialChange, error) {
	if err := checkStrength(newPassword); err != nil {
		return domain.CredentialChange{}, err
	}
	if matchesHash(account.PasswordHash, newPassword) {
		return domain.CredentialChange{}, rejected("must differ from the current password")
	}
	for _, h := range account.PasswordHistory {
		if matchesHash(h, newPassword) {
			return domain.CredentialChange{}, rejected("was used recently")
		}
	}

	cost := p.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), cost)
	if err != nil {
		return domain.CredentialChange{}, fmt.Errorf("hash password: %w", err)
	}
	return domain.CredentialChange{
		PasswordHash:    string(hash),
		PasswordHistory: p.nextHistory(account),
	}, nil
}

// nextHistory pushes the current hash to the front and keeps at most History entries.
func (p *BcryptPolicy) nextHistory(account *domain.Account) []string {
	if p.History <= 0 {
		return nil
	}
	hist := make([]string, 0, p.History)
	if account.PasswordHash != "" {
		hist = append(hist, account.PasswordHash)
	}
	for _, h := range account.PasswordHistory {
		if len(hist) == p.History {
			break
		}
		hist = append(hist, h)
	}
	return hist
}

func checkStrength(pw string) error {
	if len(pw) < MinLength {
		return rejected(fmt.Sprintf("must be at least %d characters", MinLength))
	}
	if len(pw) > MaxLength {
		return rejected(fmt.Sprintf("must be at most %d bytes", MaxLength))
	}
	var letter, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsLetter(r):
			letter = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !letter || !digit {
		return rejected("must contain at least one letter and one digit")
	}
	return nil
}

func matchesHash(hash, pw string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

func rejected(reason string) error {
	return fmt.Errorf("%w: password %s", domain.ErrCredentialRejected, reason)
}
