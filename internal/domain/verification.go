package domain

import (
	"crypto/subtle"
	"time"
)

// Purpose namespaces store keys so that flows of different kinds for the same
// account never collide.
type Purpose string

const (
	PurposePasswordRecovery     Purpose = "password-recovery"
	PurposeIdentityConfirmation Purpose = "identity-confirmation"
	// PurposeRecoveryGrant holds the single-use grant behind a confirmation token.
	PurposeRecoveryGrant Purpose = "password-recovery-grant"
)

// CodeKey builds the store key for one outstanding code per (purpose, account).
func CodeKey(p Purpose, accountID string) string {
	return string(p) + ":" + accountID
}

// VerificationCode is a short-lived secret tied to an account and a purpose.
// It is never mutated after creation; consumption removes it from the store.
type VerificationCode struct {
	Key       string    `json:"key" dynamodbav:"code_key"`
	AccountID string    `json:"account_id" dynamodbav:"account_id"`
	Purpose   Purpose   `json:"purpose" dynamodbav:"purpose"`
	Value     string    `json:"value" dynamodbav:"code"`
	Channel   Channel   `json:"channel,omitempty" dynamodbav:"channel,omitempty"`
	IssuedAt  time.Time `json:"issued_at" dynamodbav:"issued_at"`
	ExpiresAt time.Time `json:"expires_at" dynamodbav:"-"`
}

// NewVerificationCode stamps a code issued at now and valid for validity.
func NewVerificationCode(p Purpose, accountID, value string, now time.Time, validity time.Duration) *VerificationCode {
	return &VerificationCode{
		Key:       CodeKey(p, accountID),
		AccountID: accountID,
		Purpose:   p,
		Value:     value,
		IssuedAt:  now,
		ExpiresAt: now.Add(validity),
	}
}

// IsLive reports whether the code can still be confirmed at now.
func (c *VerificationCode) IsLive(now time.Time) bool {
	return now.Before(c.ExpiresAt)
}

// Matches compares the presented value in constant time.
func (c *VerificationCode) Matches(presented string) bool {
	return subtle.ConstantTimeCompare([]byte(c.Value), []byte(presented)) == 1
}

// TTL returns the remaining lifetime at now, never negative.
func (c *VerificationCode) TTL(now time.Time) time.Duration {
	if d := c.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}
