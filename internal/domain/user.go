package domain

import "time"

// Account is the subset of the user record the verification flows touch.
// The record itself is owned by the account store.
type Account struct {
	AccountID       string     `json:"id" dynamodbav:"account_id"`
	Username        string     `json:"username" dynamodbav:"username"`
	Email           string     `json:"email" dynamodbav:"email"`
	Phone           *string    `json:"phone" dynamodbav:"phone"`
	FirstName       string     `json:"first_name" dynamodbav:"first_name"`
	LastName        string     `json:"last_name" dynamodbav:"last_name"`
	PasswordHash    string     `json:"-" dynamodbav:"password_hash"`
	PasswordHistory []string   `json:"-" dynamodbav:"password_history"`
	EmailConfirmed  bool       `json:"email_confirmed" dynamodbav:"email_confirmed"`
	PhoneConfirmed  bool       `json:"phone_confirmed" dynamodbav:"phone_confirmed"`
	FailedAttempts  int        `json:"-" dynamodbav:"failed_attempts"`
	LockedUntil     *time.Time `json:"-" dynamodbav:"locked_until"`
	CreatedAt       time.Time  `json:"created" dynamodbav:"created_at"`
	UpdatedAt       time.Time  `json:"updated" dynamodbav:"updated_at"`
}

// Address returns the destination for ch, or "" when the account has none.
func (a *Account) Address(ch Channel) string {
	switch ch {
	case ChannelSMS:
		if a.Phone != nil {
			return *a.Phone
		}
	case ChannelEmail:
		return a.Email
	}
	return ""
}

// DisplayName is used in email greetings.
func (a *Account) DisplayName() string {
	if a.FirstName != "" {
		return a.FirstName
	}
	return a.Username
}

// CredentialChange is a validated password replacement ready to be persisted.
type CredentialChange struct {
	PasswordHash    string
	PasswordHistory []string
}
