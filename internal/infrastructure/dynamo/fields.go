package dynamo

// DynamoDB attribute names used in key and condition expressions.
const (
	fieldAccountID      = "account_id"
	fieldUsername       = "username"
	fieldEmail          = "email"
	fieldPasswordHash   = "password_hash"
	fieldPasswordHist   = "password_history"
	fieldFailedAttempts = "failed_attempts"
	fieldLockedUntil    = "locked_until"
	fieldEmailConfirmed = "email_confirmed"
	fieldPhoneConfirmed = "phone_confirmed"
	fieldUpdatedAt      = "updated_at"

	fieldCodeKey   = "code_key"
	fieldCode      = "code"
	fieldExpiresAt = "expires_at"
	fieldAttempts  = "attempts"
)

const (
	indexUsername = "username-index"
	indexEmail    = "email-index"
)
