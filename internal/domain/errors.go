package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound   = errors.New("not found")
	ErrBadRequest = errors.New("bad request")
)

// Verification life-cycle error kinds. Handlers collapse several of them into a
// single caller-visible message; only internal logs keep the distinction.
var (
	// ErrAccountNotFound is reported internally and never surfaces to callers of Issue.
	ErrAccountNotFound = errors.New("account not found")
	// ErrStoreUnavailable means the code store could not be reached. Retryable.
	ErrStoreUnavailable = errors.New("code store unavailable")
	// ErrCodeNotFound covers never issued, expired and already consumed codes.
	ErrCodeNotFound = errors.New("verification code not found")
	// ErrCodeMismatch means a live code exists but the presented value differs.
	ErrCodeMismatch = errors.New("verification code mismatch")
	// ErrNotificationFailed is logged by the dispatcher; it never fails an Issue call.
	ErrNotificationFailed = errors.New("notification failed")
	// ErrCredentialRejected is a password policy failure.
	ErrCredentialRejected = errors.New("credential update rejected")
	// ErrAccountStoreUnavailable means the account store could not be reached. Retryable.
	ErrAccountStoreUnavailable = errors.New("account store unavailable")
	// ErrTokenInvalid covers forged, expired and already used confirmation tokens.
	ErrTokenInvalid = errors.New("confirmation token invalid")
)

// IsTransient reports whether err is eligible for caller-side retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrAccountStoreUnavailable)
}
