package authcore

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrInvalidCredentials covers unknown email and password mismatch
	// alike, so callers cannot probe which accounts exist.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrMissingToken is returned when no access token was supplied.
	ErrMissingToken = errors.New("missing access token")
	// ErrTokenExpired is returned for a well-formed token past its expiry.
	ErrTokenExpired = errors.New("access token expired")
	// ErrTokenMalformed covers garbage, bad signatures, and wrong algorithms.
	ErrTokenMalformed = errors.New("access token malformed")
	// ErrStaleSession is returned when the token predates a password change.
	ErrStaleSession = errors.New("password changed after token was issued")
	// ErrAccountNotFound is returned by lookups for a missing account.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountGone is returned by the gate when the token's account no
	// longer exists.
	ErrAccountGone = errors.New("account no longer exists")
	// ErrEmailUnverified is returned when the account has not confirmed
	// its email address.
	ErrEmailUnverified = errors.New("email address not verified")
	// ErrAccountLocked is the lockout sentinel; matched via errors.Is
	// against [LockedError] values.
	ErrAccountLocked = errors.New("account temporarily locked")
	// ErrDuplicateEmail is returned when registering an email that is
	// already taken (case-insensitive).
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrInvalidOrExpiredToken is returned for any verification or reset
	// confirm failure. It deliberately does not distinguish unknown
	// tokens from expired ones.
	ErrInvalidOrExpiredToken = errors.New("token is invalid or has expired")
	// ErrTokenNotFound is the store-level miss for challenge token
	// consumption. The engine maps it to ErrInvalidOrExpiredToken.
	ErrTokenNotFound = errors.New("challenge token not found")
	// ErrRateLimited is returned when a throttle rejects the request.
	ErrRateLimited = errors.New("too many requests")
	// ErrPasswordPolicy is returned for passwords below the minimum length
	// or otherwise rejected by the hasher.
	ErrPasswordPolicy = errors.New("password does not meet policy")
	// ErrPasswordReuse is returned when the new password equals the old one.
	ErrPasswordReuse = errors.New("new password must differ from current password")
	// ErrInvalidInput is returned for malformed registration or request input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEngineNotReady is returned when the engine was not built properly.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// LockedError carries the lock deadline so transports can emit a
// Retry-After header. It matches ErrAccountLocked under errors.Is.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.UTC().Format(time.RFC3339))
}

// Is makes errors.Is(err, ErrAccountLocked) hold for LockedError values.
func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// RetryAfter returns the whole seconds remaining on the lock, never
// below one while the lock is active.
func (e *LockedError) RetryAfter(now time.Time) time.Duration {
	d := e.Until.Sub(now)
	if d < time.Second {
		return time.Second
	}
	return d.Round(time.Second)
}

// HTTPStatus maps the package error taxonomy onto HTTP status codes:
// credential and token problems map to 401, unverified email to 403,
// lockout and throttling to 429, duplicates to 409, malformed input to
// 400. Unknown errors map to 500.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrMissingToken),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenMalformed),
		errors.Is(err, ErrStaleSession),
		errors.Is(err, ErrAccountGone):
		return http.StatusUnauthorized
	case errors.Is(err, ErrEmailUnverified):
		return http.StatusForbidden
	case errors.Is(err, ErrAccountLocked),
		errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrDuplicateEmail):
		return http.StatusConflict
	case errors.Is(err, ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidOrExpiredToken),
		errors.Is(err, ErrPasswordPolicy),
		errors.Is(err, ErrPasswordReuse),
		errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
