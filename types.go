package authcore

import (
	"context"
	"time"
)

// Role is the coarse authorization level attached to an account.
type Role string

const (
	// RoleUser is the default role for new accounts.
	RoleUser Role = "user"
	// RoleArtist marks accounts allowed to manage their own catalog entries.
	RoleArtist Role = "artist"
	// RoleAdmin marks operator accounts.
	RoleAdmin Role = "admin"
)

func validRole(r Role) bool {
	switch r {
	case RoleUser, RoleArtist, RoleAdmin:
		return true
	}
	return false
}

// Account is the stored account record. PasswordHash and the challenge
// token digests never leave the package through JSON.
type Account struct {
	ID    string `bson:"_id" json:"id"`
	Email string `bson:"email" json:"email"`
	Name  string `bson:"name" json:"name"`
	Role  Role   `bson:"role" json:"role"`

	PasswordHash      string    `bson:"password_hash" json:"-"`
	PasswordChangedAt time.Time `bson:"password_changed_at,omitempty" json:"-"`

	EmailVerified bool `bson:"email_verified" json:"email_verified"`

	FailedLogins int       `bson:"failed_logins,omitempty" json:"-"`
	LockedUntil  time.Time `bson:"locked_until,omitempty" json:"-"`
	LastLogin    time.Time `bson:"last_login,omitempty" json:"last_login,omitzero"`

	VerificationTokenHash    string    `bson:"verification_token_hash,omitempty" json:"-"`
	VerificationTokenExpires time.Time `bson:"verification_token_expires,omitempty" json:"-"`
	ResetTokenHash           string    `bson:"reset_token_hash,omitempty" json:"-"`
	ResetTokenExpires        time.Time `bson:"reset_token_expires,omitempty" json:"-"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// Locked reports whether the account is locked out at the given instant.
// Lock state is derived from LockedUntil; there is no stored flag.
func (a *Account) Locked(now time.Time) bool {
	return a != nil && !a.LockedUntil.IsZero() && a.LockedUntil.After(now)
}

// Sanitized returns a copy with credential material and challenge token
// digests cleared, safe to hand back to transport layers.
func (a *Account) Sanitized() *Account {
	if a == nil {
		return nil
	}
	out := *a
	out.PasswordHash = ""
	out.VerificationTokenHash = ""
	out.ResetTokenHash = ""
	return &out
}

// AccountStore is the persistence interface the engine drives. The
// mongostore package provides the production implementation; memstore
// provides an in-memory one with identical semantics.
//
// Counter updates and token consumption must be atomic on the storage
// side: concurrent RecordLoginFailure calls may not lose increments, and
// a challenge token must be consumable exactly once.
type AccountStore interface {
	// Create inserts a new account. A case-insensitive email collision
	// yields ErrDuplicateEmail.
	Create(ctx context.Context, acct *Account) error

	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByID(ctx context.Context, id string) (*Account, error)

	// UpdatePassword replaces the credential hash and stamps
	// PasswordChangedAt, which retires every token issued before it.
	UpdatePassword(ctx context.Context, id, hash string, changedAt time.Time) error

	// RecordLoginFailure increments the failure counter atomically. A lock
	// that has already expired resets the counter to one and clears the
	// lock; reaching threshold sets LockedUntil to now+lockFor. Returns the
	// post-update record.
	RecordLoginFailure(ctx context.Context, id string, threshold int, lockFor time.Duration, now time.Time) (*Account, error)

	// RecordLoginSuccess zeroes the failure counter, clears any lock, and
	// stamps LastLogin.
	RecordLoginSuccess(ctx context.Context, id string, now time.Time) error

	// SetVerificationToken stores the digest of a pending verification
	// token, overwriting any previous one.
	SetVerificationToken(ctx context.Context, id, tokenHash string, expires time.Time) error

	// SetResetToken stores the digest of a pending reset token,
	// overwriting any previous one.
	SetResetToken(ctx context.Context, id, tokenHash string, expires time.Time) error

	// ClearResetToken drops a pending reset token without consuming it.
	ClearResetToken(ctx context.Context, id string) error

	// ConsumeVerificationToken atomically finds the account holding an
	// unexpired token with this digest, clears the token, and marks the
	// email verified. A miss (unknown or expired) is ErrTokenNotFound.
	ConsumeVerificationToken(ctx context.Context, tokenHash string, now time.Time) (*Account, error)

	// ConsumeResetToken atomically finds and clears an unexpired reset
	// token with this digest. A miss is ErrTokenNotFound.
	ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time) (*Account, error)

	// Delete removes the account permanently.
	Delete(ctx context.Context, id string) error
}

// MessageKind distinguishes the outbound message templates.
type MessageKind string

const (
	// MailVerification carries an email verification token.
	MailVerification MessageKind = "verification"
	// MailPasswordReset carries a password reset token.
	MailPasswordReset MessageKind = "password_reset"
)

// MailMessage is handed to the [Mailer] with the raw challenge token.
// The engine never persists Token; only its digest is stored.
type MailMessage struct {
	To    string
	Name  string
	Kind  MessageKind
	Token string
	TTL   time.Duration
}

// Mailer dispatches verification and reset messages. Implementations
// must not log or persist the raw token. See the mailer subpackage for
// an AMQP publisher and a zerolog-backed development mailer.
type Mailer interface {
	Send(ctx context.Context, msg MailMessage) error
}

// RegisterInput is the input for [Engine.Register]. Role defaults to
// RoleUser when empty.
type RegisterInput struct {
	Email    string
	Name     string
	Password string
	Role     Role
}

// LoginResult pairs a signed access token with the sanitized account it
// was issued for.
type LoginResult struct {
	Token   string
	Account *Account
}
