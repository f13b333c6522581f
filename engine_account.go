package authcore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/tunevault/authcore/password"
)

// Register creates an unverified account, mints an email verification
// token, and hands the raw token to the mailer. A case-insensitive email
// collision yields [ErrDuplicateEmail]; dispatch failures do not undo
// the registration, the caller can request a fresh token later.
func (e *Engine) Register(ctx context.Context, input RegisterInput) (*Account, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	email := normalizeEmail(input.Email)
	name := strings.TrimSpace(input.Name)
	role := input.Role
	if role == "" {
		role = RoleUser
	}

	if email == "" || !strings.Contains(email, "@") || name == "" {
		return nil, ErrInvalidInput
	}
	if !validRole(role) {
		return nil, ErrInvalidInput
	}

	hash, err := e.hasher.Hash(input.Password)
	if err != nil {
		if errors.Is(err, password.ErrTooShort) {
			return nil, ErrPasswordPolicy
		}
		return nil, err
	}

	acct := &Account{
		Email:        email,
		Name:         name,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}

	if err := e.store.Create(ctx, acct); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			e.metricInc(MetricRegisterDuplicate)
			e.emitAudit(ctx, auditEventRegisterFailure, false, "", ErrDuplicateEmail, func() map[string]string {
				return map[string]string{"email": email}
			})
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, acct.ID, nil, nil)

	if err := e.issueVerification(ctx, acct); err != nil {
		e.logger.Warn().Err(err).Str("account_id", acct.ID).Msg("issuing verification token failed")
	}

	return acct.Sanitized(), nil
}

// GetAccount fetches an account by ID with credential material stripped.
func (e *Engine) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	acct, err := e.store.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return acct.Sanitized(), nil
}

// ChangePassword verifies the current password, installs the new one,
// and returns a fresh token. The password change timestamp is bumped, so
// every token issued before this call is rejected as stale from now on.
func (e *Engine) ChangePassword(ctx context.Context, accountID, current, next string) (*LoginResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if accountID == "" || current == "" || next == "" {
		return nil, ErrInvalidInput
	}

	acct, err := e.store.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	ok, err := e.hasher.Verify(current, acct.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, accountID, ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "invalid_current_password"}
		})
		return nil, ErrInvalidCredentials
	}

	if same, err := e.hasher.Verify(next, acct.PasswordHash); err == nil && same {
		e.metricInc(MetricPasswordChangeReuseRejected)
		e.emitAudit(ctx, auditEventPasswordChangeFailure, false, accountID, ErrPasswordReuse, nil)
		return nil, ErrPasswordReuse
	}

	newHash, err := e.hasher.Hash(next)
	if err != nil {
		if errors.Is(err, password.ErrTooShort) {
			return nil, ErrPasswordPolicy
		}
		return nil, err
	}

	now := time.Now()
	if err := e.store.UpdatePassword(ctx, accountID, newHash, now); err != nil {
		return nil, err
	}
	acct.PasswordChangedAt = now

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, accountID, nil, nil)

	return e.issueResult(acct)
}

// DeleteAccount removes the account permanently. Outstanding tokens die
// with it: the gate rejects them once the lookup misses.
func (e *Engine) DeleteAccount(ctx context.Context, accountID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	if err := e.store.Delete(ctx, accountID); err != nil {
		return err
	}

	e.metricInc(MetricAccountDeleted)
	e.emitAudit(ctx, auditEventAccountDeleted, true, accountID, nil, nil)
	return nil
}

// dispatchMail hands a raw challenge token to the mailer. Best effort:
// failures are logged and audited but never fail the calling flow.
func (e *Engine) dispatchMail(ctx context.Context, acct *Account, kind MessageKind, rawToken string, ttl time.Duration) {
	if e.mailer == nil {
		e.logger.Debug().Str("kind", string(kind)).Msg("no mailer configured, token not dispatched")
		return
	}

	msg := MailMessage{
		To:    acct.Email,
		Name:  acct.Name,
		Kind:  kind,
		Token: rawToken,
		TTL:   ttl,
	}
	if err := e.mailer.Send(ctx, msg); err != nil {
		e.logger.Warn().Err(err).Str("kind", string(kind)).Str("account_id", acct.ID).Msg("mail dispatch failed")
		e.emitAudit(ctx, auditEventMailDispatchFailed, false, acct.ID, err, func() map[string]string {
			return map[string]string{"kind": string(kind)}
		})
	}
}
