package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/tunevault/authcore/internal"
	"github.com/tunevault/authcore/password"
)

// RequestPasswordReset mints a short-lived reset token for the account
// behind the email and dispatches it. Unlike verification requests the
// unknown-address case is reported ([ErrAccountNotFound]); if dispatch
// fails the stored token is cleared so no orphaned reset window remains.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if email == "" {
		return ErrInvalidInput
	}

	if e.throttle != nil {
		if err := e.throttle.CheckReset(ctx, email); err != nil {
			e.metricInc(MetricResetRateLimited)
			e.emitAudit(ctx, auditEventResetRateLimited, false, "", ErrRateLimited, func() map[string]string {
				return map[string]string{"email": email}
			})
			return ErrRateLimited
		}
	}

	acct, err := e.store.GetByEmail(ctx, email)
	if err != nil {
		return err
	}

	raw, err := internal.NewChallengeToken()
	if err != nil {
		return err
	}

	ttl := e.config.Reset.TTL
	expires := time.Now().Add(ttl)
	if err := e.store.SetResetToken(ctx, acct.ID, internal.HashChallengeToken(raw), expires); err != nil {
		return err
	}

	if e.mailer != nil {
		msg := MailMessage{
			To:    acct.Email,
			Name:  acct.Name,
			Kind:  MailPasswordReset,
			Token: raw,
			TTL:   ttl,
		}
		if err := e.mailer.Send(ctx, msg); err != nil {
			e.emitAudit(ctx, auditEventMailDispatchFailed, false, acct.ID, err, func() map[string]string {
				return map[string]string{"kind": string(MailPasswordReset)}
			})
			if cerr := e.store.ClearResetToken(ctx, acct.ID); cerr != nil {
				e.logger.Warn().Err(cerr).Str("account_id", acct.ID).Msg("clearing reset token after dispatch failure failed")
			}
			return err
		}
	}

	e.metricInc(MetricResetRequest)
	e.emitAudit(ctx, auditEventResetRequest, true, acct.ID, nil, nil)
	return nil
}

// ConfirmPasswordReset consumes a raw reset token, installs the new
// password, and returns a signed session. The new password is hashed
// before the token is consumed so a policy rejection leaves the token
// usable for a retry. Consuming is atomic and one-shot; the password
// change timestamp is bumped, invalidating all previously issued tokens.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, rawToken, newPassword string) (*LoginResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if rawToken == "" {
		return nil, ErrInvalidOrExpiredToken
	}

	newHash, err := e.hasher.Hash(newPassword)
	if err != nil {
		if errors.Is(err, password.ErrTooShort) {
			return nil, ErrPasswordPolicy
		}
		return nil, err
	}

	now := time.Now()
	digest := internal.HashChallengeToken(rawToken)
	acct, err := e.store.ConsumeResetToken(ctx, digest, now)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			e.metricInc(MetricResetConfirmFailure)
			e.emitAudit(ctx, auditEventResetConfirm, false, "", ErrInvalidOrExpiredToken, nil)
			return nil, ErrInvalidOrExpiredToken
		}
		return nil, err
	}

	if err := e.store.UpdatePassword(ctx, acct.ID, newHash, now); err != nil {
		return nil, err
	}
	acct.PasswordChangedAt = now

	e.metricInc(MetricResetConfirmSuccess)
	e.emitAudit(ctx, auditEventResetConfirm, true, acct.ID, nil, nil)

	return e.issueResult(acct)
}
