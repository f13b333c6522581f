package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/tunevault/authcore/internal"
)

// RequestEmailVerification mints a fresh verification token for the
// account behind the email and dispatches it. A pending token is
// overwritten, only the newest one can confirm. Unknown addresses and
// already-verified accounts return nil so callers cannot probe for
// registered emails.
func (e *Engine) RequestEmailVerification(ctx context.Context, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	email = normalizeEmail(email)
	if email == "" {
		return ErrInvalidInput
	}

	acct, err := e.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil
		}
		return err
	}
	if acct.EmailVerified {
		return nil
	}

	if err := e.issueVerification(ctx, acct); err != nil {
		return err
	}

	e.metricInc(MetricVerificationRequest)
	e.emitAudit(ctx, auditEventVerificationRequest, true, acct.ID, nil, nil)
	return nil
}

// ConfirmEmailVerification consumes a raw verification token, marks the
// account verified, and returns a signed session. The consume is atomic:
// a token confirms exactly once, concurrent attempts lose. Wrong,
// expired, and already-used tokens are indistinguishable.
func (e *Engine) ConfirmEmailVerification(ctx context.Context, rawToken string) (*LoginResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	if rawToken == "" {
		return nil, ErrInvalidOrExpiredToken
	}

	digest := internal.HashChallengeToken(rawToken)
	acct, err := e.store.ConsumeVerificationToken(ctx, digest, time.Now())
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			e.metricInc(MetricVerificationConfirmFailure)
			e.emitAudit(ctx, auditEventVerificationConfirm, false, "", ErrInvalidOrExpiredToken, nil)
			return nil, ErrInvalidOrExpiredToken
		}
		return nil, err
	}

	e.metricInc(MetricVerificationConfirmSuccess)
	e.emitAudit(ctx, auditEventVerificationConfirm, true, acct.ID, nil, nil)

	return e.issueResult(acct)
}

func (e *Engine) issueVerification(ctx context.Context, acct *Account) error {
	raw, err := internal.NewChallengeToken()
	if err != nil {
		return err
	}

	ttl := e.config.Verification.TTL
	expires := time.Now().Add(ttl)
	if err := e.store.SetVerificationToken(ctx, acct.ID, internal.HashChallengeToken(raw), expires); err != nil {
		return err
	}

	e.dispatchMail(ctx, acct, MailVerification, raw, ttl)
	return nil
}
