package authcore

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tunevault/authcore/internal/rate"
	"github.com/tunevault/authcore/password"
	"github.com/tunevault/authcore/token"
)

// Engine drives the account and token lifecycle against an
// [AccountStore]. Build one through [New]; all methods are safe for
// concurrent use.
type Engine struct {
	config   Config
	store    AccountStore
	mailer   Mailer
	codec    *token.Codec
	hasher   *password.Hasher
	throttle *rate.Limiter
	audit    *auditDispatcher
	metrics  *Metrics
	logger   zerolog.Logger
}

// Close drains the audit dispatcher. Safe to call more than once.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were dropped under
// backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() bool {
	return e != nil && e.store != nil && e.hasher != nil && e.codec != nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login verifies credentials and issues a signed access token.
//
// Order of checks: the lock gate runs before password verification, so
// attempts against a locked account return the lock error without
// touching the failure counter; the lock is never extended by further
// attempts. A password mismatch increments the counter atomically and
// sets the lock once the threshold is reached. Unknown email and wrong
// password are indistinguishable to the caller.
func (e *Engine) Login(ctx context.Context, email, pass string) (*LoginResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	ip := clientIPFromContext(ctx)
	if email == "" || pass == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "empty_input"}
		})
		return nil, ErrInvalidCredentials
	}

	if e.throttle != nil {
		if err := e.throttle.CheckLogin(ctx, email, ip); err != nil {
			e.metricInc(MetricLoginRateLimited)
			e.emitAudit(ctx, auditEventLoginRateLimited, false, "", ErrRateLimited, func() map[string]string {
				return map[string]string{"email": email}
			})
			return nil, ErrRateLimited
		}
	}

	acct, err := e.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			e.throttleLoginFailure(ctx, email, ip)
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, "", ErrInvalidCredentials, func() map[string]string {
				return map[string]string{"email": email, "reason": "unknown_account"}
			})
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	now := time.Now()
	if acct.Locked(now) {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, auditEventLoginLocked, false, acct.ID, ErrAccountLocked, nil)
		return nil, &LockedError{Until: acct.LockedUntil}
	}

	ok, err := e.hasher.Verify(pass, acct.PasswordHash)
	if err != nil || !ok {
		e.throttleLoginFailure(ctx, email, ip)

		updated, ferr := e.store.RecordLoginFailure(ctx, acct.ID, e.config.Lockout.MaxAttempts, e.config.Lockout.LockDuration, now)
		if ferr != nil {
			e.logger.Warn().Err(ferr).Str("account_id", acct.ID).Msg("recording login failure failed")
		}

		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, acct.ID, ErrInvalidCredentials, func() map[string]string {
			md := map[string]string{"reason": "password_mismatch"}
			if updated != nil {
				md["failed_logins"] = strconv.Itoa(updated.FailedLogins)
			}
			return md
		})
		return nil, ErrInvalidCredentials
	}

	if !acct.EmailVerified {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, acct.ID, ErrEmailUnverified, func() map[string]string {
			return map[string]string{"reason": "email_unverified"}
		})
		return nil, ErrEmailUnverified
	}

	if e.config.Password.UpgradeOnLogin {
		e.maybeUpgradeHash(ctx, acct, pass)
	}
	pass = ""

	if err := e.store.RecordLoginSuccess(ctx, acct.ID, now); err != nil {
		return nil, err
	}
	if e.throttle != nil {
		if err := e.throttle.ResetLogin(ctx, email, ip); err != nil {
			e.logger.Warn().Err(err).Msg("login throttle reset failed")
		}
	}

	tok, err := e.codec.Issue(acct.ID)
	if err != nil {
		return nil, err
	}

	acct.FailedLogins = 0
	acct.LockedUntil = time.Time{}
	acct.LastLogin = now

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, acct.ID, nil, nil)

	return &LoginResult{Token: tok, Account: acct.Sanitized()}, nil
}

// Authenticate is the request gate: it validates the access token,
// loads the account, and applies the session checks in order. Token
// problems and a vanished account map to credential errors; a token
// issued before the last password change is rejected as stale (compared
// at second granularity); an unverified email blocks with
// [ErrEmailUnverified]; an active lock blocks with a [LockedError].
func (e *Engine) Authenticate(ctx context.Context, rawToken string) (*Account, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	if e.metrics != nil && e.metrics.LatencyEnabled() {
		start := time.Now()
		defer func() { e.metrics.Observe(MetricAuthenticateLatency, time.Since(start)) }()
	}

	if rawToken == "" {
		e.metricInc(MetricAuthenticateFailure)
		return nil, ErrMissingToken
	}

	claims, err := e.codec.Validate(rawToken)
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		mapped := ErrTokenMalformed
		if errors.Is(err, token.ErrExpired) {
			mapped = ErrTokenExpired
		}
		e.emitAudit(ctx, auditEventAuthenticateRejected, false, "", mapped, nil)
		return nil, mapped
	}

	acct, err := e.store.GetByID(ctx, claims.AccountID)
	if err != nil {
		e.metricInc(MetricAuthenticateFailure)
		if errors.Is(err, ErrAccountNotFound) {
			e.emitAudit(ctx, auditEventAuthenticateRejected, false, claims.AccountID, ErrAccountGone, nil)
			return nil, ErrAccountGone
		}
		return nil, err
	}

	if !acct.PasswordChangedAt.IsZero() && claims.IssuedAt.Unix() < acct.PasswordChangedAt.Unix() {
		e.metricInc(MetricStaleSessionRejected)
		e.metricInc(MetricAuthenticateFailure)
		e.emitAudit(ctx, auditEventStaleSessionRejected, false, acct.ID, ErrStaleSession, nil)
		return nil, ErrStaleSession
	}

	if !acct.EmailVerified {
		e.metricInc(MetricAuthenticateFailure)
		e.emitAudit(ctx, auditEventAuthenticateRejected, false, acct.ID, ErrEmailUnverified, nil)
		return nil, ErrEmailUnverified
	}

	now := time.Now()
	if acct.Locked(now) {
		e.metricInc(MetricAuthenticateFailure)
		e.emitAudit(ctx, auditEventAuthenticateRejected, false, acct.ID, ErrAccountLocked, nil)
		return nil, &LockedError{Until: acct.LockedUntil}
	}

	e.metricInc(MetricAuthenticateSuccess)
	return acct.Sanitized(), nil
}

func (e *Engine) throttleLoginFailure(ctx context.Context, email, ip string) {
	if e.throttle == nil {
		return
	}
	if err := e.throttle.IncrementLogin(ctx, email, ip); err != nil && !errors.Is(err, rate.ErrRateLimited) {
		e.logger.Warn().Err(err).Msg("login throttle increment failed")
	}
}

// maybeUpgradeHash rehashes a credential stored with weaker parameters.
// Best effort; the password change timestamp is left untouched so
// outstanding tokens stay valid.
func (e *Engine) maybeUpgradeHash(ctx context.Context, acct *Account, pass string) {
	needs, err := e.hasher.NeedsUpgrade(acct.PasswordHash)
	if err != nil || !needs {
		return
	}

	upgraded, err := e.hasher.Hash(pass)
	if err != nil {
		e.logger.Warn().Err(err).Msg("password hash upgrade generation failed")
		return
	}
	if err := e.store.UpdatePassword(ctx, acct.ID, upgraded, acct.PasswordChangedAt); err != nil {
		e.logger.Warn().Err(err).Str("account_id", acct.ID).Msg("password hash upgrade update failed")
	}
}

func (e *Engine) issueResult(acct *Account) (*LoginResult, error) {
	tok, err := e.codec.Issue(acct.ID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: tok, Account: acct.Sanitized()}, nil
}
