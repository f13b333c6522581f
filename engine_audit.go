package authcore

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventLoginLocked           = "login_locked"
	auditEventLoginRateLimited      = "login_rate_limited"
	auditEventRegisterSuccess       = "register_success"
	auditEventRegisterFailure       = "register_failure"
	auditEventVerificationRequest   = "verification_request"
	auditEventVerificationConfirm   = "verification_confirm"
	auditEventResetRequest          = "reset_request"
	auditEventResetRateLimited      = "reset_rate_limited"
	auditEventResetConfirm          = "reset_confirm"
	auditEventPasswordChangeSuccess = "password_change_success"
	auditEventPasswordChangeFailure = "password_change_failure"
	auditEventAccountDeleted        = "account_deleted"
	auditEventMailDispatchFailed    = "mail_dispatch_failed"
	auditEventAuthenticateRejected  = "authenticate_rejected"
	auditEventStaleSessionRejected  = "stale_session_rejected"
)

type auditErrorCode string

const (
	auditErrInvalidCredentials auditErrorCode = "invalid_credentials"
	auditErrTokenInvalid       auditErrorCode = "invalid_token"
	auditErrTokenExpired       auditErrorCode = "token_expired"
	auditErrStaleSession       auditErrorCode = "stale_session"
	auditErrUnverified         auditErrorCode = "email_unverified"
	auditErrLocked             auditErrorCode = "account_locked"
	auditErrRateLimited        auditErrorCode = "rate_limited"
	auditErrDuplicate          auditErrorCode = "duplicate_email"
	auditErrNotFound           auditErrorCode = "account_not_found"
	auditErrChallengeRejected  auditErrorCode = "challenge_rejected"
	auditErrPasswordPolicy     auditErrorCode = "password_policy"
	auditErrPasswordReuse      auditErrorCode = "password_reuse"
	auditErrInternal           auditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := errorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func errorCode(err error) auditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenMalformed), errors.Is(err, ErrMissingToken):
		return auditErrTokenInvalid
	case errors.Is(err, ErrStaleSession):
		return auditErrStaleSession
	case errors.Is(err, ErrEmailUnverified):
		return auditErrUnverified
	case errors.Is(err, ErrAccountLocked):
		return auditErrLocked
	case errors.Is(err, ErrRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrDuplicateEmail):
		return auditErrDuplicate
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrAccountGone):
		return auditErrNotFound
	case errors.Is(err, ErrInvalidOrExpiredToken), errors.Is(err, ErrTokenNotFound):
		return auditErrChallengeRejected
	case errors.Is(err, ErrPasswordPolicy), errors.Is(err, ErrInvalidInput):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	default:
		return auditErrInternal
	}
}
