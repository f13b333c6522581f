package authcore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tunevault/authcore"
)

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t, testEngineConfig())
	ctx := context.Background()
	acct := env.registerVerified(t, testEmail)

	res, err := env.engine.ChangePassword(ctx, acct.ID, testPassword, "brand-new-password")
	if err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}
	if res.Token == "" {
		t.Fatal("expected a fresh session token")
	}
	if _, err := env.engine.Authenticate(ctx, res.Token); err != nil {
		t.Fatalf("fresh token must authenticate, got %v", err)
	}

	if _, err := env.engine.Login(ctx, testEmail, testPassword); !errors.Is(err, authcore.ErrInvalidCredentials) {
		t.Fatalf("expected old password rejected, got %v", err)
	}
	if _, err := env.engine.Login(ctx, testEmail, "brand-new-password"); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	env := newTestEnv(t, testEngineConfig())
	ctx := context.Background()
	acct := env.registerVerified(t, testEmail)

	_, err := env.engine.ChangePassword(ctx, acct.ID, "not-the-password", "brand-new-password")
	if !errors.Is(err, authcore.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestChangePasswordReuseRejected(t *testing.T) {
	env := newTestEnv(t, testEngineConfig())
	ctx := context.Background()
	acct := env.registerVerified(t, testEmail)

	_, err := env.engine.ChangePassword(ctx, acct.ID, testPassword, testPassword)
	if !errors.Is(err, authcore.ErrPasswordReuse) {
		t.Fatalf("expected ErrPasswordReuse, got %v", err)
	}
}

func TestChangePasswordPolicy(t *testing.T) {
	env := newTestEnv(t, testEngineConfig())
	ctx := context.Background()
	acct := env.registerVerified(t, testEmail)

	_, err := env.engine.ChangePassword(ctx, acct.ID, testPassword, "short")
	if !errors.Is(err, authcore.ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
}

func TestChangePasswordRetiresOldTokens(t *testing.T) {
	env := newTestEnv(t, testEngineConfig())
	ctx := context.Background()
	acct := env.registerVerified(t, testEmail)

	login, err := env.engine.Login(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if _, err := env.engine.ChangePassword(ctx, acct.ID, testPassword, "brand-new-password"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	// Second-granularity comparison: move the change time clearly past
	// the old token's iat.
	env.store.Mutate(acct.ID, func(a *authcore.Account) {
		a.PasswordChangedAt = a.PasswordChangedAt.Add(2 * time.Second)
	})

	if _, err := env.engine.Authenticate(ctx, login.Token); !errors.Is(err, authcore.ErrStaleSession) {
		t.Fatalf("expected ErrStaleSession, got %v", err)
	}
}
