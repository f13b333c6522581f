package authcore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tunevault/authcore"
	"github.com/tunevault/authcore/mailer"
	"github.com/tunevault/authcore/memstore"
)

func newThrottledEnv(t *testing.T, cfg authcore.Config) (*testEnv, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis failed: %v", err)
	}
	t.Cleanup(mr.Close)

	store := memstore.New()
	mail := mailer.NewChanMailer(16)
	engine, err := authcore.New().
		WithConfig(cfg).
		WithStore(store).
		WithMailer(mail).
		WithRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()})).
		Build()
	if err != nil {
		t.Fatalf("building engine failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, store: store, mail: mail}, mr
}

func TestLoginThrottle(t *testing.T) {
	cfg := testEngineConfig()
	cfg.Throttle.LoginMaxAttempts = 2
	cfg.Throttle.LoginWindow = time.Minute
	env, mr := newThrottledEnv(t, cfg)
	ctx := context.Background()
	env.registerVerified(t, testEmail)

	// Burn through the window budget, then one more failure tips the
	// counter over it.
	for i := 0; i < 3; i++ {
		if _, err := env.engine.Login(ctx, testEmail, "wrong-password"); !errors.Is(err, authcore.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}

	// Even the correct password is throttled now.
	if _, err := env.engine.Login(ctx, testEmail, testPassword); !errors.Is(err, authcore.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}

	// The window passes and the budget is fresh.
	mr.FastForward(2 * time.Minute)
	if _, err := env.engine.Login(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("expected login after window expiry, got %v", err)
	}
}

func TestLoginThrottleClearedOnSuccess(t *testing.T) {
	cfg := testEngineConfig()
	cfg.Throttle.LoginMaxAttempts = 3
	cfg.Throttle.LoginWindow = time.Minute
	env, _ := newThrottledEnv(t, cfg)
	ctx := context.Background()
	env.registerVerified(t, testEmail)

	for i := 0; i < 2; i++ {
		_, _ = env.engine.Login(ctx, testEmail, "wrong-password")
	}
	if _, err := env.engine.Login(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// The successful login reset the window counters.
	for i := 0; i < 3; i++ {
		if _, err := env.engine.Login(ctx, testEmail, "wrong-password"); !errors.Is(err, authcore.ErrInvalidCredentials) {
			t.Fatalf("attempt %d after reset: expected ErrInvalidCredentials, got %v", i, err)
		}
	}
}

func TestResetRequestThrottle(t *testing.T) {
	cfg := testEngineConfig()
	cfg.Throttle.ResetMaxRequests = 1
	cfg.Throttle.ResetWindow = time.Hour
	env, _ := newThrottledEnv(t, cfg)
	ctx := context.Background()
	env.registerVerified(t, testEmail)

	if err := env.engine.RequestPasswordReset(ctx, testEmail); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	env.takeMail(t)

	if err := env.engine.RequestPasswordReset(ctx, testEmail); !errors.Is(err, authcore.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited on second request, got %v", err)
	}
}
