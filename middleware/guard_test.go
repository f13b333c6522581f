package middleware_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tunevault/authcore"
	"github.com/tunevault/authcore/mailer"
	"github.com/tunevault/authcore/memstore"
	"github.com/tunevault/authcore/middleware"
)

const (
	guardTestEmail    = "alice@example.com"
	guardTestPassword = "correct-password-123"
)

type guardEnv struct {
	engine *authcore.Engine
	store  *memstore.Store
	acct   *authcore.Account
	token  string
}

func newGuardEnv(t *testing.T) *guardEnv {
	t.Helper()

	cfg := authcore.DefaultConfig()
	cfg.Token.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	store := memstore.New()
	mail := mailer.NewChanMailer(4)
	engine, err := authcore.New().
		WithConfig(cfg).
		WithStore(store).
		WithMailer(mail).
		Build()
	if err != nil {
		t.Fatalf("building engine failed: %v", err)
	}
	t.Cleanup(engine.Close)

	ctx := context.Background()
	acct, err := engine.Register(ctx, authcore.RegisterInput{
		Email:    guardTestEmail,
		Name:     "Alice",
		Password: guardTestPassword,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	msg := <-mail.Messages()
	if _, err := engine.ConfirmEmailVerification(ctx, msg.Token); err != nil {
		t.Fatalf("ConfirmEmailVerification failed: %v", err)
	}

	login, err := engine.Login(ctx, guardTestEmail, guardTestPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	return &guardEnv{engine: engine, store: store, acct: acct, token: login.Token}
}

func okHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := middleware.AccountFromContext(r.Context()); !ok {
			t.Error("expected account in request context")
		}
		w.WriteHeader(http.StatusOK)
	})
}

func failBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding error body failed: %v", err)
	}
	if body["status"] != "fail" {
		t.Fatalf("expected fail status, got %q", body["status"])
	}
	return body
}

func TestProtectBearerHeader(t *testing.T) {
	env := newGuardEnv(t)
	guard := middleware.NewGuard(env.engine)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+env.token)
	rec := httptest.NewRecorder()

	guard.Protect(okHandler(t)).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestProtectCookieFallback(t *testing.T) {
	env := newGuardEnv(t)
	guard := middleware.NewGuard(env.engine)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: middleware.CookieName, Value: env.token})
	rec := httptest.NewRecorder()

	guard.Protect(okHandler(t)).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestProtectMissingToken(t *testing.T) {
	env := newGuardEnv(t)
	guard := middleware.NewGuard(env.engine)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	rec := httptest.NewRecorder()

	guard.Protect(okHandler(t)).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	failBody(t, rec)
}

func TestProtectMalformedToken(t *testing.T) {
	env := newGuardEnv(t)
	guard := middleware.NewGuard(env.engine)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer garbage.token.here")
	rec := httptest.NewRecorder()

	guard.Protect(okHandler(t)).ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if body := failBody(t, rec); body["message"] != authcore.ErrTokenMalformed.Error() {
		t.Fatalf("unexpected message %q", body["message"])
	}
}

func TestProtectLockedSetsRetryAfter(t *testing.T) {
	env := newGuardEnv(t)
	guard := middleware.NewGuard(env.engine)

	env.store.Mutate(env.acct.ID, func(a *authcore.Account) {
		a.LockedUntil = time.Now().Add(10 * time.Minute)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+env.token)
	rec := httptest.NewRecorder()

	guard.Protect(okHandler(t)).ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header for locked account")
	}
}

func TestProtectUnverifiedForbidden(t *testing.T) {
	env := newGuardEnv(t)
	guard := middleware.NewGuard(env.engine)

	env.store.Mutate(env.acct.ID, func(a *authcore.Account) {
		a.EmailVerified = false
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+env.token)
	rec := httptest.NewRecorder()

	guard.Protect(okHandler(t)).ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestRequireRole(t *testing.T) {
	env := newGuardEnv(t)
	guard := middleware.NewGuard(env.engine)

	handler := guard.Protect(middleware.RequireRole(authcore.RoleAdmin)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	))

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+env.token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}

	env.store.Mutate(env.acct.ID, func(a *authcore.Account) {
		a.Role = authcore.RoleAdmin
	})

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rec.Code)
	}
}

func TestRequireRoleWithoutProtect(t *testing.T) {
	handler := middleware.RequireRole(authcore.RoleUser)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without account in context, got %d", rec.Code)
	}
}
