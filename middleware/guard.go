// Package middleware provides net/http middleware over the engine: a
// token gate, a role check, and an in-memory per-IP rate limiter.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tunevault/authcore"
)

type contextKey string

const accountKey contextKey = "authcore.account"

// CookieName is the fallback cookie consulted when no Authorization
// header is present.
const CookieName = "access_token"

// Guard gates requests on a valid access token.
type Guard struct {
	engine *authcore.Engine
}

// NewGuard returns a Guard over the given engine.
func NewGuard(engine *authcore.Engine) *Guard {
	return &Guard{engine: engine}
}

// Protect rejects requests without a valid token. The token is read from
// the Authorization header (Bearer scheme) or the access_token cookie.
// On success the authenticated account is attached to the request
// context; locked accounts get a Retry-After header.
func (g *Guard) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := authcore.WithClientIP(r.Context(), clientIP(r))

		acct, err := g.engine.Authenticate(ctx, tokenFromRequest(r))
		if err != nil {
			writeAuthError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, accountKey, acct)))
	})
}

// RequireRole allows only the listed roles through. Must run after
// Protect; requests without an account in context are rejected.
func RequireRole(roles ...authcore.Role) func(http.Handler) http.Handler {
	allowed := make(map[authcore.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			acct, ok := AccountFromContext(r.Context())
			if !ok {
				writeFail(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if !allowed[acct.Role] {
				writeFail(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AccountFromContext returns the account attached by Protect.
func AccountFromContext(ctx context.Context) (*authcore.Account, bool) {
	acct, ok := ctx.Value(accountKey).(*authcore.Account)
	return acct, ok
}

func tokenFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if tok, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
		return ""
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		ip, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(ip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeAuthError(w http.ResponseWriter, err error) {
	var locked *authcore.LockedError
	if errors.As(err, &locked) {
		w.Header().Set("Retry-After", strconv.Itoa(int(locked.RetryAfter(time.Now())/time.Second)))
	}
	writeFail(w, authcore.HTTPStatus(err), err.Error())
}

func writeFail(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "fail",
		"message": message,
	})
}
