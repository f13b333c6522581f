// Package memstore provides an in-memory AccountStore with the same
// atomicity guarantees as the MongoDB implementation. Intended for tests
// and local development.
package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tunevault/authcore"
)

// Store is a mutex-guarded in-memory account store. Safe for concurrent
// use; all reads and writes work on copies so callers never share
// account pointers with the store.
type Store struct {
	mu       sync.Mutex
	accounts map[string]*authcore.Account // keyed by ID
	byEmail  map[string]string            // lowercased email -> ID
}

var _ authcore.AccountStore = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		accounts: make(map[string]*authcore.Account),
		byEmail:  make(map[string]string),
	}
}

func (s *Store) Create(_ context.Context, acct *authcore.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(acct.Email)
	if _, exists := s.byEmail[email]; exists {
		return authcore.ErrDuplicateEmail
	}

	stored := *acct
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	s.accounts[stored.ID] = &stored
	s.byEmail[email] = stored.ID

	acct.ID = stored.ID
	return nil
}

func (s *Store) GetByEmail(_ context.Context, email string) (*authcore.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, authcore.ErrAccountNotFound
	}
	return clone(s.accounts[id]), nil
}

func (s *Store) GetByID(_ context.Context, id string) (*authcore.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return nil, authcore.ErrAccountNotFound
	}
	return clone(acct), nil
}

func (s *Store) UpdatePassword(_ context.Context, id, hash string, changedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return authcore.ErrAccountNotFound
	}
	acct.PasswordHash = hash
	acct.PasswordChangedAt = changedAt
	return nil
}

func (s *Store) RecordLoginFailure(_ context.Context, id string, threshold int, lockFor time.Duration, now time.Time) (*authcore.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return nil, authcore.ErrAccountNotFound
	}

	// An expired lock means the previous streak is over: start a new one.
	if !acct.LockedUntil.IsZero() && !acct.LockedUntil.After(now) {
		acct.FailedLogins = 1
		acct.LockedUntil = time.Time{}
	} else {
		acct.FailedLogins++
		if acct.FailedLogins >= threshold && acct.LockedUntil.IsZero() {
			acct.LockedUntil = now.Add(lockFor)
		}
	}

	return clone(acct), nil
}

func (s *Store) RecordLoginSuccess(_ context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return authcore.ErrAccountNotFound
	}
	acct.FailedLogins = 0
	acct.LockedUntil = time.Time{}
	acct.LastLogin = now
	return nil
}

func (s *Store) SetVerificationToken(_ context.Context, id, tokenHash string, expires time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return authcore.ErrAccountNotFound
	}
	acct.VerificationTokenHash = tokenHash
	acct.VerificationTokenExpires = expires
	return nil
}

func (s *Store) SetResetToken(_ context.Context, id, tokenHash string, expires time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return authcore.ErrAccountNotFound
	}
	acct.ResetTokenHash = tokenHash
	acct.ResetTokenExpires = expires
	return nil
}

func (s *Store) ClearResetToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return authcore.ErrAccountNotFound
	}
	acct.ResetTokenHash = ""
	acct.ResetTokenExpires = time.Time{}
	return nil
}

func (s *Store) ConsumeVerificationToken(_ context.Context, tokenHash string, now time.Time) (*authcore.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, acct := range s.accounts {
		if acct.VerificationTokenHash != tokenHash {
			continue
		}
		if !acct.VerificationTokenExpires.After(now) {
			break
		}
		acct.VerificationTokenHash = ""
		acct.VerificationTokenExpires = time.Time{}
		acct.EmailVerified = true
		return clone(acct), nil
	}
	return nil, authcore.ErrTokenNotFound
}

func (s *Store) ConsumeResetToken(_ context.Context, tokenHash string, now time.Time) (*authcore.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, acct := range s.accounts {
		if acct.ResetTokenHash != tokenHash {
			continue
		}
		if !acct.ResetTokenExpires.After(now) {
			break
		}
		acct.ResetTokenHash = ""
		acct.ResetTokenExpires = time.Time{}
		return clone(acct), nil
	}
	return nil, authcore.ErrTokenNotFound
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return authcore.ErrAccountNotFound
	}
	delete(s.byEmail, strings.ToLower(acct.Email))
	delete(s.accounts, id)
	return nil
}

// Mutate applies fn to the stored account under the lock. Test hook for
// scenarios that need direct state manipulation, like backdating a
// password change.
func (s *Store) Mutate(id string, fn func(*authcore.Account)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return false
	}
	fn(acct)
	return true
}

func clone(a *authcore.Account) *authcore.Account {
	out := *a
	return &out
}
