package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/tunevault/authcore"
)

var _ authcore.AccountStore = (*Store)(nil)

func (s *Store) Create(ctx context.Context, acct *authcore.Account) error {
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}

	if _, err := s.accounts.InsertOne(ctx, acct); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return authcore.ErrDuplicateEmail
		}
		return fmt.Errorf("inserting account: %w", err)
	}
	return nil
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*authcore.Account, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

func (s *Store) GetByID(ctx context.Context, id string) (*authcore.Account, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (*authcore.Account, error) {
	var acct authcore.Account
	if err := s.accounts.FindOne(ctx, filter).Decode(&acct); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, authcore.ErrAccountNotFound
		}
		return nil, fmt.Errorf("finding account: %w", err)
	}
	return &acct, nil
}

func (s *Store) UpdatePassword(ctx context.Context, id, hash string, changedAt time.Time) error {
	res, err := s.accounts.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"password_hash":       hash,
			"password_changed_at": changedAt,
		}},
	)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	if res.MatchedCount == 0 {
		return authcore.ErrAccountNotFound
	}
	return nil
}

// RecordLoginFailure increments the failure counter with conditional
// update documents so concurrent failures never lose increments.
//
// Three steps, each a single atomic update:
//  1. if a lock has expired, reset the streak to one and clear the lock;
//  2. otherwise increment the counter;
//  3. if the counter reached threshold and no lock is set, set one.
func (s *Store) RecordLoginFailure(ctx context.Context, id string, threshold int, lockFor time.Duration, now time.Time) (*authcore.Account, error) {
	after := options.FindOneAndUpdate().SetReturnDocument(options.After)

	// Step 1: stale lock -> new streak.
	var acct authcore.Account
	err := s.accounts.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "locked_until": bson.M{"$exists": true, "$lte": now}},
		bson.M{
			"$set":   bson.M{"failed_logins": 1},
			"$unset": bson.M{"locked_until": ""},
		},
		after,
	).Decode(&acct)
	if err == nil {
		return &acct, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("resetting stale lock: %w", err)
	}

	// Step 2: plain increment.
	err = s.accounts.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"failed_logins": 1}},
		after,
	).Decode(&acct)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, authcore.ErrAccountNotFound
		}
		return nil, fmt.Errorf("recording login failure: %w", err)
	}

	// Step 3: threshold reached and not yet locked -> set the lock. The
	// filter guards against extending a lock set by a concurrent failure.
	if acct.FailedLogins >= threshold && acct.LockedUntil.IsZero() {
		lockedUntil := now.Add(lockFor)
		res, err := s.accounts.UpdateOne(ctx,
			bson.M{
				"_id":           id,
				"failed_logins": bson.M{"$gte": threshold},
				"locked_until":  bson.M{"$exists": false},
			},
			bson.M{"$set": bson.M{"locked_until": lockedUntil}},
		)
		if err != nil {
			return nil, fmt.Errorf("setting lockout: %w", err)
		}
		if res.ModifiedCount > 0 {
			acct.LockedUntil = lockedUntil
		}
	}

	return &acct, nil
}

func (s *Store) RecordLoginSuccess(ctx context.Context, id string, now time.Time) error {
	res, err := s.accounts.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{
			"$set":   bson.M{"failed_logins": 0, "last_login": now},
			"$unset": bson.M{"locked_until": ""},
		},
	)
	if err != nil {
		return fmt.Errorf("recording login success: %w", err)
	}
	if res.MatchedCount == 0 {
		return authcore.ErrAccountNotFound
	}
	return nil
}

func (s *Store) SetVerificationToken(ctx context.Context, id, tokenHash string, expires time.Time) error {
	return s.setToken(ctx, id, bson.M{
		"verification_token_hash":    tokenHash,
		"verification_token_expires": expires,
	})
}

func (s *Store) SetResetToken(ctx context.Context, id, tokenHash string, expires time.Time) error {
	return s.setToken(ctx, id, bson.M{
		"reset_token_hash":    tokenHash,
		"reset_token_expires": expires,
	})
}

func (s *Store) setToken(ctx context.Context, id string, fields bson.M) error {
	res, err := s.accounts.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("storing challenge token: %w", err)
	}
	if res.MatchedCount == 0 {
		return authcore.ErrAccountNotFound
	}
	return nil
}

func (s *Store) ClearResetToken(ctx context.Context, id string) error {
	_, err := s.accounts.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$unset": bson.M{"reset_token_hash": "", "reset_token_expires": ""}},
	)
	if err != nil {
		return fmt.Errorf("clearing reset token: %w", err)
	}
	return nil
}

// ConsumeVerificationToken is a single find-and-modify: only one of any
// number of concurrent calls with the same digest can match, the rest
// see ErrTokenNotFound.
func (s *Store) ConsumeVerificationToken(ctx context.Context, tokenHash string, now time.Time) (*authcore.Account, error) {
	var acct authcore.Account
	err := s.accounts.FindOneAndUpdate(ctx,
		bson.M{
			"verification_token_hash":    tokenHash,
			"verification_token_expires": bson.M{"$gt": now},
		},
		bson.M{
			"$set":   bson.M{"email_verified": true},
			"$unset": bson.M{"verification_token_hash": "", "verification_token_expires": ""},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&acct)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, authcore.ErrTokenNotFound
		}
		return nil, fmt.Errorf("consuming verification token: %w", err)
	}
	return &acct, nil
}

func (s *Store) ConsumeResetToken(ctx context.Context, tokenHash string, now time.Time) (*authcore.Account, error) {
	var acct authcore.Account
	err := s.accounts.FindOneAndUpdate(ctx,
		bson.M{
			"reset_token_hash":    tokenHash,
			"reset_token_expires": bson.M{"$gt": now},
		},
		bson.M{
			"$unset": bson.M{"reset_token_hash": "", "reset_token_expires": ""},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&acct)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, authcore.ErrTokenNotFound
		}
		return nil, fmt.Errorf("consuming reset token: %w", err)
	}
	return &acct, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.accounts.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("deleting account: %w", err)
	}
	if res.DeletedCount == 0 {
		return authcore.ErrAccountNotFound
	}
	return nil
}
