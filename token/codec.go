// Package token implements the stateless signed access token codec.
// Tokens are HS256 JWTs carrying only the account ID; all session state
// is derived from the claims plus the account record at check time.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrExpired is returned for a well-formed token past its expiry.
	ErrExpired = errors.New("token expired")
	// ErrMalformed covers everything else: garbage input, bad signature,
	// wrong algorithm, missing subject.
	ErrMalformed = errors.New("token malformed")
)

// Config tunes the codec.
type Config struct {
	// Secret is the HMAC signing key. Required, at least 32 bytes.
	Secret []byte
	// TTL is the token lifetime.
	TTL time.Duration
	// Issuer is stamped into and verified against the iss claim when set.
	Issuer string
}

// Codec issues and validates access tokens. Safe for concurrent use.
type Codec struct {
	config Config
}

// Claims is the validated content of an access token.
type Claims struct {
	AccountID string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type accessClaims struct {
	jwt.RegisteredClaims
}

// NewCodec validates cfg and returns a Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("token secret must be at least 32 bytes")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("token ttl must be > 0")
	}
	cfg.Secret = append([]byte(nil), cfg.Secret...)

	return &Codec{config: cfg}, nil
}

// Issue signs a token for the account. The iat claim is the issue
// instant; stale-session checks compare it against the account's
// password change time at second granularity.
func (c *Codec) Issue(accountID string) (string, error) {
	if accountID == "" {
		return "", errors.New("empty account id")
	}

	now := time.Now()
	claims := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.config.TTL)),
			Issuer:    c.config.Issuer,
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(c.config.Secret)
}

// Validate parses and verifies a token. Expiry is reported as
// [ErrExpired]; every other failure collapses into [ErrMalformed] so
// callers cannot distinguish forged from merely broken input.
func (c *Codec) Validate(raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrMalformed
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
	}
	if c.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	tok, err := parser.ParseWithClaims(raw, &accessClaims{}, func(t *jwt.Token) (interface{}, error) {
		return c.config.Secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrMalformed
	}

	claims, ok := tok.Claims.(*accessClaims)
	if !ok || !tok.Valid || claims.Subject == "" || claims.IssuedAt == nil {
		return nil, ErrMalformed
	}

	out := &Claims{
		AccountID: claims.Subject,
		IssuedAt:  claims.IssuedAt.Time,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
