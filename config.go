package authcore

import (
	"errors"
	"time"
)

// Config groups all engine tuning into one explicit object. There is no
// package-level state; everything flows from the value handed to the
// builder. Zero values are filled from defaultConfig by [New].
type Config struct {
	Token        TokenConfig
	Password     PasswordConfig
	Lockout      LockoutConfig
	Verification VerificationConfig
	Reset        ResetConfig
	Throttle     ThrottleConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

// TokenConfig controls the signed access token codec.
type TokenConfig struct {
	// Secret is the HMAC-SHA256 signing key. Required, at least 32 bytes.
	Secret []byte
	// TTL is the token lifetime. Defaults to 30 days.
	TTL time.Duration
	// Issuer is stamped into and checked against the iss claim when set.
	Issuer string
}

// PasswordConfig holds the argon2id parameters and the minimum accepted
// password length in bytes.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
	// UpgradeOnLogin rehashes credentials stored with weaker parameters
	// after a successful verification.
	UpgradeOnLogin bool
}

// LockoutConfig controls the failed-login lockout policy.
type LockoutConfig struct {
	// MaxAttempts is the failure count at which the account locks.
	MaxAttempts int
	// LockDuration is how long the lock holds once set.
	LockDuration time.Duration
}

// VerificationConfig controls email verification challenge tokens.
type VerificationConfig struct {
	TTL time.Duration
}

// ResetConfig controls password reset challenge tokens.
type ResetConfig struct {
	TTL time.Duration
}

// ThrottleConfig tunes the Redis-backed fixed-window throttles. They are
// active only when a Redis client is supplied to the builder.
type ThrottleConfig struct {
	LoginMaxAttempts int
	LoginWindow      time.Duration
	ResetMaxRequests int
	ResetWindow      time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events under backpressure instead of blocking the
	// calling flow. Drops are counted and visible via Engine.AuditDropped.
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns the configuration [New] seeds a builder with.
// Callers that only need to override a few fields start here instead of
// filling every section.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			TTL: 30 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MinLength:      8,
			UpgradeOnLogin: true,
		},
		Lockout: LockoutConfig{
			MaxAttempts:  5,
			LockDuration: 30 * time.Minute,
		},
		Verification: VerificationConfig{
			TTL: 24 * time.Hour,
		},
		Reset: ResetConfig{
			TTL: 10 * time.Minute,
		},
		Throttle: ThrottleConfig{
			LoginMaxAttempts: 10,
			LoginWindow:      15 * time.Minute,
			ResetMaxRequests: 3,
			ResetWindow:      time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.Secret = cloneBytes(cfg.Token.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate checks internal consistency. The builder calls it before
// constructing an engine.
func (c *Config) Validate() error {
	if len(c.Token.Secret) < 32 {
		return errors.New("Token Secret must be at least 32 bytes")
	}
	if c.Token.TTL <= 0 {
		return errors.New("Token TTL must be > 0")
	}

	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 8 {
		return errors.New("Password MinLength must be >= 8")
	}

	if c.Lockout.MaxAttempts <= 0 {
		return errors.New("Lockout MaxAttempts must be > 0")
	}
	if c.Lockout.LockDuration <= 0 {
		return errors.New("Lockout LockDuration must be > 0")
	}

	if c.Verification.TTL <= 0 {
		return errors.New("Verification TTL must be > 0")
	}
	if c.Reset.TTL <= 0 {
		return errors.New("Reset TTL must be > 0")
	}

	if c.Throttle.LoginMaxAttempts < 0 || c.Throttle.ResetMaxRequests < 0 {
		return errors.New("Throttle attempt budgets must be >= 0")
	}
	if c.Throttle.LoginMaxAttempts > 0 && c.Throttle.LoginWindow <= 0 {
		return errors.New("Throttle LoginWindow must be > 0 when login throttling is enabled")
	}
	if c.Throttle.ResetMaxRequests > 0 && c.Throttle.ResetWindow <= 0 {
		return errors.New("Throttle ResetWindow must be > 0 when reset throttling is enabled")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
