package authcore

import (
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tunevault/authcore/internal/rate"
	"github.com/tunevault/authcore/password"
	"github.com/tunevault/authcore/token"
)

// Builder assembles an [Engine]. A builder is single-use.
type Builder struct {
	config    Config
	store     AccountStore
	mailer    Mailer
	redis     *redis.Client
	logger    *zerolog.Logger
	auditSink AuditSink

	built bool
}

// New returns a Builder seeded with defaults: 30-day tokens, argon2id at
// 64 MB / t=3 / p=2, five attempts then a 30-minute lock, 24-hour
// verification and 10-minute reset tokens.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the default configuration wholesale.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the account store. Required.
func (b *Builder) WithStore(store AccountStore) *Builder {
	b.store = store
	return b
}

// WithMailer sets the outbound message dispatcher. When absent,
// verification and reset tokens are still minted and stored but nothing
// is dispatched.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithRedis enables the distributed login and reset throttles. Optional;
// without it the engine relies on the lockout counters alone.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = &logger
	return b
}

// WithAuditSink sets the audit event receiver. Only consulted when
// Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// Build validates the configuration, wires the subsystems, and returns
// the engine. Call [Engine.Close] to drain the audit dispatcher on
// shutdown.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.store == nil {
		return nil, errors.New("account store required")
	}

	logger := zerolog.Nop()
	if b.logger != nil {
		logger = *b.logger
	}

	engine := &Engine{
		config: cfg,
		store:  b.store,
		mailer: b.mailer,
		logger: logger,
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
		MinLength:   cfg.Password.MinLength,
	})
	if err != nil {
		return nil, err
	}
	engine.hasher = hasher

	codec, err := token.NewCodec(token.Config{
		Secret: cloneBytes(cfg.Token.Secret),
		TTL:    cfg.Token.TTL,
		Issuer: cfg.Token.Issuer,
	})
	if err != nil {
		return nil, err
	}
	engine.codec = codec

	if b.redis != nil {
		engine.throttle = rate.New(b.redis, rate.Config{
			LoginMaxAttempts: cfg.Throttle.LoginMaxAttempts,
			LoginWindow:      cfg.Throttle.LoginWindow,
			ResetMaxRequests: cfg.Throttle.ResetMaxRequests,
			ResetWindow:      cfg.Throttle.ResetWindow,
		})
	}

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}
