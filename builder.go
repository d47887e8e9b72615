package goGuard

import (
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/goGuard/internal/audit"
	"github.com/MrEthical07/goGuard/internal/limiters"
	"github.com/MrEthical07/goGuard/internal/stores"
	"github.com/MrEthical07/goGuard/totp"
	"github.com/redis/go-redis/v9"
)

// Builder collects engine dependencies. Build validates them and returns a
// ready Engine; a Builder must not be reused after Build.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	credentials CredentialStore
	admin       AccountAdminStore
	catalog     ConfigCatalog
	cipher      SecretCipher
	auditSink   AuditSink
	logger      *slog.Logger
	clock       func() time.Time

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole policy. The Config is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client for challenges, enrollments, device trust, the
// replay counter and the attempt limiters. It is required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore sets the durable user store. It is required. A store
// that also implements LockoutStore keeps failure counts next to the user.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.credentials = store
	return b
}

// WithAdminStore enables LockUser, AssignRole and RemoveRole.
func (b *Builder) WithAdminStore(store AccountAdminStore) *Builder {
	b.admin = store
	return b
}

// WithConfigCatalog enables Reveal and ListConfiguration.
func (b *Builder) WithConfigCatalog(catalog ConfigCatalog) *Builder {
	b.catalog = catalog
	return b
}

// WithCipher sets the cipher that seals TOTP secrets and opens enc: catalog
// values. It is required.
func (b *Builder) WithCipher(cipher SecretCipher) *Builder {
	b.cipher = cipher
	return b
}

// WithAuditSink sets the audit destination. Events are only dispatched when
// Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine logger. Codes, secrets and tokens are never
// logged.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock replaces time.Now. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms records login latency buckets. It has no effect
// unless metrics are enabled.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine. A Builder can be
// built once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.credentials == nil {
		return nil, errors.New("credential store required")
	}
	if b.cipher == nil {
		return nil, errors.New("secret cipher required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	prefix := cfg.Redis.KeyPrefix
	engine := &Engine{
		config:      cfg,
		logger:      logger,
		clock:       clock,
		credentials: b.credentials,
		admin:       b.admin,
		catalog:     b.catalog,
		cipher:      b.cipher,
		totp: totp.New(totp.Config{
			Issuer:     cfg.TOTP.Issuer,
			Period:     uint(cfg.TOTP.Period / time.Second),
			Skew:       cfg.TOTP.Skew,
			SecretSize: uint(cfg.TOTP.SecretSize),
		}),
		challenges:  stores.NewChallengeStore(b.redis, prefix+"gtc"),
		enrollments: stores.NewEnrollmentStore(b.redis, prefix+"gte"),
		replay:      stores.NewReplayGuard(b.redis, prefix+"gtr"),
		devices:     stores.NewDeviceTrustStore(b.redis, prefix+"gdt"),
		revealLimiter: limiters.NewAttemptLimiter(b.redis, limiters.AttemptConfig{
			Prefix:      prefix + "grv",
			MaxAttempts: cfg.Reveal.MaxAttempts,
			Window:      cfg.Reveal.Cooldown,
		}),
		setupLimiter: limiters.NewAttemptLimiter(b.redis, limiters.AttemptConfig{
			Prefix:      prefix + "gts",
			MaxAttempts: cfg.TOTP.SetupMaxAttempts,
			Window:      cfg.TOTP.SetupCooldown,
		}),
		metrics: NewMetrics(cfg.Metrics),
	}

	if ls, ok := b.credentials.(LockoutStore); ok {
		engine.lockout = storeLockout{store: ls, threshold: cfg.Lockout.Threshold, duration: cfg.Lockout.Duration}
		logger.Debug("lockout counters kept by credential store")
	} else {
		engine.lockout = redisLockout{limiter: limiters.NewLockoutLimiter(b.redis, limiters.LockoutConfig{
			Prefix:    prefix + "glo",
			Threshold: cfg.Lockout.Threshold,
			Duration:  cfg.Lockout.Duration,
		})}
		logger.Debug("lockout counters kept in redis")
	}

	if cfg.Audit.Enabled {
		engine.audit = audit.NewDispatcher(audit.Config{
			Enabled:    true,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink)
	}

	engine.deps = engine.buildDeps()

	b.built = true

	return engine, nil
}
