package authsession

import (
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/shootbase/authsession/identity"
	"github.com/shootbase/authsession/store"
	"github.com/shootbase/authsession/token"
)

// Builder assembles a [Manager]. One builder builds one manager; reuse
// returns [ErrBuilderUsed].
type Builder struct {
	config Config
	redis  *redis.Client
	store  store.Store

	identityClient IdentityClient
	auditSink      Sink
	logger         zerolog.Logger
	loggerSet      bool

	built bool
}

// New returns a builder seeded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the entire configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis supplies a redis client for the persistent key-value store.
// The reserved keys are namespaced under Config.Store.Prefix.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithStore supplies a custom backing store. When set, it takes precedence
// over a redis client.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithIdentityClient supplies a custom identity endpoint client. When unset
// and Config.Identity.BaseURL is non-empty, an [identity.Client] is
// constructed at Build time.
func (b *Builder) WithIdentityClient(c IdentityClient) *Builder {
	b.identityClient = c
	return b
}

// WithAuditSink supplies the sink receiving audit events. Defaults to
// [NoOpSink] when auditing is enabled without a sink.
func (b *Builder) WithAuditSink(sink Sink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger supplies the structured logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	b.loggerSet = true
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, wires the collaborators, and returns
// the manager. The manager starts in the loading state; call
// [Manager.Start] to adopt persisted credentials and kick off the
// background refresh.
func (b *Builder) Build() (*Manager, error) {
	if b.built {
		return nil, ErrBuilderUsed
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	backing := b.store
	if backing == nil {
		if b.redis == nil {
			return nil, ErrStoreRequired
		}
		backing = store.NewRedisStore(b.redis, cfg.Store.Prefix)
	}

	issuer, err := token.NewIssuer(token.Config{
		Secret: cfg.Token.Secret,
		TTL:    cfg.Token.TTL,
		Issuer: cfg.Token.Issuer,
	})
	if err != nil {
		return nil, err
	}

	logger := zerolog.Nop()
	if b.loggerSet {
		logger = b.logger
	}

	idc := b.identityClient
	if idc == nil && cfg.Identity.BaseURL != "" {
		idc = identity.NewClient(identity.Config{
			BaseURL: cfg.Identity.BaseURL,
			Timeout: cfg.Identity.Timeout,
			Logger:  logger,
		})
	}

	m := &Manager{
		config:      cfg,
		store:       backing,
		issuer:      issuer,
		identity:    idc,
		audit:       newAuditDispatcher(cfg.Audit, b.auditSink),
		metrics:     NewMetrics(cfg.Metrics),
		logger:      logger,
		loading:     true,
		subscribers: make(map[int]chan State),
	}

	b.built = true

	return m, nil
}
