package authsession

import (
	"errors"
	"time"
)

// Config defines the session manager configuration.
//
// Config instances are intended to be set up during initialization and then
// treated as immutable unless documented otherwise.
type Config struct {
	Identity IdentityConfig
	Token    TokenConfig
	Store    StoreConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
IDENTITY CONFIG
====================================
*/

// IdentityConfig configures the remote identity endpoint used by the
// startup refresh. An empty BaseURL disables the refresh entirely; the
// locally cached user then remains authoritative.
type IdentityConfig struct {
	BaseURL string
	Timeout time.Duration
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig configures the session bundle issuer. The secret signs the
// derived bearer token embedded in [Session]; it is a demo-grade signing
// key, not a server-enforced credential, and must be injected rather than
// hardcoded.
type TokenConfig struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
}

/*
====================================
STORE CONFIG
====================================
*/

// StoreConfig configures the persistent key-value store. Prefix namespaces
// the reserved keys when the redis-backed store is used.
type StoreConfig struct {
	Prefix string
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig configures the buffered audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig configures the in-process counters. When Enabled is false,
// all metric operations are no-ops.
type MetricsConfig struct {
	Enabled bool
}

func defaultConfig() Config {
	return Config{
		Identity: IdentityConfig{
			Timeout: 10 * time.Second,
		},
		Token: TokenConfig{
			TTL:    3600 * time.Second,
			Issuer: "authsession",
		},
		Store: StoreConfig{
			Prefix: "authsession",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 64,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.Secret = cloneBytes(cfg.Token.Secret)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate checks the configuration for internally inconsistent or unusable
// values. It is called by [Builder.Build].
func (c Config) Validate() error {
	if len(c.Token.Secret) == 0 {
		return errors.New("token secret required")
	}
	if c.Token.TTL <= 0 {
		return errors.New("token TTL must be positive")
	}
	if c.Identity.Timeout < 0 {
		return errors.New("identity timeout must not be negative")
	}
	if c.Audit.Enabled && c.Audit.BufferSize < 0 {
		return errors.New("audit buffer size must not be negative")
	}
	return nil
}
