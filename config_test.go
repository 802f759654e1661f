package authsession

import (
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults with secret",
			mutate:    func(c *Config) {},
			wantValid: true,
		},
		{
			name: "missing secret",
			mutate: func(c *Config) {
				c.Token.Secret = nil
			},
			wantValid: false,
		},
		{
			name: "zero ttl",
			mutate: func(c *Config) {
				c.Token.TTL = 0
			},
			wantValid: false,
		},
		{
			name: "negative ttl",
			mutate: func(c *Config) {
				c.Token.TTL = -time.Second
			},
			wantValid: false,
		},
		{
			name: "negative identity timeout",
			mutate: func(c *Config) {
				c.Identity.Timeout = -time.Second
			},
			wantValid: false,
		},
		{
			name: "negative audit buffer",
			mutate: func(c *Config) {
				c.Audit.BufferSize = -1
			},
			wantValid: false,
		},
		{
			name: "negative audit buffer with audit disabled",
			mutate: func(c *Config) {
				c.Audit.Enabled = false
				c.Audit.BufferSize = -1
			},
			wantValid: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected invalid config, got nil")
			}
		})
	}
}

func TestCloneConfigDetachesSecret(t *testing.T) {
	cfg := testConfig()
	cp := cloneConfig(cfg)

	cp.Token.Secret[0] ^= 0xff
	if cfg.Token.Secret[0] == cp.Token.Secret[0] {
		t.Fatal("clone must not alias the secret")
	}
}
