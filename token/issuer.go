package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Config configures the issuer. Secret and TTL are required.
type Config struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
}

// UserClaims is the minimal user snapshot bound into an issued bundle.
type UserClaims struct {
	ID        string
	Email     string
	Role      string
	Metadata  map[string]any
	CreatedAt string
}

// Claims is the JWT claim set carried by issued tokens.
type Claims struct {
	Email     string         `json:"email,omitempty"`
	Role      string         `json:"role,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt string         `json:"created_at,omitempty"`
	jwt.RegisteredClaims
}

// Bundle is the result of a single issuance: the signed token plus its
// advisory validity window in epoch seconds.
type Bundle struct {
	AccessToken string
	TokenType   string
	IssuedAt    int64
	ExpiresAt   int64
}

// Issuer signs session bundles with a symmetric secret.
//
// Issuer instances are intended to be configured during initialization and
// then treated as immutable.
type Issuer struct {
	config Config
}

// NewIssuer validates the configuration and returns an issuer.
func NewIssuer(cfg Config) (*Issuer, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("signing secret required")
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	return &Issuer{config: cfg}, nil
}

// Issue signs a bundle bound to the given user snapshot. The validity
// window is TTL from now.
func (i *Issuer) Issue(user UserClaims) (Bundle, error) {
	now := time.Now()
	expiry := now.Add(i.config.TTL)

	claims := Claims{
		Email:     user.Email,
		Role:      user.Role,
		Metadata:  user.Metadata,
		CreatedAt: user.CreatedAt,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    i.config.Issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.config.Secret)
	if err != nil {
		return Bundle{}, fmt.Errorf("sign session token: %w", err)
	}

	return Bundle{
		AccessToken: signed,
		TokenType:   "Bearer",
		IssuedAt:    now.Unix(),
		ExpiresAt:   expiry.Unix(),
	}, nil
}

// Parse verifies the signature and expiry of an issued token and returns
// its claims. Intended for tests and diagnostics; nothing in the manager's
// hot path depends on it.
func (i *Issuer) Parse(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return i.config.Secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("parse session token: %w", err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid session token")
	}
	return claims, nil
}
