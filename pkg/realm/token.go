package realm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidSecretLength is returned for HMAC secrets under 32 bytes.
var ErrInvalidSecretLength = errors.New("token secret must be at least 32 characters")

// TokenConfig configures a TokenRealm.
type TokenConfig struct {
	// Secret is the HMAC signing key. Must be at least 32 characters.
	Secret string `mapstructure:"secret" yaml:"secret" validate:"required,min=32"`

	// Issuer is the expected iss claim. Default: "saslgate"
	Issuer string `mapstructure:"issuer" yaml:"issuer,omitempty"`

	// Audience, when set, must appear in the aud claim.
	Audience string `mapstructure:"audience" yaml:"audience,omitempty"`

	// TTL is the lifetime of issued tokens. Default: 1 hour.
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl,omitempty"`

	// Leeway tolerates clock skew when checking exp and nbf.
	Leeway time.Duration `mapstructure:"leeway" yaml:"leeway,omitempty"`
}

// TokenClaims are the claims of a bearer token.
type TokenClaims struct {
	jwt.RegisteredClaims

	// Scope is a space separated list of granted scopes.
	Scope string `json:"scope,omitempty"`
}

// TokenRealm issues and verifies HS256 bearer tokens for OAUTHBEARER.
type TokenRealm struct {
	config TokenConfig
	parser *jwt.Parser
}

// NewTokenRealm validates config and applies defaults.
func NewTokenRealm(config TokenConfig) (*TokenRealm, error) {
	if len(config.Secret) < 32 {
		return nil, ErrInvalidSecretLength
	}
	if config.Issuer == "" {
		config.Issuer = "saslgate"
	}
	if config.TTL == 0 {
		config.TTL = time.Hour
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(config.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(config.Leeway),
	}
	if config.Audience != "" {
		opts = append(opts, jwt.WithAudience(config.Audience))
	}
	return &TokenRealm{config: config, parser: jwt.NewParser(opts...)}, nil
}

// Issue signs a token for subject.
func (r *TokenRealm) Issue(subject, scope string) (string, error) {
	now := time.Now()
	claims := &TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    r.config.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(r.config.TTL)),
		},
		Scope: scope,
	}
	if r.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{r.config.Audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(r.config.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (r *TokenRealm) VerifyToken(_ context.Context, token string) (string, error) {
	parsed, err := r.parser.ParseWithClaims(token, &TokenClaims{}, func(*jwt.Token) (any, error) {
		return []byte(r.config.Secret), nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*TokenClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}
