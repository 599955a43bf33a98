// Package token resolves opaque bearer tokens into calendar identities.
//
// Tokens are EdDSA-signed JWTs minted by the account system. Resolution is a
// terminal step: a token that fails to resolve yields an unauthorized error
// and the caller must not retry with the same credential.
package token

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/mirakulix/play-together-api/internal/platform/errors"
)

// resolverEnv holds raw env values before post-parse validation.
type resolverEnv struct {
	Issuer    string `env:"PLAY_TOGETHER_TOKEN_ISSUER"`
	Audience  string `env:"PLAY_TOGETHER_TOKEN_AUDIENCE"`
	PublicKey string `env:"PLAY_TOGETHER_TOKEN_PUBLIC_KEY"`
}

// Config defines how bearer tokens are verified.
type Config struct {
	Issuer   string
	Audience string
	Key      ed25519.PublicKey
	Now      func() time.Time
}

// Identity is a resolved caller.
type Identity struct {
	UserID string
}

// accessClaims is the internal claims type used for JWT parsing.
type accessClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
}

// Resolver verifies bearer tokens against a fixed verification config.
type Resolver struct {
	cfg Config
}

// LoadConfigFromEnv reads token verification configuration.
func LoadConfigFromEnv(now func() time.Time) (Config, error) {
	var raw resolverEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parse token env: %w", err)
	}
	issuer := strings.TrimSpace(raw.Issuer)
	audience := strings.TrimSpace(raw.Audience)
	publicKey := strings.TrimSpace(raw.PublicKey)
	if issuer == "" {
		return Config{}, fmt.Errorf("PLAY_TOGETHER_TOKEN_ISSUER is required")
	}
	if audience == "" {
		return Config{}, fmt.Errorf("PLAY_TOGETHER_TOKEN_AUDIENCE is required")
	}
	if publicKey == "" {
		return Config{}, fmt.Errorf("PLAY_TOGETHER_TOKEN_PUBLIC_KEY is required")
	}
	keyBytes, err := decodeBase64(publicKey)
	if err != nil {
		return Config{}, fmt.Errorf("decode token public key: %w", err)
	}
	if len(keyBytes) != ed25519.PublicKeySize {
		return Config{}, fmt.Errorf("token public key must be %d bytes", ed25519.PublicKeySize)
	}
	if now == nil {
		now = time.Now
	}
	return Config{
		Issuer:   issuer,
		Audience: audience,
		Key:      ed25519.PublicKey(keyBytes),
		Now:      now,
	}, nil
}

// NewResolver builds a resolver from a verification config.
func NewResolver(cfg Config) (*Resolver, error) {
	if strings.TrimSpace(cfg.Issuer) == "" || strings.TrimSpace(cfg.Audience) == "" {
		return nil, errors.New("token issuer and audience are required")
	}
	if len(cfg.Key) != ed25519.PublicKeySize {
		return nil, errors.New("token public key is not configured")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Resolver{cfg: cfg}, nil
}

// Resolve verifies a bearer token and returns the caller identity. Any
// failure maps to an unauthorized error; callers treat it as terminal for
// the credential presented.
func (r *Resolver) Resolve(tokenString string) (Identity, error) {
	if r == nil {
		return Identity{}, errors.New("token resolver is not configured")
	}
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return Identity{}, apperrors.New(apperrors.CodeUnauthorized, "access token is required")
	}

	var parsed accessClaims
	_, err := jwt.ParseWithClaims(tokenString, &parsed, func(token *jwt.Token) (any, error) {
		return r.cfg.Key, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Identity{}, mapJWTError(err)
	}

	if parsed.Issuer == "" || parsed.Issuer != r.cfg.Issuer {
		return Identity{}, apperrors.New(apperrors.CodeUnauthorized, "access token issuer mismatch")
	}
	if !audienceContains(parsed.Audience, r.cfg.Audience) {
		return Identity{}, apperrors.New(apperrors.CodeUnauthorized, "access token audience mismatch")
	}
	if parsed.ExpiresAt == nil {
		return Identity{}, apperrors.New(apperrors.CodeUnauthorized, "access token exp is required")
	}

	now := r.cfg.Now().UTC()
	if !parsed.ExpiresAt.Time.UTC().After(now) {
		return Identity{}, apperrors.New(apperrors.CodeUnauthorized, "access token is expired")
	}
	if parsed.NotBefore != nil && now.Before(parsed.NotBefore.Time.UTC()) {
		return Identity{}, apperrors.New(apperrors.CodeUnauthorized, "access token not active yet")
	}

	userID := strings.TrimSpace(parsed.UserID)
	if userID == "" {
		userID = strings.TrimSpace(parsed.Subject)
	}
	if userID == "" {
		return Identity{}, apperrors.New(apperrors.CodeUnauthorized, "access token carries no user")
	}
	return Identity{UserID: userID}, nil
}

func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrEd25519Verification) {
		return apperrors.New(apperrors.CodeUnauthorized, "access token signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodeUnauthorized, "access token alg is invalid")
	}
	return apperrors.New(apperrors.CodeUnauthorized, "access token is invalid")
}

// audienceContains reports whether the audience list contains the given value.
func audienceContains(aud jwt.ClaimStrings, value string) bool {
	for _, item := range aud {
		if item == value {
			return true
		}
	}
	return false
}

func decodeBase64(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("empty base64 value")
	}
	decoded, err := base64.RawStdEncoding.DecodeString(value)
	if err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(value)
}
