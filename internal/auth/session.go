// internal/auth/session.go
package auth

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jason-s-yu/aiquiz/internal/config"
	"golang.org/x/crypto/blake2b"
)

// Claims is what a verified token tells us about its bearer.
type Claims struct {
	PlayerID  string
	ExpiresAt time.Time
}

// Verifier checks a raw bearer token's signature, issuer, audience and expiry.
type Verifier interface {
	Verify(ctx context.Context, raw string) (Claims, error)
}

type tokenClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier validates tokens issued by the configured identity provider.
type JWTVerifier struct {
	key    interface{}
	parser *jwt.Parser
}

// NewJWTVerifier builds a verifier from an HMAC secret or a PEM public key file.
func NewJWTVerifier(cfg config.AuthConfig) (*JWTVerifier, error) {
	var (
		key     interface{}
		methods []string
	)
	if cfg.HMACSecret != "" {
		key = []byte(cfg.HMACSecret)
		methods = []string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}
	} else {
		pemData, err := os.ReadFile(cfg.PublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read public key file: %w", err)
		}
		key, methods, err = parsePublicKey(pemData)
		if err != nil {
			return nil, err
		}
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods(methods),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithAudience(cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	)
	return &JWTVerifier{key: key, parser: parser}, nil
}

func parsePublicKey(pemData []byte) (interface{}, []string, error) {
	if k, err := jwt.ParseRSAPublicKeyFromPEM(pemData); err == nil {
		return k, []string{"RS256", "RS384", "RS512", "PS256", "PS384", "PS512"}, nil
	}
	if k, err := jwt.ParseECPublicKeyFromPEM(pemData); err == nil {
		return k, []string{"ES256", "ES384", "ES512"}, nil
	}
	if k, err := jwt.ParseEdPublicKeyFromPEM(pemData); err == nil {
		return k, []string{jwt.SigningMethodEdDSA.Alg()}, nil
	}
	return nil, nil, errors.New("public key file holds no RSA, ECDSA or Ed25519 key")
}

// Verify parses and validates raw, returning the bearer's player id and token expiry.
func (v *JWTVerifier) Verify(_ context.Context, raw string) (Claims, error) {
	var claims tokenClaims
	t, err := v.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return v.key, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return Claims{}, errors.New("invalid token")
	}

	identity := strings.ToLower(strings.TrimSpace(claims.Email))
	if identity == "" {
		identity = claims.Subject
	}
	if identity == "" {
		return Claims{}, errors.New("token carries neither email nor sub")
	}
	return Claims{
		PlayerID:  PlayerIDFor(identity),
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// PlayerIDFor derives the stable, opaque player id for an identity claim.
func PlayerIDFor(identity string) string {
	sum := blake2b.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:])
}

// HashToken is the cache key for a raw token. Raw tokens are never stored.
func HashToken(raw string) string {
	sum := blake2b.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
