package auth

import (
	"context"
	"time"

	"github.com/jason-s-yu/aiquiz/internal/apperr"
	"github.com/jason-s-yu/aiquiz/internal/models"
	"github.com/sirupsen/logrus"
)

// TokenCache remembers verified tokens by hash until they expire.
type TokenCache interface {
	Get(ctx context.Context, hash string) (models.TokenCacheEntry, bool, error)
	Put(ctx context.Context, hash string, entry models.TokenCacheEntry) (bool, error)
}

// Principal is the authenticated caller of a request.
type Principal struct {
	PlayerID  string
	ExpiresAt time.Time
}

// Gate validates bearer tokens, consulting the cache before the verifier.
type Gate struct {
	verifier Verifier
	cache    TokenCache
	logger   *logrus.Logger
}

func NewGate(verifier Verifier, cache TokenCache, logger *logrus.Logger) *Gate {
	return &Gate{verifier: verifier, cache: cache, logger: logger}
}

// ValidateToken returns the caller behind raw or an Unauthorized error.
// Cache failures are logged and fall back to full verification.
func (g *Gate) ValidateToken(ctx context.Context, raw string) (Principal, error) {
	if raw == "" {
		return Principal{}, apperr.New(apperr.Unauthorized, "missing bearer token")
	}
	hash := HashToken(raw)

	entry, found, err := g.cache.Get(ctx, hash)
	if err != nil {
		g.logger.WithError(err).Warn("token cache read failed")
	} else if found {
		return Principal{PlayerID: entry.PlayerID, ExpiresAt: time.Unix(entry.ExpirationEpoch, 0)}, nil
	}

	claims, err := g.verifier.Verify(ctx, raw)
	if err != nil {
		return Principal{}, apperr.Wrap(apperr.Unauthorized, "invalid bearer token", err)
	}

	entry = models.TokenCacheEntry{PlayerID: claims.PlayerID, ExpirationEpoch: claims.ExpiresAt.Unix()}
	if _, err := g.cache.Put(ctx, hash, entry); err != nil {
		g.logger.WithError(err).Warn("token cache write failed")
	}
	return Principal(claims), nil
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored by WithPrincipal.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
