package auth

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jason-s-yu/aiquiz/internal/apperr"
	"github.com/jason-s-yu/aiquiz/internal/cache"
	"github.com/jason-s-yu/aiquiz/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingVerifier struct {
	calls  int
	claims Claims
	err    error
}

func (v *countingVerifier) Verify(context.Context, string) (Claims, error) {
	v.calls++
	return v.claims, v.err
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) (models.TokenCacheEntry, bool, error) {
	return models.TokenCacheEntry{}, false, errors.New("connection refused")
}

func (brokenCache) Put(context.Context, string, models.TokenCacheEntry) (bool, error) {
	return false, errors.New("connection refused")
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newRedisTokenCache(t *testing.T) *cache.TokenCache {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return cache.NewTokenCache(rdb, "test:token:")
}

func TestGateCachesVerifiedTokens(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	v := &countingVerifier{claims: Claims{PlayerID: "p1", ExpiresAt: exp}}
	gate := NewGate(v, newRedisTokenCache(t), quietLogger())
	ctx := context.Background()

	first, err := gate.ValidateToken(ctx, "token-a")
	require.NoError(t, err)
	assert.Equal(t, "p1", first.PlayerID)

	second, err := gate.ValidateToken(ctx, "token-a")
	require.NoError(t, err)
	assert.Equal(t, "p1", second.PlayerID)
	assert.True(t, exp.Equal(second.ExpiresAt))
	assert.Equal(t, 1, v.calls, "second validation must be served from the cache")

	_, err = gate.ValidateToken(ctx, "token-b")
	require.NoError(t, err)
	assert.Equal(t, 2, v.calls)
}

func TestGateRejectsInvalidTokens(t *testing.T) {
	v := &countingVerifier{err: errors.New("bad signature")}
	gate := NewGate(v, newRedisTokenCache(t), quietLogger())

	_, err := gate.ValidateToken(context.Background(), "token-a")
	assert.True(t, apperr.Is(err, apperr.Unauthorized))

	_, err = gate.ValidateToken(context.Background(), "token-a")
	assert.True(t, apperr.Is(err, apperr.Unauthorized))
	assert.Equal(t, 2, v.calls, "failures are never cached")

	_, err = gate.ValidateToken(context.Background(), "")
	assert.True(t, apperr.Is(err, apperr.Unauthorized))
	assert.Equal(t, 2, v.calls)
}

func TestGateDegradesWhenCacheIsDown(t *testing.T) {
	v := &countingVerifier{claims: Claims{PlayerID: "p1", ExpiresAt: time.Now().Add(time.Hour)}}
	gate := NewGate(v, brokenCache{}, quietLogger())

	for i := 0; i < 2; i++ {
		p, err := gate.ValidateToken(context.Background(), "token-a")
		require.NoError(t, err)
		assert.Equal(t, "p1", p.PlayerID)
	}
	assert.Equal(t, 2, v.calls)
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFrom(context.Background())
	assert.False(t, ok)

	ctx := WithPrincipal(context.Background(), Principal{PlayerID: "p1"})
	p, ok := PrincipalFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "p1", p.PlayerID)
}
