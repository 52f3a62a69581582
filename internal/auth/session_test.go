package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jason-s-yu/aiquiz/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-test-secret-test-secret"

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		Issuer:     "https://issuer.example",
		Audience:   "aiquiz",
		HMACSecret: testSecret,
		Leeway:     time.Second,
	}
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":   "https://issuer.example",
		"aud":   "aiquiz",
		"sub":   "user-1",
		"email": "Player@Example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
}

func TestJWTVerifierAcceptsValidToken(t *testing.T) {
	v, err := NewJWTVerifier(testAuthConfig())
	require.NoError(t, err)

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	claims := validClaims()
	claims["exp"] = exp.Unix()

	got, err := v.Verify(context.Background(), signToken(t, claims))
	require.NoError(t, err)
	assert.Equal(t, PlayerIDFor("player@example.com"), got.PlayerID)
	assert.True(t, exp.Equal(got.ExpiresAt))
}

func TestJWTVerifierFallsBackToSubject(t *testing.T) {
	v, err := NewJWTVerifier(testAuthConfig())
	require.NoError(t, err)

	claims := validClaims()
	delete(claims, "email")
	got, err := v.Verify(context.Background(), signToken(t, claims))
	require.NoError(t, err)
	assert.Equal(t, PlayerIDFor("user-1"), got.PlayerID)
}

func TestJWTVerifierRejects(t *testing.T) {
	v, err := NewJWTVerifier(testAuthConfig())
	require.NoError(t, err)

	cases := map[string]func(jwt.MapClaims){
		"wrong issuer":   func(c jwt.MapClaims) { c["iss"] = "https://other.example" },
		"wrong audience": func(c jwt.MapClaims) { c["aud"] = "someone-else" },
		"expired":        func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() },
		"no expiry":      func(c jwt.MapClaims) { delete(c, "exp") },
		"no identity":    func(c jwt.MapClaims) { delete(c, "email"); delete(c, "sub") },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			claims := validClaims()
			mutate(claims)
			_, err := v.Verify(context.Background(), signToken(t, claims))
			assert.Error(t, err)
		})
	}

	t.Run("bad signature", func(t *testing.T) {
		s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims()).SignedString([]byte("another-secret"))
		require.NoError(t, err)
		_, err = v.Verify(context.Background(), s)
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := v.Verify(context.Background(), "not-a-jwt")
		assert.Error(t, err)
	})
}

func TestHashTokenIsStable(t *testing.T) {
	assert.Equal(t, HashToken("abc"), HashToken("abc"))
	assert.NotEqual(t, HashToken("abc"), HashToken("abd"))
	assert.Len(t, HashToken("abc"), 64)
}
