package jwt_test

import (
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stox_auth/internal/config"
	"stox_auth/internal/lib/jwt"
	"stox_auth/internal/models"
)

func testJWTConfig() config.JWT {
	return config.JWT{
		Secret:         "test-secret",
		Issuer:         "stox-auth",
		Audience:       "stox-frontend",
		AccessTokenTTL: time.Hour,
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	cfg := testJWTConfig()

	user := models.User{
		ID:    42,
		Email: "owner@example.com",
	}

	tokenStr, err := jwt.NewAccessToken(cfg, user, "Admin")
	require.NoError(t, err)
	require.NotEmpty(t, tokenStr)

	claims, err := jwt.ParseAccessToken(tokenStr, cfg)
	require.NoError(t, err)

	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "owner@example.com", claims.Email)
	assert.Equal(t, "Admin", claims.Role)
	assert.WithinDuration(t, time.Now(), claims.IssuedAt, 5*time.Second)
}

func TestAccessTokenClaimsShape(t *testing.T) {
	cfg := testJWTConfig()

	tokenStr, err := jwt.NewAccessToken(cfg, models.User{ID: 7, Email: "a@b.c"}, "User")
	require.NoError(t, err)

	parsed, _, err := gojwt.NewParser().ParseUnverified(tokenStr, gojwt.MapClaims{})
	require.NoError(t, err)

	claims := parsed.Claims.(gojwt.MapClaims)

	assert.Equal(t, "a@b.c", claims["sub"])
	assert.Equal(t, "7", claims["userId"], "userId must be a string, not a number")
	assert.Equal(t, "User", claims["role"])
	assert.Equal(t, "stox-auth", claims["iss"])
	assert.Equal(t, "stox-frontend", claims["aud"])

	iat, ok := claims["iat"].(float64)
	require.True(t, ok)
	exp, ok := claims["exp"].(float64)
	require.True(t, ok)
	assert.InDelta(t, time.Hour.Seconds(), exp-iat, 2)
}

func TestParseAccessTokenWrongSecret(t *testing.T) {
	cfg := testJWTConfig()

	tokenStr, err := jwt.NewAccessToken(cfg, models.User{ID: 1, Email: "a@b.c"}, "User")
	require.NoError(t, err)

	badCfg := cfg
	badCfg.Secret = "other-secret"

	_, err = jwt.ParseAccessToken(tokenStr, badCfg)
	assert.Error(t, err)
}

func TestParseAccessTokenExpired(t *testing.T) {
	cfg := testJWTConfig()
	cfg.AccessTokenTTL = -time.Minute

	tokenStr, err := jwt.NewAccessToken(cfg, models.User{ID: 1, Email: "a@b.c"}, "User")
	require.NoError(t, err)

	_, err = jwt.ParseAccessToken(tokenStr, cfg)
	assert.Error(t, err)
}

func TestParseAccessTokenWrongIssuer(t *testing.T) {
	cfg := testJWTConfig()

	tokenStr, err := jwt.NewAccessToken(cfg, models.User{ID: 1, Email: "a@b.c"}, "User")
	require.NoError(t, err)

	badCfg := cfg
	badCfg.Issuer = "someone-else"

	_, err = jwt.ParseAccessToken(tokenStr, badCfg)
	assert.Error(t, err)
}

func TestNewOpaqueToken(t *testing.T) {
	seen := make(map[string]struct{})

	for i := 0; i < 100; i++ {
		token, err := jwt.NewOpaqueToken()
		require.NoError(t, err)

		// 64 random bytes base64-encode to 88 characters.
		assert.Len(t, token, 88)

		_, dup := seen[token]
		assert.False(t, dup, "opaque tokens must not repeat")
		seen[token] = struct{}{}
	}
}
