package services

import (
	"testing"
	"time"

	"github.com/chatrasa/chatrasa/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJWTConfig() *config.JWTConfig {
	return &config.JWTConfig{
		SecretKey:      "test-secret-key-for-unit-tests-only",
		AccessTokenTTL: time.Hour,
		Issuer:         "chatrasa-test",
		Audience:       "chatrasa-api",
	}
}

func TestNewTokenService(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		svc, err := NewTokenService(testJWTConfig())
		require.NoError(t, err)
		assert.NotNil(t, svc)
	})

	t.Run("MissingSecret", func(t *testing.T) {
		cfg := testJWTConfig()
		cfg.SecretKey = ""
		svc, err := NewTokenService(cfg)
		assert.Error(t, err)
		assert.Nil(t, svc)
	})
}

func TestTokenServiceGenerateAndValidate(t *testing.T) {
	svc, err := NewTokenService(testJWTConfig())
	require.NoError(t, err)

	token, err := svc.GenerateAPIToken(42)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateAPIToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.VendorID)
	assert.NotEmpty(t, claims.TokenID)
	assert.True(t, claims.ExpiresAt.After(claims.IssuedAt))

	t.Run("UniqueTokenIDs", func(t *testing.T) {
		other, err := svc.GenerateAPIToken(42)
		require.NoError(t, err)
		otherClaims, err := svc.ValidateAPIToken(other)
		require.NoError(t, err)
		assert.NotEqual(t, claims.TokenID, otherClaims.TokenID)
	})
}

func TestTokenServiceValidateErrors(t *testing.T) {
	svc, err := NewTokenService(testJWTConfig())
	require.NoError(t, err)

	t.Run("Garbage", func(t *testing.T) {
		_, err := svc.ValidateAPIToken("not.a.token")
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("Expired", func(t *testing.T) {
		cfg := testJWTConfig()
		cfg.AccessTokenTTL = -time.Hour
		expiredSvc, err := NewTokenService(cfg)
		require.NoError(t, err)

		token, err := expiredSvc.GenerateAPIToken(7)
		require.NoError(t, err)

		_, err = expiredSvc.ValidateAPIToken(token)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		cfg := testJWTConfig()
		cfg.SecretKey = "a-completely-different-secret"
		otherSvc, err := NewTokenService(cfg)
		require.NoError(t, err)

		token, err := otherSvc.GenerateAPIToken(7)
		require.NoError(t, err)

		_, err = svc.ValidateAPIToken(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("WrongSigningMethod", func(t *testing.T) {
		unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
			"vendor_id": 7,
			"jti":       "abc",
			"iat":       time.Now().Unix(),
			"exp":       time.Now().Add(time.Hour).Unix(),
		})
		token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = svc.ValidateAPIToken(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("MissingVendorClaim", func(t *testing.T) {
		signed := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"jti": "abc",
			"iat": time.Now().Unix(),
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		token, err := signed.SignedString([]byte(testJWTConfig().SecretKey))
		require.NoError(t, err)

		_, err = svc.ValidateAPIToken(token)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})
}
