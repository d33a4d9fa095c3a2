package config

import (
	"testing"
	"time"

	"github.com/debtbook/backend/internal/reporting"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViper_Defaults(t *testing.T) {
	viper.Reset()
	viper.Set("jwt.secret_key", "test-secret")

	cfg, err := FromViper()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, reporting.SignedDays, cfg.DayPolicy)
	assert.Equal(t, 6, cfg.OTP.CodeLength)
	assert.Equal(t, 8*time.Minute, cfg.OTP.CodeTimeout)
	assert.Equal(t, "register:", cfg.OTP.RegisterPrefix)
	assert.Equal(t, uint32(32), cfg.Argon2.KeyLength)
	assert.Equal(t, uint8(4), cfg.Argon2.Threads)
	assert.True(t, cfg.MigrationsOn)
}

func TestFromViper_Overrides(t *testing.T) {
	viper.Reset()
	viper.Set("jwt.secret_key", "test-secret")
	viper.Set("jwt.expiry_hours", 2)
	viper.Set("reporting.days_until_due_policy", "clamp_to_zero")
	viper.Set("otp.ttl", "5m")
	viper.Set("smtp.host", "smtp.example.com")

	cfg, err := FromViper()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Hour, cfg.JWTExpiry)
	assert.Equal(t, reporting.ClampToZero, cfg.DayPolicy)
	assert.Equal(t, 5*time.Minute, cfg.OTP.CodeTimeout)
	assert.Equal(t, "smtp.example.com", cfg.SMTP.Host)
	assert.Equal(t, 587, cfg.SMTP.Port)
}

func TestFromViper_Invalid(t *testing.T) {
	t.Run("missing secret", func(t *testing.T) {
		viper.Reset()
		_, err := FromViper()
		assert.ErrorContains(t, err, "JWT_SECRET_KEY")
	})

	t.Run("unknown policy", func(t *testing.T) {
		viper.Reset()
		viper.Set("jwt.secret_key", "s")
		viper.Set("reporting.days_until_due_policy", "round")
		_, err := FromViper()
		assert.Error(t, err)
	})

	t.Run("otp length", func(t *testing.T) {
		viper.Reset()
		viper.Set("jwt.secret_key", "s")
		viper.Set("otp.length", 2)
		_, err := FromViper()
		assert.ErrorContains(t, err, "OTP_LENGTH")
	})
}
