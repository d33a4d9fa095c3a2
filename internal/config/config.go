package config

import (
	"fmt"
	"log"
	"time"

	"github.com/debtbook/backend/internal/auth"
	"github.com/debtbook/backend/internal/mailer"
	"github.com/debtbook/backend/internal/reporting"
	"github.com/spf13/viper"
)

type Config struct {
	Port          string
	JWTSecret     string
	JWTExpiry     time.Duration
	Argon2        auth.Argon2Params
	SMTP          mailer.SMTPConfig
	OTP           *OTPConfig
	DayPolicy     reporting.DayPolicy
	SweepInterval time.Duration
	MigrationsOn  bool
}

var envBindings = map[string]string{
	"port": "PORT",

	"database.host":     "DATABASE_HOST",
	"database.port":     "DATABASE_PORT",
	"database.user":     "DATABASE_USER",
	"database.password": "DATABASE_PASSWORD",
	"database.name":     "DATABASE_NAME",
	"database.ssl_mode": "DATABASE_SSL_MODE",
	"database.migrate":  "DATABASE_MIGRATE",

	"redis.host":     "REDIS_HOST",
	"redis.port":     "REDIS_PORT",
	"redis.password": "REDIS_PASSWORD",
	"redis.db":       "REDIS_DB",

	"jwt.secret_key":   "JWT_SECRET_KEY",
	"jwt.expiry_hours": "JWT_EXPIRY_HOURS",

	"argon2.time":        "ARGON2_TIME",
	"argon2.memory":      "ARGON2_MEMORY",
	"argon2.threads":     "ARGON2_THREADS",
	"argon2.key_length":  "ARGON2_KEY_LENGTH",
	"argon2.salt_length": "ARGON2_SALT_LENGTH",

	"smtp.host":     "SMTP_HOST",
	"smtp.port":     "SMTP_PORT",
	"smtp.username": "SMTP_USERNAME",
	"smtp.password": "SMTP_PASSWORD",
	"smtp.from":     "SMTP_FROM",

	"otp.length":          "OTP_LENGTH",
	"otp.ttl":             "OTP_TTL",
	"otp.resend_cooldown": "OTP_RESEND_COOLDOWN",

	"reporting.days_until_due_policy": "DAYS_UNTIL_DUE_POLICY",
	"store.sweep_interval":            "STORE_SWEEP_INTERVAL",
}

// Load reads .env (if present) and the environment into viper and returns
// the typed application settings.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	for key, env := range envBindings {
		if err := viper.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using environment and defaults: %v", err)
	}

	return FromViper()
}

// FromViper builds a Config from values already present in viper.
func FromViper() (*Config, error) {
	setDefaults()

	secret := viper.GetString("jwt.secret_key")
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY is required")
	}

	policy, err := reporting.ParseDayPolicy(viper.GetString("reporting.days_until_due_policy"))
	if err != nil {
		return nil, err
	}

	otp := LoadOTPConfig()
	if otp.CodeLength < 4 || otp.CodeLength > 10 {
		return nil, fmt.Errorf("OTP_LENGTH must be between 4 and 10, got %d", otp.CodeLength)
	}

	return &Config{
		Port:      viper.GetString("port"),
		JWTSecret: secret,
		JWTExpiry: time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour,
		Argon2: auth.Argon2Params{
			Time:       viper.GetUint32("argon2.time"),
			Memory:     viper.GetUint32("argon2.memory"),
			Threads:    uint8(viper.GetUint("argon2.threads")),
			KeyLength:  viper.GetUint32("argon2.key_length"),
			SaltLength: viper.GetUint32("argon2.salt_length"),
		},
		SMTP: mailer.SMTPConfig{
			Host:     viper.GetString("smtp.host"),
			Port:     viper.GetInt("smtp.port"),
			Username: viper.GetString("smtp.username"),
			Password: viper.GetString("smtp.password"),
			From:     viper.GetString("smtp.from"),
		},
		OTP:           otp,
		DayPolicy:     policy,
		SweepInterval: viper.GetDuration("store.sweep_interval"),
		MigrationsOn:  viper.GetBool("database.migrate"),
	}, nil
}

func setDefaults() {
	d := auth.DefaultArgon2Params()

	viper.SetDefault("port", "8080")
	viper.SetDefault("jwt.expiry_hours", 24)
	viper.SetDefault("argon2.time", d.Time)
	viper.SetDefault("argon2.memory", d.Memory)
	viper.SetDefault("argon2.threads", d.Threads)
	viper.SetDefault("argon2.key_length", d.KeyLength)
	viper.SetDefault("argon2.salt_length", d.SaltLength)
	viper.SetDefault("smtp.port", 587)
	viper.SetDefault("smtp.from", "no-reply@debtbook.local")
	viper.SetDefault("reporting.days_until_due_policy", string(reporting.SignedDays))
	viper.SetDefault("store.sweep_interval", time.Minute)
	viper.SetDefault("database.migrate", true)
}
