package config

import (
	"time"

	"github.com/spf13/viper"
)

type OTPConfig struct {
	CodeLength     int
	CodeTimeout    time.Duration
	RegisterPrefix string
	MailSubject    string
	ResendCooldown time.Duration
}

func LoadOTPConfig() *OTPConfig {
	viper.SetDefault("otp.length", 6)
	viper.SetDefault("otp.ttl", 8*time.Minute)
	viper.SetDefault("otp.register_prefix", "register:")
	viper.SetDefault("otp.mail_subject", "Your registration code")
	viper.SetDefault("otp.resend_cooldown", 30*time.Second)

	return &OTPConfig{
		CodeLength:     viper.GetInt("otp.length"),
		CodeTimeout:    viper.GetDuration("otp.ttl"),
		RegisterPrefix: viper.GetString("otp.register_prefix"),
		MailSubject:    viper.GetString("otp.mail_subject"),
		ResendCooldown: viper.GetDuration("otp.resend_cooldown"),
	}
}
