package config

import (
	"time"

	"github.com/spf13/viper"
)

// AuthConfig carries token and password hashing parameters.
type AuthConfig struct {
	JWTSecret     string
	TokenTTL      time.Duration
	FirstLoginTTL time.Duration
	TempPassword  string

	Argon2Time       uint32
	Argon2Memory     uint32
	Argon2Threads    uint8
	Argon2KeyLength  uint32
	Argon2SaltLength int
}

// LoadAuthConfig reads the JWT and argon2 settings from viper.
func LoadAuthConfig() *AuthConfig {
	viper.SetDefault("JWT_EXPIRY_HOURS", 24*7)
	viper.SetDefault("ARGON2_TIME", 1)
	viper.SetDefault("ARGON2_MEMORY", 64*1024)
	viper.SetDefault("ARGON2_THREADS", 4)
	viper.SetDefault("ARGON2_KEY_LENGTH", 32)
	viper.SetDefault("ARGON2_SALT_LENGTH", 16)

	return &AuthConfig{
		JWTSecret:        viper.GetString("JWT_SECRET_KEY"),
		TokenTTL:         time.Duration(viper.GetInt("JWT_EXPIRY_HOURS")) * time.Hour,
		FirstLoginTTL:    15 * time.Minute,
		TempPassword:     getEnv("AUTH_TEMP_PASSWORD", "temp123"),
		Argon2Time:       uint32(viper.GetInt("ARGON2_TIME")),
		Argon2Memory:     uint32(viper.GetInt("ARGON2_MEMORY")),
		Argon2Threads:    uint8(viper.GetInt("ARGON2_THREADS")),
		Argon2KeyLength:  uint32(viper.GetInt("ARGON2_KEY_LENGTH")),
		Argon2SaltLength: viper.GetInt("ARGON2_SALT_LENGTH"),
	}
}
