package config

import (
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// CirculationConfig holds the tunables of the borrow lifecycle.
type CirculationConfig struct {
	DailyFineRate          int64
	RejectionCooldown      time.Duration
	DefaultRejectionReason string
	DefaultPageSize        int
	MaxPageSize            int
}

func LoadCirculationConfig() *CirculationConfig {
	return &CirculationConfig{
		DailyFineRate:          getEnvAsInt64("CIRCULATION_DAILY_FINE_RATE", 10),
		RejectionCooldown:      getEnvAsDuration("CIRCULATION_REJECTION_COOLDOWN", 24*time.Hour),
		DefaultRejectionReason: getEnv("CIRCULATION_DEFAULT_REJECTION_REASON", "Request rejected"),
		DefaultPageSize:        getEnvAsInt("CIRCULATION_DEFAULT_PAGE_SIZE", 10),
		MaxPageSize:            getEnvAsInt("CIRCULATION_MAX_PAGE_SIZE", 100),
	}
}

// Init loads the dotenv file at path into viper. Process environment
// variables override the file.
func Init(path string) error {
	viper.SetConfigFile(path)
	viper.SetConfigType("env")
	viper.AutomaticEnv()
	return viper.ReadInConfig()
}

func getEnv(key, defaultVal string) string {
	if val := viper.GetString(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := getEnv(key, ""); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if val := getEnv(key, ""); val != "" {
		if intVal, err := strconv.ParseInt(val, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := getEnv(key, ""); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
