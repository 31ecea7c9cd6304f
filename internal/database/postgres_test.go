package database

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestGetConfig(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	t.Run("defaults", func(t *testing.T) {
		cfg := GetConfig()
		assert.Equal(t, "localhost", cfg.Host)
		assert.Equal(t, "campus_library", cfg.Name)
		assert.Equal(t, 25, cfg.MaxOpenConns)
		assert.Equal(t, "host=localhost port=5432 user=postgres password=password dbname=campus_library sslmode=disable", cfg.DSN())
	})

	t.Run("overrides", func(t *testing.T) {
		viper.Set("DATABASE_HOST", "db.internal")
		viper.Set("DATABASE_NAME", "circulation")
		cfg := GetConfig()
		assert.Equal(t, "db.internal", cfg.Host)
		assert.Contains(t, cfg.DSN(), "dbname=circulation")
	})
}
