package database

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
	"github.com/spf13/viper"
)

// DBConfig holds database configuration
type DBConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// GetConfig returns database configuration with defaults
func GetConfig() *DBConfig {
	viper.SetDefault("DATABASE_HOST", "localhost")
	viper.SetDefault("DATABASE_PORT", "5432")
	viper.SetDefault("DATABASE_USER", "postgres")
	viper.SetDefault("DATABASE_PASSWORD", "password")
	viper.SetDefault("DATABASE_NAME", "campus_library")
	viper.SetDefault("DATABASE_SSL_MODE", "disable")
	viper.SetDefault("DATABASE_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DATABASE_MAX_IDLE_CONNS", 5)
	viper.SetDefault("DATABASE_CONN_MAX_LIFETIME", time.Minute*5)

	return &DBConfig{
		Host:            viper.GetString("DATABASE_HOST"),
		Port:            viper.GetString("DATABASE_PORT"),
		User:            viper.GetString("DATABASE_USER"),
		Password:        viper.GetString("DATABASE_PASSWORD"),
		Name:            viper.GetString("DATABASE_NAME"),
		SSLMode:         viper.GetString("DATABASE_SSL_MODE"),
		MaxOpenConns:    viper.GetInt("DATABASE_MAX_OPEN_CONNS"),
		MaxIdleConns:    viper.GetInt("DATABASE_MAX_IDLE_CONNS"),
		ConnMaxLifetime: viper.GetDuration("DATABASE_CONN_MAX_LIFETIME"),
	}
}

// DSN renders the lib/pq connection string.
func (c *DBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// InitDB opens and verifies the Postgres connection pool.
func InitDB() (*sql.DB, error) {
	config := GetConfig()

	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	log.Printf("[DATABASE] Postgres connection established (%s@%s:%s/%s)", config.User, config.Host, config.Port, config.Name)
	return db, nil
}

// InitDatabase opens the pool and applies the schema, exiting on failure.
func InitDatabase() *sql.DB {
	db, err := InitDB()
	if err != nil {
		log.Fatalf("[DATABASE] Failed to initialize database: %v", err)
	}
	if err := Migrate(db); err != nil {
		log.Fatalf("[DATABASE] Failed to migrate schema: %v", err)
	}
	return db
}
