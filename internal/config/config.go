// Package config collects the service settings from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds every setting read from the environment.
type Config struct {
	Port     int
	LogLevel string

	// Store selects the game store backend: "postgres" or "memory".
	Store string

	// DatabaseURL takes precedence over the individual POSTGRES_* / PG_* fields.
	DatabaseURL      string
	PostgresUser     string
	PostgresPassword string
	PGHost           string
	PGPort           int
	PGDatabase       string

	// RedisAddr empty disables the action log.
	RedisAddr string
	RedisDB   int

	HistorianQueueName string
	HistorianBatchSize int
	HistorianFlushMS   int

	// TokenExpireTime is a Go duration, or "never".
	TokenExpireTime string
	PrivateKeyPath  string
	PublicKeyPath   string
}

// Defaults returns a Config with every default value.
func Defaults() *Config {
	return &Config{
		Port:               8080,
		LogLevel:           "info",
		Store:              StorePostgres,
		PostgresUser:       "postgres",
		PGHost:             "localhost",
		PGPort:             5432,
		PGDatabase:         "uno",
		RedisAddr:          "localhost:6379",
		RedisDB:            0,
		HistorianQueueName: "uno_actions",
		HistorianBatchSize: 20,
		HistorianFlushMS:   500,
		TokenExpireTime:    "72h",
	}
}

// Load applies environment variable overrides on top of Defaults.
func Load() *Config {
	cfg := Defaults()

	overrideInt(&cfg.Port, "PORT")
	overrideString(&cfg.LogLevel, "LOG_LEVEL")
	overrideString(&cfg.Store, "STORE")

	overrideString(&cfg.DatabaseURL, "DATABASE_URL")
	overrideString(&cfg.PostgresUser, "POSTGRES_USER")
	overrideString(&cfg.PostgresPassword, "POSTGRES_PASSWORD")
	overrideString(&cfg.PGHost, "PG_HOST")
	overrideInt(&cfg.PGPort, "PG_PORT")
	overrideString(&cfg.PGDatabase, "PG_DATABASE")

	overrideString(&cfg.RedisAddr, "REDIS_ADDR")
	overrideInt(&cfg.RedisDB, "REDIS_DB")

	overrideString(&cfg.HistorianQueueName, "HISTORIAN_QUEUE_NAME")
	overrideInt(&cfg.HistorianBatchSize, "HISTORIAN_BATCH_SIZE")
	overrideInt(&cfg.HistorianFlushMS, "HISTORIAN_FLUSH_MS")

	overrideString(&cfg.TokenExpireTime, "TOKEN_EXPIRE_TIME")
	overrideString(&cfg.PrivateKeyPath, "JWT_PRIVATE_KEY_PATH")
	overrideString(&cfg.PublicKeyPath, "JWT_PUBLIC_KEY_PATH")

	return cfg
}

// ConnString returns the Postgres connection string.
func (c *Config) ConnString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:   fmt.Sprintf("%s:%d", c.PGHost, c.PGPort),
		Path:   "/" + c.PGDatabase,
	}
	return u.String()
}

// Level parses LogLevel, falling back to info.
func (c *Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		logrus.Warnf("invalid LOG_LEVEL %q, using info", c.LogLevel)
		return logrus.InfoLevel
	}
	return lvl
}

func overrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*field = n
		} else {
			logrus.Warnf("invalid value for %s: %q", envKey, val)
		}
	}
}

func overrideString(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}
