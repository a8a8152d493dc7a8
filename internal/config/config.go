package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName         = "cronos"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultStoreDriver     = "memory"
	defaultSQLitePath      = "cronos.db"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultContract        = "cronos"
	defaultTokenAccount    = "eosio.token"
	defaultTokenSymbol     = "0,CRON"
	defaultRunCost         = 10
	defaultMaxBatch        = 100
	defaultKeeperSchedule  = "@every 1s"
	defaultKeeperBatch     = 20
	defaultPushRateLimit   = 120
	defaultNotifyChannel   = "cronos:events"
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Store drivers accepted by STORE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	StoreDriver    string
	DatabaseURL    string
	SQLitePath     string
	RedisURL       string
	NotifyChannel  string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	ContractAccount string
	TokenAccount    string
	TokenSymbol     string
	RunCost         int64
	MaxBatch        int

	KeeperEnabled  bool
	KeeperSchedule string
	KeeperBatch    int

	AllowRegistration bool
	PushRateLimit     int

	// GenesisKey is the hex ed25519 seed of the system accounts. Empty means
	// a throwaway key is generated at boot.
	GenesisKey string
}

// Load reads an optional .env file, then configuration values from the
// environment. Variables already set in the environment win over .env.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv populates a Config from the process environment only.
func FromEnv() (Config, error) {
	cfg := Config{
		AppName:         getEnv("APP_NAME", defaultAppName),
		AppEnv:          getEnv("APP_ENV", defaultAppEnv),
		Port:            getEnv("PORT", defaultPort),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		StoreDriver:     strings.ToLower(getEnv("STORE_DRIVER", defaultStoreDriver)),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		SQLitePath:      getEnv("SQLITE_PATH", defaultSQLitePath),
		RedisURL:        os.Getenv("REDIS_URL"),
		NotifyChannel:   getEnv("NOTIFY_CHANNEL", defaultNotifyChannel),
		ShutdownPeriod:  defaultShutdownDelay,
		IdempotencyTTL:  defaultIdempotencyTTL,
		ContractAccount: getEnv("CONTRACT_ACCOUNT", defaultContract),
		TokenAccount:    getEnv("TOKEN_ACCOUNT", defaultTokenAccount),
		TokenSymbol:     getEnv("TOKEN_SYMBOL", defaultTokenSymbol),
		KeeperSchedule:  getEnv("KEEPER_SCHEDULE", defaultKeeperSchedule),
		GenesisKey:      os.Getenv("GENESIS_KEY"),
	}

	var err error
	if cfg.ShutdownPeriod, err = duration(shutdownSecondsEnvVar, shutdownDurationEnvVar, defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = duration(idemTTLSecondsEnvVar, idemTTLDurEnvVar, defaultIdempotencyTTL); err != nil {
		return Config{}, err
	}
	runCost, err := integer("RUN_COST", defaultRunCost)
	if err != nil {
		return Config{}, err
	}
	cfg.RunCost = int64(runCost)
	if cfg.MaxBatch, err = integer("MAX_BATCH", defaultMaxBatch); err != nil {
		return Config{}, err
	}
	if cfg.KeeperBatch, err = integer("KEEPER_BATCH", defaultKeeperBatch); err != nil {
		return Config{}, err
	}
	if cfg.PushRateLimit, err = integer("PUSH_RATE_LIMIT", defaultPushRateLimit); err != nil {
		return Config{}, err
	}
	if cfg.KeeperEnabled, err = boolean("KEEPER_ENABLED", true); err != nil {
		return Config{}, err
	}
	if cfg.AllowRegistration, err = boolean("ALLOW_REGISTRATION", cfg.IsDev()); err != nil {
		return Config{}, err
	}

	if cfg.RunCost <= 0 {
		return Config{}, fmt.Errorf("RUN_COST must be positive")
	}
	if cfg.MaxBatch <= 0 {
		return Config{}, fmt.Errorf("MAX_BATCH must be positive")
	}

	switch cfg.StoreDriver {
	case DriverMemory, DriverSQLite:
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set when STORE_DRIVER=postgres")
		}
	default:
		return Config{}, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}

	if !cfg.IsDev() && cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", cfg.AppEnv)
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the app runs in a local development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func duration(secondsKey, durationKey string, fallback time.Duration) (time.Duration, error) {
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(durationKey); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", durationKey, err)
		}
		return d, nil
	}
	return fallback, nil
}

func integer(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func boolean(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
