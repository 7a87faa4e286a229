package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// DBHost is the PostgreSQL host.
	DBHost string
	// DBPort is the PostgreSQL port.
	DBPort int
	// DBUser is the PostgreSQL user.
	DBUser string
	// DBPassword is the PostgreSQL password.
	DBPassword string
	// DBName is the PostgreSQL database name.
	DBName string
	// DBSSLMode is the PostgreSQL SSL mode ("disable", "require", ...).
	DBSSLMode string

	// WebPort is the port for the ops HTTP server.
	WebPort string
	// LogLevel is the zerolog level ("debug", "info", ...).
	LogLevel string

	// OwnerAddress identifies the protocol owner for fee and buffer claims.
	OwnerAddress string
	// AdminToken authorizes the force-reset recovery endpoint. Empty disables it.
	AdminToken string

	// BaseAsset is the protocol accounting unit every vault settles in.
	BaseAsset string
	// PollSchedule is the cron expression driving the engine poll loop.
	PollSchedule string
	// ParamsFile optionally points at a YAML file overriding the default
	// engine parameters and declaring the vault set.
	ParamsFile string

	// Mode selects the execution backend. Only "paper" is accepted until a
	// live venue adapter ships; the daemon refuses to start otherwise.
	Mode string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	DBHost, err = getEnv("DB_HOST")
	if err != nil {
		return err
	}

	DBPort, err = getEnvAsInt("DB_PORT")
	if err != nil {
		return err
	}

	DBUser, err = getEnv("DB_USER")
	if err != nil {
		return err
	}

	DBPassword, err = getEnv("DB_PASSWORD")
	if err != nil {
		return err
	}

	DBName, err = getEnv("DB_NAME")
	if err != nil {
		return err
	}

	DBSSLMode = getEnvOrDefault("DB_SSLMODE", "disable")

	WebPort = getEnvOrDefault("WEB_PORT", "8080")
	LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	OwnerAddress, err = getEnv("OWNER_ADDRESS")
	if err != nil {
		return err
	}

	AdminToken = getEnvOrDefault("ADMIN_TOKEN", "")

	BaseAsset, err = getEnv("BASE_ASSET")
	if err != nil {
		return err
	}

	PollSchedule = getEnvOrDefault("POLL_SCHEDULE", "@every 30s")
	ParamsFile = getEnvOrDefault("PARAMS_FILE", "")

	Mode = getEnvOrDefault("ORION_MODE", "paper")

	log.Debug().
		Str("DBHost", DBHost).
		Str("WebPort", WebPort).
		Str("BaseAsset", BaseAsset).
		Str("Mode", Mode).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvOrDefault retrieves a string environment variable with a fallback.
func getEnvOrDefault(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvAsInt retrieves an environment variable as an int. Returns error if not set or invalid.
func getEnvAsInt(key string) (int, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid integer, got: " + valueStr)
	}
	return value, nil
}
