package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// This function will Load the ENVIORNMENT VARIABLES from .env if GO_ENV variable is not set
func LoadENV() error {
	goEnv := os.Getenv("GO_ENV")

	if goEnv == "" || goEnv == "development" {
		err := godotenv.Load()
		if err != nil {
			return err
		}
	}

	return nil
}

// Legacy source kinds for batch reconciliation
const (
	LegacySourceMongo  = "mongo"
	LegacySourceFile   = "file"
	LegacySourceSpaces = "spaces"
)

type EnviornmentVariable struct {
	// All variables
	GO_ENV       string
	DB_USER_NAME string
	DB_PASSWORD  string
	DB_NAME      string
	DB_HOST      string
	DB_PORT      string
	DB_SSL_MODE  string
	PORT         int
	// Logging and error reporting
	LOG_LEVEL   string
	SENTRY_DSN  string
	APP_RELEASE string
	// JWT Configuration
	JWT_SECRET string
	JWT_ISSUER string
	// Redis Configuration
	REDIS_URL string
	// Cron Configuration
	CRON_ENABLED              bool
	CRON_DEDUPE_APPLY         bool
	CRON_JOB_TIMEOUT          time.Duration
	DEDUPE_DANGLING_AS_ORPHAN bool
	// Legacy store used by batch reconciliation
	LEGACY_SOURCE      string
	LEGACY_MONGO_URI   string
	LEGACY_MONGO_DB    string
	LEGACY_EXPORT_PATH string
	LEGACY_EXPORT_KEY  string
	// DigitalOcean Spaces Configuration
	DO_SPACES_KEY      string
	DO_SPACES_SECRET   string
	DO_SPACES_BUCKET   string
	DO_SPACES_REGION   string
	DO_SPACES_ENDPOINT string
	// Seed admin
	ADMIN_EMAIL    string
	ADMIN_PASSWORD string
}

func Get() (*EnviornmentVariable, error) {

	port, err := strconv.Atoi(os.Getenv("PORT"))
	if err != nil {
		port = 8080
	}

	// Database defaults
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}

	dbPort := os.Getenv("DB_PORT")
	if dbPort == "" {
		dbPort = "5432"
	}

	envVariables := &EnviornmentVariable{
		GO_ENV:       os.Getenv("GO_ENV"),
		DB_USER_NAME: os.Getenv("DB_USER_NAME"),
		DB_PASSWORD:  os.Getenv("DB_PASSWORD"),
		DB_NAME:      os.Getenv("DB_NAME"),
		DB_HOST:      dbHost,
		DB_PORT:      dbPort,
		DB_SSL_MODE:  os.Getenv("DB_SSL_MODE"),
		PORT:         port,
		// Logging
		LOG_LEVEL:   withDefault("LOG_LEVEL", "info"),
		SENTRY_DSN:  os.Getenv("SENTRY_DSN"),
		APP_RELEASE: os.Getenv("APP_RELEASE"),
		// JWT
		JWT_SECRET: os.Getenv("JWT_SECRET"),
		JWT_ISSUER: withDefault("JWT_ISSUER", "cohort-lms"),
		// Redis
		REDIS_URL: os.Getenv("REDIS_URL"),
		// Cron
		CRON_ENABLED:              boolEnv("CRON_ENABLED", true),
		CRON_DEDUPE_APPLY:         boolEnv("CRON_DEDUPE_APPLY", false),
		CRON_JOB_TIMEOUT:          durationEnv("CRON_JOB_TIMEOUT", 10*time.Minute),
		DEDUPE_DANGLING_AS_ORPHAN: boolEnv("DEDUPE_DANGLING_AS_ORPHAN", false),
		// Legacy
		LEGACY_SOURCE:      strings.ToLower(withDefault("LEGACY_SOURCE", LegacySourceMongo)),
		LEGACY_MONGO_URI:   os.Getenv("LEGACY_MONGO_URI"),
		LEGACY_MONGO_DB:    withDefault("LEGACY_MONGO_DB", "lms"),
		LEGACY_EXPORT_PATH: os.Getenv("LEGACY_EXPORT_PATH"),
		LEGACY_EXPORT_KEY:  withDefault("LEGACY_EXPORT_KEY", "exports/legacy.json"),
		// DigitalOcean
		DO_SPACES_KEY:      os.Getenv("DO_SPACES_KEY"),
		DO_SPACES_SECRET:   os.Getenv("DO_SPACES_SECRET"),
		DO_SPACES_BUCKET:   os.Getenv("DO_SPACES_BUCKET"),
		DO_SPACES_REGION:   withDefault("DO_SPACES_REGION", "blr1"),
		DO_SPACES_ENDPOINT: os.Getenv("DO_SPACES_ENDPOINT"),
		// Admin
		ADMIN_EMAIL:    os.Getenv("ADMIN_EMAIL"),
		ADMIN_PASSWORD: os.Getenv("ADMIN_PASSWORD"),
	}

	return envVariables, nil
}

func withDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// boolEnv treats only an explicit "false"/"true" style value as an override
func boolEnv(key string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
