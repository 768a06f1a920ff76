package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Database (world, treasury and, with STATE_STORE=gorm, political state)
	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Political state storage
	StateStore string
	SQLitePath string

	// Gameplay files
	RulesFile    string
	PoliciesFile string
	WatchRules   bool

	// Application
	AppEnv   string
	LogLevel string
	LogFile  string

	// Simulation cadence
	DayLengthMinutes    int
	TributeSweepSeconds int
	AskTimeoutSeconds   int
}

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"

	StateStoreGorm   = "gorm"
	StateStoreSQLite = "sqlite"
)

func LoadConfig() (*Config, error) {
	driver := getEnv("DB_DRIVER", DriverPostgres)
	defaultPort := "5432"
	if driver == DriverMySQL {
		defaultPort = "3306"
	}

	cfg := &Config{
		DBDriver:   driver,
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", defaultPort),
		DBUser:     getEnv("DB_USER", "statecraft"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "statecraft_db"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		StateStore: getEnv("STATE_STORE", StateStoreGorm),
		SQLitePath: getEnv("SQLITE_PATH", "data/politics.db"),

		RulesFile:    getEnv("RULES_FILE", "configs/rules.yaml"),
		PoliciesFile: getEnv("POLICIES_FILE", "configs/policies.yaml"),
		WatchRules:   getEnvBool("WATCH_RULES", true),

		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),

		DayLengthMinutes:    getEnvInt("DAY_LENGTH_MINUTES", 1440),
		TributeSweepSeconds: getEnvInt("TRIBUTE_SWEEP_SECONDS", 300),
		AskTimeoutSeconds:   getEnvInt("ASK_TIMEOUT_SECONDS", 5),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DBDriver != DriverPostgres && c.DBDriver != DriverMySQL {
		return fmt.Errorf("DB_DRIVER must be %q or %q", DriverPostgres, DriverMySQL)
	}
	if c.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	switch c.StateStore {
	case StateStoreGorm:
	case StateStoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STATE_STORE=sqlite")
		}
	default:
		return fmt.Errorf("STATE_STORE must be %q or %q", StateStoreGorm, StateStoreSQLite)
	}
	if c.DayLengthMinutes <= 0 {
		return fmt.Errorf("DAY_LENGTH_MINUTES must be positive")
	}
	if c.TributeSweepSeconds <= 0 {
		return fmt.Errorf("TRIBUTE_SWEEP_SECONDS must be positive")
	}
	return nil
}

func (c *Config) ValidateProductionSecurity() error {
	if c.AppEnv != "production" {
		return nil
	}

	if c.DBSSLMode != "require" {
		return fmt.Errorf("DB_SSLMODE must be 'require' in production")
	}
	if c.DBPassword == "change_me" {
		return fmt.Errorf("DB_PASSWORD must be changed from default in production")
	}
	if c.RulesFile == "" {
		return fmt.Errorf("RULES_FILE must be set in production")
	}

	return nil
}

func (c *Config) GetDSN() string {
	if c.DBDriver == DriverMySQL {
		dsn := fmt.Sprintf(
			"%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
		)
		if c.DBSSLMode == "require" {
			dsn += "&tls=true"
		}
		return dsn
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

func (c *Config) GetDayLength() time.Duration {
	return time.Duration(c.DayLengthMinutes) * time.Minute
}

func (c *Config) GetTributeSweepInterval() time.Duration {
	return time.Duration(c.TributeSweepSeconds) * time.Second
}

func (c *Config) GetAskTimeout() time.Duration {
	if c.AskTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.AskTimeoutSeconds) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
