package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	// DatabaseURL selects Postgres. When empty the SQLite file at SQLitePath
	// is used.
	DatabaseURL      string
	SQLitePath       string
	SchemaDir        string
	NumParserWorkers int
	NumDBWorkers     int
	DBBatchSize      int
	ResultsChanSize  int
	MaxErrorsPerFile int
	APIPort          string
	AMQPURL          string
	AMQPExchange     string
}

func New() (*Config, error) {
	cfg := &Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		SQLitePath:       getEnv("SQLITE_PATH", "recordkit.db"),
		SchemaDir:        os.Getenv("SCHEMA_DIR"),
		NumParserWorkers: 4,
		NumDBWorkers:     1,
		DBBatchSize:      5000,
		ResultsChanSize:  100,
		MaxErrorsPerFile: 100,
		APIPort:          getEnv("API_PORT", "8080"),
		AMQPURL:          os.Getenv("AMQP_URL"),
		AMQPExchange:     getEnv("AMQP_EXCHANGE", "recordkit.files"),
	}

	var err error
	cfg.NumParserWorkers, err = getEnvAsInt("NUM_PARSER_WORKERS", cfg.NumParserWorkers)
	if err != nil {
		return nil, err
	}

	cfg.NumDBWorkers, err = getEnvAsInt("NUM_DB_WORKERS", cfg.NumDBWorkers)
	if err != nil {
		return nil, err
	}

	cfg.DBBatchSize, err = getEnvAsInt("DB_BATCH_SIZE", cfg.DBBatchSize)
	if err != nil {
		return nil, err
	}

	cfg.ResultsChanSize, err = getEnvAsInt("RESULTS_CHANNEL_SIZE", cfg.ResultsChanSize)
	if err != nil {
		return nil, err
	}

	cfg.MaxErrorsPerFile, err = getEnvAsInt("MAX_ERRORS_PER_FILE", cfg.MaxErrorsPerFile)
	if err != nil {
		return nil, err
	}

	if cfg.NumParserWorkers < 1 {
		return nil, fmt.Errorf("NUM_PARSER_WORKERS must be at least 1, got %d", cfg.NumParserWorkers)
	}
	if cfg.NumDBWorkers < 1 {
		return nil, fmt.Errorf("NUM_DB_WORKERS must be at least 1, got %d", cfg.NumDBWorkers)
	}
	if cfg.DBBatchSize < 1 {
		return nil, fmt.Errorf("DB_BATCH_SIZE must be at least 1, got %d", cfg.DBBatchSize)
	}

	return cfg, nil
}

// UsePostgres reports whether a Postgres connection string was configured.
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: expected an integer, got '%s'", key, valueStr)
	}

	return value, nil
}
