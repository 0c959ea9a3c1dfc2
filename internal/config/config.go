package config

import (
	"os"
	"strconv"

	"immunetrial/domain/trial"
	"immunetrial/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Store  StoreConfig
	Input  InputConfig
	Output OutputConfig
	Server ServerConfig
	Cohort trial.CohortFilter
}

// StoreConfig holds relational store settings
type StoreConfig struct {
	// Driver is "sqlite" or "postgres"
	Driver string
	// DSN is the connection string: a file path (or :memory:) for sqlite,
	// a DATABASE_URL for postgres
	DSN string
}

// InputConfig holds raw input settings
type InputConfig struct {
	// File is the cell-count table (.csv or .xlsx). Empty means resolve the
	// default candidates relative to the working directory.
	File string
}

// OutputConfig holds output locations
type OutputConfig struct {
	Dir string
}

// ServerConfig holds dashboard server settings
type ServerConfig struct {
	Port string
}

// Default input candidates, tried in order when INPUT_FILE is unset
var InputCandidates = []string{"cell-count.csv", "data/cell-count.csv"}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg := &Config{
		Store: StoreConfig{
			Driver: getEnvOrDefault("STORE_DRIVER", "sqlite"),
			DSN:    getEnvOrDefault("STORE_DSN", "immune_trial.db"),
		},
		Input: InputConfig{
			File: getEnvOrDefault("INPUT_FILE", ""),
		},
		Output: OutputConfig{
			Dir: getEnvOrDefault("OUTPUT_DIR", "outputs"),
		},
		Server: ServerConfig{
			Port: getEnvOrDefault("PORT", "8080"),
		},
		Cohort: loadCohort(),
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		// DATABASE_URL implies postgres unless STORE_DRIVER says otherwise
		cfg.Store.DSN = url
		if os.Getenv("STORE_DRIVER") == "" {
			cfg.Store.Driver = "postgres"
		}
	}

	if err := validate(cfg); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return cfg, nil
}

func loadCohort() trial.CohortFilter {
	cohort := trial.DefaultCohort()
	cohort.Condition = getEnvOrDefault("COHORT_CONDITION", cohort.Condition)
	cohort.SampleType = getEnvOrDefault("COHORT_SAMPLE_TYPE", cohort.SampleType)
	cohort.Treatment = getEnvOrDefault("COHORT_TREATMENT", cohort.Treatment)
	return cohort
}

func validate(cfg *Config) error {
	switch cfg.Store.Driver {
	case "sqlite", "postgres":
	default:
		return errors.ConfigInvalid("STORE_DRIVER must be sqlite or postgres, got " + cfg.Store.Driver)
	}
	if cfg.Store.DSN == "" {
		return errors.ConfigInvalid("store DSN is required")
	}
	if cfg.Output.Dir == "" {
		return errors.ConfigInvalid("output directory is required")
	}
	return nil
}

// ResolveInput returns the input file to load: the configured path when set,
// otherwise the first default candidate that exists on disk
func (c *Config) ResolveInput() (string, error) {
	if c.Input.File != "" {
		if _, err := os.Stat(c.Input.File); err != nil {
			return "", errors.ConfigInvalid("input file not found: " + c.Input.File)
		}
		return c.Input.File, nil
	}
	for _, candidate := range InputCandidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", errors.ConfigInvalid("no input file found; set INPUT_FILE or place cell-count.csv in the working directory")
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
