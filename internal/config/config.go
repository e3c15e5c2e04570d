package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds service settings, populated from environment variables.
type Config struct {
	EEProject       string
	EEBaseURL       string
	EETimeout       time.Duration
	CredentialsPath string

	LedgerPath string

	// Event publishing is disabled when KafkaBrokers is empty.
	KafkaBrokers []string
	KafkaTopic   string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	PollInterval    time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	eeTimeout, err := parsePositiveDuration("EE_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}

	pollInterval, err := parsePositiveDuration("POLL_INTERVAL", "1m")
	if err != nil {
		return nil, err
	}

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}

	cfg := &Config{
		EEProject:       os.Getenv("EE_PROJECT"),
		EEBaseURL:       sharedcfg.EnvOrDefault("EE_BASE_URL", "https://earthengine.googleapis.com"),
		EETimeout:       eeTimeout,
		CredentialsPath: sharedcfg.EnvOrDefault("EE_CREDENTIALS", defaultCredentialsPath()),
		LedgerPath:      sharedcfg.EnvOrDefault("LEDGER_PATH", "exports.db"),
		KafkaBrokers:    brokers,
		KafkaTopic:      sharedcfg.EnvOrDefault("KAFKA_TOPIC", "export-task-events"),
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		PollInterval:    pollInterval,
	}

	if cfg.CredentialsPath == "" {
		return nil, errors.New("EE_CREDENTIALS is required")
	}
	if cfg.LedgerPath == "" {
		return nil, errors.New("LEDGER_PATH is required")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// EventsEnabled reports whether task events should be published.
func (c *Config) EventsEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, errors.New("invalid " + key)
	}
	return d, nil
}

// defaultCredentialsPath mirrors where the earthengine CLI caches its credential.
func defaultCredentialsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "earthengine", "credentials")
}
