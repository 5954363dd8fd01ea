// Package config reads service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

type Config struct {
	HTTPPort string
	LogLevel logrus.Level

	DocstoreDriver string
	DatabaseURL    string
	CartDBPath     string
	RedisAddr      string
	KafkaBrokers   string

	AdminEmail        string
	AdminPasswordHash string
	SessionTTL        time.Duration
	CheckoutLockTTL   time.Duration

	BreakerMaxFailures int
	BreakerTimeout     time.Duration

	NotifyWebhookURL string
	DLQReplayDelay   time.Duration
	DLQMaxReplays    int
}

// Load reads the storefront settings. Unset variables take their defaults;
// malformed values are errors.
func Load() (Config, error) {
	var errs []string
	fail := func(key string, err error) {
		errs = append(errs, fmt.Sprintf("%s: %v", key, err))
	}

	level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		fail("LOG_LEVEL", err)
	}

	cfg := Config{
		HTTPPort:          getEnv("HTTP_PORT", "8080"),
		LogLevel:          level,
		DocstoreDriver:    strings.ToLower(getEnv("DOCSTORE_DRIVER", "memory")),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		CartDBPath:        getEnv("CART_DB_PATH", "./data/carts"),
		RedisAddr:         getEnv("REDIS_ADDR", ""),
		KafkaBrokers:      getEnv("KAFKA_BROKERS", ""),
		AdminEmail:        getEnv("ADMIN_EMAIL", ""),
		AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		NotifyWebhookURL:  getEnv("NOTIFY_WEBHOOK_URL", ""),
	}

	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"SESSION_TTL", 12 * time.Hour, &cfg.SessionTTL},
		{"CHECKOUT_LOCK_TTL", 30 * time.Second, &cfg.CheckoutLockTTL},
		{"BREAKER_TIMEOUT", 30 * time.Second, &cfg.BreakerTimeout},
		{"DLQ_REPLAY_DELAY", 30 * time.Second, &cfg.DLQReplayDelay},
	}
	for _, d := range durations {
		v, err := getEnvDuration(d.key, d.def)
		if err != nil {
			fail(d.key, err)
		}
		*d.dest = v
	}

	ints := []struct {
		key  string
		def  int
		dest *int
	}{
		{"BREAKER_MAX_FAILURES", 5, &cfg.BreakerMaxFailures},
		{"DLQ_MAX_REPLAYS", 6, &cfg.DLQMaxReplays},
	}
	for _, i := range ints {
		v, err := getEnvInt(i.key, i.def)
		if err != nil {
			fail(i.key, err)
		}
		*i.dest = v
	}

	switch cfg.DocstoreDriver {
	case "memory":
	case "postgres", "mysql":
		if cfg.DatabaseURL == "" {
			errs = append(errs, "DATABASE_URL: required when DOCSTORE_DRIVER is "+cfg.DocstoreDriver)
		}
	default:
		errs = append(errs, fmt.Sprintf("DOCSTORE_DRIVER: unknown driver %q", cfg.DocstoreDriver))
	}

	if len(errs) > 0 {
		return cfg, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	return time.ParseDuration(value)
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(value)
}

// Migration configures cmd/docstore-migrate.
type Migration struct {
	SourceDriver string
	SourceURL    string
	TargetDriver string
	TargetURL    string
	Collections  []string
	BatchSize    int
	Concurrency  int
	DryRun       bool
	ReportFormat string
}

func LoadMigration() (Migration, error) {
	var errs []string
	m := Migration{
		SourceDriver: strings.ToLower(getEnv("SOURCE_DRIVER", "postgres")),
		SourceURL:    getEnv("SOURCE_DATABASE_URL", ""),
		TargetDriver: strings.ToLower(getEnv("TARGET_DRIVER", "mysql")),
		TargetURL:    getEnv("TARGET_DATABASE_URL", ""),
		DryRun:       getEnv("MIGRATE_DRY_RUN", "false") == "true",
		ReportFormat: getEnv("MIGRATE_REPORT_FORMAT", "summary"),
	}
	if raw := getEnv("MIGRATE_COLLECTIONS", ""); raw != "" {
		for _, c := range strings.Split(raw, ",") {
			if c = strings.TrimSpace(c); c != "" {
				m.Collections = append(m.Collections, c)
			}
		}
	}

	var err error
	if m.BatchSize, err = getEnvInt("MIGRATE_BATCH_SIZE", 50); err != nil {
		errs = append(errs, fmt.Sprintf("MIGRATE_BATCH_SIZE: %v", err))
	}
	if m.Concurrency, err = getEnvInt("MIGRATE_CONCURRENCY", 5); err != nil {
		errs = append(errs, fmt.Sprintf("MIGRATE_CONCURRENCY: %v", err))
	}
	for _, side := range []struct{ name, driver, url string }{
		{"SOURCE", m.SourceDriver, m.SourceURL},
		{"TARGET", m.TargetDriver, m.TargetURL},
	} {
		if side.driver != "postgres" && side.driver != "mysql" {
			errs = append(errs, fmt.Sprintf("%s_DRIVER: unknown driver %q", side.name, side.driver))
		}
		if side.url == "" {
			errs = append(errs, side.name+"_DATABASE_URL: required")
		}
	}

	if len(errs) > 0 {
		return m, fmt.Errorf("invalid migration configuration: %s", strings.Join(errs, "; "))
	}
	return m, nil
}
