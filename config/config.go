// Package config loads kestrelq's runtime configuration from the
// environment using github.com/spf13/viper.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is kestrelq's complete environment-driven runtime
// configuration.
type Config struct {
	DatabaseURL string
	RedisURL    string
	UseRedis    bool

	MaxWorkers          int
	MaxRetries          int
	RetryBackoffBase    float64
	JobTimeoutSeconds   time.Duration
	PollIntervalSeconds time.Duration
}

func defaults(v *viper.Viper) {
	v.SetDefault("database_url", "file::memory:?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	v.SetDefault("redis_url", "redis://localhost:6379/0")
	v.SetDefault("use_redis", false)
	v.SetDefault("max_workers", 10)
	v.SetDefault("max_retries", 3)
	v.SetDefault("retry_backoff_base", 2.0)
	v.SetDefault("job_timeout_seconds", 300)
	v.SetDefault("poll_interval_seconds", 1.0)
}

// Load reads DATABASE_URL, REDIS_URL, USE_REDIS, MAX_WORKERS,
// MAX_RETRIES, RETRY_BACKOFF_BASE, JOB_TIMEOUT_SECONDS and
// POLL_INTERVAL_SECONDS from the environment, validates them, and
// returns the resulting Config.
//
// A variable that is not set takes its default. Load never calls
// os.Exit; an out-of-range value is reported as an error so the caller
// retains control of process lifecycle.
func Load() (*Config, error) {
	v := viper.New()
	defaults(v)
	v.AutomaticEnv()

	maxRetries := v.GetInt("max_retries")
	if maxRetries < 0 || maxRetries > 20 {
		return nil, fmt.Errorf("config: max_retries out of range [0,20]: %d", maxRetries)
	}
	maxWorkers := v.GetInt("max_workers")
	if maxWorkers <= 0 {
		return nil, fmt.Errorf("config: max_workers must be positive: %d", maxWorkers)
	}
	backoffBase := v.GetFloat64("retry_backoff_base")
	if backoffBase <= 1 {
		return nil, fmt.Errorf("config: retry_backoff_base must be > 1: %v", backoffBase)
	}
	timeoutSeconds := v.GetInt("job_timeout_seconds")
	if timeoutSeconds <= 0 {
		return nil, fmt.Errorf("config: job_timeout_seconds must be positive: %d", timeoutSeconds)
	}
	pollSeconds := v.GetFloat64("poll_interval_seconds")
	if pollSeconds <= 0 {
		return nil, fmt.Errorf("config: poll_interval_seconds must be positive: %v", pollSeconds)
	}

	return &Config{
		DatabaseURL:         v.GetString("database_url"),
		RedisURL:            v.GetString("redis_url"),
		UseRedis:            v.GetBool("use_redis"),
		MaxWorkers:          maxWorkers,
		MaxRetries:          maxRetries,
		RetryBackoffBase:    backoffBase,
		JobTimeoutSeconds:   time.Duration(timeoutSeconds) * time.Second,
		PollIntervalSeconds: time.Duration(pollSeconds * float64(time.Second)),
	}, nil
}
