package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port     int
	LogLevel string
	Env      string

	// Redis config
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Expo push provider
	ExpoAccessToken string // optional bearer credential for the push API
	ExpoPushURL     string // override for testing; empty means the public endpoint

	// Delivery engine
	KeyPrefix         string        // namespace for all engine keys in Redis
	ProcessorBatch    int           // jobs dequeued per processor tick
	ProcessorInterval time.Duration // time between processor ticks
	MaxRetries        int           // retry ceiling per queued job
	RetryDelay        time.Duration // fixed delay before a failed job re-enters the queue
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Port:     8080,
		LogLevel: "info",
		Env:      "development",

		// Redis defaults
		RedisHost:     "localhost",
		RedisPort:     6379,
		RedisPassword: "",
		RedisDB:       0,

		// Engine defaults
		KeyPrefix:         "push",
		ProcessorBatch:    10,
		ProcessorInterval: 5 * time.Second,
		MaxRetries:        3,
		RetryDelay:        60 * time.Second,
	}

	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.Port = p
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if env := os.Getenv("ENV"); env != "" {
		cfg.Env = env
	}

	// Redis config
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.RedisHost = host
	}

	if port := os.Getenv("REDIS_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_PORT: %w", err)
		}
		cfg.RedisPort = p
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.RedisPassword = password
	}

	if db := os.Getenv("REDIS_DB"); db != "" {
		d, err := strconv.Atoi(db)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.RedisDB = d
	}

	// Expo config
	if token := os.Getenv("EXPO_ACCESS_TOKEN"); token != "" {
		cfg.ExpoAccessToken = token
	}

	if url := os.Getenv("EXPO_PUSH_URL"); url != "" {
		cfg.ExpoPushURL = url
	}

	// Engine config
	if prefix := os.Getenv("PUSH_KEY_PREFIX"); prefix != "" {
		cfg.KeyPrefix = prefix
	}

	if batch := os.Getenv("PROCESSOR_BATCH_SIZE"); batch != "" {
		b, err := strconv.Atoi(batch)
		if err != nil {
			return nil, fmt.Errorf("invalid PROCESSOR_BATCH_SIZE: %w", err)
		}
		cfg.ProcessorBatch = b
	}

	if interval := os.Getenv("PROCESSOR_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil {
			return nil, fmt.Errorf("invalid PROCESSOR_INTERVAL: %w", err)
		}
		cfg.ProcessorInterval = d
	}

	if retries := os.Getenv("MAX_RETRIES"); retries != "" {
		r, err := strconv.Atoi(retries)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_RETRIES: %w", err)
		}
		cfg.MaxRetries = r
	}

	if delay := os.Getenv("RETRY_DELAY"); delay != "" {
		d, err := time.ParseDuration(delay)
		if err != nil {
			return nil, fmt.Errorf("invalid RETRY_DELAY: %w", err)
		}
		cfg.RetryDelay = d
	}

	return cfg, nil
}
