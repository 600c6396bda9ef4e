// Package config loads service configuration with koanf.
//
// Sources are layered, later ones winning:
//  1. struct defaults (defaultConfig)
//  2. an optional YAML file (CONFIG_PATH, ./config.yaml, /etc/groupswipe/config.yaml)
//  3. environment variables (see envMappings)
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Store     StoreConfig     `koanf:"store"`
	Consensus ConsensusConfig `koanf:"consensus"`
	Media     MediaConfig     `koanf:"media"`
	Logging   LoggingConfig   `koanf:"logging"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	VotesPerMinute  int           `koanf:"votes_per_minute"` // per client IP; 0 disables
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend  string `koanf:"backend"` // dynamodb or memory
	Table    string `koanf:"table"`
	Region   string `koanf:"region"`
	Endpoint string `koanf:"endpoint"` // e.g. DynamoDB Local
}

type ConsensusConfig struct {
	MinActiveMembers  int           `koanf:"min_active_members"`
	InactivityTimeout time.Duration `koanf:"inactivity_timeout"`
	SweepInterval     time.Duration `koanf:"sweep_interval"`
}

type MediaConfig struct {
	BaseURL           string        `koanf:"base_url"`
	APIKey            string        `koanf:"api_key"`
	Language          string        `koanf:"language"`
	RequestTimeout    time.Duration `koanf:"request_timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	CacheDir          string        `koanf:"cache_dir"` // empty keeps the cache in memory
	CacheTTL          time.Duration `koanf:"cache_ttl"`
	ArtworkBucket     string        `koanf:"artwork_bucket"`
	ArtworkURLTTL     time.Duration `koanf:"artwork_url_ttl"`
	Breaker           BreakerConfig `koanf:"breaker"`
}

// BreakerConfig applies to every per-operation circuit breaker.
type BreakerConfig struct {
	FailureThreshold uint32        `koanf:"failure_threshold"` // consecutive failures that open the circuit
	Interval         time.Duration `koanf:"interval"`          // closed-state window after which counts reset
	Cooldown         time.Duration `koanf:"cooldown"`          // open -> half-open delay
	HalfOpenRequests uint32        `koanf:"half_open_requests"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			RequestTimeout:  5 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
			VotesPerMinute:  120,
		},
		Store: StoreConfig{
			Backend: "dynamodb",
			Table:   "GroupSwipe",
			Region:  "us-east-1",
		},
		Consensus: ConsensusConfig{
			MinActiveMembers:  2,
			InactivityTimeout: 30 * time.Minute,
			SweepInterval:     5 * time.Minute,
		},
		Media: MediaConfig{
			BaseURL:           "https://api.themoviedb.org/3",
			Language:          "en-US",
			RequestTimeout:    8 * time.Second,
			RequestsPerSecond: 4,
			CacheTTL:          30 * 24 * time.Hour,
			ArtworkURLTTL:     15 * time.Minute,
			Breaker: BreakerConfig{
				FailureThreshold: 5,
				Interval:         time.Minute,
				Cooldown:         30 * time.Second,
				HalfOpenRequests: 1,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.VotesPerMinute < 0 {
		errs = append(errs, errors.New("server.votes_per_minute must not be negative"))
	}

	switch strings.ToLower(c.Store.Backend) {
	case "memory":
	case "dynamodb":
		if c.Store.Table == "" {
			errs = append(errs, errors.New("store.table is required for the dynamodb backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.backend %q must be dynamodb or memory", c.Store.Backend))
	}

	if c.Consensus.MinActiveMembers < 1 {
		errs = append(errs, errors.New("consensus.min_active_members must be at least 1"))
	}
	if c.Consensus.InactivityTimeout <= 0 {
		errs = append(errs, errors.New("consensus.inactivity_timeout must be positive"))
	}
	if c.Consensus.SweepInterval <= 0 {
		errs = append(errs, errors.New("consensus.sweep_interval must be positive"))
	}

	if c.Media.CacheTTL <= 0 {
		errs = append(errs, errors.New("media.cache_ttl must be positive"))
	}
	if c.Media.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("media.requests_per_second must be positive"))
	}
	if c.Media.Breaker.FailureThreshold == 0 {
		errs = append(errs, errors.New("media.breaker.failure_threshold must be positive"))
	}
	if c.Media.Breaker.Cooldown <= 0 {
		errs = append(errs, errors.New("media.breaker.cooldown must be positive"))
	}

	return errors.Join(errs...)
}
