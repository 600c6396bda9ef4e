package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/groupswipe/config.yaml",
}

// envMappings maps environment variables (lower-cased) to koanf paths.
// Unlisted variables are ignored so the process environment cannot leak in.
var envMappings = map[string]string{
	"host":                     "server.host",
	"port":                     "server.port",
	"request_timeout":          "server.request_timeout",
	"shutdown_timeout":         "server.shutdown_timeout",
	"cors_origins":             "server.cors_origins",
	"votes_per_minute":         "server.votes_per_minute",
	"store_backend":            "store.backend",
	"dynamo_table":             "store.table",
	"aws_region":               "store.region",
	"dynamo_endpoint":          "store.endpoint",
	"min_active_members":       "consensus.min_active_members",
	"inactivity_timeout":       "consensus.inactivity_timeout",
	"sweep_interval":           "consensus.sweep_interval",
	"tmdb_base_url":            "media.base_url",
	"tmdb_api_key":             "media.api_key",
	"tmdb_language":            "media.language",
	"media_request_timeout":    "media.request_timeout",
	"media_requests_per_sec":   "media.requests_per_second",
	"media_cache_dir":          "media.cache_dir",
	"media_cache_ttl":          "media.cache_ttl",
	"s3_bucket_name":           "media.artwork_bucket",
	"artwork_url_ttl":          "media.artwork_url_ttl",
	"breaker_threshold":        "media.breaker.failure_threshold",
	"breaker_interval":         "media.breaker.interval",
	"breaker_cooldown":         "media.breaker.cooldown",
	"breaker_half_open":        "media.breaker.half_open_requests",
	"log_level":                "logging.level",
	"log_format":               "logging.format",
	"log_caller":               "logging.caller",
}

// sliceConfigPaths arrive from the environment as comma-separated strings.
var sliceConfigPaths = []string{"server.cors_origins"}

// Load builds the configuration from defaults, file and environment.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := splitSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envTransform returns "" for variables that are not part of the config.
func envTransform(key string) string {
	return envMappings[strings.ToLower(key)]
}

func splitSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		var parts []string
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}
