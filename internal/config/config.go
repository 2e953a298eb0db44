// Cadenza - AI-Assisted Music Production Platform
// Copyright 2026 Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-audio/cadenza

// Package config loads layered service configuration: struct defaults,
// then an optional YAML file, then CADENZA_-prefixed environment
// variables. Nested keys use "__" in the environment, so
// CADENZA_CACHE__TTL_SECONDS overrides cache.ttl_seconds.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/cadenza-audio/cadenza/internal/validation"
)

const envPrefix = "CADENZA_"

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Log       LogConfig       `koanf:"log"`
	Cache     CacheConfig     `koanf:"cache"`
	Index     IndexConfig     `koanf:"index"`
	Recommend RecommendConfig `koanf:"recommend"`
	Archive   ArchiveConfig   `koanf:"archive"`
	Events    EventsConfig    `koanf:"events"`
}

// ServerConfig tunes the HTTP listener.
type ServerConfig struct {
	Addr            string `koanf:"addr" validate:"required"`
	ReadTimeoutSec  int    `koanf:"read_timeout_seconds" validate:"gte=1"`
	WriteTimeoutSec int    `koanf:"write_timeout_seconds" validate:"gte=1"`
	ShutdownSec     int    `koanf:"shutdown_timeout_seconds" validate:"gte=1"`
}

// LogConfig tunes logging.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// CacheConfig selects the session-context store backend.
type CacheConfig struct {
	Backend    string `koanf:"backend" validate:"oneof=memory badger"`
	Path       string `koanf:"path"`
	TTLSeconds int    `koanf:"ttl_seconds" validate:"gte=1"`
}

// IndexConfig tunes the vector index.
type IndexConfig struct {
	EmbeddingDim      int `koanf:"embedding_dim" validate:"gte=1"`
	MaxEntriesPerUser int `koanf:"max_entries_per_user" validate:"gte=1"`
}

// RecommendConfig tunes suggestion queries.
type RecommendConfig struct {
	TopKDefault            int `koanf:"top_k_default" validate:"gte=1"`
	TopKMax                int `koanf:"top_k_max" validate:"gte=1"`
	KNNCandidateMultiplier int `koanf:"knn_candidate_multiplier" validate:"gte=1"`
	MinCandidatePool       int `koanf:"min_candidate_pool" validate:"gte=1"`
	DeadlineMS             int `koanf:"deadline_ms" validate:"gte=1"`
	PseudoVectorRecents    int `koanf:"pseudo_vector_recents" validate:"gte=1"`
}

// ArchiveConfig tunes the durable analysis archive.
type ArchiveConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// EventsConfig tunes the in-process event bus.
type EventsConfig struct {
	Buffer int64 `koanf:"buffer" validate:"gte=0"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeoutSec:  15,
			WriteTimeoutSec: 15,
			ShutdownSec:     15,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Cache: CacheConfig{
			Backend:    "memory",
			Path:       "data/contextcache",
			TTLSeconds: 3600,
		},
		Index: IndexConfig{
			EmbeddingDim:      512,
			MaxEntriesPerUser: 100000,
		},
		Recommend: RecommendConfig{
			TopKDefault:            10,
			TopKMax:                50,
			KNNCandidateMultiplier: 4,
			MinCandidatePool:       32,
			DeadlineMS:             500,
			PseudoVectorRecents:    4,
		},
		Archive: ArchiveConfig{
			Enabled: true,
			Path:    "data/analyses.db",
		},
		Events: EventsConfig{
			Buffer: 256,
		},
	}
}

// Load assembles the configuration. path may be empty to skip the file
// layer; a missing file at an explicit path is an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges and cross-field consistency.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %s", validation.Message(err))
	}
	if c.Recommend.TopKMax < c.Recommend.TopKDefault {
		return fmt.Errorf("recommend.top_k_max %d below top_k_default %d",
			c.Recommend.TopKMax, c.Recommend.TopKDefault)
	}
	if c.Cache.Backend == "badger" && c.Cache.Path == "" {
		return fmt.Errorf("cache.path is required for the badger backend")
	}
	if c.Archive.Enabled && c.Archive.Path == "" {
		return fmt.Errorf("archive.path is required when the archive is enabled")
	}
	return nil
}

// CacheTTL returns the context TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// Deadline returns the suggestion deadline as a duration.
func (c *Config) Deadline() time.Duration {
	return time.Duration(c.Recommend.DeadlineMS) * time.Millisecond
}
