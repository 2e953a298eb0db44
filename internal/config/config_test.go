// Cadenza - AI-Assisted Music Production Platform
// Copyright 2026 Cadenza Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cadenza-audio/cadenza

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Cache.Backend != "memory" || cfg.Cache.TTLSeconds != 3600 {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.Index.EmbeddingDim != 512 || cfg.Index.MaxEntriesPerUser != 100000 {
		t.Errorf("Index = %+v", cfg.Index)
	}
	if cfg.Recommend.TopKDefault != 10 || cfg.Recommend.TopKMax != 50 {
		t.Errorf("Recommend = %+v", cfg.Recommend)
	}
	if cfg.CacheTTL() != time.Hour {
		t.Errorf("CacheTTL() = %v", cfg.CacheTTL())
	}
	if cfg.Deadline() != 500*time.Millisecond {
		t.Errorf("Deadline() = %v", cfg.Deadline())
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cadenza.yaml")
	body := []byte(`
server:
  addr: ":9090"
cache:
  backend: badger
  path: /tmp/ctx
  ttl_seconds: 60
recommend:
  deadline_ms: 250
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Cache.Backend != "badger" || cfg.Cache.TTLSeconds != 60 {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
	if cfg.Recommend.DeadlineMS != 250 {
		t.Errorf("DeadlineMS = %d", cfg.Recommend.DeadlineMS)
	}
	// Untouched keys keep their defaults.
	if cfg.Index.EmbeddingDim != 512 {
		t.Errorf("EmbeddingDim = %d", cfg.Index.EmbeddingDim)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CADENZA_CACHE__TTL_SECONDS", "120")
	t.Setenv("CADENZA_LOG__LEVEL", "debug")
	t.Setenv("CADENZA_INDEX__EMBEDDING_DIM", "8")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Cache.TTLSeconds != 120 {
		t.Errorf("Cache.TTLSeconds = %d, want 120", cfg.Cache.TTLSeconds)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Index.EmbeddingDim != 8 {
		t.Errorf("Index.EmbeddingDim = %d, want 8", cfg.Index.EmbeddingDim)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() with missing explicit file should fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad cache backend", func(c *Config) { c.Cache.Backend = "redis" }},
		{"zero ttl", func(c *Config) { c.Cache.TTLSeconds = 0 }},
		{"top_k_max below default", func(c *Config) { c.Recommend.TopKMax = 5 }},
		{"badger without path", func(c *Config) { c.Cache.Backend = "badger"; c.Cache.Path = "" }},
		{"archive without path", func(c *Config) { c.Archive.Path = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() should fail")
			}
		})
	}

	t.Run("defaults are valid", func(t *testing.T) {
		cfg := Default()
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() error = %v", err)
		}
	})
}
