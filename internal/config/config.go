// Package config layers hadir settings: built-in defaults, then an optional YAML
// file named by HADIR_CONFIG_PATH, then HADIR_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/faizmokh/hadir/internal/files"
	"github.com/faizmokh/hadir/internal/ledger"
	"github.com/faizmokh/hadir/internal/match"
)

// Config defines hadir configuration.
type Config struct {
	Match     MatchConfig     `yaml:"match"`
	Session   SessionConfig   `yaml:"session"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Enroll    EnrollConfig    `yaml:"enroll"`
	Storage   StorageConfig   `yaml:"storage"`
	Log       LogConfig       `yaml:"log"`
}

type MatchConfig struct {
	Threshold float64 `yaml:"threshold"`
}

type SessionConfig struct {
	Cadence int    `yaml:"cadence"`
	Cutoff  string `yaml:"cutoff"` // HH:MM:SS, local time
}

type EmbeddingConfig struct {
	URL   string  `yaml:"url"`
	Scale float64 `yaml:"scale"` // frame downscale before detection
}

type EnrollConfig struct {
	Dir        string `yaml:"dir"`
	RosterFile string `yaml:"roster_file"` // precomputed roster; wins over Dir when set
}

// StorageConfig paths are relative to the data home unless absolute.
type StorageConfig struct {
	LedgerFile string `yaml:"ledger_file"`
	ArchiveDir string `yaml:"archive_dir"`
	CacheFile  string `yaml:"cache_file"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Match:     MatchConfig{Threshold: match.DefaultThreshold},
		Session:   SessionConfig{Cadence: 1, Cutoff: ledger.DefaultCutoff.String()},
		Embedding: EmbeddingConfig{URL: "http://localhost:8000", Scale: 0.25},
		Enroll:    EnrollConfig{Dir: "enroll"},
		Storage: StorageConfig{
			LedgerFile: files.DefaultLedgerFile,
			ArchiveDir: files.DefaultArchiveDir,
			CacheFile:  files.DefaultCacheFile,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("HADIR_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("HADIR_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid HADIR_THRESHOLD: %w", err)
		}
		cfg.Match.Threshold = f
	}
	if v := os.Getenv("HADIR_CADENCE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid HADIR_CADENCE: %w", err)
		}
		cfg.Session.Cadence = n
	}
	if v := os.Getenv("HADIR_CUTOFF"); v != "" {
		cfg.Session.Cutoff = v
	}
	if v := os.Getenv("HADIR_EMBEDDING_URL"); v != "" {
		cfg.Embedding.URL = v
	}
	if v := os.Getenv("HADIR_EMBEDDING_SCALE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid HADIR_EMBEDDING_SCALE: %w", err)
		}
		cfg.Embedding.Scale = f
	}
	if v := os.Getenv("HADIR_ENROLL_DIR"); v != "" {
		cfg.Enroll.Dir = v
	}
	if v := os.Getenv("HADIR_ROSTER_FILE"); v != "" {
		cfg.Enroll.RosterFile = v
	}
	if v := os.Getenv("HADIR_LEDGER_FILE"); v != "" {
		cfg.Storage.LedgerFile = v
	}
	if v := os.Getenv("HADIR_ARCHIVE_DIR"); v != "" {
		cfg.Storage.ArchiveDir = v
	}
	if v := os.Getenv("HADIR_CACHE_FILE"); v != "" {
		cfg.Storage.CacheFile = v
	}
	if v := os.Getenv("HADIR_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

// Validate rejects settings a session cannot run with.
func (c Config) Validate() error {
	if c.Match.Threshold <= 0 {
		return fmt.Errorf("match threshold must be positive, got %v", c.Match.Threshold)
	}
	if c.Session.Cadence < 1 {
		return fmt.Errorf("session cadence must be at least 1, got %d", c.Session.Cadence)
	}
	cutoff, err := ledger.ParseCutoff(c.Session.Cutoff)
	if err != nil {
		return err
	}
	if cutoff == (ledger.Cutoff{}) {
		return fmt.Errorf("session cutoff 00:00:00 would mark everyone absent")
	}
	if c.Embedding.Scale <= 0 || c.Embedding.Scale > 1 {
		return fmt.Errorf("embedding scale must be in (0, 1], got %v", c.Embedding.Scale)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}

// Cutoff returns the parsed status cutoff. Call after Validate.
func (c Config) Cutoff() ledger.Cutoff {
	cutoff, err := ledger.ParseCutoff(c.Session.Cutoff)
	if err != nil {
		return ledger.DefaultCutoff
	}
	return cutoff
}
