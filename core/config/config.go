package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	History  HistoryConfig  `yaml:"history"`
	Tracking TrackingConfig `yaml:"tracking"`
	Merge    MergeConfig    `yaml:"merge"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type HistoryConfig struct {
	SnapshotCacheCounters int64 `yaml:"snapshot_cache_counters"`
	SnapshotCacheMaxCost  int64 `yaml:"snapshot_cache_max_cost"`
	DiffCacheSize         int   `yaml:"diff_cache_size"`
}

type TrackingConfig struct {
	MaxChanges    int    `yaml:"max_changes"`
	MaxActivities int    `yaml:"max_activities"`
	ArchivePath   string `yaml:"archive_path"`
}

// MergeConfig feeds history.MergerConfig: RequestTTL bounds how long a
// merge-request preview stays valid before IsExpired reports stale.
type MergeConfig struct {
	RequestTTL time.Duration `yaml:"request_ttl"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func DefaultConfig() *Config {
	return &Config{
		History: HistoryConfig{
			SnapshotCacheCounters: 100_000,
			SnapshotCacheMaxCost:  10_000_000,
			DiffCacheSize:         512,
		},
		Tracking: TrackingConfig{
			MaxChanges:    1000,
			MaxActivities: 500,
			ArchivePath:   "formweave-audit.db",
		},
		Merge: MergeConfig{
			RequestTTL: 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML config file over the defaults. A missing file is not an
// error; the defaults apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}
