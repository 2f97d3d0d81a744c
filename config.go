package domresolve

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all domresolve configuration.
type Config struct {
	Cache         CacheConfig         `yaml:"cache"`
	Loader        LoaderConfig        `yaml:"loader"`
	Invalidation  InvalidationConfig  `yaml:"invalidation"`
	Tabs          TabsConfig          `yaml:"tabs"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// CacheConfig tunes the shared contextual cache.
type CacheConfig struct {
	MaxEntries     int           `yaml:"max_entries"`
	MaxMemoryBytes int64         `yaml:"max_memory_bytes"`
	BaseTTL        time.Duration `yaml:"base_ttl"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
}

// LoaderConfig points at the selector definition tree.
type LoaderConfig struct {
	BaseDir     string        `yaml:"base_dir"`
	CacheSize   int           `yaml:"cache_size"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
	Concurrency int           `yaml:"concurrency"`
	// PreloadPaths are context paths warmed at session start.
	PreloadPaths []string `yaml:"preload_paths"`
}

// InvalidationConfig tunes the rule engine and delayed processor.
type InvalidationConfig struct {
	Grace         time.Duration `yaml:"grace"`
	Tick          time.Duration `yaml:"tick"`
	StaleAge      time.Duration `yaml:"stale_age"`
	AuditCapacity int           `yaml:"audit_capacity"`
}

// TabsConfig tunes tab isolation. The single-active-per-type policy is
// on by default; set disable_single_active_per_type to lift it.
type TabsConfig struct {
	DisableSingleActivePerType bool          `yaml:"disable_single_active_per_type"`
	InactivityTimeout          time.Duration `yaml:"inactivity_timeout"`
	MaxTabs                    int           `yaml:"max_tabs"`
	SweepInterval              time.Duration `yaml:"sweep_interval"`
}

// ObservabilityConfig controls the SQLite event store. An empty DBPath
// disables persistence entirely.
type ObservabilityConfig struct {
	DBPath        string `yaml:"db_path"`
	BufferSize    int    `yaml:"buffer_size"`
	RetentionDays int    `yaml:"retention_days"`
	// SnapshotInterval is how often strategy counters are persisted.
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
}

func (c *Config) defaults() {
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = 1000
	}
	if c.Cache.BaseTTL <= 0 {
		c.Cache.BaseTTL = 5 * time.Minute
	}
	if c.Cache.SweepInterval <= 0 {
		c.Cache.SweepInterval = 30 * time.Second
	}
	if c.Loader.CacheSize <= 0 {
		c.Loader.CacheSize = 100
	}
	if c.Loader.CacheTTL <= 0 {
		c.Loader.CacheTTL = 5 * time.Minute
	}
	if c.Loader.Concurrency <= 0 {
		c.Loader.Concurrency = 5
	}
	if c.Invalidation.Grace <= 0 {
		c.Invalidation.Grace = 60 * time.Second
	}
	if c.Invalidation.Tick <= 0 {
		c.Invalidation.Tick = time.Minute
	}
	if c.Invalidation.StaleAge <= 0 {
		c.Invalidation.StaleAge = 5 * time.Minute
	}
	if c.Tabs.InactivityTimeout <= 0 {
		c.Tabs.InactivityTimeout = 10 * time.Minute
	}
	if c.Tabs.MaxTabs <= 0 {
		c.Tabs.MaxTabs = 32
	}
	if c.Tabs.SweepInterval <= 0 {
		c.Tabs.SweepInterval = time.Minute
	}
	if c.Observability.BufferSize <= 0 {
		c.Observability.BufferSize = 1000
	}
	if c.Observability.RetentionDays <= 0 {
		c.Observability.RetentionDays = 30
	}
	if c.Observability.SnapshotInterval <= 0 {
		c.Observability.SnapshotInterval = 5 * time.Minute
	}
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
