// Package config loads openmemory settings from an optional YAML file, a
// .env file and OPENMEMORY_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rcliao/openmemory/internal/engine"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "OPENMEMORY_"

// Config is the full runtime configuration.
type Config struct {
	DataDir      string        `yaml:"data_dir"`
	MetadataDB   string        `yaml:"metadata_db"`
	IndexDB      string        `yaml:"index_db"`
	StoreTimeout time.Duration `yaml:"store_timeout"`
	WriteRetries int           `yaml:"write_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
	MaxBackoff   time.Duration `yaml:"max_backoff"`

	Search  SearchConfig   `yaml:"search"`
	List    ListConfig     `yaml:"list"`
	Weights engine.Weights `yaml:"weights"`
	Cache   CacheConfig    `yaml:"cache"`
	Log     LogConfig      `yaml:"log"`
	HTTP    HTTPConfig     `yaml:"http"`
}

type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
	OverFetch    int `yaml:"overfetch"`
}

type ListConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
}

type CacheConfig struct {
	Enabled    bool  `yaml:"enabled"`
	MaxRecords int64 `yaml:"max_records"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration rooted at ~/.openmemory.
func Default() Config {
	opts := engine.DefaultOptions()
	return Config{
		DataDir:      DefaultDataDir(),
		StoreTimeout: opts.StoreTimeout,
		WriteRetries: opts.WriteRetries,
		RetryBackoff: opts.RetryBackoff,
		MaxBackoff:   opts.MaxBackoff,
		Search: SearchConfig{
			DefaultLimit: opts.DefaultSearchLimit,
			MaxLimit:     opts.MaxSearchLimit,
			OverFetch:    opts.OverFetch,
		},
		List: ListConfig{
			DefaultLimit: opts.DefaultListLimit,
			MaxLimit:     opts.MaxListLimit,
		},
		Weights: engine.DefaultWeights,
		Cache:   CacheConfig{Enabled: true, MaxRecords: 10000},
		Log:     LogConfig{Level: "info", Format: "text"},
		HTTP:    HTTPConfig{Addr: "127.0.0.1:8080"},
	}
}

// DefaultDataDir is ~/.openmemory, or .openmemory when there is no home.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".openmemory"
	}
	return filepath.Join(home, ".openmemory")
}

// DefaultPath is the config file read when none is given.
func DefaultPath() string {
	return filepath.Join(DefaultDataDir(), "config.yaml")
}

// Load reads path (or DefaultPath when empty), then .env from the working
// directory, then the process environment. An explicit path must exist.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return LoadFrom(path, os.LookupEnv)
}

// LoadFrom is Load with an explicit environment lookup and no .env step.
func LoadFrom(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if err := cfg.readFile(path); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	cfg.resolvePaths()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// SetDataDir moves both database files under dir unless they were set
// explicitly to somewhere else.
func (c *Config) SetDataDir(dir string) {
	if c.MetadataDB == filepath.Join(c.DataDir, "metadata.db") {
		c.MetadataDB = ""
	}
	if c.IndexDB == filepath.Join(c.DataDir, "index.db") {
		c.IndexDB = ""
	}
	c.DataDir = dir
	c.resolvePaths()
}

func (c *Config) resolvePaths() {
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir()
	}
	if c.MetadataDB == "" {
		c.MetadataDB = filepath.Join(c.DataDir, "metadata.db")
	}
	if c.IndexDB == "" {
		c.IndexDB = filepath.Join(c.DataDir, "index.db")
	}
}

type envVar struct {
	name string
	set  func(c *Config, v string) error
}

var envVars = []envVar{
	{"DATA_DIR", func(c *Config, v string) error { c.DataDir = v; return nil }},
	{"METADATA_DB", func(c *Config, v string) error { c.MetadataDB = v; return nil }},
	{"INDEX_DB", func(c *Config, v string) error { c.IndexDB = v; return nil }},
	{"STORE_TIMEOUT", durationVar(func(c *Config) *time.Duration { return &c.StoreTimeout })},
	{"WRITE_RETRIES", intVar(func(c *Config) *int { return &c.WriteRetries })},
	{"RETRY_BACKOFF", durationVar(func(c *Config) *time.Duration { return &c.RetryBackoff })},
	{"MAX_BACKOFF", durationVar(func(c *Config) *time.Duration { return &c.MaxBackoff })},
	{"SEARCH_DEFAULT_LIMIT", intVar(func(c *Config) *int { return &c.Search.DefaultLimit })},
	{"SEARCH_MAX_LIMIT", intVar(func(c *Config) *int { return &c.Search.MaxLimit })},
	{"SEARCH_OVERFETCH", intVar(func(c *Config) *int { return &c.Search.OverFetch })},
	{"LIST_DEFAULT_LIMIT", intVar(func(c *Config) *int { return &c.List.DefaultLimit })},
	{"LIST_MAX_LIMIT", intVar(func(c *Config) *int { return &c.List.MaxLimit })},
	{"WEIGHT_LEXICAL", floatVar(func(c *Config) *float64 { return &c.Weights.Lexical })},
	{"WEIGHT_METADATA", floatVar(func(c *Config) *float64 { return &c.Weights.Metadata })},
	{"CACHE_ENABLED", func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		c.Cache.Enabled = b
		return err
	}},
	{"CACHE_MAX_RECORDS", func(c *Config, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		c.Cache.MaxRecords = n
		return err
	}},
	{"LOG_LEVEL", func(c *Config, v string) error { c.Log.Level = v; return nil }},
	{"LOG_FORMAT", func(c *Config, v string) error { c.Log.Format = v; return nil }},
	{"HTTP_ADDR", func(c *Config, v string) error { c.HTTP.Addr = v; return nil }},
}

func durationVar(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}

func intVar(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func floatVar(field func(*Config) *float64) func(*Config, string) error {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*field(c) = f
		return nil
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for _, ev := range envVars {
		v, ok := lookup(EnvPrefix + ev.name)
		if !ok || v == "" {
			continue
		}
		if err := ev.set(c, v); err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, ev.name, err)
		}
	}
	return nil
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	var errs []error
	positive := func(name string, v int64) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	positive("store_timeout", int64(c.StoreTimeout))
	positive("retry_backoff", int64(c.RetryBackoff))
	positive("max_backoff", int64(c.MaxBackoff))
	positive("search.default_limit", int64(c.Search.DefaultLimit))
	positive("search.max_limit", int64(c.Search.MaxLimit))
	positive("search.overfetch", int64(c.Search.OverFetch))
	positive("list.default_limit", int64(c.List.DefaultLimit))
	positive("list.max_limit", int64(c.List.MaxLimit))
	if c.Cache.Enabled {
		positive("cache.max_records", c.Cache.MaxRecords)
	}
	if c.WriteRetries < 0 {
		errs = append(errs, fmt.Errorf("write_retries must not be negative, got %d", c.WriteRetries))
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		errs = append(errs, fmt.Errorf("search.default_limit %d exceeds search.max_limit %d", c.Search.DefaultLimit, c.Search.MaxLimit))
	}
	if c.List.DefaultLimit > c.List.MaxLimit {
		errs = append(errs, fmt.Errorf("list.default_limit %d exceeds list.max_limit %d", c.List.DefaultLimit, c.List.MaxLimit))
	}
	if c.Weights.Lexical < 0 || c.Weights.Metadata < 0 {
		errs = append(errs, fmt.Errorf("weights must not be negative"))
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// EngineOptions converts the config into engine options. Cache and Logger
// are left for the caller.
func (c Config) EngineOptions() engine.Options {
	return engine.Options{
		StoreTimeout:       c.StoreTimeout,
		WriteRetries:       c.WriteRetries,
		RetryBackoff:       c.RetryBackoff,
		MaxBackoff:         c.MaxBackoff,
		DefaultSearchLimit: c.Search.DefaultLimit,
		MaxSearchLimit:     c.Search.MaxLimit,
		OverFetch:          c.Search.OverFetch,
		DefaultListLimit:   c.List.DefaultLimit,
		MaxListLimit:       c.List.MaxLimit,
		Weights:            c.Weights,
	}
}
