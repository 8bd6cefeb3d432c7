// Package config loads quickmod settings from defaults, an optional TOML
// file and QUICKMOD_* environment variables, in increasing precedence.
// Command line flags are applied on top as overrides.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/matzehuels/quickmod/pkg/cache"
	"github.com/matzehuels/quickmod/pkg/fetch"
	"github.com/matzehuels/quickmod/pkg/httputil"
)

const (
	// AppName names the configuration, data and cache directories.
	AppName = "quickmod"
	// EnvPrefix prefixes environment overrides: cache.backend is QUICKMOD_CACHE_BACKEND.
	EnvPrefix = "QUICKMOD"
	// FileName is the config file looked up in [Dir].
	FileName = "config.toml"
)

// Config holds every setting.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Store     StoreConfig     `mapstructure:"store"`
	Downloads DownloadsConfig `mapstructure:"downloads"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Game      GameConfig      `mapstructure:"game"`
	Server    ServerConfig    `mapstructure:"server"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type StoreConfig struct {
	Dir string `mapstructure:"dir"`
}

type DownloadsConfig struct {
	Dir string `mapstructure:"dir"`
}

type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	Dir     string        `mapstructure:"dir"`
	TTL     time.Duration `mapstructure:"ttl"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Mongo   MongoConfig   `mapstructure:"mongo"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type FetchConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Retries     int           `mapstructure:"retries"`
}

type GameConfig struct {
	Version string `mapstructure:"version"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoadOptions controls where configuration is read from.
type LoadOptions struct {
	// File is an explicit config file; it must exist.
	File string
	// Dir replaces the platform config directory when looking for FileName.
	Dir string
	// Overrides are applied last, keyed like "cache.backend".
	Overrides map[string]any
}

// Dir returns the platform configuration directory for quickmod.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get config dir: %w", err)
	}
	return filepath.Join(base, AppName), nil
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	data := dataDir()
	cacheBase, err := os.UserCacheDir()
	if err != nil {
		cacheBase = os.TempDir()
	}
	return &Config{
		Log:       LogConfig{Level: "info"},
		Store:     StoreConfig{Dir: filepath.Join(data, "quickmods")},
		Downloads: DownloadsConfig{Dir: filepath.Join(data, "downloads")},
		Cache: CacheConfig{
			Backend: cache.BackendFile,
			Dir:     filepath.Join(cacheBase, AppName),
			TTL:     time.Hour,
			Redis:   RedisConfig{Addr: "localhost:6379"},
			Mongo:   MongoConfig{URI: "mongodb://localhost:27017", Database: AppName, Collection: "http_cache"},
		},
		Fetch: FetchConfig{
			Concurrency: fetch.DefaultConcurrency,
			Timeout:     httputil.DefaultTimeout,
			Retries:     httputil.DefaultPolicy.Attempts,
		},
		Server: ServerConfig{Addr: "127.0.0.1:8080"},
	}
}

// dataDir follows XDG_DATA_HOME, defaulting to ~/.local/share.
func dataDir() string {
	if d := os.Getenv("XDG_DATA_HOME"); d != "" {
		return filepath.Join(d, AppName)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", AppName)
	}
	return filepath.Join(os.TempDir(), AppName)
}

// Load reads the configuration. It returns the config and the path of the
// file it was read from, or "" when only defaults and environment applied.
func Load(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", fmt.Errorf("load config canceled: %w", err)
	}

	v := viper.New()
	setDefaults(v, Defaults())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path := opts.File
	if path == "" {
		dir := opts.Dir
		if dir == "" {
			d, err := Dir()
			if err != nil {
				return nil, "", err
			}
			dir = d
		}
		if candidate := filepath.Join(dir, FileName); fileExists(candidate) {
			path = candidate
		}
	} else if !fileExists(path) {
		return nil, "", fmt.Errorf("config file not found: %s", path)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, "", fmt.Errorf("read config %s: %w", path, err)
		}
	}

	for k, val := range opts.Overrides {
		v.Set(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return &cfg, path, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("store.dir", d.Store.Dir)
	v.SetDefault("downloads.dir", d.Downloads.Dir)
	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.redis.addr", d.Cache.Redis.Addr)
	v.SetDefault("cache.redis.password", d.Cache.Redis.Password)
	v.SetDefault("cache.redis.db", d.Cache.Redis.DB)
	v.SetDefault("cache.mongo.uri", d.Cache.Mongo.URI)
	v.SetDefault("cache.mongo.database", d.Cache.Mongo.Database)
	v.SetDefault("cache.mongo.collection", d.Cache.Mongo.Collection)
	v.SetDefault("fetch.concurrency", d.Fetch.Concurrency)
	v.SetDefault("fetch.timeout", d.Fetch.Timeout)
	v.SetDefault("fetch.retries", d.Fetch.Retries)
	v.SetDefault("game.version", d.Game.Version)
	v.SetDefault("server.addr", d.Server.Addr)
}

// Validate rejects settings no component can work with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Cache.Backend {
	case cache.BackendFile, cache.BackendRedis, cache.BackendMongo, cache.BackendNone:
	default:
		errs = append(errs, fmt.Errorf("cache.backend: unknown backend %q", c.Cache.Backend))
	}
	if c.Fetch.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("fetch.concurrency: must be at least 1, got %d", c.Fetch.Concurrency))
	}
	if c.Fetch.Retries < 1 {
		errs = append(errs, fmt.Errorf("fetch.retries: must be at least 1, got %d", c.Fetch.Retries))
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, errors.New("fetch.timeout: must be positive"))
	}
	if c.Store.Dir == "" {
		errs = append(errs, errors.New("store.dir: required"))
	}
	if c.Downloads.Dir == "" {
		errs = append(errs, errors.New("downloads.dir: required"))
	}
	return errors.Join(errs...)
}

// CacheOptions returns the options for [cache.Open].
func (c *Config) CacheOptions() cache.Options {
	return cache.Options{
		Backend: c.Cache.Backend,
		Dir:     c.Cache.Dir,
		Redis: cache.RedisOptions{
			Addr:     c.Cache.Redis.Addr,
			Password: c.Cache.Redis.Password,
			DB:       c.Cache.Redis.DB,
		},
		Mongo: cache.MongoOptions{
			URI:        c.Cache.Mongo.URI,
			Database:   c.Cache.Mongo.Database,
			Collection: c.Cache.Mongo.Collection,
		},
	}
}

// FetchOptions returns the options for [fetch.New] using responses cache c.
func (c *Config) FetchOptions(responses cache.Cache) fetch.Options {
	return fetch.Options{
		Timeout:     c.Fetch.Timeout,
		Concurrency: int64(c.Fetch.Concurrency),
		Retry: httputil.Policy{
			Attempts: c.Fetch.Retries,
			Delay:    httputil.DefaultPolicy.Delay,
			MaxDelay: httputil.DefaultPolicy.MaxDelay,
		},
		Cache:    responses,
		CacheTTL: c.Cache.TTL,
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
