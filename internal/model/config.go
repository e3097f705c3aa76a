package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SessionConfig controls the per-user notification session.
type SessionConfig struct {
	// UserID is the marketplace user the session runs for.
	UserID string `mapstructure:"user_id" yaml:"user_id"`

	// PollIntervalSec is how often (in seconds) listings are polled.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`

	// DedupTTLMillis is the window in which equal correlation keys
	// are treated as the same event.
	DedupTTLMillis int `mapstructure:"dedup_ttl_ms" yaml:"dedup_ttl_ms"`
}

// PollInterval returns the poll interval as a duration.
func (c SessionConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// DedupTTL returns the dedup window as a duration.
func (c SessionConfig) DedupTTL() time.Duration {
	return time.Duration(c.DedupTTLMillis) * time.Millisecond
}

// APIConfig points at the marketplace REST API.
type APIConfig struct {
	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// PushConfig selects and tunes the push channel transport.
type PushConfig struct {
	// Transport is "redis" or "hub" (in-process, single instance).
	Transport     string `mapstructure:"transport" yaml:"transport"`
	RedisAddr     string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" yaml:"redis_db"`
	ChannelPrefix string `mapstructure:"channel_prefix" yaml:"channel_prefix"`

	ReconnectMinMillis int `mapstructure:"reconnect_min_ms" yaml:"reconnect_min_ms"`
	ReconnectMaxMillis int `mapstructure:"reconnect_max_ms" yaml:"reconnect_max_ms"`
}

// StoreConfig selects where notifications are persisted.
type StoreConfig struct {
	// Mode is "sqlite" (local database) or "remote" (REST API with
	// local fallback).
	Mode string `mapstructure:"mode" yaml:"mode"`
	Path string `mapstructure:"path" yaml:"path"`
}

// ServerConfig holds settings for the notification API server.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// AuthConfig holds the shared secret used to sign and verify bearer tokens.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	API     APIConfig     `mapstructure:"api" yaml:"api"`
	Push    PushConfig    `mapstructure:"push" yaml:"push"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Auth    AuthConfig    `mapstructure:"auth" yaml:"auth"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// envPrefix is prepended to environment overrides, e.g.
// CARFEED_SESSION_USER_ID.
const envPrefix = "CARFEED"

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/carfeed/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "carfeed", "config.yaml")
}

// DefaultDataPath returns the default SQLite database location.
func DefaultDataPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "carfeed.db")
	}
	return filepath.Join(home, ".local", "share", "carfeed", "carfeed.db")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Session: SessionConfig{
			PollIntervalSec: 30,
			DedupTTLMillis:  5000,
		},
		API: APIConfig{
			BaseURL:    "http://localhost:8080",
			TimeoutSec: 30,
		},
		Push: PushConfig{
			Transport:          "hub",
			RedisAddr:          "localhost:6379",
			ChannelPrefix:      "carfeed:user:",
			ReconnectMinMillis: 500,
			ReconnectMaxMillis: 30000,
		},
		Store: StoreConfig{
			Mode: "sqlite",
			Path: DefaultDataPath(),
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// setDefaults mirrors defaultAppConfig into v so that missing keys and
// environment overrides resolve consistently.
func setDefaults(v *viper.Viper) {
	d := defaultAppConfig()
	v.SetDefault("session.user_id", "")
	v.SetDefault("session.poll_interval_sec", d.Session.PollIntervalSec)
	v.SetDefault("session.dedup_ttl_ms", d.Session.DedupTTLMillis)
	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.timeout_sec", d.API.TimeoutSec)
	v.SetDefault("push.transport", d.Push.Transport)
	v.SetDefault("push.redis_addr", d.Push.RedisAddr)
	v.SetDefault("push.redis_password", "")
	v.SetDefault("push.redis_db", 0)
	v.SetDefault("push.channel_prefix", d.Push.ChannelPrefix)
	v.SetDefault("push.reconnect_min_ms", d.Push.ReconnectMinMillis)
	v.SetDefault("push.reconnect_max_ms", d.Push.ReconnectMaxMillis)
	v.SetDefault("store.mode", d.Store.Mode)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Environment variables prefixed with CARFEED_ override file values.
// If the file does not exist, defaults plus environment are used.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		_, isPathErr := err.(*os.PathError)
		_, isNotFound := err.(viper.ConfigFileNotFoundError)
		if !isPathErr && !isNotFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	normalize(cfg)
	return cfg, nil
}

// normalize fills in zero values that would otherwise break the session.
func normalize(cfg *AppConfig) {
	d := defaultAppConfig()
	if cfg.Session.PollIntervalSec <= 0 {
		cfg.Session.PollIntervalSec = d.Session.PollIntervalSec
	}
	if cfg.Session.DedupTTLMillis <= 0 {
		cfg.Session.DedupTTLMillis = d.Session.DedupTTLMillis
	}
	if cfg.API.TimeoutSec <= 0 {
		cfg.API.TimeoutSec = d.API.TimeoutSec
	}
	if cfg.Push.ReconnectMinMillis <= 0 {
		cfg.Push.ReconnectMinMillis = d.Push.ReconnectMinMillis
	}
	if cfg.Push.ReconnectMaxMillis < cfg.Push.ReconnectMinMillis {
		cfg.Push.ReconnectMaxMillis = cfg.Push.ReconnectMinMillis
	}
	if cfg.Push.ChannelPrefix == "" {
		cfg.Push.ChannelPrefix = d.Push.ChannelPrefix
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = d.Store.Path
	}
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("session", cfg.Session)
	v.Set("api", cfg.API)
	v.Set("push", cfg.Push)
	v.Set("store", cfg.Store)
	v.Set("server", cfg.Server)
	v.Set("auth", cfg.Auth)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
