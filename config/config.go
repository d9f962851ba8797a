// Package config loads runwatch configuration from a YAML file, .env and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"runwatch/logging"
)

// DefaultFile is read when no config path is given and it exists
const DefaultFile = "runwatch.yml"

// Config holds the runwatch configuration
type Config struct {
	Server  ServerConfig   `mapstructure:"server"`
	Storage StorageConfig  `mapstructure:"storage"`
	Log     logging.Config `mapstructure:"log"`
	Views   ViewsConfig    `mapstructure:"views"`
	Catalog CatalogConfig  `mapstructure:"catalog"`
}

// ServerConfig configures the HTTP server
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig configures the sqlite submission store
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// ViewsConfig configures in-memory run views
type ViewsConfig struct {
	TTL              time.Duration `mapstructure:"ttl"`               // idle views older than this are dropped
	JanitorInterval  time.Duration `mapstructure:"janitor_interval"`  // how often idle views are swept
	FilterChunk      int           `mapstructure:"filter_chunk"`      // events per filter step, 0 = unlimited
	AllowUnpersisted bool          `mapstructure:"allow_unpersisted"` // submit even when artifacts are not persisted
}

// CatalogConfig locates the pipeline catalog
type CatalogConfig struct {
	Path    string `mapstructure:"path"`
	BaseDir string `mapstructure:"base_dir"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("storage.path", "data/runwatch.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("views.ttl", "30m")
	v.SetDefault("views.janitor_interval", "1m")
	v.SetDefault("views.filter_chunk", 0)
	v.SetDefault("views.allow_unpersisted", false)
	v.SetDefault("catalog.path", "pipelines.yml")
	v.SetDefault("catalog.base_dir", "")
}

// Load reads configuration. A .env file in the working directory is loaded
// first if present; RUNWATCH_* variables override file values (for example
// RUNWATCH_SERVER_PORT), and PORT is honoured for the server port.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("RUNWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("server.port", "RUNWATCH_SERVER_PORT", "PORT"); err != nil {
		return nil, fmt.Errorf("failed to bind env: %w", err)
	}

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Storage.Path == "" {
		errs = append(errs, errors.New("storage.path is required"))
	}
	if c.Views.FilterChunk < 0 {
		errs = append(errs, fmt.Errorf("views.filter_chunk must not be negative: %d", c.Views.FilterChunk))
	}
	if c.Views.TTL < 0 || c.Views.JanitorInterval < 0 {
		errs = append(errs, errors.New("views durations must not be negative"))
	}
	return errors.Join(errs...)
}
