// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Thermoquad/webcontrol/pkg/desk"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. WEBCONTROL_HTTP_ADDR
const EnvPrefix = "WEBCONTROL"

// EnvConfig names the config file when --config is not given
const EnvConfig = EnvPrefix + "_CONFIG"

// DefaultDeskName is the resource served when no desks are configured
const DefaultDeskName = "sarahsdesk"

// DefaultBaudRate is used for serial desks with no baud set
const DefaultBaudRate = 115200

// HTTPConfig is the HTTP front-end configuration
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	Static       string        `mapstructure:"static"`
}

// LumberjackConfig configures log file rotation
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig sets the log level, encoder and optional file output
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// LinkConfig holds settings shared by every desk link
type LinkConfig struct {
	SendTimeout      time.Duration `mapstructure:"sendTimeout"`
	FailureThreshold int           `mapstructure:"failureThreshold"`
	RateLimit        float64       `mapstructure:"rateLimit"` // requests per second per desk, 0 disables
	Burst            int           `mapstructure:"burst"`
	DryRun           bool          `mapstructure:"dryRun"`
}

// DeskConfig describes one desk and how to reach it.
// Exactly one of Port (serial) or URL (WebSocket bridge) must be set.
type DeskConfig struct {
	Name        string `mapstructure:"name"`
	Port        string `mapstructure:"port"`
	Baud        int    `mapstructure:"baud"`
	URL         string `mapstructure:"url"`
	Username    string `mapstructure:"username"`
	NoSSLVerify bool   `mapstructure:"noSSLVerify"`
	MinRaw      uint16 `mapstructure:"minRaw"`
	MaxRaw      uint16 `mapstructure:"maxRaw"`
}

// HeightRange returns the desk's raw range. An unset (zero) bound takes its
// value from desk.DefaultHeightRange, so either bound can be overridden alone.
func (d DeskConfig) HeightRange() desk.HeightRange {
	r := desk.DefaultHeightRange
	if d.MinRaw != 0 {
		r.MinRaw = d.MinRaw
	}
	if d.MaxRaw != 0 {
		r.MaxRaw = d.MaxRaw
	}
	return r
}

// Config is the top-level configuration
type Config struct {
	HTTP    HTTPConfig    `mapstructure:"http"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Link    LinkConfig    `mapstructure:"link"`
	Desks   []DeskConfig  `mapstructure:"desks"`
}

// reservedDeskNames are served by built-in GET routes at the root
var reservedDeskNames = map[string]bool{
	"healthz": true,
	"readyz":  true,
	"health":  true,
	"api":     true,
}

// flagKeys maps command-line flags onto config keys
var flagKeys = map[string]string{
	"listen":       "http.addr",
	"static":       "http.static",
	"log-level":    "logging.level",
	"log-file":     "logging.file.filename",
	"dry-run":      "link.dryRun",
	"send-timeout": "link.sendTimeout",
}

// Load reads configuration from a YAML/TOML/JSON file, environment
// variables and flags. If path is empty, WEBCONTROL_CONFIG is used; with
// neither, ./webcontrol.yaml or ./configs/webcontrol.yaml is tried and a
// missing file is not an error. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("webcontrol")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "10s")
	v.SetDefault("http.static", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("link.sendTimeout", desk.DefaultSendTimeout.String())
	v.SetDefault("link.failureThreshold", desk.DefaultFailureThreshold)
	v.SetDefault("link.rateLimit", 5.0)
	v.SetDefault("link.burst", 10)
	v.SetDefault("link.dryRun", false)
}

// normalize fills per-desk defaults that viper cannot express for list items
func (c *Config) normalize() {
	for i := range c.Desks {
		d := &c.Desks[i]
		d.Name = strings.TrimSpace(d.Name)
		if d.Port != "" && d.Baud == 0 {
			d.Baud = DefaultBaudRate
		}
	}
}

// Validate checks the configuration for errors that would prevent serving
func (c *Config) Validate() error {
	var errs []error

	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.Link.SendTimeout <= 0 {
		errs = append(errs, fmt.Errorf("link.sendTimeout must be positive, got %v", c.Link.SendTimeout))
	}
	if c.Link.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("link.rateLimit must not be negative, got %v", c.Link.RateLimit))
	}
	if c.Link.RateLimit > 0 && c.Link.Burst < 1 {
		errs = append(errs, fmt.Errorf("link.burst must be at least 1 when rate limiting, got %d", c.Link.Burst))
	}
	if c.Metrics.Enable && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path))
	}
	if len(c.Desks) == 0 {
		errs = append(errs, errors.New("no desks configured"))
	}

	seen := make(map[string]bool, len(c.Desks))
	for i, d := range c.Desks {
		switch {
		case d.Name == "":
			errs = append(errs, fmt.Errorf("desks[%d]: name is required", i))
		case strings.ContainsAny(d.Name, "/?#"):
			errs = append(errs, fmt.Errorf("desks[%d]: name %q must be a single path segment", i, d.Name))
		case reservedDeskNames[d.Name] || (c.Metrics.Enable && d.Name == strings.Trim(c.Metrics.Path, "/")):
			errs = append(errs, fmt.Errorf("desks[%d]: name %q is reserved for a built-in route", i, d.Name))
		case seen[d.Name]:
			errs = append(errs, fmt.Errorf("desks[%d]: duplicate name %q", i, d.Name))
		}
		seen[d.Name] = true

		if !c.Link.DryRun {
			if d.Port == "" && d.URL == "" {
				errs = append(errs, fmt.Errorf("desk %q: one of port or url is required", d.Name))
			}
			if d.Port != "" && d.URL != "" {
				errs = append(errs, fmt.Errorf("desk %q: port and url are mutually exclusive", d.Name))
			}
		}
		if err := d.HeightRange().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("desk %q: %w", d.Name, err))
		}
	}

	return errors.Join(errs...)
}
