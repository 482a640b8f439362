// Package config loads pagefind configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hazyhaar/pagefind/find"
	"github.com/hazyhaar/pagefind/framebus"
	"github.com/hazyhaar/pagefind/internal/pageload"
	"github.com/hazyhaar/pagefind/observability"
	"github.com/hazyhaar/pagefind/shield"
	"gopkg.in/yaml.v3"
)

// Page loaders.
const (
	LoaderStatic  = "static"
	LoaderHTTP    = "http"
	LoaderBrowser = "browser"
)

// Sink types.
const (
	SinkStdout  = "stdout"
	SinkWebhook = "webhook"
	SinkNone    = "none"
)

// Config is the top-level pagefind configuration.
type Config struct {
	Page          PageConfig             `yaml:"page"`
	Browser       pageload.BrowserConfig `yaml:"browser"`
	Engine        EngineConfig           `yaml:"engine"`
	Secret        SecretConfig           `yaml:"secret"`
	Sinks         []SinkConfig           `yaml:"sinks"`
	HTTP          HTTPConfig             `yaml:"http"`
	Observability ObservabilityConfig    `yaml:"observability"`
}

// PageConfig names the page to load.
type PageConfig struct {
	URL    string `yaml:"url"`
	File   string `yaml:"file"`
	Loader string `yaml:"loader"` // static | http | browser
}

// EngineConfig groups the bus and find limits.
type EngineConfig struct {
	Bus  framebus.Config `yaml:"bus"`
	Find find.Config     `yaml:"find"`
}

// SecretConfig sets how the session secret is obtained. With a master
// secret, the session secret is derived for Session; otherwise a random
// one is generated at start.
type SecretConfig struct {
	Master  string `yaml:"master"`
	Session string `yaml:"session"`
}

// SinkConfig defines one update destination.
type SinkConfig struct {
	Type     string `yaml:"type"` // stdout | webhook | none
	URL      string `yaml:"url"`
	Retries  int    `yaml:"retries"`
	Sanitize *bool  `yaml:"sanitize"`
}

// HTTPConfig controls the host API listener. A negative
// RateLimit.Requests disables rate limiting.
type HTTPConfig struct {
	Listen    string      `yaml:"listen"`
	RateLimit shield.Rule `yaml:"rate_limit"`
}

// ObservabilityConfig controls the SQLite store. An empty Path disables it.
type ObservabilityConfig struct {
	Path              string                  `yaml:"path"`
	HeartbeatInterval time.Duration           `yaml:"heartbeat_interval"`
	Retention         observability.Retention `yaml:"retention"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields. It is idempotent so flag overrides can
// be applied before calling it again.
func (c *Config) ApplyDefaults() {
	if c.Page.Loader == "" {
		if c.Page.URL != "" {
			c.Page.Loader = LoaderHTTP
		} else {
			c.Page.Loader = LoaderStatic
		}
	}
	if c.Secret.Session == "" {
		c.Secret.Session = "default"
	}
	if len(c.Sinks) == 0 {
		c.Sinks = []SinkConfig{{Type: SinkStdout}}
	}
	for i := range c.Sinks {
		if c.Sinks[i].Type == "" {
			c.Sinks[i].Type = SinkStdout
		}
		if c.Sinks[i].Retries <= 0 {
			c.Sinks[i].Retries = 3
		}
		if c.Sinks[i].Sanitize == nil {
			on := true
			c.Sinks[i].Sanitize = &on
		}
	}
	if c.HTTP.RateLimit.Requests == 0 {
		c.HTTP.RateLimit.Requests = 600
	}
	if c.HTTP.RateLimit.Window <= 0 {
		c.HTTP.RateLimit.Window = time.Minute
	}
	if c.Observability.HeartbeatInterval <= 0 {
		c.Observability.HeartbeatInterval = 15 * time.Second
	}
	r := &c.Observability.Retention
	if r.Commands <= 0 {
		r.Commands = 7 * 24 * time.Hour
	}
	if r.Updates <= 0 {
		r.Updates = 24 * time.Hour
	}
	if r.Metrics <= 0 {
		r.Metrics = 7 * 24 * time.Hour
	}
	if r.Heartbeats <= 0 {
		r.Heartbeats = 24 * time.Hour
	}
}

// Validate reports inconsistent settings.
func (c *Config) Validate() error {
	switch c.Page.Loader {
	case LoaderStatic:
		if c.Page.File == "" {
			return fmt.Errorf("config: page.file is required for the %s loader", LoaderStatic)
		}
	case LoaderHTTP, LoaderBrowser:
		if c.Page.URL == "" {
			return fmt.Errorf("config: page.url is required for the %s loader", c.Page.Loader)
		}
	default:
		return fmt.Errorf("config: unknown page.loader %q", c.Page.Loader)
	}
	for i, s := range c.Sinks {
		switch s.Type {
		case SinkStdout, SinkNone:
		case SinkWebhook:
			if s.URL == "" {
				return fmt.Errorf("config: sinks[%d]: webhook needs a url", i)
			}
		default:
			return fmt.Errorf("config: sinks[%d]: unknown type %q", i, s.Type)
		}
	}
	return nil
}
