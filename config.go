package pagefind

import "github.com/hazyhaar/pagefind/internal/config"

// Config is the top-level pagefind configuration. Re-exported from internal.
type Config = config.Config

// PageConfig names the page to load.
type PageConfig = config.PageConfig

// EngineConfig groups the bus and find limits.
type EngineConfig = config.EngineConfig

// SecretConfig sets how the session secret is obtained.
type SecretConfig = config.SecretConfig

// SinkConfig defines one update destination.
type SinkConfig = config.SinkConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// ParseConfig decodes YAML configuration.
func ParseConfig(data []byte) (*Config, error) {
	return config.Parse(data)
}
