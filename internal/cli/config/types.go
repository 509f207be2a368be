// Package config provides configuration management for the attendchain CLI.
//
// This package extends the shared project configuration from
// internal/config (networks, compilers) with CLI-specific fields such as
// the selected network, the state database and the API server settings.
package config

import (
	"time"

	sharedcfg "github.com/iotsdd/attendchain/internal/config"
)

// NetworkConfig is an alias for the shared network definition.
type NetworkConfig = sharedcfg.NetworkConfig

// ProjectConfig is an alias for the shared project configuration.
type ProjectConfig = sharedcfg.ProjectConfig

// APIConfig holds configuration for the remote access API server.
type APIConfig struct {
	Port           int           `koanf:"port"`
	SessionSecret  string        `koanf:"session_secret"`
	SessionMaxAge  time.Duration `koanf:"session_max_age"`
	AdminUser      string        `koanf:"admin_user"`
	AdminPassword  string        `koanf:"admin_password"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
	WatchArtifacts bool          `koanf:"watch_artifacts"`
}

// Config holds all CLI configuration options.
type Config struct {
	ProjectConfig `koanf:",squash"`

	ProjectRoot  string     `koanf:"-"`
	NetworkName  string     `koanf:"network"`
	StatePath    string     `koanf:"state_path"`
	Verbose      bool       `koanf:"verbose"`
	OutputFormat string     `koanf:"output"`
	API          *APIConfig `koanf:"api"`
}

// Default configuration values.
const (
	DefaultNetwork        = sharedcfg.DefaultNetwork
	DefaultStateFile      = ".attendchain/state.db"
	DefaultOutput         = "auto" // Auto-detect: TTY=text, non-TTY=markdown
	DefaultAPIPort        = 5000
	DefaultSessionMaxAge  = time.Hour
	DefaultAdminUser      = "admin"
	DefaultRequestTimeout = 30 * time.Second
	EnvPrefix             = "ATTENDCHAIN_"
)

// DefaultAPIConfig returns an APIConfig with default values.
func DefaultAPIConfig() *APIConfig {
	return &APIConfig{
		Port:           DefaultAPIPort,
		SessionMaxAge:  DefaultSessionMaxAge,
		AdminUser:      DefaultAdminUser,
		RequestTimeout: DefaultRequestTimeout,
	}
}

// GetAPIConfig returns the API config with defaults applied for any unset values.
func (c *Config) GetAPIConfig() *APIConfig {
	if c.API == nil {
		return DefaultAPIConfig()
	}
	api := c.API
	if api.Port == 0 {
		api.Port = DefaultAPIPort
	}
	if api.SessionMaxAge == 0 {
		api.SessionMaxAge = DefaultSessionMaxAge
	}
	if api.AdminUser == "" {
		api.AdminUser = DefaultAdminUser
	}
	if api.RequestTimeout == 0 {
		api.RequestTimeout = DefaultRequestTimeout
	}
	return api
}
