// Package config provides configuration parsing and validation for the
// nettest server and the client defaults.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/12101111/nettest/internal/logging"
	"github.com/12101111/nettest/internal/units"
)

// Config represents the complete configuration.
type Config struct {
	Log    LogConfig    `yaml:"log"`
	Server ServerConfig `yaml:"server"`
	Health HealthConfig `yaml:"health"`
	Client ClientConfig `yaml:"client"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// ServerConfig configures the line protocol server.
type ServerConfig struct {
	TCPAddress     string        `yaml:"tcp_address"`     // empty disables the TCP listener
	QUICAddress    string        `yaml:"quic_address"`    // empty disables the QUIC listener
	IdleTimeout    time.Duration `yaml:"idle_timeout"`    // per-connection inactivity limit, 0 = none
	RateLimit      string        `yaml:"rate_limit"`      // bytes per second per connection, e.g. "100MB"
	MaxConnections int           `yaml:"max_connections"` // 0 = unlimited
	TLS            TLSConfig     `yaml:"tls"`
}

// TLSConfig defines the QUIC listener certificate. Both empty generates a
// self-signed certificate at startup.
type TLSConfig struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

// HealthConfig configures the health and metrics HTTP endpoint.
type HealthConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// ClientConfig holds defaults for measurement runs.
type ClientConfig struct {
	Count        int           `yaml:"count"`
	Interval     time.Duration `yaml:"interval"`
	Timeout      time.Duration `yaml:"timeout"`
	PingSize     int           `yaml:"ping_size"`     // bytes, latency probes
	TransferSize string        `yaml:"transfer_size"` // plain number = MiB, bandwidth probes
	ServersURL   string        `yaml:"servers_url"`
	StrictVerify bool          `yaml:"strict_verify"` // verify QUIC server certificates
}

// DefaultServersURL is the speedtest.net server directory.
const DefaultServersURL = "https://www.speedtest.net/api/js/servers?engine=js"

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			TCPAddress:     ":8080",
			QUICAddress:    "",
			IdleTimeout:    5 * time.Minute,
			MaxConnections: 0,
		},
		Health: HealthConfig{
			Enabled:      false,
			Address:      ":9090",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Client: ClientConfig{
			Count:        5,
			Interval:     time.Second,
			Timeout:      5 * time.Second,
			PingSize:     60,
			TransferSize: "60",
			ServersURL:   DefaultServersURL,
		},
	}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses configuration from YAML bytes on top of Default.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// envVarRegex matches ${VAR} or $VAR patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces environment variable references with their values.
// ${VAR:-default} falls back to default when VAR is unset. Unknown
// references are kept verbatim.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}

		if varName, defaultVal, ok := strings.Cut(name, ":-"); ok {
			if val, ok := os.LookupEnv(varName); ok {
				return val
			}
			return defaultVal
		}

		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if !logging.ValidLevel(c.Log.Level) {
		errs = append(errs, fmt.Sprintf("invalid log.level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}
	if !logging.ValidFormat(c.Log.Format) {
		errs = append(errs, fmt.Sprintf("invalid log.format: %s (must be text or json)", c.Log.Format))
	}

	if c.Server.TCPAddress != "" && !isValidAddress(c.Server.TCPAddress) {
		errs = append(errs, fmt.Sprintf("server.tcp_address: invalid address: %s", c.Server.TCPAddress))
	}
	if c.Server.QUICAddress != "" && !isValidAddress(c.Server.QUICAddress) {
		errs = append(errs, fmt.Sprintf("server.quic_address: invalid address: %s", c.Server.QUICAddress))
	}
	if c.Server.IdleTimeout < 0 {
		errs = append(errs, "server.idle_timeout must not be negative")
	}
	if c.Server.MaxConnections < 0 {
		errs = append(errs, "server.max_connections must not be negative")
	}
	if _, err := c.Server.RateLimitBytes(); err != nil {
		errs = append(errs, fmt.Sprintf("server.rate_limit: %v", err))
	}
	if (c.Server.TLS.Cert == "") != (c.Server.TLS.Key == "") {
		errs = append(errs, "server.tls: cert and key must be set together")
	}

	if c.Health.Enabled && c.Health.Address == "" {
		errs = append(errs, "health.address is required when enabled")
	}

	if c.Client.Count < 1 {
		errs = append(errs, "client.count must be positive")
	}
	if c.Client.Interval < 0 {
		errs = append(errs, "client.interval must not be negative")
	}
	if c.Client.Timeout <= 0 {
		errs = append(errs, "client.timeout must be positive")
	}
	if c.Client.PingSize < 0 {
		errs = append(errs, "client.ping_size must not be negative")
	}
	if _, err := c.Client.TransferBytes(); err != nil {
		errs = append(errs, fmt.Sprintf("client.transfer_size: %v", err))
	}
	if c.Client.ServersURL != "" {
		if u, err := url.Parse(c.Client.ServersURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Sprintf("client.servers_url: invalid URL: %s", c.Client.ServersURL))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// RateLimitBytes returns the per-connection limit in bytes per second, 0
// meaning unlimited.
func (s ServerConfig) RateLimitBytes() (int64, error) {
	if strings.TrimSpace(s.RateLimit) == "" {
		return 0, nil
	}
	return units.ParseSize(s.RateLimit)
}

// TransferBytes returns the default bandwidth transfer size in bytes.
func (c ClientConfig) TransferBytes() (int64, error) {
	return units.ParseTransferSize(c.TransferSize)
}

func isValidAddress(addr string) bool {
	_, port, err := net.SplitHostPort(addr)
	return err == nil && port != ""
}

// String returns the configuration as YAML.
func (c *Config) String() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("error marshaling config: %v", err)
	}
	return string(data)
}
