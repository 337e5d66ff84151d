// Package config holds the runtime settings for the relay, with
// precedence defaults < environment < config file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"chatrelay/internal/store"
)

// Config is the full relay configuration.
type Config struct {
	Server  *ServerConfig  `json:"server"`
	Users   *UsersConfig   `json:"users"`
	Gateway *GatewayConfig `json:"gateway"`
	Log     *LogConfig     `json:"log"`
}

// ServerConfig configures the TCP listener.
type ServerConfig struct {
	Host          string        `json:"host"`
	Port          int           `json:"port"`
	AcceptTimeout time.Duration `json:"accept_timeout"`
	WriteBuffer   int           `json:"write_buffer"`
}

// Addr returns the listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// UsersConfig selects and locates the credential store backend.
type UsersConfig struct {
	Backend string `json:"backend"`
	Path    string `json:"path"`
}

// GatewayConfig configures the optional WebSocket gateway.
type GatewayConfig struct {
	Enabled      bool          `json:"enabled"`
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

// Addr returns the gateway listen address.
func (c *GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `json:"level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: &ServerConfig{
			Host:          "0.0.0.0",
			Port:          9000,
			AcceptTimeout: time.Second,
			WriteBuffer:   64,
		},
		Users: &UsersConfig{
			Backend: store.BackendFile,
			Path:    "users.txt",
		},
		Gateway: &GatewayConfig{
			Enabled:      false,
			Host:         "0.0.0.0",
			Port:         9001,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Log: &LogConfig{
			Level: "info",
		},
	}
}

// Validate rejects configurations the relay cannot run with.
func (c *Config) Validate() error {
	if c.Server == nil {
		return fmt.Errorf("server configuration is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}
	if c.Server.AcceptTimeout <= 0 {
		return fmt.Errorf("accept timeout must be positive")
	}
	if c.Server.WriteBuffer <= 0 {
		return fmt.Errorf("write buffer must be positive")
	}
	if c.Users == nil {
		return fmt.Errorf("users configuration is required")
	}
	if c.Users.Backend != store.BackendFile && c.Users.Backend != store.BackendSQLite {
		return fmt.Errorf("users backend must be %q or %q", store.BackendFile, store.BackendSQLite)
	}
	if c.Users.Path == "" {
		return fmt.Errorf("users path cannot be empty")
	}
	if c.Gateway == nil {
		return fmt.Errorf("gateway configuration is required")
	}
	if c.Gateway.Enabled {
		if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
			return fmt.Errorf("gateway port must be between 1 and 65535")
		}
		if c.Gateway.Port == c.Server.Port && c.Gateway.Host == c.Server.Host {
			return fmt.Errorf("gateway cannot share the server listen address")
		}
	}
	if c.Log == nil || c.Log.Level == "" {
		return fmt.Errorf("log level is required")
	}
	return nil
}

// FromEnv overlays CHATRELAY_* environment variables on the defaults.
func FromEnv() *Config {
	cfg := Default()

	if host := os.Getenv("CHATRELAY_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("CHATRELAY_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if timeout := os.Getenv("CHATRELAY_ACCEPT_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.Server.AcceptTimeout = d
		}
	}
	if size := os.Getenv("CHATRELAY_WRITE_BUFFER"); size != "" {
		if n, err := strconv.Atoi(size); err == nil {
			cfg.Server.WriteBuffer = n
		}
	}
	if backend := os.Getenv("CHATRELAY_USERS_BACKEND"); backend != "" {
		cfg.Users.Backend = backend
	}
	if path := os.Getenv("CHATRELAY_USERS_PATH"); path != "" {
		cfg.Users.Path = path
	}
	if enabled := os.Getenv("CHATRELAY_GATEWAY_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			cfg.Gateway.Enabled = b
		}
	}
	if host := os.Getenv("CHATRELAY_GATEWAY_HOST"); host != "" {
		cfg.Gateway.Host = host
	}
	if port := os.Getenv("CHATRELAY_GATEWAY_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Gateway.Port = p
		}
	}
	if level := os.Getenv("CHATRELAY_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}

	return cfg
}

// fileConfig mirrors Config for JSON parsing, with durations as
// strings so config files can say "30s".
type fileConfig struct {
	Server *struct {
		Host          string `json:"host"`
		Port          int    `json:"port"`
		AcceptTimeout string `json:"accept_timeout"`
		WriteBuffer   int    `json:"write_buffer"`
	} `json:"server"`
	Users *struct {
		Backend string `json:"backend"`
		Path    string `json:"path"`
	} `json:"users"`
	Gateway *struct {
		Enabled      bool   `json:"enabled"`
		Host         string `json:"host"`
		Port         int    `json:"port"`
		ReadTimeout  string `json:"read_timeout"`
		WriteTimeout string `json:"write_timeout"`
	} `json:"gateway"`
	Log *struct {
		Level string `json:"level"`
	} `json:"log"`
}

// FromFile loads a JSON config file over base and validates the
// result.
func FromFile(path string, base *Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	cfg := base
	if cfg == nil {
		cfg = Default()
	}

	if fc.Server != nil {
		if fc.Server.Host != "" {
			cfg.Server.Host = fc.Server.Host
		}
		if fc.Server.Port > 0 {
			cfg.Server.Port = fc.Server.Port
		}
		if fc.Server.WriteBuffer > 0 {
			cfg.Server.WriteBuffer = fc.Server.WriteBuffer
		}
		if fc.Server.AcceptTimeout != "" {
			if d, err := time.ParseDuration(fc.Server.AcceptTimeout); err == nil {
				cfg.Server.AcceptTimeout = d
			}
		}
	}
	if fc.Users != nil {
		if fc.Users.Backend != "" {
			cfg.Users.Backend = fc.Users.Backend
		}
		if fc.Users.Path != "" {
			cfg.Users.Path = fc.Users.Path
		}
	}
	if fc.Gateway != nil {
		cfg.Gateway.Enabled = fc.Gateway.Enabled
		if fc.Gateway.Host != "" {
			cfg.Gateway.Host = fc.Gateway.Host
		}
		if fc.Gateway.Port > 0 {
			cfg.Gateway.Port = fc.Gateway.Port
		}
		if fc.Gateway.ReadTimeout != "" {
			if d, err := time.ParseDuration(fc.Gateway.ReadTimeout); err == nil {
				cfg.Gateway.ReadTimeout = d
			}
		}
		if fc.Gateway.WriteTimeout != "" {
			if d, err := time.ParseDuration(fc.Gateway.WriteTimeout); err == nil {
				cfg.Gateway.WriteTimeout = d
			}
		}
	}
	if fc.Log != nil && fc.Log.Level != "" {
		cfg.Log.Level = fc.Log.Level
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

// Load resolves the effective configuration: defaults, then
// environment, then the config file when one is given.
func Load(path string) (*Config, error) {
	cfg := FromEnv()
	if path != "" {
		return FromFile(path, cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
