// Package config provides YAML configuration loading and validation for the
// Bedrock relay server.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure for the relay server.
type Config struct {
	// Host is the bind address for the WebSocket listener. Defaults to
	// "localhost" when omitted.
	Host string `yaml:"host"`

	// Port is the bind TCP port for the WebSocket listener. Defaults to 8765
	// when omitted.
	Port int `yaml:"port"`

	// TLS optionally wraps the listener in TLS. When absent the server
	// speaks plain WebSocket.
	TLS *TLSConfig `yaml:"tls"`

	// AdminAddr is the listen address for the admin HTTP surface
	// (/healthz, /debug/sessions). Defaults to "127.0.0.1:9090" when
	// omitted.
	AdminAddr string `yaml:"admin_addr"`

	// LogLevel sets the minimum log severity: "debug", "info", "warn", or
	// "error". Defaults to "info" when omitted.
	LogLevel string `yaml:"log_level"`

	// HandshakeTimeout bounds how long the server waits for a complete
	// HTTP upgrade request. Defaults to 5s when omitted.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`

	// CloseTimeout bounds how long an actively-initiated close handshake
	// waits for the peer's reply before the socket is forced shut.
	// Defaults to 5s when omitted.
	CloseTimeout time.Duration `yaml:"close_timeout"`

	// CommandTimeout bounds how long run_command waits for a
	// commandResponse before failing with a timeout error. Defaults to
	// 10s when omitted.
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// MaxMessageBytes caps the fragmentation reassembly buffer per
	// connection. Defaults to 16 MiB when omitted.
	MaxMessageBytes int `yaml:"max_message_bytes"`

	// AuditLogPath, if set, enables the hash-chained command audit trail
	// at this path. Empty disables it.
	AuditLogPath string `yaml:"audit_log_path"`

	// ShutdownGrace bounds how long graceful shutdown waits for live
	// sessions' handler goroutines to return before the process exits;
	// connections are not awaited until CLOSED. Defaults to 10s when
	// omitted.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// TLSConfig holds certificate and key paths for the listener.
type TLSConfig struct {
	// CertPath is the path to the server's PEM-encoded certificate.
	// Required when TLS is present.
	CertPath string `yaml:"cert_path"`

	// KeyPath is the path to the server's PEM-encoded private key.
	// Required when TLS is present.
	KeyPath string `yaml:"key_path"`
}

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// LoadConfig reads the YAML file at path, unmarshals it into Config, applies
// defaults, and validates all required fields. It returns a typed error
// describing every validation failure encountered.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: cannot parse %q: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed for %q: %w", path, err)
	}

	return &cfg, nil
}

// applyDefaults fills in zero-value optional fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 8765
	}
	if cfg.AdminAddr == "" {
		cfg.AdminAddr = "127.0.0.1:9090"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 5 * time.Second
	}
	if cfg.CloseTimeout == 0 {
		cfg.CloseTimeout = 5 * time.Second
	}
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = 10 * time.Second
	}
	if cfg.MaxMessageBytes == 0 {
		cfg.MaxMessageBytes = 16 * 1024 * 1024
	}
	if cfg.ShutdownGrace == 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
}

// validate checks that all required fields are populated and that enumerated
// fields contain only valid values.
func validate(cfg *Config) error {
	var errs []error

	if cfg.Port < 1 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d must be between 1 and 65535", cfg.Port))
	}
	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level %q must be one of: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.TLS != nil {
		if cfg.TLS.CertPath == "" {
			errs = append(errs, errors.New("tls.cert_path is required when tls is set"))
		}
		if cfg.TLS.KeyPath == "" {
			errs = append(errs, errors.New("tls.key_path is required when tls is set"))
		}
	}
	if cfg.HandshakeTimeout < 0 {
		errs = append(errs, errors.New("handshake_timeout must not be negative"))
	}
	if cfg.CloseTimeout < 0 {
		errs = append(errs, errors.New("close_timeout must not be negative"))
	}
	if cfg.CommandTimeout < 0 {
		errs = append(errs, errors.New("command_timeout must not be negative"))
	}
	if cfg.MaxMessageBytes < 0 {
		errs = append(errs, errors.New("max_message_bytes must not be negative"))
	}

	return errors.Join(errs...)
}
