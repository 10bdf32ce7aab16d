package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bedrockrelay/server/internal/config"
)

// writeTemp writes content to a temp file and returns its path.
func writeTemp(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	f.Close()
	return f.Name()
}

const validYAML = `
host: "0.0.0.0"
port: 19132
tls:
  cert_path: "/etc/relay/server.crt"
  key_path:  "/etc/relay/server.key"
admin_addr: "127.0.0.1:9100"
log_level: debug
handshake_timeout: 3s
close_timeout: 2s
command_timeout: 15s
max_message_bytes: 1048576
audit_log_path: "/var/log/relay/commands.jsonl"
shutdown_grace: 20s
`

func TestLoadConfig_Valid(t *testing.T) {
	path := writeTemp(t, validYAML)
	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Host != "0.0.0.0" {
		t.Errorf("Host = %q", cfg.Host)
	}
	if cfg.Port != 19132 {
		t.Errorf("Port = %d, want 19132", cfg.Port)
	}
	if cfg.TLS == nil || cfg.TLS.CertPath != "/etc/relay/server.crt" || cfg.TLS.KeyPath != "/etc/relay/server.key" {
		t.Errorf("TLS = %+v", cfg.TLS)
	}
	if cfg.AdminAddr != "127.0.0.1:9100" {
		t.Errorf("AdminAddr = %q", cfg.AdminAddr)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if cfg.HandshakeTimeout != 3*time.Second {
		t.Errorf("HandshakeTimeout = %v", cfg.HandshakeTimeout)
	}
	if cfg.CloseTimeout != 2*time.Second {
		t.Errorf("CloseTimeout = %v", cfg.CloseTimeout)
	}
	if cfg.CommandTimeout != 15*time.Second {
		t.Errorf("CommandTimeout = %v", cfg.CommandTimeout)
	}
	if cfg.MaxMessageBytes != 1048576 {
		t.Errorf("MaxMessageBytes = %d", cfg.MaxMessageBytes)
	}
	if cfg.AuditLogPath != "/var/log/relay/commands.jsonl" {
		t.Errorf("AuditLogPath = %q", cfg.AuditLogPath)
	}
	if cfg.ShutdownGrace != 20*time.Second {
		t.Errorf("ShutdownGrace = %v", cfg.ShutdownGrace)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeTemp(t, "")
	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Host != "localhost" {
		t.Errorf("default Host = %q, want %q", cfg.Host, "localhost")
	}
	if cfg.Port != 8765 {
		t.Errorf("default Port = %d, want 8765", cfg.Port)
	}
	if cfg.AdminAddr != "127.0.0.1:9090" {
		t.Errorf("default AdminAddr = %q", cfg.AdminAddr)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("default LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.HandshakeTimeout != 5*time.Second {
		t.Errorf("default HandshakeTimeout = %v", cfg.HandshakeTimeout)
	}
	if cfg.CloseTimeout != 5*time.Second {
		t.Errorf("default CloseTimeout = %v", cfg.CloseTimeout)
	}
	if cfg.CommandTimeout != 10*time.Second {
		t.Errorf("default CommandTimeout = %v", cfg.CommandTimeout)
	}
	if cfg.MaxMessageBytes != 16*1024*1024 {
		t.Errorf("default MaxMessageBytes = %d", cfg.MaxMessageBytes)
	}
	if cfg.ShutdownGrace != 10*time.Second {
		t.Errorf("default ShutdownGrace = %v", cfg.ShutdownGrace)
	}
	if cfg.TLS != nil {
		t.Errorf("TLS = %+v, want nil when omitted", cfg.TLS)
	}
}

func TestLoadConfig_InvalidPort(t *testing.T) {
	path := writeTemp(t, "port: 70000\n")
	_, err := config.LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for out-of-range port, got nil")
	}
	if !strings.Contains(err.Error(), "port") {
		t.Errorf("error %q does not mention port", err.Error())
	}
}

func TestLoadConfig_InvalidLogLevel(t *testing.T) {
	path := writeTemp(t, "log_level: \"verbose\"\n")
	_, err := config.LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for invalid log_level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error %q does not mention log_level", err.Error())
	}
}

func TestLoadConfig_TLSMissingCertPath(t *testing.T) {
	yaml := `
tls:
  key_path: "/etc/relay/server.key"
`
	path := writeTemp(t, yaml)
	_, err := config.LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for missing tls.cert_path, got nil")
	}
	if !strings.Contains(err.Error(), "cert_path") {
		t.Errorf("error %q does not mention cert_path", err.Error())
	}
}

func TestLoadConfig_TLSMissingKeyPath(t *testing.T) {
	yaml := `
tls:
  cert_path: "/etc/relay/server.crt"
`
	path := writeTemp(t, yaml)
	_, err := config.LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for missing tls.key_path, got nil")
	}
	if !strings.Contains(err.Error(), "key_path") {
		t.Errorf("error %q does not mention key_path", err.Error())
	}
}

func TestLoadConfig_MultipleErrorsJoined(t *testing.T) {
	yaml := `
port: -1
log_level: "verbose"
`
	path := writeTemp(t, yaml)
	_, err := config.LoadConfig(path)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "port") || !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error %q should mention both port and log_level", err.Error())
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	missingPath := filepath.Join(t.TempDir(), "nonexistent.yaml")
	_, err := config.LoadConfig(missingPath)
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeTemp(t, "port: [8765\n")
	_, err := config.LoadConfig(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML, got nil")
	}
}
