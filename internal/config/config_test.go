package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadResponderConfigOverridesDefaults(t *testing.T) {
	path := writeTemp(t, `
identity_path: /tmp/test.key
listen_port: 7000
database: sqlite:///tmp/test.db
api:
  enabled: false
  listen: 127.0.0.1:7001
log_level: debug
`)

	cfg, err := LoadResponderConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenPort != 7000 {
		t.Fatalf("listen_port = %d", cfg.ListenPort)
	}
	if cfg.IdentityPath != "/tmp/test.key" {
		t.Fatalf("identity_path = %s", cfg.IdentityPath)
	}
	if cfg.API.Enabled {
		t.Fatal("api.enabled should be false")
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log_level = %s", cfg.LogLevel)
	}
	// Untouched fields keep their defaults.
	if cfg.SessionIdle != DefaultResponderConfig().SessionIdle {
		t.Fatalf("session_idle = %d", cfg.SessionIdle)
	}
}

func TestLoadInitiatorConfigPeers(t *testing.T) {
	path := writeTemp(t, `
identity_path: /tmp/init.key
peers:
  - name: hub
    public_key: deadbeef
    endpoint: 192.0.2.10:6191
heartbeat_seconds: 5
`)

	cfg, err := LoadInitiatorConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Peers) != 1 {
		t.Fatalf("peers = %d", len(cfg.Peers))
	}
	if cfg.Peers[0].Endpoint != "192.0.2.10:6191" || cfg.Peers[0].Name != "hub" {
		t.Fatalf("peer = %+v", cfg.Peers[0])
	}
	if cfg.HeartbeatSeconds != 5 {
		t.Fatalf("heartbeat_seconds = %d", cfg.HeartbeatSeconds)
	}
	if cfg.RetransmitSeconds != DefaultInitiatorConfig().RetransmitSeconds {
		t.Fatalf("retransmit_seconds = %d", cfg.RetransmitSeconds)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadResponderConfig("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
