package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ResponderConfig is the configuration for lodp-responder.
type ResponderConfig struct {
	IdentityPath string     `yaml:"identity_path"`
	ListenPort   int        `yaml:"listen_port"`
	Database     string     `yaml:"database"`
	API          APIConfig  `yaml:"api"`
	STUNServers  []string   `yaml:"stun_servers"`
	SessionIdle  int        `yaml:"session_idle_seconds"`
	LogLevel     string     `yaml:"log_level"`
}

// APIConfig configures the management REST API.
type APIConfig struct {
	Enabled   bool        `yaml:"enabled"`
	Listen    string      `yaml:"listen"`
	JWTSecret string      `yaml:"jwt_secret"`
	Admin     AdminConfig `yaml:"admin"`
}

// AdminConfig is the bootstrap admin account.
type AdminConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// InitiatorConfig is the configuration for lodp-initiator.
type InitiatorConfig struct {
	IdentityPath      string    `yaml:"identity_path"`
	ListenPort        int       `yaml:"listen_port"`
	Peers             []PeerRef `yaml:"peers"`
	STUNServers       []string  `yaml:"stun_servers"`
	HeartbeatSeconds  int       `yaml:"heartbeat_seconds"`
	RetransmitSeconds int       `yaml:"retransmit_seconds"`
	LogLevel          string    `yaml:"log_level"`
}

// PeerRef names a responder to dial: its out-of-band public key and
// datagram endpoint.
type PeerRef struct {
	Name      string `yaml:"name"`
	PublicKey string `yaml:"public_key"`
	Endpoint  string `yaml:"endpoint"`
}

// DefaultResponderConfig returns a config with sensible defaults.
func DefaultResponderConfig() *ResponderConfig {
	return &ResponderConfig{
		IdentityPath: "/etc/lodp/responder.key",
		ListenPort:   6191,
		Database:     "sqlite:///var/lib/lodp/responder.db",
		API: APIConfig{
			Enabled:   true,
			Listen:    "127.0.0.1:6192",
			JWTSecret: "change-me-in-production",
			Admin: AdminConfig{
				Username: "admin",
				Password: "admin",
			},
		},
		SessionIdle: 120,
		LogLevel:    "info",
	}
}

// DefaultInitiatorConfig returns a config with sensible defaults.
func DefaultInitiatorConfig() *InitiatorConfig {
	return &InitiatorConfig{
		IdentityPath:      "/etc/lodp/initiator.key",
		ListenPort:        0,
		HeartbeatSeconds:  15,
		RetransmitSeconds: 3,
		LogLevel:          "info",
	}
}

// LoadResponderConfig loads responder config from a YAML file.
func LoadResponderConfig(path string) (*ResponderConfig, error) {
	cfg := DefaultResponderConfig()
	if err := loadYAML(path, cfg); err != nil {
		return nil, fmt.Errorf("load responder config: %w", err)
	}
	return cfg, nil
}

// LoadInitiatorConfig loads initiator config from a YAML file.
func LoadInitiatorConfig(path string) (*InitiatorConfig, error) {
	cfg := DefaultInitiatorConfig()
	if err := loadYAML(path, cfg); err != nil {
		return nil, fmt.Errorf("load initiator config: %w", err)
	}
	return cfg, nil
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, out)
}
