package config

import (
	"net"
	"strconv"
	"time"
)

// CurrentConfigVersion is the schema version for the config file.
// Increment when making breaking changes to the config structure.
const CurrentConfigVersion = 1

// DefaultPort is used when a profile or proxy leaves port unset.
const DefaultPort = 22

// AuthType selects how a profile authenticates.
type AuthType string

const (
	AuthPassword   AuthType = "password"
	AuthPrivateKey AuthType = "privateKey"
)

// Config represents the complete sshmux configuration file.
type Config struct {
	Version   int                `yaml:"version" mapstructure:"version"`
	Profiles  map[string]Profile `yaml:"profiles" mapstructure:"profiles"`
	Transport TransportConfig    `yaml:"transport" mapstructure:"transport"`
	Reconnect ReconnectConfig    `yaml:"reconnect" mapstructure:"reconnect"`
	Secrets   SecretsConfig      `yaml:"secrets" mapstructure:"secrets"`
	Monitor   MonitorConfig      `yaml:"monitor" mapstructure:"monitor"`

	// SSHConfig is an OpenSSH client config whose concrete hosts are offered
	// as extra profiles. Empty disables the import.
	SSHConfig string `yaml:"ssh_config" mapstructure:"ssh_config"`
}

// Profile describes how to reach one logical connection. A profile is never
// mutated while a connection attempt is using it.
type Profile struct {
	ID             string        `yaml:"id,omitempty" mapstructure:"id"`
	Host           string        `yaml:"host" mapstructure:"host"`
	Port           int           `yaml:"port,omitempty" mapstructure:"port"`
	Username       string        `yaml:"username" mapstructure:"username"`
	AuthType       AuthType      `yaml:"auth_type" mapstructure:"auth_type"`
	PrivateKeyPath string        `yaml:"private_key_path,omitempty" mapstructure:"private_key_path"`
	Proxy          *ProxyProfile `yaml:"proxy,omitempty" mapstructure:"proxy"`
}

// ProxyProfile is the single jump host a profile may tunnel through.
type ProxyProfile struct {
	Host           string   `yaml:"host" mapstructure:"host"`
	Port           int      `yaml:"port,omitempty" mapstructure:"port"`
	Username       string   `yaml:"username" mapstructure:"username"`
	AuthType       AuthType `yaml:"auth_type" mapstructure:"auth_type"`
	PrivateKeyPath string   `yaml:"private_key_path,omitempty" mapstructure:"private_key_path"`
}

// Address returns host:port, using the default SSH port when unset.
func (p Profile) Address() string {
	return joinHostPort(p.Host, p.Port)
}

// ProxyHop returns the proxy as a standalone profile for the first leg of a
// proxied connection. It keeps the owning profile's ID and has no proxy of
// its own. Calling it on a profile without a proxy returns the zero Profile.
func (p Profile) ProxyHop() Profile {
	if p.Proxy == nil {
		return Profile{}
	}
	return Profile{
		ID:             p.ID,
		Host:           p.Proxy.Host,
		Port:           p.Proxy.Port,
		Username:       p.Proxy.Username,
		AuthType:       p.Proxy.AuthType,
		PrivateKeyPath: p.Proxy.PrivateKeyPath,
	}
}

// Address returns host:port of the jump host.
func (p ProxyProfile) Address() string {
	return joinHostPort(p.Host, p.Port)
}

func joinHostPort(host string, port int) string {
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// TransportConfig controls handshake and keep-alive behavior for every transport.
type TransportConfig struct {
	// HandshakeTimeout bounds TCP dial plus SSH handshake and auth.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" mapstructure:"handshake_timeout"`

	// KeepaliveInterval is the period between keepalive@openssh.com probes.
	KeepaliveInterval time.Duration `yaml:"keepalive_interval" mapstructure:"keepalive_interval"`

	// KeepaliveMaxMissed consecutive unanswered probes close the transport.
	KeepaliveMaxMissed int `yaml:"keepalive_max_missed" mapstructure:"keepalive_max_missed"`

	// StrictHostKeyChecking verifies host keys against KnownHosts.
	StrictHostKeyChecking bool `yaml:"strict_host_key_checking" mapstructure:"strict_host_key_checking"`

	// KnownHosts is the known_hosts file used when StrictHostKeyChecking is on.
	KnownHosts string `yaml:"known_hosts" mapstructure:"known_hosts"`
}

// ReconnectConfig controls the reconnection supervisor.
type ReconnectConfig struct {
	// MaxAttempts is the number of reconnect attempts after an unexpected drop.
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`

	// BaseDelay scales the backoff: attempt n waits BaseDelay * 2^n.
	BaseDelay time.Duration `yaml:"base_delay" mapstructure:"base_delay"`
}

// SecretsConfig selects where passwords and passphrases are kept.
type SecretsConfig struct {
	// Backend is "file" (encrypted on disk) or "memory" (process lifetime).
	Backend string `yaml:"backend" mapstructure:"backend"`
	Path    string `yaml:"path" mapstructure:"path"`
	KeyPath string `yaml:"key_path" mapstructure:"key_path"`
}

// MonitorConfig controls the metrics watch loop.
type MonitorConfig struct {
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
}

// Secret backends.
const (
	SecretsFile   = "file"
	SecretsMemory = "memory"
)

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version:  CurrentConfigVersion,
		Profiles: make(map[string]Profile),
		Transport: TransportConfig{
			HandshakeTimeout:      30 * time.Second,
			KeepaliveInterval:     10 * time.Second,
			KeepaliveMaxMissed:    3,
			StrictHostKeyChecking: false,
			KnownHosts:            "~/.ssh/known_hosts",
		},
		Reconnect: ReconnectConfig{
			MaxAttempts: 5,
			BaseDelay:   time.Second,
		},
		Secrets: SecretsConfig{
			Backend: SecretsFile,
			Path:    "~/" + GlobalConfigDir + "/secrets.yaml",
			KeyPath: "~/" + GlobalConfigDir + "/secret.key",
		},
		Monitor: MonitorConfig{
			Interval: 2 * time.Second,
		},
		SSHConfig: "~/.ssh/config",
	}
}
