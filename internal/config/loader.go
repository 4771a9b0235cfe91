package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rileyhilliard/sshmux/internal/errors"
	"github.com/spf13/viper"
)

const (
	// GlobalConfigDir is the directory for config, secrets and the secret key,
	// relative to the user's home.
	GlobalConfigDir = ".config/sshmux"
	// GlobalConfigFile is the config file name inside GlobalConfigDir.
	GlobalConfigFile = "config.yaml"
	// ConfigEnv names an explicit config path when --config is not given.
	ConfigEnv = "SSHMUX_CONFIG"
	// EnvPrefix prefixes environment overrides, e.g. SSHMUX_RECONNECT_MAX_ATTEMPTS.
	EnvPrefix = "SSHMUX"
)

// Load reads config from the specified path.
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Config file not found",
				"Create "+filepath.Join("~", GlobalConfigDir, GlobalConfigFile)+" or pass one with --config")
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to read config file",
			"Check the file exists and is valid YAML")
	}

	return parseConfig(v, path)
}

// Find locates the config file using the search order:
// 1. Explicit path (from --config flag)
// 2. $SSHMUX_CONFIG
// 3. ~/.config/sshmux/config.yaml
//
// Returns the path to the config file, or empty string if not found.
func Find(explicit string) (string, error) {
	if explicit == "" {
		explicit = os.Getenv(ConfigEnv)
	}
	if explicit != "" {
		explicit = ExpandTilde(explicit)
		if _, err := os.Stat(explicit); err != nil {
			if os.IsNotExist(err) {
				return "", errors.WrapWithCode(err, errors.ErrConfig,
					"Specified config file not found: "+explicit,
					"Check the path is correct")
			}
			return "", errors.WrapWithCode(err, errors.ErrConfig,
				"Cannot access config file: "+explicit,
				"Check file permissions")
		}
		return explicit, nil
	}

	home, _ := os.UserHomeDir()
	if home != "" {
		globalConfig := filepath.Join(home, GlobalConfigDir, GlobalConfigFile)
		if _, err := os.Stat(globalConfig); err == nil {
			return globalConfig, nil
		}
	}

	return "", nil
}

// LoadOrDefault loads config from the found path, or returns defaults (with
// environment overrides applied) if no file exists.
func LoadOrDefault(explicit string) (*Config, string, error) {
	path, err := Find(explicit)
	if err != nil {
		return nil, "", err
	}

	if path == "" {
		cfg, err := parseConfig(newViper(), "")
		return cfg, "", err
	}

	cfg, err := Load(path)
	return cfg, path, err
}

// newViper returns a viper instance with every known key defaulted so that
// AutomaticEnv can override any of them.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := DefaultConfig()
	v.SetDefault("version", d.Version)
	v.SetDefault("ssh_config", d.SSHConfig)
	v.SetDefault("transport.handshake_timeout", d.Transport.HandshakeTimeout)
	v.SetDefault("transport.keepalive_interval", d.Transport.KeepaliveInterval)
	v.SetDefault("transport.keepalive_max_missed", d.Transport.KeepaliveMaxMissed)
	v.SetDefault("transport.strict_host_key_checking", d.Transport.StrictHostKeyChecking)
	v.SetDefault("transport.known_hosts", d.Transport.KnownHosts)
	v.SetDefault("reconnect.max_attempts", d.Reconnect.MaxAttempts)
	v.SetDefault("reconnect.base_delay", d.Reconnect.BaseDelay)
	v.SetDefault("secrets.backend", d.Secrets.Backend)
	v.SetDefault("secrets.path", d.Secrets.Path)
	v.SetDefault("secrets.key_path", d.Secrets.KeyPath)
	v.SetDefault("monitor.interval", d.Monitor.Interval)
	return v
}

// parseConfig converts viper config to our Config struct with defaults merged in.
func parseConfig(v *viper.Viper, path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		where := "your config"
		if path != "" {
			where = path
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid config format",
			"Check the YAML syntax in "+where)
	}

	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]Profile)
	}
	for id, p := range cfg.Profiles {
		if p.ID == "" {
			p.ID = id
		}
		if p.Port == 0 {
			p.Port = DefaultPort
		}
		if p.Proxy != nil && p.Proxy.Port == 0 {
			p.Proxy.Port = DefaultPort
		}
		p.PrivateKeyPath = ExpandTilde(p.PrivateKeyPath)
		if p.Proxy != nil {
			p.Proxy.PrivateKeyPath = ExpandTilde(p.Proxy.PrivateKeyPath)
		}
		cfg.Profiles[id] = p
	}

	cfg.Transport.KnownHosts = ExpandTilde(cfg.Transport.KnownHosts)
	cfg.Secrets.Path = ExpandTilde(cfg.Secrets.Path)
	cfg.Secrets.KeyPath = ExpandTilde(cfg.Secrets.KeyPath)
	cfg.SSHConfig = ExpandTilde(cfg.SSHConfig)

	return cfg, nil
}
