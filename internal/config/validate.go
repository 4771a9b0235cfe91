package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rileyhilliard/sshmux/internal/errors"
)

// ValidationOption controls validation behavior.
type ValidationOption func(*validationContext)

type validationContext struct {
	allowNoProfiles bool
}

// AllowNoProfiles permits a config without profiles, e.g. when profiles come
// only from an imported ssh_config.
func AllowNoProfiles() ValidationOption {
	return func(c *validationContext) {
		c.allowNoProfiles = true
	}
}

// Validate checks the config for errors and returns structured error messages.
func Validate(cfg *Config, opts ...ValidationOption) error {
	ctx := &validationContext{}
	for _, opt := range opts {
		opt(ctx)
	}

	if cfg.Version > CurrentConfigVersion {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Config version %d is newer than supported (max %d)", cfg.Version, CurrentConfigVersion),
			"Upgrade sshmux to read this config.")
	}

	if len(cfg.Profiles) == 0 && !ctx.allowNoProfiles {
		return errors.New(errors.ErrConfig,
			"No profiles defined",
			"Add a profile under 'profiles:' in your config.")
	}

	ids := make([]string, 0, len(cfg.Profiles))
	for id := range cfg.Profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := ValidateProfile(cfg.Profiles[id]); err != nil {
			return err
		}
	}

	if err := validateTransport(cfg.Transport); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'transport' section in your config.")
	}
	if err := validateReconnect(cfg.Reconnect); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'reconnect' section in your config.")
	}
	if err := validateSecrets(cfg.Secrets); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'secrets' section in your config.")
	}
	if cfg.Monitor.Interval < 0 {
		return errors.New(errors.ErrConfig, "monitor.interval can't be negative", "Use something like '2s'.")
	}

	return nil
}

// ValidateProfile checks a single profile and its proxy.
func ValidateProfile(p Profile) error {
	if p.ID == "" {
		return errors.New(errors.ErrConfig, "Profile has no id", "Give every profile a unique id.")
	}
	suggestion := fmt.Sprintf("Check profile '%s' in your config.", p.ID)

	if err := validateEndpoint(p.Host, p.Port, p.Username, p.AuthType, p.PrivateKeyPath); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Profile '%s': %s", p.ID, err.Error()), suggestion)
	}
	if p.Proxy != nil {
		px := p.Proxy
		if err := validateEndpoint(px.Host, px.Port, px.Username, px.AuthType, px.PrivateKeyPath); err != nil {
			return errors.WrapWithCode(err, errors.ErrConfig,
				fmt.Sprintf("Profile '%s' proxy: %s", p.ID, err.Error()), suggestion)
		}
	}
	return nil
}

func validateEndpoint(host string, port int, username string, auth AuthType, keyPath string) error {
	if strings.TrimSpace(host) == "" {
		return fmt.Errorf("host is required")
	}
	if port < 0 || port > 65535 {
		return fmt.Errorf("port %d is out of range", port)
	}
	if strings.TrimSpace(username) == "" {
		return fmt.Errorf("username is required")
	}
	switch auth {
	case AuthPassword:
	case AuthPrivateKey:
		if keyPath == "" {
			return fmt.Errorf("auth_type privateKey needs private_key_path")
		}
	default:
		return fmt.Errorf("auth_type must be '%s' or '%s', got '%s'", AuthPassword, AuthPrivateKey, auth)
	}
	return nil
}

func validateTransport(t TransportConfig) error {
	if t.HandshakeTimeout <= 0 {
		return fmt.Errorf("transport.handshake_timeout must be positive")
	}
	if t.KeepaliveInterval <= 0 {
		return fmt.Errorf("transport.keepalive_interval must be positive")
	}
	if t.KeepaliveMaxMissed < 1 {
		return fmt.Errorf("transport.keepalive_max_missed must be at least 1")
	}
	if t.StrictHostKeyChecking && t.KnownHosts == "" {
		return fmt.Errorf("transport.known_hosts is required with strict_host_key_checking")
	}
	return nil
}

func validateReconnect(r ReconnectConfig) error {
	if r.MaxAttempts < 0 {
		return fmt.Errorf("reconnect.max_attempts can't be negative")
	}
	if r.BaseDelay <= 0 {
		return fmt.Errorf("reconnect.base_delay must be positive")
	}
	return nil
}

func validateSecrets(s SecretsConfig) error {
	switch s.Backend {
	case SecretsMemory:
		return nil
	case SecretsFile:
		if s.Path == "" || s.KeyPath == "" {
			return fmt.Errorf("secrets.path and secrets.key_path are required for the file backend")
		}
		return nil
	default:
		return fmt.Errorf("secrets.backend must be '%s' or '%s', got '%s'", SecretsFile, SecretsMemory, s.Backend)
	}
}
