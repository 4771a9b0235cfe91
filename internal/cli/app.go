package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rileyhilliard/sshmux/internal/config"
	"github.com/rileyhilliard/sshmux/internal/errors"
	"github.com/rileyhilliard/sshmux/internal/logger"
	"github.com/rileyhilliard/sshmux/internal/prompt"
	"github.com/rileyhilliard/sshmux/internal/registry"
	"github.com/rileyhilliard/sshmux/internal/secret"
	"github.com/rileyhilliard/sshmux/internal/ui"
	"github.com/rileyhilliard/sshmux/internal/util"
	"github.com/rileyhilliard/sshmux/pkg/sshutil"
	"golang.org/x/sync/errgroup"
)

// Source labels for where a profile came from.
const (
	sourceConfig    = "config"
	sourceSSHConfig = "ssh_config"
)

// knownProfile is a profile plus the file it was read from.
type knownProfile struct {
	config.Profile
	Source string
}

// app is the per-invocation wiring: config, secrets, and one registry.
type app struct {
	cfg     *config.Config
	cfgPath string
	secrets secret.Store
	reg     *registry.Registry
	stderr  io.Writer

	// profiles holds configured and imported profiles by ID. Configured
	// profiles win over an ssh_config host with the same name.
	profiles map[string]knownProfile
}

// loadConfig loads and validates the config selected by --config.
func loadConfig() (*config.Config, string, error) {
	cfg, path, err := config.LoadOrDefault(cfgFile)
	if err != nil {
		return nil, "", err
	}
	if err := config.Validate(cfg, config.AllowNoProfiles()); err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// configPathForWrite returns the loaded config path, or the global default
// when no config file exists yet.
func configPathForWrite(loaded string) (string, error) {
	if loaded != "" {
		return loaded, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Can't find your home directory",
			"Pass a config path with --config")
	}
	return filepath.Join(home, config.GlobalConfigDir, config.GlobalConfigFile), nil
}

// openSecrets returns the secret store selected by the secrets section.
func openSecrets(cfg config.SecretsConfig) secret.Store {
	if cfg.Backend == config.SecretsMemory {
		return secret.NewMemoryStore()
	}
	return secret.NewFileStore(cfg.Path, cfg.KeyPath)
}

// collectProfiles merges configured profiles with those imported from the
// OpenSSH config. Import problems never hide configured profiles.
func collectProfiles(cfg *config.Config) (map[string]knownProfile, map[string]string) {
	all := make(map[string]knownProfile)
	var skipped map[string]string

	if cfg.SSHConfig != "" {
		res, err := config.ImportSSHConfig(cfg.SSHConfig)
		if err != nil {
			skipped = map[string]string{cfg.SSHConfig: err.Error()}
		} else {
			skipped = res.Skipped
			for _, p := range res.Profiles {
				all[p.ID] = knownProfile{Profile: p, Source: sourceSSHConfig}
			}
		}
	}
	for id, p := range cfg.Profiles {
		all[id] = knownProfile{Profile: p, Source: sourceConfig}
	}
	return all, skipped
}

// sortedIDs returns the keys of profiles in order.
func sortedIDs(profiles map[string]knownProfile) []string {
	ids := make([]string, 0, len(profiles))
	for id := range profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// lookupProfile finds id, suggesting close matches when it is unknown.
func lookupProfile(profiles map[string]knownProfile, id string) (config.Profile, error) {
	if p, ok := profiles[id]; ok {
		return p.Profile, nil
	}
	suggestion := "Run 'sshmux profiles' to see what is available."
	if similar := util.SuggestSimilar(id, sortedIDs(profiles), 3); len(similar) > 0 {
		suggestion = fmt.Sprintf("Did you mean %s?", util.JoinOrNone(similar))
	}
	return config.Profile{}, errors.New(errors.ErrConfig,
		fmt.Sprintf("Unknown profile '%s'", id), suggestion)
}

// newApp loads config and builds the registry. Callers must close it.
func newApp() (*app, error) {
	cfg, path, err := loadConfig()
	if err != nil {
		return nil, err
	}

	secrets := openSecrets(cfg.Secrets)
	connector := sshutil.NewConnector(secrets, prompt.Default(), sshutil.OptionsFromConfig(cfg.Transport))
	reg := registry.New(connector, registry.Options{
		Reconnect: cfg.Reconnect,
		Logger:    logger.NewEnvLogger("[registry]"),
	})

	profiles, skipped := collectProfiles(cfg)
	log := logger.NewEnvLogger("[config]")
	for alias, reason := range skipped {
		log.Debug("ssh_config: skipped %s: %s", alias, reason)
	}

	a := &app{
		cfg:      cfg,
		cfgPath:  path,
		secrets:  secrets,
		reg:      reg,
		stderr:   os.Stderr,
		profiles: profiles,
	}
	reg.OnNotice(func(n registry.Notice) {
		fmt.Fprintln(a.stderr, formatNotice(n, cfg.Reconnect.MaxAttempts))
	})
	return a, nil
}

// connect opens the profile with the given id.
func (a *app) connect(ctx context.Context, id string) error {
	p, err := lookupProfile(a.profiles, id)
	if err != nil {
		return err
	}
	_, err = a.reg.Connect(ctx, p)
	return err
}

// connectAll connects ids concurrently and returns the error for each id
// that failed. Unknown ids fail without touching the network.
func (a *app) connectAll(ctx context.Context, ids []string) map[string]error {
	errs := make([]error, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			errs[i] = a.connect(gctx, id)
			return nil
		})
	}
	_ = g.Wait()

	failed := make(map[string]error)
	for i, id := range ids {
		if errs[i] != nil {
			failed[id] = errs[i]
		}
	}
	return failed
}

// close tears down every connection.
func (a *app) close() {
	if err := a.reg.Close(); err != nil {
		logger.NewEnvLogger("[registry]").Debug("close: %v", err)
	}
}

// formatNotice renders a reconnection notice as a one-line message.
func formatNotice(n registry.Notice, maxAttempts int) string {
	switch n.Kind {
	case registry.NoticeReconnecting:
		return ui.Warning(fmt.Sprintf("%s: connection lost, reconnecting in %s (attempt %d/%d)",
			n.ConnectionID, n.Delay, n.Attempt, maxAttempts))
	case registry.NoticeReconnected:
		return ui.Success(fmt.Sprintf("%s: reconnected after %d %s",
			n.ConnectionID, n.Attempt, util.Pluralize(n.Attempt, "attempt", "attempts")))
	case registry.NoticeReconnectFailed:
		msg := fmt.Sprintf("%s %s: reconnect failed after %d %s",
			ui.SymbolFail, n.ConnectionID, n.Attempt, util.Pluralize(n.Attempt, "attempt", "attempts"))
		if n.Err != nil {
			msg += ": " + firstLine(n.Err.Error())
		}
		return msg
	default:
		return fmt.Sprintf("%s: %s", n.ConnectionID, n.Kind)
	}
}

// firstLine returns the first non-empty line of a rendered error without
// its leading failure symbol.
func firstLine(msg string) string {
	for _, line := range strings.Split(msg, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), ui.SymbolFail))
		if line != "" {
			return line
		}
	}
	return ""
}
