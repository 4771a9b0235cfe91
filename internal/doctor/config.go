package doctor

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"

	"github.com/rileyhilliard/sshmux/internal/config"
	"github.com/rileyhilliard/sshmux/internal/errors"
	"github.com/rileyhilliard/sshmux/internal/util"
)

// ConfigFileCheck verifies the config file can be found, loaded and validated.
type ConfigFileCheck struct {
	ConfigPath string // Explicit path, or empty to search
}

func (c *ConfigFileCheck) Name() string     { return "config_file" }
func (c *ConfigFileCheck) Category() string { return CategoryConfig }

func (c *ConfigFileCheck) Run(context.Context) CheckResult {
	path, err := config.Find(c.ConfigPath)
	if err != nil {
		return resultFromError(c.Name(), StatusFail, err)
	}
	if path == "" {
		return CheckResult{
			Name:       c.Name(),
			Status:     StatusWarn,
			Message:    "No config file found, using defaults",
			Suggestion: "Save a profile with 'sshmux profiles save' to create one",
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return resultFromError(c.Name(), StatusFail, err)
	}
	if err := config.Validate(cfg, config.AllowNoProfiles()); err != nil {
		return resultFromError(c.Name(), StatusFail, err)
	}

	n := len(cfg.Profiles)
	return CheckResult{
		Name:    c.Name(),
		Status:  StatusPass,
		Message: fmt.Sprintf("Config file %s (%d %s)", path, n, util.Pluralize(n, "profile", "profiles")),
	}
}

// SSHConfigCheck verifies the ssh_config import.
type SSHConfigCheck struct {
	Path string
}

func (c *SSHConfigCheck) Name() string     { return "ssh_config" }
func (c *SSHConfigCheck) Category() string { return CategoryConfig }

func (c *SSHConfigCheck) Run(context.Context) CheckResult {
	if c.Path == "" {
		return CheckResult{Name: c.Name(), Status: StatusPass, Message: "ssh_config import disabled"}
	}

	res, err := config.ImportSSHConfig(c.Path)
	if err != nil {
		return resultFromError(c.Name(), StatusFail, err)
	}

	n := len(res.Profiles)
	msg := fmt.Sprintf("%d %s imported from %s", n, util.Pluralize(n, "host", "hosts"), c.Path)
	if len(res.Skipped) == 0 {
		return CheckResult{Name: c.Name(), Status: StatusPass, Message: msg}
	}

	aliases := make([]string, 0, len(res.Skipped))
	for alias := range res.Skipped {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return CheckResult{
		Name:       c.Name(),
		Status:     StatusWarn,
		Message:    fmt.Sprintf("%s, skipped %s", msg, util.JoinOrNone(aliases)),
		Suggestion: "Run 'sshmux profiles import' for the reasons",
	}
}

// NewConfigChecks creates the config checks.
func NewConfigChecks(configPath, sshConfigPath string) []Check {
	return []Check{
		&ConfigFileCheck{ConfigPath: configPath},
		&SSHConfigCheck{Path: sshConfigPath},
	}
}

// resultFromError turns err into a result, keeping the message and
// suggestion of structured errors apart.
func resultFromError(name string, status CheckStatus, err error) CheckResult {
	var sErr *errors.Error
	if stderrors.As(err, &sErr) {
		return CheckResult{Name: name, Status: status, Message: sErr.Message, Suggestion: sErr.Suggestion}
	}
	return CheckResult{Name: name, Status: status, Message: err.Error()}
}
