package doctor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rileyhilliard/sshmux/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubCheck returns a fixed result, optionally after a delay.
type stubCheck struct {
	name     string
	category string
	status   CheckStatus
	delay    time.Duration
}

func (s *stubCheck) Name() string     { return s.name }
func (s *stubCheck) Category() string { return s.category }
func (s *stubCheck) Run(context.Context) CheckResult {
	time.Sleep(s.delay)
	return CheckResult{Name: s.name, Status: s.status}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestCheckStatus(t *testing.T) {
	assert.Equal(t, "pass", StatusPass.String())
	assert.Equal(t, "warn", StatusWarn.String())
	assert.Equal(t, "fail", StatusFail.String())
	assert.Equal(t, "unknown", CheckStatus(9).String())

	raw, err := json.Marshal(CheckResult{Name: "x", Status: StatusWarn, Message: "m"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"x","status":"warn","message":"m"}`, string(raw))
}

func TestRunAll_KeepsOrder(t *testing.T) {
	checks := []Check{
		&stubCheck{name: "slow", status: StatusFail, delay: 30 * time.Millisecond},
		&stubCheck{name: "fast", status: StatusPass},
	}

	for name, run := range map[string]func(context.Context, []Check) []CheckResult{
		"sequential": RunAll,
		"parallel":   RunAllParallel,
	} {
		t.Run(name, func(t *testing.T) {
			results := run(context.Background(), checks)
			require.Len(t, results, 2)
			assert.Equal(t, "slow", results[0].Name)
			assert.Equal(t, "fast", results[1].Name)
		})
	}
}

func TestGroupByCategory(t *testing.T) {
	checks := []Check{
		&stubCheck{category: CategoryConfig},
		&stubCheck{category: CategoryHosts},
		&stubCheck{category: CategoryConfig},
	}
	assert.Equal(t, map[string][]int{
		CategoryConfig: {0, 2},
		CategoryHosts:  {1},
	}, GroupByCategory(checks))
}

func TestSummary(t *testing.T) {
	tests := []struct {
		name     string
		results  []CheckResult
		want     string
		issues   bool
		failures bool
	}{
		{name: "all pass", results: []CheckResult{{Status: StatusPass}}, want: "Everything looks good"},
		{name: "one warning", results: []CheckResult{{Status: StatusPass}, {Status: StatusWarn}}, want: "1 issue found", issues: true},
		{name: "mixed", results: []CheckResult{{Status: StatusFail}, {Status: StatusWarn}}, want: "2 issues found", issues: true, failures: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Summary(tt.results))
			assert.Equal(t, tt.issues, HasIssues(tt.results))
			assert.Equal(t, tt.failures, HasFailures(tt.results))
		})
	}
}

func TestConfigFileCheck(t *testing.T) {
	valid := writeFile(t, "config.yaml", `version: 1
profiles:
  web:
    host: 10.0.0.1
    username: deploy
    auth_type: password
`)
	invalid := writeFile(t, "config.yaml", `version: 1
profiles:
  web:
    host: 10.0.0.1
    auth_type: password
`)

	res := (&ConfigFileCheck{ConfigPath: valid}).Run(context.Background())
	assert.Equal(t, StatusPass, res.Status)
	assert.Contains(t, res.Message, "(1 profile)")

	res = (&ConfigFileCheck{ConfigPath: invalid}).Run(context.Background())
	assert.Equal(t, StatusFail, res.Status)
	assert.NotEmpty(t, res.Suggestion)

	res = (&ConfigFileCheck{ConfigPath: filepath.Join(t.TempDir(), "absent.yaml")}).Run(context.Background())
	assert.Equal(t, StatusFail, res.Status)
	assert.Contains(t, res.Message, "not found")
}

func TestConfigFileCheck_NoFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv(config.ConfigEnv, "")

	res := (&ConfigFileCheck{}).Run(context.Background())
	assert.Equal(t, StatusWarn, res.Status)
	assert.Contains(t, res.Suggestion, "sshmux profiles save")
}

func TestSSHConfigCheck(t *testing.T) {
	path := writeFile(t, "ssh_config", `Host web
  HostName 10.0.0.1

Host chained
  HostName 10.0.0.2
  ProxyJump a,b
`)

	res := (&SSHConfigCheck{Path: path}).Run(context.Background())
	assert.Equal(t, StatusWarn, res.Status)
	assert.Contains(t, res.Message, "1 host imported")
	assert.Contains(t, res.Message, "skipped chained")

	res = (&SSHConfigCheck{Path: filepath.Join(t.TempDir(), "absent")}).Run(context.Background())
	assert.Equal(t, StatusPass, res.Status)
	assert.Contains(t, res.Message, "0 hosts imported")

	res = (&SSHConfigCheck{}).Run(context.Background())
	assert.Equal(t, "ssh_config import disabled", res.Message)
}
