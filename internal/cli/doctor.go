package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rileyhilliard/sshmux/internal/config"
	"github.com/rileyhilliard/sshmux/internal/doctor"
	"github.com/rileyhilliard/sshmux/internal/ui"
	"github.com/spf13/cobra"
)

var (
	doctorJSON      bool
	doctorNoNetwork bool
	doctorTimeout   time.Duration
)

var doctorCmd = &cobra.Command{
	Use:   "doctor [profile...]",
	Short: "Diagnose config, keys, secrets and host reachability",
	Long: `Run diagnostic checks and report what would stop sshmux from connecting.

Checks the config file and ssh_config import, every private key the profiles
use (including jump host keys and stored passphrases), the secret store, and
whether each profile's first hop answers with an SSH banner. Reachability
checks never authenticate.

Exits with status 1 when any check fails.`,
	Example: `  sshmux doctor
  sshmux doctor web db
  sshmux doctor --no-network --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		checks, err := doctorChecks(args)
		if err != nil {
			return err
		}

		results := runDoctorChecks(cmd.Context(), checks)

		out := cmd.OutOrStdout()
		if doctorJSON {
			if err := writeDoctorJSON(out, checks, results); err != nil {
				return err
			}
		} else {
			writeDoctorText(out, checks, results)
		}
		if doctor.HasFailures(results) {
			return &exitError{code: 1}
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "output in JSON format")
	doctorCmd.Flags().BoolVar(&doctorNoNetwork, "no-network", false, "skip host reachability checks")
	doctorCmd.Flags().DurationVar(&doctorTimeout, "timeout", doctor.DefaultProbeTimeout, "per-host reachability timeout")
	rootCmd.AddCommand(doctorCmd)
}

// doctorChecks builds the checks for the profiles named in args, or for
// every configured profile. A config that doesn't load only gets the config
// checks, which explain why.
func doctorChecks(args []string) ([]doctor.Check, error) {
	cfg, _, loadErr := loadConfig()
	sshConfig := ""
	if loadErr == nil {
		sshConfig = cfg.SSHConfig
	}
	checks := doctor.NewConfigChecks(cfgFile, sshConfig)
	if loadErr != nil {
		return checks, nil
	}

	known, _ := collectProfiles(cfg)
	selected := make(map[string]config.Profile)
	if len(args) == 0 {
		for id, p := range cfg.Profiles {
			selected[id] = p
		}
	}
	for _, id := range args {
		p, err := lookupProfile(known, id)
		if err != nil {
			return nil, err
		}
		selected[id] = p
	}

	checks = append(checks, doctor.NewKeyChecks(selected, openSecrets(cfg.Secrets))...)
	checks = append(checks, &doctor.SecretStoreCheck{Config: cfg.Secrets})
	if !doctorNoNetwork {
		checks = append(checks, doctor.NewHostsChecks(selected, doctorTimeout)...)
	}
	return checks, nil
}

// runDoctorChecks runs local checks in order and reachability checks
// concurrently. Results line up with checks.
func runDoctorChecks(ctx context.Context, checks []doctor.Check) []doctor.CheckResult {
	if ctx == nil {
		ctx = context.Background()
	}
	var local, hosts []doctor.Check
	for _, c := range checks {
		if c.Category() == doctor.CategoryHosts {
			hosts = append(hosts, c)
		} else {
			local = append(local, c)
		}
	}
	localResults := doctor.RunAll(ctx, local)
	hostResults := doctor.RunAllParallel(ctx, hosts)

	results := make([]doctor.CheckResult, 0, len(checks))
	for _, c := range checks {
		if c.Category() == doctor.CategoryHosts {
			results, hostResults = append(results, hostResults[0]), hostResults[1:]
		} else {
			results, localResults = append(results, localResults[0]), localResults[1:]
		}
	}
	return results
}

type doctorCategory struct {
	Name    string               `json:"name"`
	Results []doctor.CheckResult `json:"results"`
}

type doctorSummary struct {
	Pass     int  `json:"pass"`
	Warn     int  `json:"warn"`
	Fail     int  `json:"fail"`
	AllClear bool `json:"all_clear"`
}

type doctorOutput struct {
	Categories []doctorCategory `json:"categories"`
	Summary    doctorSummary    `json:"summary"`
}

func writeDoctorJSON(w io.Writer, checks []doctor.Check, results []doctor.CheckResult) error {
	grouped := doctor.GroupByCategory(checks)
	out := doctorOutput{Categories: []doctorCategory{}}
	for _, cat := range doctor.Categories {
		idx := grouped[cat]
		if len(idx) == 0 {
			continue
		}
		c := doctorCategory{Name: cat}
		for _, i := range idx {
			c.Results = append(c.Results, results[i])
		}
		out.Categories = append(out.Categories, c)
	}

	counts := doctor.CountByStatus(results)
	out.Summary = doctorSummary{
		Pass:     counts[doctor.StatusPass],
		Warn:     counts[doctor.StatusWarn],
		Fail:     counts[doctor.StatusFail],
		AllClear: !doctor.HasIssues(results),
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeDoctorText(w io.Writer, checks []doctor.Check, results []doctor.CheckResult) {
	grouped := doctor.GroupByCategory(checks)
	for _, cat := range doctor.Categories {
		idx := grouped[cat]
		if len(idx) == 0 {
			continue
		}
		fmt.Fprintln(w, ui.Bold(cat))
		for _, i := range idx {
			fmt.Fprintln(w, "  "+checkLine(results[i]))
			if s := results[i].Suggestion; s != "" && results[i].Status != doctor.StatusPass {
				fmt.Fprintln(w, "    "+ui.Muted(s))
			}
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, strings.Repeat("━", 60))
	if doctor.HasIssues(results) {
		fmt.Fprintln(w, lipgloss.NewStyle().Foreground(ui.ColorError).Render(ui.SymbolFail)+" "+doctor.Summary(results))
	} else {
		fmt.Fprintln(w, ui.Success(doctor.Summary(results)))
	}
}

func checkLine(r doctor.CheckResult) string {
	symbol, color := ui.SymbolComplete, ui.ColorSuccess
	switch r.Status {
	case doctor.StatusWarn:
		symbol, color = ui.SymbolWarning, ui.ColorWarning
	case doctor.StatusFail:
		symbol, color = ui.SymbolFail, ui.ColorError
	}
	return lipgloss.NewStyle().Foreground(color).Render(symbol) + " " + r.Message
}
