package cli

import (
	"fmt"

	"github.com/rileyhilliard/sshmux/internal/config"
	"github.com/rileyhilliard/sshmux/internal/errors"
	"github.com/rileyhilliard/sshmux/internal/ui"
	"github.com/rileyhilliard/sshmux/internal/util"
	"github.com/spf13/cobra"
)

var profilesCmd = &cobra.Command{
	Use:     "profiles",
	Aliases: []string{"profile"},
	Short:   "List connection profiles",
	Long: `List the profiles sshmux can connect to.

Profiles come from the profiles section of the config file and from the
concrete Host entries of ~/.ssh/config. A configured profile hides an
ssh_config host with the same name.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProfilesList(cmd)
	},
}

var profilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List connection profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runProfilesList(cmd)
	},
}

var importSave bool

var profilesImportCmd = &cobra.Command{
	Use:   "import [ssh-config]",
	Short: "Show or save profiles from an OpenSSH config",
	Long: `Read host entries from an OpenSSH client config (default: the ssh_config
setting, usually ~/.ssh/config) and show the profiles they map to.

With --save each imported profile is written to the sshmux config file so it
can be edited there.`,
	Example: `  sshmux profiles import
  sshmux profiles import ~/.ssh/work_config --save`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}
		source := cfg.SSHConfig
		if len(args) == 1 {
			source = config.ExpandTilde(args[0])
		}

		res, err := config.ImportSSHConfig(source)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(res.Profiles) == 0 {
			fmt.Fprintf(out, "No hosts found in %s\n", source)
		} else {
			imported := make(map[string]knownProfile, len(res.Profiles))
			for _, p := range res.Profiles {
				imported[p.ID] = knownProfile{Profile: p, Source: sourceSSHConfig}
			}
			fmt.Fprintln(out, ui.Table(profileHeaders, profileRows(imported)))
		}
		for alias, reason := range res.Skipped {
			fmt.Fprintln(out, ui.Warning(fmt.Sprintf("skipped %s: %s", alias, reason)))
		}

		if !importSave || len(res.Profiles) == 0 {
			return nil
		}
		target, err := configPathForWrite(path)
		if err != nil {
			return err
		}
		for _, p := range res.Profiles {
			if err := config.SaveProfile(target, p); err != nil {
				return err
			}
		}
		fmt.Fprintln(out, ui.Success(fmt.Sprintf("Saved %d %s to %s",
			len(res.Profiles), util.Pluralize(len(res.Profiles), "profile", "profiles"), target)))
		return nil
	},
}

// Flags for profiles save.
var (
	saveHost      string
	savePort      int
	saveUser      string
	saveAuth      string
	saveKey       string
	saveProxyHost string
	saveProxyPort int
	saveProxyUser string
	saveProxyAuth string
	saveProxyKey  string
)

var profilesSaveCmd = &cobra.Command{
	Use:   "save <id>",
	Short: "Add or replace a profile in the config file",
	Example: `  sshmux profiles save web --host 10.0.0.5 --user deploy --auth privateKey --key ~/.ssh/id_ed25519
  sshmux profiles save db --host db.internal --user admin --proxy-host bastion.example.com --proxy-user jump`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, path, err := loadConfig()
		if err != nil {
			return err
		}
		p := profileFromFlags(args[0])
		if err := config.ValidateProfile(p); err != nil {
			return err
		}
		target, err := configPathForWrite(path)
		if err != nil {
			return err
		}
		if err := config.SaveProfile(target, p); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success(fmt.Sprintf("Saved profile %s to %s", p.ID, target)))
		return nil
	},
}

var profilesRemoveCmd = &cobra.Command{
	Use:     "remove <id>",
	Aliases: []string{"rm"},
	Short:   "Remove a profile from the config file",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}
		if _, ok := cfg.Profiles[args[0]]; !ok || path == "" {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Profile '%s' is not in the config file", args[0]),
				"Profiles imported from ~/.ssh/config are removed by editing that file.")
		}
		if err := config.RemoveProfile(path, args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success("Removed profile "+args[0]))
		return nil
	},
}

func init() {
	profilesImportCmd.Flags().BoolVar(&importSave, "save", false, "write imported profiles to the config file")

	f := profilesSaveCmd.Flags()
	f.StringVar(&saveHost, "host", "", "hostname or IP")
	f.IntVar(&savePort, "port", config.DefaultPort, "SSH port")
	f.StringVar(&saveUser, "user", "", "login user")
	f.StringVar(&saveAuth, "auth", string(config.AuthPassword), "auth type: password or privateKey")
	f.StringVar(&saveKey, "key", "", "private key path for privateKey auth")
	f.StringVar(&saveProxyHost, "proxy-host", "", "jump host to tunnel through")
	f.IntVar(&saveProxyPort, "proxy-port", config.DefaultPort, "jump host SSH port")
	f.StringVar(&saveProxyUser, "proxy-user", "", "jump host login user")
	f.StringVar(&saveProxyAuth, "proxy-auth", string(config.AuthPassword), "jump host auth type")
	f.StringVar(&saveProxyKey, "proxy-key", "", "jump host private key path")
	_ = profilesSaveCmd.MarkFlagRequired("host")
	_ = profilesSaveCmd.MarkFlagRequired("user")

	profilesCmd.AddCommand(profilesListCmd, profilesImportCmd, profilesSaveCmd, profilesRemoveCmd)
	rootCmd.AddCommand(profilesCmd)
}

func runProfilesList(cmd *cobra.Command) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	profiles, _ := collectProfiles(cfg)

	out := cmd.OutOrStdout()
	if len(profiles) == 0 {
		fmt.Fprintln(out, "No profiles configured.")
		fmt.Fprintln(out, ui.Muted("Add one with 'sshmux profiles save' or a Host entry in ~/.ssh/config."))
		return nil
	}
	fmt.Fprintln(out, ui.Table(profileHeaders, profileRows(profiles)))
	return nil
}

var profileHeaders = []string{"ID", "ADDRESS", "AUTH", "PROXY", "SOURCE"}

// profileRows renders profiles sorted by ID.
func profileRows(profiles map[string]knownProfile) [][]string {
	rows := make([][]string, 0, len(profiles))
	for _, id := range sortedIDs(profiles) {
		p := profiles[id]
		proxy := "-"
		if p.Proxy != nil {
			proxy = p.Proxy.Username + "@" + p.Proxy.Address()
		}
		rows = append(rows, []string{id, p.Username + "@" + p.Address(), string(p.AuthType), proxy, p.Source})
	}
	return rows
}

// profileFromFlags builds a profile from the save flags.
func profileFromFlags(id string) config.Profile {
	p := config.Profile{
		ID:             id,
		Host:           saveHost,
		Port:           savePort,
		Username:       saveUser,
		AuthType:       config.AuthType(saveAuth),
		PrivateKeyPath: config.ExpandTilde(saveKey),
	}
	if saveProxyHost != "" {
		p.Proxy = &config.ProxyProfile{
			Host:           saveProxyHost,
			Port:           saveProxyPort,
			Username:       saveProxyUser,
			AuthType:       config.AuthType(saveProxyAuth),
			PrivateKeyPath: config.ExpandTilde(saveProxyKey),
		}
	}
	return p
}
