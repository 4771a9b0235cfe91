package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rileyhilliard/sshmux/internal/config"
	"github.com/rileyhilliard/sshmux/internal/errors"
	"github.com/rileyhilliard/sshmux/internal/prompt"
	"github.com/rileyhilliard/sshmux/internal/secret"
	"github.com/rileyhilliard/sshmux/internal/ui"
	"github.com/spf13/cobra"
)

// Flags shared by secret set and delete.
var (
	secretPassphrase bool
	secretProxy      bool
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage stored passwords and key passphrases",
	Long: `Store, remove and list the passwords sshmux uses instead of prompting.

Secrets live in an encrypted file (secrets.backend: file) next to the config.
Jump host passwords are stored per jump host and shared by every profile that
tunnels through it.`,
}

var secretSetCmd = &cobra.Command{
	Use:   "set <profile>",
	Short: "Store the password for a profile",
	Example: `  sshmux secret set web
  sshmux secret set web --passphrase
  sshmux secret set db --proxy`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		key, label, err := resolveSecretKey(cfg, args[0])
		if err != nil {
			return err
		}

		value, ok, err := prompt.Default().Password(cmd.Context(), "Enter "+label)
		if err != nil {
			return err
		}
		if !ok {
			return errors.New(errors.ErrSecret, "Nothing stored", "Enter a non-empty value.")
		}
		if err := openSecrets(cfg.Secrets).Store(key, value); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success("Stored "+label))
		return nil
	},
}

var secretDeleteCmd = &cobra.Command{
	Use:     "delete <profile>",
	Aliases: []string{"rm"},
	Short:   "Remove the stored password for a profile",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		key, label, err := resolveSecretKey(cfg, args[0])
		if err != nil {
			return err
		}
		if err := openSecrets(cfg.Secrets).Delete(key); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.Success("Removed "+label))
		return nil
	},
}

var secretListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the keys of stored secrets",
	Long:  `List the keys of stored secrets. Values are never printed.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Secrets.Backend != config.SecretsFile {
			fmt.Fprintln(cmd.OutOrStdout(), ui.Muted("The memory backend keeps nothing between runs."))
			return nil
		}
		keys, err := secret.NewFileStore(cfg.Secrets.Path, cfg.Secrets.KeyPath).Keys()
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), ui.Muted("No secrets stored."))
			return nil
		}
		sort.Strings(keys)
		fmt.Fprintln(cmd.OutOrStdout(), strings.Join(keys, "\n"))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{secretSetCmd, secretDeleteCmd} {
		c.Flags().BoolVar(&secretPassphrase, "passphrase", false, "the private key passphrase instead of the login password")
		c.Flags().BoolVar(&secretProxy, "proxy", false, "the jump host password instead of the profile's own")
		c.MarkFlagsMutuallyExclusive("passphrase", "proxy")
	}
	secretCmd.AddCommand(secretSetCmd, secretDeleteCmd, secretListCmd)
	rootCmd.AddCommand(secretCmd)
}

// resolveSecretKey maps a profile and the --passphrase/--proxy flags to a
// store key and a label for messages.
func resolveSecretKey(cfg *config.Config, id string) (key, label string, err error) {
	profiles, _ := collectProfiles(cfg)
	p, err := lookupProfile(profiles, id)
	if err != nil {
		return "", "", err
	}
	return secretKeyFor(p, secretPassphrase, secretProxy)
}

func secretKeyFor(p config.Profile, passphrase, proxy bool) (key, label string, err error) {
	switch {
	case proxy:
		if p.Proxy == nil {
			return "", "", errors.New(errors.ErrConfig,
				fmt.Sprintf("Profile '%s' has no jump host", p.ID),
				"Drop --proxy to set the profile's own password.")
		}
		return secret.ProxyPasswordKey(p.Proxy.Host), "password for jump host " + p.Proxy.Host, nil
	case passphrase:
		return secret.PassphraseKey(p.ID), "key passphrase for " + p.ID, nil
	default:
		return secret.PasswordKey(p.ID), "password for " + p.ID, nil
	}
}
