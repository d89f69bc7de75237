package config

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/saslgate/internal/cli/output"
	"github.com/marmos91/saslgate/pkg/config"
)

const redacted = "********"

var showSecrets bool

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long: `Display the effective saslgate configuration, defaults included.

Secrets are masked unless --show-secrets is given. The global --output
flag selects json; any other value prints YAML.

Examples:
  # Show default config as YAML
  saslgate config show

  # Show as JSON
  saslgate config show --output json`,
	RunE: runConfigShow,
}

func init() {
	showCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "Print secrets in clear")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}
	if !showSecrets {
		maskSecrets(cfg)
	}

	format, _ := cmd.Flags().GetString("output")
	parsed, err := output.ParseFormat(format)
	if err != nil {
		return err
	}
	if parsed == output.FormatJSON {
		return output.PrintJSON(cmd.OutOrStdout(), cfg)
	}
	return output.PrintYAML(cmd.OutOrStdout(), cfg)
}

func maskSecrets(cfg *config.Config) {
	for _, s := range []*string{
		&cfg.Realm.Token.Secret,
		&cfg.Realm.LDAP.BindPassword,
		&cfg.Realm.SQL.Postgres.Password,
	} {
		if *s != "" {
			*s = redacted
		}
	}
}
