package config

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/saslgate/pkg/config"
	"github.com/marmos91/saslgate/pkg/sasl"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the saslgate configuration file.

Checks for syntax errors, missing required fields, invalid values,
unknown mechanism names and malformed property layers.

Examples:
  # Validate default config
  saslgate config validate

  # Validate specific config file
  saslgate config validate --config /etc/saslgate/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", displayPath)
	_, _ = fmt.Fprintln(out, "Validation: OK")

	if warnings := configWarnings(cfg); len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	_, _ = fmt.Fprintf(out, "\nConfiguration summary:\n")
	_, _ = fmt.Fprintf(out, "  Side:            %s\n", cfg.Negotiation.Side)
	_, _ = fmt.Fprintf(out, "  Property layers: %d\n", len(cfg.Negotiation.PropertyLayers))
	_, _ = fmt.Fprintf(out, "  Realm type:      %s\n", cfg.Realm.Type)
	_, _ = fmt.Fprintf(out, "  Lookup timeout:  %s\n", cfg.Realm.LookupTimeout)
	_, _ = fmt.Fprintf(out, "  Log level:       %s\n", cfg.Logging.Level)
	return nil
}

// configWarnings reports settings that are valid but likely unintended.
func configWarnings(cfg *config.Config) []string {
	var warnings []string
	if cfg.Trust.InsecureSkipVerify {
		warnings = append(warnings, "trust.insecure_skip_verify is set - directory certificates are not verified")
	}
	if cfg.Realm.Type == config.RealmLDAP && cfg.Realm.LDAP.AllowInsecure && strings.HasPrefix(cfg.Realm.LDAP.URL, "ldap://") && !cfg.Realm.LDAP.StartTLS {
		warnings = append(warnings, "realm.ldap.allow_insecure is set - bind passwords travel in the clear")
	}
	if cfg.Realm.AllowAnonymous {
		warnings = append(warnings, "realm.allow_anonymous is set - ANONYMOUS logins are accepted")
	}
	if cfg.Realm.Token.Secret == "" {
		warnings = append(warnings, "realm.token.secret not configured - OAUTHBEARER logins will fail")
	}
	layers, _ := config.PropertyLayers(cfg.Negotiation.PropertyLayers)
	for _, l := range layers {
		if l.Bool(sasl.PolicyNoPlaintext) && cfg.Realm.Type != config.RealmToken {
			warnings = append(warnings, "sasl.policy.noplaintext hides PLAIN and LOGIN, which password realms need")
			break
		}
	}
	return warnings
}
