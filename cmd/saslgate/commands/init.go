package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/saslgate/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample saslgate configuration file and an empty file realm.

By default, the configuration file is created at $XDG_CONFIG_HOME/saslgate/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  saslgate init

  # Initialize with custom path
  saslgate init --config /etc/saslgate/config.yaml

  # Force overwrite existing config
  saslgate init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	var configPath string
	var err error

	if configFile != "" {
		err = config.InitConfigToPath(configFile, initForce)
		configPath = configFile
	} else {
		configPath, err = config.InitConfig(initForce)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", configPath)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Add principals to the realm file (see: saslgate hash-password)")
	_, _ = fmt.Fprintln(out, "  2. List advertised mechanisms with: saslgate mechanisms")
	_, _ = fmt.Fprintln(out, "  3. Try a login with: saslgate check --user <name>")
	_, _ = fmt.Fprintln(out, "\nSecurity note:")
	_, _ = fmt.Fprintln(out, "  A random token secret has been generated. For production, override it with:")
	_, _ = fmt.Fprintln(out, "    export SASLGATE_REALM_TOKEN_SECRET=$(openssl rand -hex 32)")
	return nil
}
