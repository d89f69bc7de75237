// Package commands implements the saslgate CLI.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/saslgate/cmd/saslgate/commands/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile      string
	outputFormat string
	noColor      bool
)

var rootCmd = &cobra.Command{
	Use:   "saslgate",
	Short: "saslgate - SASL mechanism negotiation toolkit",
	Long: `saslgate negotiates SASL mechanisms through a configurable chain of
factories and verifies credentials against a file, LDAP, SQL, token or
Kerberos realm.

Use "saslgate [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/saslgate/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table|json|yaml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(mechanismsCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(hashPasswordCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(principalCmd)
	rootCmd.AddCommand(config.Cmd)
}

// GetConfigFile returns the config file path from the global flag.
func GetConfigFile() string {
	return cfgFile
}
