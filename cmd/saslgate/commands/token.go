package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/saslgate/pkg/config"
	"github.com/marmos91/saslgate/pkg/realm"
)

var tokenScope string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage OAUTHBEARER tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue <subject>",
	Short: "Issue a bearer token signed with realm.token.secret",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokenIssue,
}

func init() {
	tokenIssueCmd.Flags().StringVar(&tokenScope, "scope", "", "Scope claim")
	tokenCmd.AddCommand(tokenIssueCmd)
}

func runTokenIssue(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if cfg.Realm.Token.Secret == "" {
		return fmt.Errorf("realm.token.secret is not configured")
	}
	tokens, err := realm.NewTokenRealm(cfg.Realm.Token)
	if err != nil {
		return err
	}
	signed, err := tokens.Issue(args[0], tokenScope)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), signed)
	return nil
}
