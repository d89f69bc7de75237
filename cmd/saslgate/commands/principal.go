package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/saslgate/internal/cli/prompt"
	"github.com/marmos91/saslgate/pkg/config"
	"github.com/marmos91/saslgate/pkg/realm"
	"github.com/marmos91/saslgate/pkg/realm/sqlrealm"
)

var (
	principalPassword string
	principalForce    bool
)

var principalCmd = &cobra.Command{
	Use:   "principal",
	Short: "Manage principals of the SQL realm",
	Long: `Manage principals stored in the SQL realm (realm.type: sql).

Examples:
  saslgate principal add jdoe
  saslgate principal grant svc-backup jdoe
  saslgate principal list -o json
  saslgate principal disable jdoe`,
}

func init() {
	addCmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a principal",
		Args:  cobra.ExactArgs(1),
		RunE:  withStore(runPrincipalAdd),
	}
	addCmd.Flags().StringVar(&principalPassword, "password", "", "Password (prompted when omitted)")

	passwdCmd := &cobra.Command{
		Use:   "passwd <name>",
		Short: "Change a principal's password",
		Args:  cobra.ExactArgs(1),
		RunE:  withStore(runPrincipalPasswd),
	}
	passwdCmd.Flags().StringVar(&principalPassword, "password", "", "Password (prompted when omitted)")

	deleteCmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a principal and its delegations",
		Args:  cobra.ExactArgs(1),
		RunE:  withStore(runPrincipalDelete),
	}
	deleteCmd.Flags().BoolVarP(&principalForce, "force", "f", false, "Do not ask for confirmation")

	principalCmd.AddCommand(
		addCmd,
		passwdCmd,
		deleteCmd,
		&cobra.Command{Use: "list", Short: "List principals", Args: cobra.NoArgs, RunE: withStore(runPrincipalList)},
		&cobra.Command{Use: "enable <name>", Short: "Enable a principal", Args: cobra.ExactArgs(1), RunE: withStore(setEnabled(true))},
		&cobra.Command{Use: "disable <name>", Short: "Disable a principal", Args: cobra.ExactArgs(1), RunE: withStore(setEnabled(false))},
		&cobra.Command{Use: "grant <name> <act-as>", Short: "Allow a principal to act as another identity (* for any)", Args: cobra.ExactArgs(2), RunE: withStore(runPrincipalGrant)},
	)
}

type storeRunE func(cmd *cobra.Command, store *sqlrealm.Store, args []string) error

// withStore opens the SQL realm for the duration of fn.
func withStore(fn storeRunE) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.MustLoad(GetConfigFile())
		if err != nil {
			return err
		}
		if err := InitLogger(cfg); err != nil {
			return err
		}
		if cfg.Realm.Type != config.RealmSQL {
			return fmt.Errorf("principal commands need realm.type %q, configured %q", config.RealmSQL, cfg.Realm.Type)
		}
		store, err := sqlrealm.Open(&cfg.Realm.SQL)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()
		return fn(cmd, store, args)
	}
}

func principalSecret() ([]byte, error) {
	if principalPassword != "" {
		return []byte(principalPassword), nil
	}
	return prompt.NewPassword(realm.MinPasswordLength)
}

func runPrincipalAdd(cmd *cobra.Command, store *sqlrealm.Store, args []string) error {
	pw, err := principalSecret()
	if err != nil {
		return err
	}
	p, err := store.CreatePrincipal(cmd.Context(), args[0], pw)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Principal %s created (id %s)\n", p.Name, p.ID)
	return nil
}

func runPrincipalPasswd(cmd *cobra.Command, store *sqlrealm.Store, args []string) error {
	pw, err := principalSecret()
	if err != nil {
		return err
	}
	if err := store.SetPassword(cmd.Context(), args[0], pw); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Password of %s updated\n", args[0])
	return nil
}

func runPrincipalDelete(cmd *cobra.Command, store *sqlrealm.Store, args []string) error {
	ok, err := prompt.Confirm(fmt.Sprintf("Delete principal %s", args[0]), principalForce)
	if err != nil || !ok {
		return err
	}
	if err := store.DeletePrincipal(cmd.Context(), args[0]); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Principal %s deleted\n", args[0])
	return nil
}

func setEnabled(enabled bool) storeRunE {
	return func(cmd *cobra.Command, store *sqlrealm.Store, args []string) error {
		return store.SetEnabled(cmd.Context(), args[0], enabled)
	}
}

func runPrincipalGrant(cmd *cobra.Command, store *sqlrealm.Store, args []string) error {
	return store.Grant(cmd.Context(), args[0], args[1])
}

// PrincipalList renders principals as a table.
type PrincipalList []*sqlrealm.Principal

func (l PrincipalList) Headers() []string {
	return []string{"Name", "Enabled", "May act as", "Last login"}
}

func (l PrincipalList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, p := range l {
		actAs := make([]string, len(p.Delegations))
		for i, d := range p.Delegations {
			actAs[i] = d.ActAs
		}
		last := "never"
		if p.LastLogin != nil {
			last = p.LastLogin.Format(time.RFC3339)
		}
		rows = append(rows, []string{p.Name, fmt.Sprint(p.Enabled), strings.Join(actAs, ","), last})
	}
	return rows
}

func runPrincipalList(cmd *cobra.Command, store *sqlrealm.Store, args []string) error {
	principals, err := store.ListPrincipals(cmd.Context())
	if err != nil {
		return err
	}
	p, err := printer(cmd)
	if err != nil {
		return err
	}
	return p.Print(PrincipalList(principals))
}
