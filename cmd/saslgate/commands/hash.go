package commands

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/marmos91/saslgate/internal/cli/prompt"
	"github.com/marmos91/saslgate/pkg/realm"
)

var (
	hashCost  int
	hashStdin bool
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Hash a password for a realm file",
	Long: `Print a bcrypt hash suitable for the password field of a realm file.

Examples:
  # Prompt for the password twice
  saslgate hash-password

  # Read the password from stdin
  echo -n 's3cret-pass' | saslgate hash-password --stdin`,
	RunE: runHashPassword,
}

func init() {
	hashPasswordCmd.Flags().IntVar(&hashCost, "cost", realm.DefaultBcryptCost, "bcrypt cost")
	hashPasswordCmd.Flags().BoolVar(&hashStdin, "stdin", false, "Read the password from stdin")
}

func runHashPassword(cmd *cobra.Command, args []string) error {
	if hashCost < bcrypt.MinCost || hashCost > bcrypt.MaxCost {
		return fmt.Errorf("--cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	var password []byte
	if hashStdin {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		password = []byte(strings.TrimRight(line, "\r\n"))
	} else {
		var err error
		if password, err = prompt.NewPassword(realm.MinPasswordLength); err != nil {
			return err
		}
	}

	hash, err := realm.HashPasswordWithCost(password, hashCost)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}
