package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/saslgate/internal/cli/output"
	"github.com/marmos91/saslgate/internal/cli/prompt"
	"github.com/marmos91/saslgate/internal/logger"
	"github.com/marmos91/saslgate/pkg/config"
	"github.com/marmos91/saslgate/pkg/diag"
	"github.com/marmos91/saslgate/pkg/sasl"
	"github.com/marmos91/saslgate/pkg/sasl/mechanisms"
)

var (
	checkUser      string
	checkPassword  string
	checkToken     string
	checkMechanism string
	checkAuthzID   string
	checkRepeat    int
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run a local exchange against the configured realm",
	Long: `Run a complete client/server exchange in-process: the server side uses
the negotiation chain and realm from the configuration, the client side
the same chain built for the client role.

The password is prompted for when neither --password nor --token is
given and the mechanism needs one.

Examples:
  # PLAIN login against the file realm
  saslgate check --user jdoe

  # OAUTHBEARER with a token issued by 'saslgate token issue'
  saslgate check --mechanism OAUTHBEARER --user jdoe --token "$TOKEN"

  # Act as another identity
  saslgate check --user svc-backup --authzid jdoe`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVarP(&checkUser, "user", "u", "", "Authentication identity")
	checkCmd.Flags().StringVar(&checkPassword, "password", "", "Password (prompted when omitted)")
	checkCmd.Flags().StringVar(&checkToken, "token", "", "Bearer token for OAUTHBEARER")
	checkCmd.Flags().StringVarP(&checkMechanism, "mechanism", "m", mechanisms.Plain, "Mechanism to negotiate")
	checkCmd.Flags().StringVar(&checkAuthzID, "authzid", "", "Authorization identity to request")
	checkCmd.Flags().IntVar(&checkRepeat, "repeat", 1, "Number of exchanges to run")
}

// CheckResult summarizes a check run.
type CheckResult struct {
	Mechanism       string        `json:"mechanism" yaml:"mechanism"`
	Realm           string        `json:"realm" yaml:"realm"`
	Exchanges       int           `json:"exchanges" yaml:"exchanges"`
	Succeeded       int           `json:"succeeded" yaml:"succeeded"`
	AuthorizationID string        `json:"authorization_id,omitempty" yaml:"authorization_id,omitempty"`
	Duration        time.Duration `json:"duration_ns" yaml:"duration"`
	Error           string        `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorCode       string        `json:"error_code,omitempty" yaml:"error_code,omitempty"`
}

func runCheck(cmd *cobra.Command, args []string) error {
	if checkRepeat < 1 {
		return errors.New("--repeat must be at least 1")
	}
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	e, err := setup(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	go func() {
		if err := e.metrics.Serve(ctx); err != nil {
			logger.Warn("metrics server stopped", logger.Err(err))
		}
	}()

	mech := strings.ToUpper(checkMechanism)
	creds, err := checkCredentials(mech)
	if err != nil {
		return err
	}

	serverCfg, clientCfg := e.cfg.Negotiation, e.cfg.Negotiation
	serverCfg.Side, clientCfg.Side = "server", "client"
	server, err := config.BuildFactory(&serverCfg, e.registry, e.metrics.Exchange)
	if err != nil {
		return err
	}
	client, err := config.BuildFactory(&clientCfg, e.registry, e.metrics.Exchange)
	if err != nil {
		return err
	}

	rlm, err := config.BuildRealm(ctx, e.cfg, e.metrics.Exchange)
	if err != nil {
		return err
	}
	defer func() { _ = rlm.Close() }()

	authzID := checkAuthzID
	if authzID == "" {
		authzID = e.cfg.Negotiation.AuthorizationID
	}

	result := CheckResult{Mechanism: mech, Realm: e.cfg.Realm.Type}
	start := time.Now()
	var lastErr error
	for i := 0; i < checkRepeat; i++ {
		result.Exchanges++
		id, err := runExchange(ctx, client, server, mech, authzID, creds, rlm)
		if err != nil {
			lastErr = err
			continue
		}
		result.Succeeded++
		result.AuthorizationID = id
	}
	result.Duration = time.Since(start)

	if lastErr != nil {
		result.Error = lastErr.Error()
		if code, ok := diag.CodeOf(lastErr); ok {
			result.ErrorCode = code.ID()
		}
	}

	p, err := printer(cmd)
	if err != nil {
		return err
	}
	if p.Format() != output.FormatTable {
		if err := p.Print(result); err != nil {
			return err
		}
	} else {
		printCheckTable(p, result)
	}
	if result.Succeeded < result.Exchanges {
		return fmt.Errorf("%d of %d exchanges failed", result.Exchanges-result.Succeeded, result.Exchanges)
	}
	return nil
}

func runExchange(ctx context.Context, client, server sasl.MechanismFactory, mech, authzID string, creds sasl.CallbackResolver, resolver sasl.CallbackResolver) (string, error) {
	names := []string{mech}
	ch, err := client.CreateHandle(names, authzID, "saslgate", "localhost", nil, creds)
	if err != nil {
		return "", err
	}
	defer ch.Dispose()
	sh, err := server.CreateHandle(names, "", "saslgate", "localhost", nil, resolver)
	if err != nil {
		return "", err
	}
	defer sh.Dispose()

	if err := sasl.Exchange(ctx, ch, sh); err != nil {
		return "", err
	}
	return sh.AuthorizationID()
}

func checkCredentials(mech string) (sasl.StaticCredentials, error) {
	creds := sasl.StaticCredentials{Username: checkUser, Token: checkToken}
	switch mech {
	case mechanisms.Plain, mechanisms.Login:
		if checkUser == "" {
			return creds, errors.New("--user is required for " + mech)
		}
		if checkPassword != "" {
			creds.Password = []byte(checkPassword)
			return creds, nil
		}
		pw, err := prompt.Password("Password for " + checkUser)
		if err != nil {
			return creds, err
		}
		creds.Password = pw
	case mechanisms.OAuthBearer:
		if checkToken == "" {
			return creds, errors.New("--token is required for OAUTHBEARER")
		}
	}
	return creds, nil
}

func printCheckTable(p *output.Printer, r CheckResult) {
	pairs := [][2]string{
		{"Mechanism", r.Mechanism},
		{"Realm", r.Realm},
		{"Exchanges", fmt.Sprintf("%d/%d succeeded", r.Succeeded, r.Exchanges)},
		{"Duration", r.Duration.Round(time.Microsecond).String()},
	}
	if r.AuthorizationID != "" {
		pairs = append(pairs, [2]string{"Authorization ID", r.AuthorizationID})
	}
	_ = output.KeyValues(p.Writer(), pairs)
	if r.Error != "" {
		p.Error("Last error: " + r.Error)
		return
	}
	p.Success("Authentication OK")
}
