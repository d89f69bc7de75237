// Package kerberos verifies passwords against a Kerberos KDC.
//
// A password is accepted when an AS exchange for the principal succeeds.
// The realm holds no keys; krb5.conf locates the KDC. Environment
// variables take precedence over configuration:
//   - SASLGATE_KERBEROS_KRB5CONF overrides Krb5Conf
//   - SASLGATE_KERBEROS_REALM overrides Realm
package kerberos

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/jcmturner/gokrb5/v8/client"
	krb5config "github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/krberror"

	"github.com/marmos91/saslgate/internal/logger"
	"github.com/marmos91/saslgate/internal/telemetry"
	"github.com/marmos91/saslgate/pkg/directory"
	"github.com/marmos91/saslgate/pkg/realm"
)

// Config configures the Kerberos realm.
type Config struct {
	// Krb5Conf is the path to the Kerberos configuration file.
	// Default: /etc/krb5.conf
	Krb5Conf string `mapstructure:"krb5_conf" yaml:"krb5_conf,omitempty"`

	// Realm is the Kerberos realm principals belong to when they carry
	// none. Default: default_realm from krb5.conf
	Realm string `mapstructure:"realm" yaml:"realm,omitempty"`

	// EnableFAST enables PA-FX-FAST, which many KDCs do not support.
	EnableFAST bool `mapstructure:"enable_fast" yaml:"enable_fast,omitempty"`
}

// Realm verifies passwords with AS exchanges.
type Realm struct {
	krb5Conf *krb5config.Config
	realm    string
	fast     bool
}

var _ realm.Realm = (*Realm)(nil)

// New loads krb5.conf and resolves the default realm.
func New(cfg Config) (*Realm, error) {
	path := resolveKrb5ConfPath(cfg.Krb5Conf)
	krbCfg, err := loadKrb5Conf(path)
	if err != nil {
		return nil, fmt.Errorf("load krb5.conf %s: %w", path, err)
	}
	name := resolveRealm(cfg.Realm)
	if name == "" {
		name = krbCfg.LibDefaults.DefaultRealm
	}
	if name == "" {
		return nil, errors.New("kerberos realm not configured (set realm, SASLGATE_KERBEROS_REALM or default_realm in krb5.conf)")
	}
	return &Realm{krb5Conf: krbCfg, realm: name, fast: cfg.EnableFAST}, nil
}

func (r *Realm) Name() string { return "kerberos" }

// KerberosRealm returns the realm principals default to.
func (r *Realm) KerberosRealm() string { return r.realm }

// VerifyPassword runs an AS exchange for principal. A principal of the
// form user@REALM is looked up in REALM, anything else in the default
// realm.
func (r *Realm) VerifyPassword(ctx context.Context, principal string, password []byte) (bool, error) {
	user, krbRealm := r.split(principal)
	if user == "" {
		return false, fmt.Errorf("%w: %q", realm.ErrNotFound, principal)
	}

	ctx, span := telemetry.StartDirectorySpan(ctx, telemetry.SpanDirectoryLookup, krbRealm)
	defer span.End()

	cl := client.NewWithPassword(user, krbRealm, string(password), r.krb5Conf, client.DisablePAFXFAST(!r.fast))
	done := make(chan error, 1)
	go func() {
		err := cl.Login()
		cl.Destroy()
		done <- err
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		return false, &directory.UnavailableError{Target: krbRealm, Op: "as-exchange", Err: context.Cause(ctx)}
	}

	switch classify(err) {
	case outcomeOK:
		return true, nil
	case outcomeBadPassword:
		return false, nil
	case outcomeUnknown:
		return false, fmt.Errorf("%w: %s@%s", realm.ErrNotFound, user, krbRealm)
	case outcomeUnreachable:
		telemetry.RecordError(ctx, err)
		logger.WarnCtx(ctx, "kdc unreachable", logger.KeyTarget, krbRealm, logger.Err(err))
		return false, &directory.UnavailableError{Target: krbRealm, Op: "as-exchange", Err: err}
	default:
		return false, fmt.Errorf("kerberos login: %w", err)
	}
}

func (r *Realm) split(principal string) (user, krbRealm string) {
	user, krbRealm, found := strings.Cut(principal, "@")
	if !found || krbRealm == "" {
		krbRealm = r.realm
	}
	return user, krbRealm
}

type outcome int

const (
	outcomeOK outcome = iota
	outcomeBadPassword
	outcomeUnknown
	outcomeUnreachable
	outcomeOther
)

// KDC error names as rendered by gokrb5 in login errors.
var (
	badPasswordErrors = []string{"KDC_ERR_PREAUTH_FAILED", krberror.DecryptingError}
	unknownErrors     = []string{"KDC_ERR_C_PRINCIPAL_UNKNOWN", "KDC_ERR_CLIENT_REVOKED", "KDC_ERR_KEY_EXPIRED"}
)

func classify(err error) outcome {
	if err == nil {
		return outcomeOK
	}
	msg := err.Error()
	contains := func(names []string) bool {
		for _, n := range names {
			if strings.Contains(msg, n) {
				return true
			}
		}
		return false
	}
	switch {
	case contains(badPasswordErrors):
		return outcomeBadPassword
	case contains(unknownErrors):
		return outcomeUnknown
	case strings.Contains(msg, krberror.NetworkingError):
		return outcomeUnreachable
	default:
		return outcomeOther
	}
}

// loadKrb5Conf reads and parses a Kerberos configuration file.
func loadKrb5Conf(path string) (*krb5config.Config, error) {
	cfg, err := krb5config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("parse krb5.conf: %w", err)
	}
	return cfg, nil
}

// resolveKrb5ConfPath resolves the krb5.conf path with environment variable override.
//
// Resolution order (highest priority first):
//  1. SASLGATE_KERBEROS_KRB5CONF env var
//  2. configPath from configuration file
//  3. Default: /etc/krb5.conf
func resolveKrb5ConfPath(configPath string) string {
	if envPath := os.Getenv("SASLGATE_KERBEROS_KRB5CONF"); envPath != "" {
		return envPath
	}
	if configPath != "" {
		return configPath
	}
	return "/etc/krb5.conf"
}

func resolveRealm(configRealm string) string {
	if env := os.Getenv("SASLGATE_KERBEROS_REALM"); env != "" {
		return env
	}
	return configRealm
}
