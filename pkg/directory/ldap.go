package directory

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/go-ldap/ldap/v3"
	"go.opentelemetry.io/otel/attribute"

	"github.com/marmos91/saslgate/internal/logger"
	"github.com/marmos91/saslgate/internal/telemetry"
	"github.com/marmos91/saslgate/pkg/trust"
)

// LDAP defaults.
const (
	DefaultBaseDN              = "dc=elytron,dc=wildfly,dc=org"
	DefaultPrincipalAttribute  = "uid"
	DefaultCredentialAttribute = "userPassword"
	DefaultTimeout             = 10 * time.Second
)

// LDAPConfig configures an LDAP provider.
type LDAPConfig struct {
	// URL is ldap://host:port or ldaps://host:port.
	URL string `mapstructure:"url" yaml:"url" validate:"required,url"`

	// StartTLS upgrades an ldap:// connection before binding.
	StartTLS bool `mapstructure:"start_tls" yaml:"start_tls,omitempty"`

	// AllowInsecure accepts ldap:// without StartTLS. Binds and credential
	// reads then travel in the clear.
	AllowInsecure bool `mapstructure:"allow_insecure" yaml:"allow_insecure,omitempty"`

	BindDN       string `mapstructure:"bind_dn" yaml:"bind_dn,omitempty"`
	BindPassword string `mapstructure:"bind_password" yaml:"bind_password,omitempty"`

	BaseDN              string `mapstructure:"base_dn" yaml:"base_dn,omitempty"`
	PrincipalAttribute  string `mapstructure:"principal_attribute" yaml:"principal_attribute,omitempty"`
	CredentialAttribute string `mapstructure:"credential_attribute" yaml:"credential_attribute,omitempty"`

	// Attributes are extra attributes copied into Credential.Attributes.
	Attributes []string `mapstructure:"attributes" yaml:"attributes,omitempty"`

	// Timeout bounds dialing and each request. A shorter ctx deadline wins.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout,omitempty"`
}

// ApplyDefaults fills unset fields.
func (c *LDAPConfig) ApplyDefaults() {
	if c.BaseDN == "" {
		c.BaseDN = DefaultBaseDN
	}
	if c.PrincipalAttribute == "" {
		c.PrincipalAttribute = DefaultPrincipalAttribute
	}
	if c.CredentialAttribute == "" {
		c.CredentialAttribute = DefaultCredentialAttribute
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// LDAPProvider opens sessions against one LDAP server.
//
// Trust material is loaded the first time a trust.Config is seen, or by
// PreloadTrust, and reused by every later session.
type LDAPProvider struct {
	cfg    LDAPConfig
	host   string
	secure bool

	mu        sync.Mutex
	materials map[trust.Config]*trust.Material
}

// NewLDAPProvider validates cfg and returns a provider. No connection is
// made until OpenSession.
func NewLDAPProvider(cfg LDAPConfig) (*LDAPProvider, error) {
	cfg.ApplyDefaults()
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse directory url: %w", err)
	}
	switch u.Scheme {
	case "ldap", "ldaps":
	default:
		return nil, fmt.Errorf("unsupported directory url scheme %q", u.Scheme)
	}
	if u.Scheme == "ldaps" && cfg.StartTLS {
		return nil, errors.New("start_tls cannot be combined with ldaps")
	}
	if u.Scheme == "ldap" && !cfg.StartTLS && !cfg.AllowInsecure {
		return nil, fmt.Errorf("directory url %q is not protected: use ldaps://, start_tls or allow_insecure", cfg.URL)
	}
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("directory url %q has no host", cfg.URL)
	}
	return &LDAPProvider{
		cfg:       cfg,
		host:      host,
		secure:    u.Scheme == "ldaps" || cfg.StartTLS,
		materials: make(map[trust.Config]*trust.Material),
	}, nil
}

// PreloadTrust loads the material for tc so that later sessions never touch
// the trust sources again. It is a no-op for insecure providers.
func (p *LDAPProvider) PreloadTrust(tc trust.Config) error {
	if !p.secure {
		return nil
	}
	_, err := p.material(tc)
	return err
}

func (p *LDAPProvider) material(tc trust.Config) (*trust.Material, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if m, ok := p.materials[tc]; ok {
		return m, nil
	}
	m, err := trust.Load(tc)
	if err != nil {
		return nil, err
	}
	p.materials[tc] = m
	return m, nil
}

func (p *LDAPProvider) Name() string { return "ldap" }

// timeout returns the configured timeout, shortened to the ctx deadline.
func (p *LDAPProvider) timeout(ctx context.Context) time.Duration {
	t := p.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < t {
			t = max(left, time.Millisecond)
		}
	}
	return t
}

func (p *LDAPProvider) OpenSession(ctx context.Context, tc trust.Config) (Session, error) {
	ctx, span := telemetry.StartDirectorySpan(ctx, telemetry.SpanDirectoryOpen, p.cfg.URL,
		attribute.String(telemetry.AttrDirectoryOp, "open"))
	defer span.End()

	s, err := p.open(ctx, tc)
	if err != nil {
		telemetry.RecordError(ctx, err)
		logger.WarnCtx(ctx, "directory session failed", logger.KeyTarget, p.cfg.URL, logger.Err(err))
		return nil, err
	}
	logger.DebugCtx(ctx, "directory session opened", logger.KeyTarget, p.cfg.URL)
	return s, nil
}

func (p *LDAPProvider) open(ctx context.Context, tc trust.Config) (*ldapSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(p.cfg.URL, "connect", err)
	}

	var opts []ldap.DialOpt
	var material *trust.Material
	if p.secure {
		m, err := p.material(tc)
		if err != nil {
			return nil, unavailable(p.cfg.URL, "load trust", err)
		}
		material = m
		opts = append(opts, ldap.DialWithTLSConfig(material.TLSConfig(p.host)))
	}
	timeout := p.timeout(ctx)
	opts = append(opts, ldap.DialWithDialer(&net.Dialer{Timeout: timeout}))

	conn, err := ldap.DialURL(p.cfg.URL, opts...)
	if err != nil {
		return nil, unavailable(p.cfg.URL, "connect", err)
	}
	conn.SetTimeout(timeout)

	// Abort in-flight requests when ctx ends before the session is ready.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if p.cfg.StartTLS {
		if err := conn.StartTLS(material.TLSConfig(p.host)); err != nil {
			_ = conn.Close()
			return nil, unavailable(p.cfg.URL, "starttls", contextCause(ctx, err))
		}
	}

	if p.cfg.BindDN != "" {
		err = conn.Bind(p.cfg.BindDN, p.cfg.BindPassword)
	} else {
		err = conn.UnauthenticatedBind("")
	}
	if err != nil {
		_ = conn.Close()
		return nil, unavailable(p.cfg.URL, "bind", contextCause(ctx, err))
	}
	if err := ctx.Err(); err != nil {
		_ = conn.Close()
		return nil, unavailable(p.cfg.URL, "bind", err)
	}
	return &ldapSession{provider: p, conn: conn}, nil
}

// contextCause prefers the context error when ctx ending caused err.
func contextCause(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return fmt.Errorf("%w: %w", cerr, err)
	}
	return err
}

type ldapSession struct {
	provider *LDAPProvider
	conn     *ldap.Conn
}

func (s *ldapSession) LookupCredential(ctx context.Context, principal string) (*Credential, error) {
	cfg := s.provider.cfg
	ctx, span := telemetry.StartDirectorySpan(ctx, telemetry.SpanDirectoryLookup, cfg.URL,
		attribute.String(telemetry.AttrDirectoryOp, "search"), telemetry.Principal(principal))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, unavailable(cfg.URL, "search", err)
	}
	s.conn.SetTimeout(s.provider.timeout(ctx))

	attrs := append([]string{cfg.CredentialAttribute}, cfg.Attributes...)
	req := ldap.NewSearchRequest(
		cfg.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		2, 0, false,
		fmt.Sprintf("(%s=%s)", cfg.PrincipalAttribute, ldap.EscapeFilter(principal)),
		attrs,
		nil,
	)

	res, err := s.conn.Search(req)
	if err != nil {
		telemetry.RecordError(ctx, err)
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return nil, fmt.Errorf("%w: %s (base %s missing)", ErrNotFound, principal, cfg.BaseDN)
		}
		return nil, unavailable(cfg.URL, "search", err)
	}

	switch len(res.Entries) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, principal)
	case 1:
	default:
		return nil, fmt.Errorf("principal %s matches %d entries", principal, len(res.Entries))
	}

	entry := res.Entries[0]
	cred := &Credential{
		Principal: principal,
		DN:        entry.DN,
		Password:  append([]byte(nil), entry.GetRawAttributeValue(cfg.CredentialAttribute)...),
	}
	if len(cfg.Attributes) > 0 {
		cred.Attributes = make(map[string][]string, len(cfg.Attributes))
		for _, a := range cfg.Attributes {
			cred.Attributes[a] = entry.GetAttributeValues(a)
		}
	}
	return cred, nil
}

func (s *ldapSession) Close() error {
	return s.conn.Close()
}
