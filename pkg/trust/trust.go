// Package trust loads the certificate authorities and protocol floor used
// to reach directories and other TLS peers.
//
// Material is validated once by Load and is immutable afterwards, so one
// value can back any number of sessions.
package trust

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"github.com/marmos91/saslgate/pkg/diag"
)

// DefaultMinVersion is the protocol floor when Config.MinVersion is empty.
const DefaultMinVersion = "TLS1.2"

// Config describes where trust material comes from.
type Config struct {
	// CAFile is a PEM bundle on disk.
	CAFile string `mapstructure:"ca_file" yaml:"ca_file,omitempty"`

	// CAPEM is a PEM bundle held inline. Used in addition to CAFile.
	CAPEM string `mapstructure:"ca_pem" yaml:"ca_pem,omitempty"`

	// MinVersion is the lowest accepted protocol: TLS1.0 to TLS1.3.
	MinVersion string `mapstructure:"min_version" yaml:"min_version,omitempty"`

	// ServerName overrides the name verified against peer certificates.
	ServerName string `mapstructure:"server_name" yaml:"server_name,omitempty"`

	// InsecureSkipVerify disables peer verification. Tests only.
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify,omitempty"`
}

// Material is loaded, validated trust material.
type Material struct {
	pool       *x509.CertPool
	subjects   []string
	minVersion uint16
	serverName string
	insecure   bool
}

var versions = map[string]uint16{
	"TLS1.0": tls.VersionTLS10,
	"TLS1.1": tls.VersionTLS11,
	"TLS1.2": tls.VersionTLS12,
	"TLS1.3": tls.VersionTLS13,
}

// ParseVersion maps "TLS1.2" style names (case-insensitive, "TLSv1.2"
// accepted) to crypto/tls constants.
func ParseVersion(name string) (uint16, error) {
	if name == "" {
		name = DefaultMinVersion
	}
	key := strings.ToUpper(strings.Replace(strings.TrimSpace(name), "v", "", 1))
	v, ok := versions[key]
	if !ok {
		return 0, diag.New(diag.UnknownProtocolVersion, name)
	}
	return v, nil
}

// Load reads and validates the material described by cfg. With neither a
// file nor inline PEM the system roots are used.
func Load(cfg Config) (*Material, error) {
	minVersion, err := ParseVersion(cfg.MinVersion)
	if err != nil {
		return nil, err
	}
	m := &Material{minVersion: minVersion, serverName: cfg.ServerName, insecure: cfg.InsecureSkipVerify}

	if cfg.CAFile == "" && cfg.CAPEM == "" {
		pool, err := x509.SystemCertPool()
		if err != nil {
			return nil, fmt.Errorf("load system roots: %w", err)
		}
		m.pool = pool
		return m, nil
	}

	m.pool = x509.NewCertPool()
	if cfg.CAFile != "" {
		data, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		if err := m.add(cfg.CAFile, data); err != nil {
			return nil, err
		}
	}
	if cfg.CAPEM != "" {
		if err := m.add("inline PEM", []byte(cfg.CAPEM)); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Material) add(source string, data []byte) error {
	added := 0
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return fmt.Errorf("parse certificate in %s: %w", source, err)
		}
		m.pool.AddCert(cert)
		m.subjects = append(m.subjects, cert.Subject.String())
		added++
	}
	if added == 0 {
		return diag.New(diag.NoTrustedCertificates, source)
	}
	return nil
}

// Subjects lists the subjects of explicitly loaded authorities. Empty when
// the system roots are in use.
func (m *Material) Subjects() []string {
	return append([]string(nil), m.subjects...)
}

// MinVersion returns the protocol floor.
func (m *Material) MinVersion() uint16 { return m.minVersion }

// TLSConfig returns a fresh client configuration. serverName is used when
// the material does not override it.
func (m *Material) TLSConfig(serverName string) *tls.Config {
	if m.serverName != "" {
		serverName = m.serverName
	}
	return &tls.Config{
		RootCAs:            m.pool,
		MinVersion:         m.minVersion,
		ServerName:         serverName,
		InsecureSkipVerify: m.insecure, //nolint:gosec // opt-in for tests
	}
}
