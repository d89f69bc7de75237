package trust

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/saslgate/pkg/diag"
)

func selfSignedPEM(t *testing.T, cn string) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in   string
		want uint16
	}{
		{"", tls.VersionTLS12},
		{"TLS1.2", tls.VersionTLS12},
		{"TLSv1.2", tls.VersionTLS12},
		{"tls1.3", tls.VersionTLS13},
		{"TLS1.0", tls.VersionTLS10},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVersion(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseVersion("SSLv3")
	code, ok := diag.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, diag.UnknownProtocolVersion, code)
}

func TestLoad_FileAndInline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(path, selfSignedPEM(t, "Directory CA"), 0o600))

	m, err := Load(Config{CAFile: path, CAPEM: string(selfSignedPEM(t, "Second CA"))})
	require.NoError(t, err)
	assert.Equal(t, []string{"CN=Directory CA", "CN=Second CA"}, m.Subjects())
	assert.Equal(t, uint16(tls.VersionTLS12), m.MinVersion())

	cfg := m.TLSConfig("ldap.example.com")
	assert.Equal(t, "ldap.example.com", cfg.ServerName)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.NotNil(t, cfg.RootCAs)
	assert.NotSame(t, cfg, m.TLSConfig("ldap.example.com"), "each call returns a fresh config")
}

func TestLoad_ServerNameOverride(t *testing.T) {
	m, err := Load(Config{CAPEM: string(selfSignedPEM(t, "CA")), ServerName: "directory.internal", MinVersion: "TLS1.3"})
	require.NoError(t, err)
	cfg := m.TLSConfig("10.0.0.5")
	assert.Equal(t, "directory.internal", cfg.ServerName)
	assert.Equal(t, uint16(tls.VersionTLS13), cfg.MinVersion)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(Config{CAPEM: "not a certificate"})
	code, ok := diag.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, diag.NoTrustedCertificates, code)

	_, err = Load(Config{CAFile: filepath.Join(t.TempDir(), "missing.pem")})
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Load(Config{MinVersion: "TLS9"})
	assert.Error(t, err)
}

func TestLoad_SubjectsIsACopy(t *testing.T) {
	m, err := Load(Config{CAPEM: string(selfSignedPEM(t, "CA"))})
	require.NoError(t, err)
	s := m.Subjects()
	s[0] = "tampered"
	assert.Equal(t, "CN=CA", m.Subjects()[0])
}
