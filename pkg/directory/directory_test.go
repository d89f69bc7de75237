package directory

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/saslgate/pkg/diag"
	"github.com/marmos91/saslgate/pkg/trust"
)

func TestMemoryProvider_Lookup(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider(map[string]string{"server": "serverPassword"})

	s, err := p.OpenSession(ctx, trust.Config{})
	require.NoError(t, err)
	defer s.Close()

	cred, err := s.LookupCredential(ctx, "server")
	require.NoError(t, err)
	assert.Equal(t, "serverPassword", string(cred.Password))
	assert.Equal(t, "uid=server,dc=elytron,dc=wildfly,dc=org", cred.DN)

	cred.Wipe()
	again, err := s.LookupCredential(ctx, "server")
	require.NoError(t, err)
	assert.Equal(t, "serverPassword", string(again.Password), "lookups return copies")

	_, err = s.LookupCredential(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrDirectoryUnavailable)
}

func TestMemoryProvider_Outage(t *testing.T) {
	p := NewMemoryProvider(nil)
	p.SetUnavailable(true)

	_, err := p.OpenSession(context.Background(), trust.Config{})
	assert.ErrorIs(t, err, ErrDirectoryUnavailable)

	var ue *UnavailableError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "memory", ue.Target)
	assert.Equal(t, "connect", ue.Op)
	assert.Equal(t, diag.DirectoryUnavailable, ue.Code())
	assert.Contains(t, err.Error(), "SGW26006")
}

func TestWithSession_AlwaysCloses(t *testing.T) {
	p := NewMemoryProvider(map[string]string{"a": "b"})
	boom := errors.New("boom")

	err := WithSession(context.Background(), p, trust.Config{}, func(s Session) error {
		assert.Equal(t, 1, p.OpenSessions())
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, p.OpenSessions())

	err = WithSession(context.Background(), p, trust.Config{}, func(s Session) error {
		_, err := s.LookupCredential(context.Background(), "a")
		return err
	})
	assert.NoError(t, err)
	assert.Zero(t, p.OpenSessions())
}

func TestNewLDAPProvider_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  LDAPConfig
	}{
		{"BadScheme", LDAPConfig{URL: "http://localhost"}},
		{"NoHost", LDAPConfig{URL: "ldap://"}},
		{"StartTLSOverLDAPS", LDAPConfig{URL: "ldaps://localhost:636", StartTLS: true}},
		{"CleartextWithoutOptIn", LDAPConfig{URL: "ldap://localhost:389"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLDAPProvider(tt.cfg)
			assert.Error(t, err)
		})
	}

	p, err := NewLDAPProvider(LDAPConfig{URL: "ldap://localhost:11390", AllowInsecure: true})
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseDN, p.cfg.BaseDN)
	assert.Equal(t, "uid", p.cfg.PrincipalAttribute)
	assert.Equal(t, "userPassword", p.cfg.CredentialAttribute)
	assert.Equal(t, DefaultTimeout, p.cfg.Timeout)

	for _, cfg := range []LDAPConfig{
		{URL: "ldaps://localhost:636"},
		{URL: "ldap://localhost:389", StartTLS: true},
	} {
		p, err := NewLDAPProvider(cfg)
		require.NoError(t, err, cfg.URL)
		assert.True(t, p.secure)
	}
}

// silentListener accepts connections and never answers.
func silentListener(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return ln.Addr().String()
}

func TestLDAPProvider_UnreachableWithinBound(t *testing.T) {
	addr := silentListener(t)
	p, err := NewLDAPProvider(LDAPConfig{URL: "ldap://" + addr, BindDN: "uid=server,dc=elytron,dc=wildfly,dc=org", BindPassword: "serverPassword", AllowInsecure: true})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	_, err = p.OpenSession(ctx, trust.Config{})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDirectoryUnavailable)
	assert.Less(t, elapsed, 5*time.Second)

	var ue *UnavailableError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "ldap://"+addr, ue.Target)
}

func TestLDAPProvider_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	p, err := NewLDAPProvider(LDAPConfig{URL: "ldap://" + addr, Timeout: time.Second, AllowInsecure: true})
	require.NoError(t, err)

	_, err = p.OpenSession(context.Background(), trust.Config{})
	assert.ErrorIs(t, err, ErrDirectoryUnavailable)
}

func TestLDAPProvider_BadTrustMaterial(t *testing.T) {
	p, err := NewLDAPProvider(LDAPConfig{URL: "ldaps://127.0.0.1:1"})
	require.NoError(t, err)

	_, err = p.OpenSession(context.Background(), trust.Config{CAPEM: "garbage"})
	assert.ErrorIs(t, err, ErrDirectoryUnavailable)
	code, ok := diag.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, diag.NoTrustedCertificates, code)
}

func TestLDAPProvider_CancelledContext(t *testing.T) {
	p, err := NewLDAPProvider(LDAPConfig{URL: "ldap://127.0.0.1:389", AllowInsecure: true})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = p.OpenSession(ctx, trust.Config{})
	assert.ErrorIs(t, err, ErrDirectoryUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLDAPProvider_TimeoutFollowsDeadline(t *testing.T) {
	p, err := NewLDAPProvider(LDAPConfig{URL: "ldap://localhost", Timeout: time.Minute, AllowInsecure: true})
	require.NoError(t, err)

	assert.Equal(t, time.Minute, p.timeout(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.LessOrEqual(t, p.timeout(ctx), 2*time.Second)
}

func writeCA(t *testing.T) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "saslgate test CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	return path
}

func TestLDAPProvider_TrustLoadedOnce(t *testing.T) {
	t.Run("Preload", func(t *testing.T) {
		ca := writeCA(t)
		tc := trust.Config{CAFile: ca}
		p, err := NewLDAPProvider(LDAPConfig{URL: "ldaps://127.0.0.1:1", Timeout: time.Second})
		require.NoError(t, err)
		require.NoError(t, p.PreloadTrust(tc))

		require.NoError(t, os.Remove(ca))

		_, err = p.OpenSession(context.Background(), tc)
		var ue *UnavailableError
		require.True(t, errors.As(err, &ue))
		assert.Equal(t, "connect", ue.Op, "sessions reuse the preloaded material")
	})

	t.Run("FirstSession", func(t *testing.T) {
		ca := writeCA(t)
		tc := trust.Config{CAFile: ca}
		p, err := NewLDAPProvider(LDAPConfig{URL: "ldaps://127.0.0.1:1", Timeout: time.Second})
		require.NoError(t, err)

		_, err = p.OpenSession(context.Background(), tc)
		require.ErrorIs(t, err, ErrDirectoryUnavailable)

		require.NoError(t, os.WriteFile(ca, []byte("not a certificate"), 0o600))

		_, err = p.OpenSession(context.Background(), tc)
		var ue *UnavailableError
		require.True(t, errors.As(err, &ue))
		assert.Equal(t, "connect", ue.Op)
	})

	t.Run("PreloadFailsOnBadMaterial", func(t *testing.T) {
		p, err := NewLDAPProvider(LDAPConfig{URL: "ldaps://127.0.0.1:1"})
		require.NoError(t, err)
		err = p.PreloadTrust(trust.Config{CAFile: filepath.Join(t.TempDir(), "missing.pem")})
		assert.ErrorContains(t, err, "read CA file")
	})

	t.Run("InsecureSkipsTrust", func(t *testing.T) {
		p, err := NewLDAPProvider(LDAPConfig{URL: "ldap://127.0.0.1:1", AllowInsecure: true})
		require.NoError(t, err)
		assert.NoError(t, p.PreloadTrust(trust.Config{CAFile: "/nonexistent/ca.pem"}))
	})
}
