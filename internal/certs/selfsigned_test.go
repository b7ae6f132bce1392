package certs

import (
	"crypto/sha256"
	"crypto/x509"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		validity time.Duration
		want     time.Duration
	}{
		{"one hour", time.Hour, time.Hour},
		{"capped", 30 * 24 * time.Hour, maxValidity},
		{"zero means the cap", 0, maxValidity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cert, err := Generate(tt.validity)
			require.NoError(t, err)

			require.Len(t, cert.TLSCert.Certificate, 1)
			require.Equal(t, tt.want, cert.Leaf.NotAfter.Sub(cert.Leaf.NotBefore))
			require.True(t, cert.NotAfter.After(time.Now()))
			require.Equal(t, sha256.Sum256(cert.TLSCert.Certificate[0]), cert.Fingerprint)
			require.NotEmpty(t, cert.FingerprintBase64())
			require.Equal(t, "localhost", cert.Leaf.Subject.CommonName)
		})
	}
}

func TestGenerateHosts(t *testing.T) {
	t.Parallel()

	cert, err := Generate(time.Hour, "Media.Example.com:4433", "192.0.2.7", "[2001:db8::1]:9000", "0.0.0.0", ":4433", "127.0.0.1", "media.example.com")
	require.NoError(t, err)

	require.Equal(t, "media.example.com", cert.Leaf.Subject.CommonName)
	require.Equal(t, []string{"localhost", "media.example.com"}, cert.Leaf.DNSNames)
	require.Equal(t, []string{"localhost", "media.example.com", "127.0.0.1", "::1", "192.0.2.7", "2001:db8::1"}, cert.Names())

	for _, host := range []string{"localhost", "media.example.com", "127.0.0.1", "::1", "192.0.2.7", "2001:db8::1"} {
		require.NoError(t, cert.Leaf.VerifyHostname(host), host)
	}
	require.Error(t, cert.Leaf.VerifyHostname("other.example.com"))
	require.Error(t, cert.Leaf.VerifyHostname("0.0.0.0"))
}

func TestServerTLSAndPool(t *testing.T) {
	t.Parallel()

	cert, err := Generate(time.Hour, "media.example.com")
	require.NoError(t, err)

	conf := cert.ServerTLS("vdemux")
	require.Len(t, conf.Certificates, 1)
	require.Equal(t, []string{"vdemux"}, conf.NextProtos)

	for _, name := range []string{"localhost", "media.example.com"} {
		_, err := cert.Leaf.Verify(x509.VerifyOptions{Roots: cert.Pool(), DNSName: name})
		require.NoError(t, err, name)
	}
}
