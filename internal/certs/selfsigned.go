// Package certs makes the self-signed certificate a QUIC listener serves
// when none is configured. Publishers either pin its fingerprint or trust
// it through Pool.
package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"fmt"
	"math/big"
	"net"
	"slices"
	"strings"
	"time"
)

const (
	maxValidity = 14 * 24 * time.Hour
	// backdate absorbs clock skew between listener and publisher.
	backdate = time.Minute
)

// CertInfo is a generated certificate and its SHA-256 fingerprint.
type CertInfo struct {
	TLSCert     tls.Certificate
	Leaf        *x509.Certificate
	Fingerprint [32]byte
	NotAfter    time.Time
}

// FingerprintBase64 returns the SHA-256 fingerprint as base64.
func (c *CertInfo) FingerprintBase64() string {
	return base64.StdEncoding.EncodeToString(c.Fingerprint[:])
}

// Names returns the DNS names and IP addresses the certificate is valid
// for, as strings.
func (c *CertInfo) Names() []string {
	names := slices.Clone(c.Leaf.DNSNames)
	for _, ip := range c.Leaf.IPAddresses {
		names = append(names, ip.String())
	}
	return names
}

// ServerTLS returns a TLS config serving this certificate for the given
// ALPN protocols.
func (c *CertInfo) ServerTLS(protos ...string) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{c.TLSCert},
		NextProtos:   protos,
	}
}

// Pool returns a pool trusting only this certificate.
func (c *CertInfo) Pool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(c.Leaf)
	return pool
}

// Generate creates a self-signed ECDSA P-256 certificate valid for the
// given duration, capped at 14 days. It covers the loopback names plus
// hosts, which may be host names, IP literals (brackets allowed) or
// host:port pairs such as the host of a quic:// URL. Empty and wildcard
// hosts add nothing.
func Generate(validity time.Duration, hosts ...string) (*CertInfo, error) {
	if validity > maxValidity || validity <= 0 {
		validity = maxValidity
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("certs: private key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("certs: serial number: %w", err)
	}

	dns, ips, cn := subjectAltNames(hosts)
	notBefore := time.Now().Add(-backdate)
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: cn, Organization: []string{"vdemux"}},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              dns,
		IPAddresses:           ips,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("certs: create: %w", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("certs: parse: %w", err)
	}

	return &CertInfo{
		TLSCert:     tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf},
		Leaf:        leaf,
		Fingerprint: sha256.Sum256(der),
		NotAfter:    leaf.NotAfter,
	}, nil
}

// subjectAltNames sorts hosts into DNS names and IP addresses after the
// loopback defaults, dropping duplicates. The common name is the first
// host given, or localhost.
func subjectAltNames(hosts []string) (dns []string, ips []net.IP, cn string) {
	dns = []string{"localhost"}
	ips = []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback}
	for _, h := range hosts {
		if host, _, err := net.SplitHostPort(h); err == nil {
			h = host
		}
		h = strings.ToLower(strings.Trim(h, "[]"))
		switch ip := net.ParseIP(h); {
		case h == "", ip != nil && ip.IsUnspecified():
			continue
		case ip != nil:
			if !slices.ContainsFunc(ips, ip.Equal) {
				ips = append(ips, ip)
			}
		case !slices.Contains(dns, h):
			dns = append(dns, h)
		}
		if cn == "" {
			cn = h
		}
	}
	if cn == "" {
		cn = "localhost"
	}
	return dns, ips, cn
}
