package mitm

import (
	"crypto/tls"
	"crypto/x509"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCA(t *testing.T) {
	ca, err := GenerateCA()
	require.NoError(t, err)
	assert.True(t, ca.Certificate.IsCA)
	assert.Equal(t, caCommonName, ca.Certificate.Subject.CommonName)
	assert.Contains(t, string(ca.CertPEM()), "BEGIN CERTIFICATE")
}

func TestP12RoundTrip(t *testing.T) {
	ca, err := GenerateCA()
	require.NoError(t, err)

	encoded, err := ca.EncodeP12("secret")
	require.NoError(t, err)

	decoded, err := DecodeP12(encoded, "secret")
	require.NoError(t, err)
	assert.Equal(t, ca.Certificate.Raw, decoded.Certificate.Raw)

	_, err = DecodeP12(encoded, "wrong")
	assert.Error(t, err)
	_, err = DecodeP12("%%%", "")
	assert.Error(t, err)
}

func TestLoadOrCreateCA(t *testing.T) {
	file := filepath.Join(t.TempDir(), "ca", "ca.p12")

	first, err := LoadOrCreateCA("", "", file)
	require.NoError(t, err)
	_, err = os.Stat(file)
	require.NoError(t, err)

	second, err := LoadOrCreateCA("", "", file)
	require.NoError(t, err)
	assert.Equal(t, first.Certificate.Raw, second.Certificate.Raw)

	other, err := GenerateCA()
	require.NoError(t, err)
	encoded, err := other.EncodeP12("")
	require.NoError(t, err)
	explicit, err := LoadOrCreateCA(encoded, "", file)
	require.NoError(t, err)
	assert.Equal(t, other.Certificate.Raw, explicit.Certificate.Raw)
}

func TestCertManager(t *testing.T) {
	ca, err := GenerateCA()
	require.NoError(t, err)
	cm := NewCertManager(ca)

	cert, err := cm.CertificateFor("backend.wplace.live:443")
	require.NoError(t, err)
	require.Len(t, cert.Certificate, 2)

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"backend.wplace.live"}, leaf.DNSNames)

	pool := x509.NewCertPool()
	pool.AddCert(ca.Certificate)
	_, err = leaf.Verify(x509.VerifyOptions{Roots: pool, DNSName: "backend.wplace.live"})
	require.NoError(t, err)

	again, err := cm.CertificateFor("backend.wplace.live")
	require.NoError(t, err)
	assert.Same(t, cert, again)

	ipCert, err := cm.CertificateFor("127.0.0.1")
	require.NoError(t, err)
	ipLeaf, err := x509.ParseCertificate(ipCert.Certificate[0])
	require.NoError(t, err)
	require.Len(t, ipLeaf.IPAddresses, 1)
	assert.True(t, ipLeaf.IPAddresses[0].Equal(net.ParseIP("127.0.0.1")))
}

func TestCertManagerTLSHandshake(t *testing.T) {
	ca, err := GenerateCA()
	require.NoError(t, err)
	cm := NewCertManager(ca)

	serverCfg, err := cm.TLSConfig("backend.wplace.live")
	require.NoError(t, err)

	ln, err := tls.Listen("tcp", "127.0.0.1:0", serverCfg)
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		_ = conn.(*tls.Conn).Handshake()
		_ = conn.Close()
	}()

	pool := x509.NewCertPool()
	pool.AddCert(ca.Certificate)
	conn, err := tls.Dial("tcp", ln.Addr().String(), &tls.Config{RootCAs: pool, ServerName: "backend.wplace.live"})
	require.NoError(t, err)
	_ = conn.Close()
}
