package mitm

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"net"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	leafCacheSize = 256
	leafCacheTTL  = 24 * time.Hour
	leafLifetime  = 30 * 24 * time.Hour
)

// CertManager issues leaf certificates signed by the CA and keeps recently
// used ones.
type CertManager struct {
	ca    *CA
	cache *expirable.LRU[string, *tls.Certificate]
}

func NewCertManager(ca *CA) *CertManager {
	return &CertManager{
		ca:    ca,
		cache: expirable.NewLRU[string, *tls.Certificate](leafCacheSize, nil, leafCacheTTL),
	}
}

func (cm *CertManager) CA() *CA {
	return cm.ca
}

// TLSConfig returns a server config presenting a certificate for host.
func (cm *CertManager) TLSConfig(host string) (*tls.Config, error) {
	cert, err := cm.CertificateFor(host)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{*cert},
		NextProtos:   []string{"http/1.1"},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// CertificateFor returns a cached or freshly issued leaf for host. A port
// suffix is ignored.
func (cm *CertManager) CertificateFor(host string) (*tls.Certificate, error) {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "" {
		host = "localhost"
	}
	if cert, ok := cm.cache.Get(host); ok {
		return cert, nil
	}
	cert, err := cm.issue(host)
	if err != nil {
		return nil, err
	}
	cm.cache.Add(host, cert)
	return cert, nil
}

func (cm *CertManager) issue(host string) (*tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate leaf key: %w", err)
	}
	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   host,
			Organization: []string{"tilespoof MitM"},
		},
		NotBefore:   time.Now().Add(-time.Hour),
		NotAfter:    time.Now().Add(leafLifetime),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	if ip := net.ParseIP(host); ip != nil {
		template.IPAddresses = []net.IP{ip}
	} else {
		template.DNSNames = []string{host}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, cm.ca.Certificate, &key.PublicKey, cm.ca.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("create leaf certificate for %s: %w", host, err)
	}
	return &tls.Certificate{
		Certificate: [][]byte{der, cm.ca.Certificate.Raw},
		PrivateKey:  key,
	}, nil
}
