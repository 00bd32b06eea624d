// Package mitm provides the root CA and the per-host leaf certificates used
// to decrypt browser traffic to the tile and paint hosts.
package mitm

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"software.sslmate.com/src/go-pkcs12"
)

const caCommonName = "tilespoof Root CA"

type CA struct {
	Certificate *x509.Certificate
	PrivateKey  crypto.Signer
}

func GenerateCA() (*CA, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate CA key: %w", err)
	}
	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   caCommonName,
			Organization: []string{"tilespoof"},
		},
		NotBefore:             time.Now().Add(-24 * time.Hour),
		NotAfter:              time.Now().AddDate(10, 0, 0),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            1,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("create CA certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse CA certificate: %w", err)
	}
	return &CA{Certificate: cert, PrivateKey: key}, nil
}

// DecodeP12 reads a base64 PKCS#12 bundle holding the CA key and certificate.
func DecodeP12(p12Base64, passphrase string) (*CA, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(p12Base64))
	if err != nil {
		return nil, fmt.Errorf("base64 decode PKCS#12: %w", err)
	}
	key, cert, err := pkcs12.Decode(data, passphrase)
	if err != nil {
		return nil, fmt.Errorf("pkcs12.Decode: %w", err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, errors.New("PKCS#12 key is not a crypto.Signer")
	}
	if !cert.IsCA {
		return nil, errors.New("PKCS#12 certificate is not a CA")
	}
	return &CA{Certificate: cert, PrivateKey: signer}, nil
}

func (ca *CA) EncodeP12(passphrase string) (string, error) {
	data, err := pkcs12.Modern.Encode(ca.PrivateKey, ca.Certificate, nil, passphrase)
	if err != nil {
		return "", fmt.Errorf("pkcs12.Encode: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func (ca *CA) CertPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: ca.Certificate.Raw})
}

func (ca *CA) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("subject", ca.Certificate.Subject.CommonName),
		slog.Time("not_after", ca.Certificate.NotAfter),
	)
}

// LoadOrCreateCA returns the CA from p12Base64 when set. Otherwise it reads
// the bundle stored at file, and generates and stores a new one when the
// file does not exist yet.
func LoadOrCreateCA(p12Base64, passphrase, file string) (*CA, error) {
	if p12Base64 != "" {
		return DecodeP12(p12Base64, passphrase)
	}

	data, err := os.ReadFile(file)
	if err == nil {
		return DecodeP12(string(data), passphrase)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	ca, err := GenerateCA()
	if err != nil {
		return nil, err
	}
	encoded, err := ca.EncodeP12(passphrase)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(file, []byte(encoded), 0o600); err != nil {
		return nil, fmt.Errorf("store CA: %w", err)
	}
	slog.Info("Generated new MitM root CA", slog.String("file", file), slog.Any("ca", ca))
	return ca, nil
}

func randomSerial() (*big.Int, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial number: %w", err)
	}
	return serial, nil
}
