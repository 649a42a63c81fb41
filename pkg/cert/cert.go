// Package cert issues the CA, server and client certificates used for mTLS
// between the sensor agent and its clients.
package cert

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

// Organization is written into every issued subject
const Organization = "nctmon"

// KeyBits is the RSA key size for issued certificates
var KeyBits = 2048

// Issuer signs agent certificates with a CA key
type Issuer struct {
	caCert *x509.Certificate
	caKey  *rsa.PrivateKey
}

// NewIssuer creates an issuer with a fresh self-signed CA
func NewIssuer(validity time.Duration) (*Issuer, error) {
	caKey, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CA key: %w", err)
	}

	serial, err := newSerial()
	if err != nil {
		return nil, err
	}

	caTemplate := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{Organization},
			CommonName:   Organization + " agent CA",
		},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	caCertDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create CA certificate: %w", err)
	}

	caCert, err := x509.ParseCertificate(caCertDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA certificate: %w", err)
	}

	return &Issuer{caCert: caCert, caKey: caKey}, nil
}

// CA returns the CA certificate
func (i *Issuer) CA() *x509.Certificate {
	return i.caCert
}

// SaveCA saves the CA certificate and key to files
func (i *Issuer) SaveCA(certPath, keyPath string) error {
	if err := writePEM(certPath, "CERTIFICATE", i.caCert.Raw, 0o644); err != nil {
		return fmt.Errorf("failed to write CA cert: %w", err)
	}
	if err := writePEM(keyPath, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(i.caKey), 0o600); err != nil {
		return fmt.Errorf("failed to write CA key: %w", err)
	}
	return nil
}

// LoadCA loads CA certificate and key from files
func LoadCA(certPath, keyPath string) (*Issuer, error) {
	certBlock, err := readPEM(certPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA cert: %w", err)
	}
	caCert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA cert: %w", err)
	}
	if !caCert.IsCA {
		return nil, fmt.Errorf("%s is not a CA certificate", certPath)
	}

	keyBlock, err := readPEM(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA key: %w", err)
	}
	caKey, err := x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA key: %w", err)
	}

	return &Issuer{caCert: caCert, caKey: caKey}, nil
}

// IssueServer issues a server certificate valid for the given host names
// and IP addresses
func (i *Issuer) IssueServer(hosts []string, validity time.Duration) (*Certificate, error) {
	if len(hosts) == 0 {
		return nil, fmt.Errorf("at least one host is required")
	}

	template := &x509.Certificate{
		Subject: pkix.Name{
			Organization: []string{Organization},
			CommonName:   hosts[0],
		},
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	return i.issue(template, validity)
}

// IssueClient issues a client certificate; name becomes the common name the
// agent logs for each request
func (i *Issuer) IssueClient(name string, validity time.Duration) (*Certificate, error) {
	if name == "" {
		return nil, fmt.Errorf("client name is required")
	}

	template := &x509.Certificate{
		Subject: pkix.Name{
			Organization: []string{Organization},
			CommonName:   name,
		},
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}

	return i.issue(template, validity)
}

func (i *Issuer) issue(template *x509.Certificate, validity time.Duration) (*Certificate, error) {
	key, err := rsa.GenerateKey(rand.Reader, KeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	serial, err := newSerial()
	if err != nil {
		return nil, err
	}
	template.SerialNumber = serial
	template.NotBefore = time.Now().Add(-time.Minute)
	template.NotAfter = time.Now().Add(validity)
	template.KeyUsage = x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment

	certDER, err := x509.CreateCertificate(rand.Reader, template, i.caCert, &key.PublicKey, i.caKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	return &Certificate{
		Certificate: cert,
		PrivateKey:  key,
		IssuedAt:    time.Now(),
	}, nil
}

// Verify verifies a certificate against the CA for the given usage
func (i *Issuer) Verify(cert *x509.Certificate, usage x509.ExtKeyUsage) error {
	roots := x509.NewCertPool()
	roots.AddCert(i.caCert)

	opts := x509.VerifyOptions{
		Roots:     roots,
		KeyUsages: []x509.ExtKeyUsage{usage},
	}

	if _, err := cert.Verify(opts); err != nil {
		return fmt.Errorf("certificate verification failed: %w", err)
	}
	return nil
}

// Certificate is an issued certificate with its private key
type Certificate struct {
	*x509.Certificate
	PrivateKey *rsa.PrivateKey
	IssuedAt   time.Time
}

// Save saves the certificate and key to files
func (c *Certificate) Save(certPath, keyPath string) error {
	if err := writePEM(certPath, "CERTIFICATE", c.Raw, 0o644); err != nil {
		return fmt.Errorf("failed to write cert: %w", err)
	}
	if keyPath != "" {
		if err := writePEM(keyPath, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(c.PrivateKey), 0o600); err != nil {
			return fmt.Errorf("failed to write key: %w", err)
		}
	}
	return nil
}

// PEM returns the certificate PEM-encoded
func (c *Certificate) PEM() string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.Raw}))
}

// Bundle is the set of files written by GenerateBundle
type Bundle struct {
	CAFile         string
	CAKeyFile      string
	ServerCertFile string
	ServerKeyFile  string
	ClientCertFile string
	ClientKeyFile  string
}

// GenerateBundle writes a CA, one server and one client certificate to dir
func GenerateBundle(dir string, hosts []string, client string, validity time.Duration) (*Bundle, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	b := &Bundle{
		CAFile:         filepath.Join(dir, "ca.crt"),
		CAKeyFile:      filepath.Join(dir, "ca.key"),
		ServerCertFile: filepath.Join(dir, "server.crt"),
		ServerKeyFile:  filepath.Join(dir, "server.key"),
		ClientCertFile: filepath.Join(dir, "client.crt"),
		ClientKeyFile:  filepath.Join(dir, "client.key"),
	}

	issuer, err := NewIssuer(validity)
	if err != nil {
		return nil, err
	}
	if err := issuer.SaveCA(b.CAFile, b.CAKeyFile); err != nil {
		return nil, err
	}

	server, err := issuer.IssueServer(hosts, validity)
	if err != nil {
		return nil, err
	}
	if err := server.Save(b.ServerCertFile, b.ServerKeyFile); err != nil {
		return nil, err
	}

	cl, err := issuer.IssueClient(client, validity)
	if err != nil {
		return nil, err
	}
	if err := cl.Save(b.ClientCertFile, b.ClientKeyFile); err != nil {
		return nil, err
	}

	return b, nil
}

func newSerial() (*big.Int, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}
	return serial, nil
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, perm); err != nil { // #nosec G306 -- key files are written 0600
		return err
	}
	return os.Chmod(path, perm)
}

func readPEM(path string) (*pem.Block, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is a user-specified certificate file
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM data in %s", path)
	}
	return block, nil
}
