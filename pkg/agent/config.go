package agent

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/mscrnt/nctmon/pkg/cert"
)

// DefaultPort is the agent's default listen port
const DefaultPort = 9687

// Config contains configuration for the agent server
type Config struct {
	Bind     string // Listen address, empty for all interfaces
	Port     int    // Server port
	CertFile string // Server certificate file
	KeyFile  string // Server private key file
	CAFile   string // CA certificate file for client verification
	LogFile  string // Optional log file path, also served on /logs
}

// DefaultConfig returns default agent configuration
func DefaultConfig() Config {
	return Config{
		Port: DefaultPort,
	}
}

// ServerConfigFromBundle returns a server configuration using the
// credentials in b
func ServerConfigFromBundle(b *cert.Bundle) Config {
	c := DefaultConfig()
	c.CertFile = b.ServerCertFile
	c.KeyFile = b.ServerKeyFile
	c.CAFile = b.CAFile
	return c
}

// Addr returns the listen address
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Bind, c.Port)
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	return checkFiles([]requiredFile{
		{"server certificate", c.CertFile},
		{"server key", c.KeyFile},
		{"CA certificate", c.CAFile},
	})
}

// LoadTLSConfig creates TLS configuration from the agent config. Clients
// must present a certificate signed by the CA.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	keyPair, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load server certificate: %w", err)
	}

	pool, err := loadPool(c.CAFile)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{keyPair},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    pool,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// ClientConfig contains configuration for the agent client
type ClientConfig struct {
	Host     string // Target host
	Port     int    // Target port
	CertFile string // Client certificate file
	KeyFile  string // Client private key file
	CAFile   string // CA certificate file for server verification
	Endpoint string // Endpoint fetched by Connect
}

// DefaultClientConfig returns default client configuration
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Host:     "localhost",
		Port:     DefaultPort,
		Endpoint: "sensors",
	}
}

// ClientConfigFromBundle returns a client configuration using the
// credentials in b
func ClientConfigFromBundle(b *cert.Bundle) ClientConfig {
	c := DefaultClientConfig()
	c.CertFile = b.ClientCertFile
	c.KeyFile = b.ClientKeyFile
	c.CAFile = b.CAFile
	return c
}

// Validate checks if the client configuration is valid
func (c ClientConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required")
	}
	return checkFiles([]requiredFile{
		{"client certificate", c.CertFile},
		{"client key", c.KeyFile},
		{"CA certificate", c.CAFile},
	})
}

// LoadClientTLSConfig creates TLS configuration for the client
func (c ClientConfig) LoadClientTLSConfig() (*tls.Config, error) {
	keyPair, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	pool, err := loadPool(c.CAFile)
	if err != nil {
		return nil, err
	}

	return &tls.Config{
		Certificates: []tls.Certificate{keyPair},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS13,
	}, nil
}

type requiredFile struct {
	name string
	path string
}

// checkFiles requires every file to be set and present, reporting the first
// problem in order
func checkFiles(files []requiredFile) error {
	for _, f := range files {
		if f.path == "" {
			return fmt.Errorf("%s file is required", f.name)
		}
		if _, err := os.Stat(f.path); err != nil {
			return fmt.Errorf("%s file not found: %s", f.name, f.path)
		}
	}
	return nil
}

func loadPool(caFile string) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}
	return pool, nil
}
