package cert

import (
	"crypto/x509"
	"fmt"
	"strings"
	"time"
)

// VerifyResult contains the result of certificate verification
type VerifyResult struct {
	Valid       bool
	Role        string
	CommonName  string
	Hosts       []string
	ExpiresIn   time.Duration
	Error       string
	Certificate *x509.Certificate
}

// VerifyCertificateFile checks that a certificate file was issued by the CA
// and reports whether it is a server or client certificate
func VerifyCertificateFile(certPath, caCertPath string) (*VerifyResult, error) {
	certBlock, err := readPEM(certPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	caBlock, err := readPEM(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}
	caCert, err := x509.ParseCertificate(caBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA certificate: %w", err)
	}

	result := &VerifyResult{
		Role:        role(cert),
		CommonName:  cert.Subject.CommonName,
		Hosts:       append([]string{}, cert.DNSNames...),
		ExpiresIn:   time.Until(cert.NotAfter),
		Certificate: cert,
	}
	for _, ip := range cert.IPAddresses {
		result.Hosts = append(result.Hosts, ip.String())
	}

	issuer := &Issuer{caCert: caCert}
	usage := x509.ExtKeyUsageAny
	switch result.Role {
	case "server":
		usage = x509.ExtKeyUsageServerAuth
	case "client":
		usage = x509.ExtKeyUsageClientAuth
	}
	if err := issuer.Verify(cert, usage); err != nil {
		result.Error = err.Error()
	} else {
		result.Valid = true
	}

	return result, nil
}

func role(cert *x509.Certificate) string {
	if cert.IsCA {
		return "ca"
	}
	for _, u := range cert.ExtKeyUsage {
		switch u {
		case x509.ExtKeyUsageServerAuth:
			return "server"
		case x509.ExtKeyUsageClientAuth:
			return "client"
		}
	}
	return "unknown"
}

// FormatVerifyResult formats verification result for display
func FormatVerifyResult(result *VerifyResult) string {
	var sb strings.Builder

	if result.Valid {
		sb.WriteString("Status: VALID\n")
	} else {
		sb.WriteString("Status: INVALID\n")
		sb.WriteString(fmt.Sprintf("Error: %s\n", result.Error))
	}

	sb.WriteString(fmt.Sprintf("Role: %s\n", result.Role))
	sb.WriteString(fmt.Sprintf("Subject: %s\n", result.Certificate.Subject))
	sb.WriteString(fmt.Sprintf("Issuer: %s\n", result.Certificate.Issuer))
	if len(result.Hosts) > 0 {
		sb.WriteString(fmt.Sprintf("Hosts: %s\n", strings.Join(result.Hosts, ", ")))
	}
	sb.WriteString(fmt.Sprintf("Valid Until: %s (%s)\n",
		result.Certificate.NotAfter.Format(time.RFC3339), result.ExpiresIn.Round(time.Hour)))

	return sb.String()
}
