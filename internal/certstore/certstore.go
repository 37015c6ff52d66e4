// Package certstore implements the server's TLS cert/key loading and the
// client's trust-on-first-use certificate persistence (spec §6).
package certstore

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
)

// ServerConfig loads cert.pcm/key.pcm (PEM-encoded despite the extension)
// into a *tls.Config suitable for tls.Listen.
func ServerConfig(certPath, keyPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("certstore: load key pair: %w", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}

// TrustDecisionFunc is invoked when a client connects to a host it has
// never seen a certificate for. It must return true to accept and persist
// the certificate, false to reject the connection. The actual UI prompt is
// out of scope for this module; callers supply the hook.
type TrustDecisionFunc func(hostname string, cert *x509.Certificate) bool

// TrustStore persists accepted server certificates under crtFolder, one PEM
// file per hostname, named by the base64url encoding of the hostname.
type TrustStore struct {
	crtFolder string
}

// NewTrustStore returns a TrustStore rooted at crtFolder, creating it if
// necessary.
func NewTrustStore(crtFolder string) (*TrustStore, error) {
	if err := os.MkdirAll(crtFolder, 0o700); err != nil {
		return nil, fmt.Errorf("certstore: create trust store dir: %w", err)
	}
	return &TrustStore{crtFolder: crtFolder}, nil
}

func (t *TrustStore) pathFor(hostname string) string {
	name := base64.RawURLEncoding.EncodeToString([]byte(hostname))
	return filepath.Join(t.crtFolder, name+".pem")
}

// Lookup returns the previously-trusted certificate for hostname, or nil if
// none has been persisted yet.
func (t *TrustStore) Lookup(hostname string) (*x509.Certificate, error) {
	data, err := os.ReadFile(t.pathFor(hostname))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("certstore: read trusted cert: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("certstore: %s is not valid PEM", t.pathFor(hostname))
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("certstore: parse trusted cert: %w", err)
	}
	return cert, nil
}

// Trust persists cert as the trusted certificate for hostname.
func (t *TrustStore) Trust(hostname string, cert *x509.Certificate) error {
	data := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	if err := os.WriteFile(t.pathFor(hostname), data, 0o600); err != nil {
		return fmt.Errorf("certstore: persist trusted cert: %w", err)
	}
	return nil
}

// Verify implements trust-on-first-use: if hostname has no persisted
// certificate, decide invokes the caller's acceptance hook and persists
// the result; if it does, the presented certificate must match exactly
// (by SHA-256 fingerprint) or Verify fails.
func (t *TrustStore) Verify(hostname string, presented *x509.Certificate, decide TrustDecisionFunc) error {
	trusted, err := t.Lookup(hostname)
	if err != nil {
		return err
	}
	if trusted == nil {
		if decide == nil || !decide(hostname, presented) {
			return fmt.Errorf("certstore: certificate for %s not accepted", hostname)
		}
		return t.Trust(hostname, presented)
	}

	got := sha256.Sum256(presented.Raw)
	want := sha256.Sum256(trusted.Raw)
	if got != want {
		return fmt.Errorf("certstore: certificate for %s does not match the trusted one on file", hostname)
	}
	return nil
}
