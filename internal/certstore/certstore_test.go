package certstore

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"
)

func selfSigned(t *testing.T, serial int64) *x509.Certificate {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      pkix.Name{CommonName: "test"},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	return cert
}

func TestTrustOnFirstUsePersistsAndMatches(t *testing.T) {
	dir := t.TempDir()
	store, err := NewTrustStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	cert := selfSigned(t, 1)
	accepted := false
	decide := func(hostname string, c *x509.Certificate) bool {
		accepted = true
		return true
	}

	if err := store.Verify("example.com:8684", cert, decide); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	if !accepted {
		t.Fatalf("expected decide to be invoked on first contact")
	}

	// Second connection: no prompt, must match the persisted cert.
	decide2Called := false
	decide2 := func(string, *x509.Certificate) bool { decide2Called = true; return true }
	if err := store.Verify("example.com:8684", cert, decide2); err != nil {
		t.Fatalf("second verify: %v", err)
	}
	if decide2Called {
		t.Fatalf("decide should not be invoked once a cert is trusted")
	}
}

func TestTrustOnFirstUseRejectsMismatch(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewTrustStore(dir)

	first := selfSigned(t, 1)
	store.Verify("example.com:8684", first, func(string, *x509.Certificate) bool { return true })

	second := selfSigned(t, 2)
	err := store.Verify("example.com:8684", second, func(string, *x509.Certificate) bool { return true })
	if err == nil {
		t.Fatalf("expected mismatch to be rejected")
	}
}

func TestVerifyRejectsWhenDecisionRefuses(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewTrustStore(dir)

	cert := selfSigned(t, 1)
	err := store.Verify("example.com:8684", cert, func(string, *x509.Certificate) bool { return false })
	if err == nil {
		t.Fatalf("expected refusal to produce an error")
	}
}
