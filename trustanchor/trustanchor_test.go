package trustanchor

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"
)

func selfSignedCA(t *testing.T, cn string) (*x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}
	return cert, priv
}

func leafSignedBy(t *testing.T, ca *x509.Certificate, caKey *ecdsa.PrivateKey, cn string) *x509.Certificate {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, ca, &priv.PublicKey, caKey)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}
	return cert
}

func TestValidateSucceedsWithMatchingAAGUID(t *testing.T) {
	ca, caKey := selfSignedCA(t, "root")
	leaf := leafSignedBy(t, ca, caKey, "leaf")

	aaguid := [16]byte{1, 2, 3}
	repo := NewStaticRepository([]Anchor{{AAGUID: aaguid, HasAAGUID: true, Certificate: ca}})
	v := &Validator{Repository: repo}

	chain, err := v.Validate([]*x509.Certificate{leaf}, aaguid, true, nil)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(chain) != 2 {
		t.Fatalf("chain length = %d, want 2 (leaf, root)", len(chain))
	}
}

func TestValidateFallsBackToSubjectKeyIdentifier(t *testing.T) {
	ca, caKey := selfSignedCA(t, "root")
	leaf := leafSignedBy(t, ca, caKey, "leaf")

	repo := NewStaticRepository([]Anchor{{SubjectKeyIdentifier: ca.SubjectKeyId, Certificate: ca}})
	v := &Validator{Repository: repo}

	var zero [16]byte
	if _, err := v.Validate([]*x509.Certificate{leaf}, zero, false, ca.SubjectKeyId); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateReturnsNotFound(t *testing.T) {
	ca, caKey := selfSignedCA(t, "root")
	leaf := leafSignedBy(t, ca, caKey, "leaf")

	repo := NewStaticRepository(nil)
	v := &Validator{Repository: repo}

	var zero [16]byte
	_, err := v.Validate([]*x509.Certificate{leaf}, zero, false, nil)
	if err == nil {
		t.Fatalf("expected error")
	}
	if err.Error() != ErrNotFound.Error() {
		t.Fatalf("err = %v, want %v", err, ErrNotFound)
	}
}

func TestValidateRejectsUntrustedChain(t *testing.T) {
	ca, caKey := selfSignedCA(t, "root")
	leaf := leafSignedBy(t, ca, caKey, "leaf")

	other, _ := selfSignedCA(t, "other-root")
	aaguid := [16]byte{9, 9, 9}
	repo := NewStaticRepository([]Anchor{{AAGUID: aaguid, HasAAGUID: true, Certificate: other}})
	v := &Validator{Repository: repo}

	if _, err := v.Validate([]*x509.Certificate{leaf}, aaguid, true, nil); err == nil {
		t.Fatalf("expected validation error against unrelated root")
	}
}
