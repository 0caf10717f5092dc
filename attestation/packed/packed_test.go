package packed

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"github.com/coreauthn/webauthn/attestation"
	"github.com/coreauthn/webauthn/cose"
)

func newP256Key(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	return priv
}

func ec2COSEKey(t *testing.T, pub *ecdsa.PublicKey) *cose.Key {
	t.Helper()
	crv, err := cbor.Marshal(int(cose.CurveP256))
	if err != nil {
		t.Fatalf("marshal curve: %v", err)
	}
	x, err := cbor.Marshal(pub.X.Bytes())
	if err != nil {
		t.Fatalf("marshal x: %v", err)
	}
	y, err := cbor.Marshal(pub.Y.Bytes())
	if err != nil {
		t.Fatalf("marshal y: %v", err)
	}
	return &cose.Key{
		Kty:       cose.KeyTypeEC2,
		Alg:       cose.AlgorithmES256,
		CrvOrNOrK: crv,
		XOrE:      x,
		Y:         y,
	}
}

func selfAttestationInput(t *testing.T, credKey *ecdsa.PrivateKey) *attestation.Input {
	t.Helper()
	return &attestation.Input{
		RawAuthData:    []byte("authenticator-data-bytes"),
		ClientDataHash: sha256.Sum256([]byte("client-data")),
		CredentialKey:  ec2COSEKey(t, &credKey.PublicKey),
	}
}

// TestVerifySelfAttestationHappyPath covers the required seed scenario
// "Packed self attestation", expecting attestation.TypeSelf.
func TestVerifySelfAttestationHappyPath(t *testing.T) {
	credKey := newP256Key(t)
	in := selfAttestationInput(t, credKey)

	signedData := in.SignedData()
	hash := sha256.Sum256(signedData)
	sig, err := ecdsa.SignASN1(rand.Reader, credKey, hash[:])
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	stmt, err := cbor.Marshal(statement{Alg: int64(cose.AlgorithmES256), Sig: sig})
	if err != nil {
		t.Fatalf("marshal statement: %v", err)
	}
	in.RawStatement = stmt

	out, err := Verify(in)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if out.Type != attestation.TypeSelf {
		t.Fatalf("Type = %v, want Self", out.Type)
	}
	if out.TrustPath != nil {
		t.Fatalf("expected no trust path for self attestation")
	}
}

// TestVerifySelfAttestationRejectsAlgMismatch covers the required rejection
// scenario: the statement's alg must match the credential key's own alg.
func TestVerifySelfAttestationRejectsAlgMismatch(t *testing.T) {
	credKey := newP256Key(t)
	in := selfAttestationInput(t, credKey)

	signedData := in.SignedData()
	hash := sha256.Sum256(signedData)
	sig, err := ecdsa.SignASN1(rand.Reader, credKey, hash[:])
	if err != nil {
		t.Fatalf("signing: %v", err)
	}

	// The credential key is ES256; report a different alg in the statement.
	stmt, err := cbor.Marshal(statement{Alg: int64(cose.AlgorithmES384), Sig: sig})
	if err != nil {
		t.Fatalf("marshal statement: %v", err)
	}
	in.RawStatement = stmt

	if _, err := Verify(in); err == nil {
		t.Fatalf("expected rejection of alg mismatch between statement and credential key")
	}
}
