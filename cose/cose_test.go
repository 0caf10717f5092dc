package cose

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"log"
	"os"
	"testing"

	"github.com/fxamacker/cbor/v2"
)

var (
	p256Key   *ecdsa.PrivateKey
	p384Key   *ecdsa.PrivateKey
	p521Key   *ecdsa.PrivateKey
	rsaKey    *rsa.PrivateKey
	ed25519Pub ed25519.PublicKey
	ed25519Priv ed25519.PrivateKey
)

func TestMain(m *testing.M) {
	var err error
	if p256Key, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader); err != nil {
		log.Fatalf("generating P256 key: %v", err)
	}
	if p384Key, err = ecdsa.GenerateKey(elliptic.P384(), rand.Reader); err != nil {
		log.Fatalf("generating P384 key: %v", err)
	}
	if p521Key, err = ecdsa.GenerateKey(elliptic.P521(), rand.Reader); err != nil {
		log.Fatalf("generating P521 key: %v", err)
	}
	if rsaKey, err = rsa.GenerateKey(rand.Reader, 2048); err != nil {
		log.Fatalf("generating RSA key: %v", err)
	}
	if ed25519Pub, ed25519Priv, err = ed25519.GenerateKey(rand.Reader); err != nil {
		log.Fatalf("generating Ed25519 key: %v", err)
	}
	os.Exit(m.Run())
}

func marshalInt(t *testing.T, v int) cbor.RawMessage {
	t.Helper()
	b, err := cbor.Marshal(v)
	if err != nil {
		t.Fatalf("marshaling int: %v", err)
	}
	return b
}

func marshalBytes(t *testing.T, v []byte) cbor.RawMessage {
	t.Helper()
	b, err := cbor.Marshal(v)
	if err != nil {
		t.Fatalf("marshaling bytes: %v", err)
	}
	return b
}

func ec2Key(t *testing.T, curveID int, alg Algorithm, pub *ecdsa.PublicKey) *Key {
	return &Key{
		Kty:       KeyTypeEC2,
		Alg:       alg,
		CrvOrNOrK: marshalInt(t, curveID),
		XOrE:      marshalBytes(t, pub.X.Bytes()),
		Y:         marshalBytes(t, pub.Y.Bytes()),
	}
}

func TestDecodeEC2PublicKey(t *testing.T) {
	tests := []struct {
		name    string
		key     *Key
		wantErr bool
	}{
		{"P256", ec2Key(t, int(CurveP256), AlgorithmES256, &p256Key.PublicKey), false},
		{"P384", ec2Key(t, int(CurveP384), AlgorithmES384, &p384Key.PublicKey), false},
		{"P521", ec2Key(t, int(CurveP521), AlgorithmES512, &p521Key.PublicKey), false},
		{"unsupported curve", ec2Key(t, 99, AlgorithmES256, &p256Key.PublicKey), true},
		{"malformed x", &Key{Kty: KeyTypeEC2, CrvOrNOrK: marshalInt(t, int(CurveP256)), XOrE: cbor.RawMessage{0x61, 0x80}, Y: marshalBytes(t, p256Key.PublicKey.Y.Bytes())}, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			pub, err := test.key.PublicKey()
			if test.wantErr {
				if err == nil {
					t.Fatalf("expected error, got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if _, ok := pub.(*ecdsa.PublicKey); !ok {
				t.Fatalf("expected *ecdsa.PublicKey, got %T", pub)
			}
		})
	}
}

func TestDecodeRSAPublicKey(t *testing.T) {
	eBytes := []byte{0x01, 0x00, 0x01} // 65537
	key := &Key{
		Kty:       KeyTypeRSA,
		Alg:       AlgorithmRS256,
		CrvOrNOrK: marshalBytes(t, rsaKey.PublicKey.N.Bytes()),
		XOrE:      marshalBytes(t, eBytes),
	}

	pub, err := key.PublicKey()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		t.Fatalf("expected *rsa.PublicKey, got %T", pub)
	}
	if rsaPub.E != 65537 {
		t.Fatalf("expected exponent 65537, got %d", rsaPub.E)
	}
	if rsaPub.N.Cmp(rsaKey.PublicKey.N) != 0 {
		t.Fatalf("modulus mismatch")
	}
}

func TestDecodeOKPPublicKey(t *testing.T) {
	key := &Key{
		Kty:       KeyTypeOKP,
		Alg:       AlgorithmEdDSA,
		CrvOrNOrK: marshalInt(t, int(CurveEd25519)),
		XOrE:      marshalBytes(t, ed25519Pub),
	}

	pub, err := key.PublicKey()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	edPub, ok := pub.(ed25519.PublicKey)
	if !ok {
		t.Fatalf("expected ed25519.PublicKey, got %T", pub)
	}
	if !edPub.Equal(ed25519Pub) {
		t.Fatalf("public key mismatch")
	}
}

func TestVerifySignatureRoundTrip(t *testing.T) {
	message := []byte("the quick brown fox jumps over the lazy dog")

	t.Run("ES256", func(t *testing.T) {
		key := ec2Key(t, int(CurveP256), AlgorithmES256, &p256Key.PublicKey)
		sig, err := ecdsa.SignASN1(rand.Reader, p256Key, sha256Sum(message))
		if err != nil {
			t.Fatalf("signing: %v", err)
		}
		if err := key.VerifySignature(message, sig); err != nil {
			t.Fatalf("verification failed: %v", err)
		}
	})

	t.Run("EdDSA", func(t *testing.T) {
		key := &Key{
			Kty:       KeyTypeOKP,
			Alg:       AlgorithmEdDSA,
			CrvOrNOrK: marshalInt(t, int(CurveEd25519)),
			XOrE:      marshalBytes(t, ed25519Pub),
		}
		sig := ed25519.Sign(ed25519Priv, message)
		if err := key.VerifySignature(message, sig); err != nil {
			t.Fatalf("verification failed: %v", err)
		}
	})

	t.Run("tampered signature rejected", func(t *testing.T) {
		key := ec2Key(t, int(CurveP256), AlgorithmES256, &p256Key.PublicKey)
		sig, err := ecdsa.SignASN1(rand.Reader, p256Key, sha256Sum(message))
		if err != nil {
			t.Fatalf("signing: %v", err)
		}
		sig[len(sig)-1] ^= 0xff
		if err := key.VerifySignature(message, sig); err == nil {
			t.Fatalf("expected verification failure for tampered signature")
		}
	})
}

func sha256Sum(b []byte) []byte {
	h := hashMessage(AlgorithmES256, b)
	return h
}
