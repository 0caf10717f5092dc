// Package cose decodes COSE_Key structures (RFC 8152) and verifies
// signatures produced by the algorithms WebAuthn authenticators use.
package cose

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/asn1"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

// Algorithm is a COSE algorithm identifier (RFC 8152 §16.4, IANA COSE
// Algorithms registry).
type Algorithm int

// Algorithm identifiers supported by this package.
const (
	AlgorithmRS1   Algorithm = -65535
	AlgorithmRS512 Algorithm = -259
	AlgorithmRS384 Algorithm = -258
	AlgorithmRS256 Algorithm = -257
	AlgorithmPS512 Algorithm = -39
	AlgorithmPS384 Algorithm = -38
	AlgorithmPS256 Algorithm = -37
	AlgorithmES512 Algorithm = -36
	AlgorithmES384 Algorithm = -35
	AlgorithmEdDSA Algorithm = -8
	AlgorithmES256 Algorithm = -7
)

// String returns a human readable representation of the algorithm.
func (a Algorithm) String() string {
	switch a {
	case AlgorithmRS1:
		return "RS1"
	case AlgorithmRS512:
		return "RS512"
	case AlgorithmRS384:
		return "RS384"
	case AlgorithmRS256:
		return "RS256"
	case AlgorithmPS512:
		return "PS512"
	case AlgorithmPS384:
		return "PS384"
	case AlgorithmPS256:
		return "PS256"
	case AlgorithmES512:
		return "ES512"
	case AlgorithmES384:
		return "ES384"
	case AlgorithmEdDSA:
		return "EdDSA"
	case AlgorithmES256:
		return "ES256"
	default:
		return fmt.Sprintf("Algorithm(%d)", int(a))
	}
}

// EllipticCurve is a COSE elliptic curve identifier.
type EllipticCurve int

// Curve identifiers supported by this package.
const (
	CurveP256   EllipticCurve = 1
	CurveP384   EllipticCurve = 2
	CurveP521   EllipticCurve = 3
	CurveEd25519 EllipticCurve = 6
)

// KeyType is the COSE key type (kty) value.
type KeyType int

// Key types supported by this package.
const (
	KeyTypeOKP KeyType = 1
	KeyTypeEC2 KeyType = 2
	KeyTypeRSA KeyType = 3
)

// Key is a decoded COSE_Key. Only the fields relevant to the EC2, RSA and
// OKP key types are populated; unused fields decode to their zero value.
type Key struct {
	Kty       KeyType         `cbor:"1,keyasint,omitempty"`
	Kid       []byte          `cbor:"2,keyasint,omitempty"`
	Alg       Algorithm       `cbor:"3,keyasint,omitempty"`
	KeyOpts   int             `cbor:"4,keyasint,omitempty"`
	IV        []byte          `cbor:"5,keyasint,omitempty"`
	CrvOrNOrK cbor.RawMessage `cbor:"-1,keyasint,omitempty"` // Crv (EC2/OKP) or N (RSA modulus)
	XOrE      cbor.RawMessage `cbor:"-2,keyasint,omitempty"` // X (EC2/OKP) or E (RSA exponent)
	Y         cbor.RawMessage `cbor:"-3,keyasint,omitempty"` // Y (EC2 only)
}

// DecodeKey parses a COSE_Key from its canonical CBOR encoding.
func DecodeKey(raw []byte) (*Key, error) {
	var k Key
	if err := cbor.Unmarshal(raw, &k); err != nil {
		return nil, fmt.Errorf("cose: decoding key: %w", err)
	}
	return &k, nil
}

// PublicKey returns a crypto.PublicKey suitable for signature verification.
func (k *Key) PublicKey() (crypto.PublicKey, error) {
	switch k.Kty {
	case KeyTypeEC2:
		return k.decodeEC2()
	case KeyTypeRSA:
		return k.decodeRSA()
	case KeyTypeOKP:
		return k.decodeOKP()
	default:
		return nil, fmt.Errorf("cose: unsupported key type %d", k.Kty)
	}
}

func (k *Key) decodeEC2() (*ecdsa.PublicKey, error) {
	var curveID int
	if err := cbor.Unmarshal(k.CrvOrNOrK, &curveID); err != nil {
		return nil, fmt.Errorf("cose: decoding EC2 curve: %w", err)
	}

	var curve elliptic.Curve
	switch EllipticCurve(curveID) {
	case CurveP256:
		curve = elliptic.P256()
	case CurveP384:
		curve = elliptic.P384()
	case CurveP521:
		curve = elliptic.P521()
	default:
		return nil, fmt.Errorf("cose: unsupported EC2 curve %d", curveID)
	}

	var xBytes, yBytes []byte
	if err := cbor.Unmarshal(k.XOrE, &xBytes); err != nil {
		return nil, fmt.Errorf("cose: decoding EC2 x: %w", err)
	}
	if err := cbor.Unmarshal(k.Y, &yBytes); err != nil {
		return nil, fmt.Errorf("cose: decoding EC2 y: %w", err)
	}

	return &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}

func (k *Key) decodeRSA() (*rsa.PublicKey, error) {
	var nBytes, eBytes []byte
	if err := cbor.Unmarshal(k.CrvOrNOrK, &nBytes); err != nil {
		return nil, fmt.Errorf("cose: decoding RSA modulus: %w", err)
	}
	if err := cbor.Unmarshal(k.XOrE, &eBytes); err != nil {
		return nil, fmt.Errorf("cose: decoding RSA exponent: %w", err)
	}

	// Exponent is a big-endian byte string, generally 3 bytes (65537); pad
	// to 4 bytes for binary.BigEndian.
	padded := make([]byte, 4)
	copy(padded[4-len(eBytes):], eBytes)

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(binary.BigEndian.Uint32(padded)),
	}, nil
}

func (k *Key) decodeOKP() (ed25519.PublicKey, error) {
	var crv int
	if err := cbor.Unmarshal(k.CrvOrNOrK, &crv); err != nil {
		return nil, fmt.Errorf("cose: decoding OKP curve: %w", err)
	}
	if EllipticCurve(crv) != CurveEd25519 {
		return nil, fmt.Errorf("cose: unsupported OKP curve %d", crv)
	}

	var xBytes []byte
	if err := cbor.Unmarshal(k.XOrE, &xBytes); err != nil {
		return nil, fmt.Errorf("cose: decoding OKP x: %w", err)
	}
	return ed25519.PublicKey(xBytes), nil
}

// ecdsaSignature is the ASN.1 structure of an ECDSA signature.
type ecdsaSignature struct {
	R, S *big.Int
}

// VerifySignature verifies sig over message using k and the algorithm
// carried by k.Alg.
func (k *Key) VerifySignature(message, sig []byte) error {
	pub, err := k.PublicKey()
	if err != nil {
		return err
	}
	return VerifySignature(pub, k.Alg, message, sig)
}

// VerifySignature verifies sig over message using pub under alg.
func VerifySignature(pub crypto.PublicKey, alg Algorithm, message, sig []byte) error {
	switch alg {
	case AlgorithmES256, AlgorithmES384, AlgorithmES512:
		ecPub, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return fmt.Errorf("cose: public key type %T invalid for %s", pub, alg)
		}

		var sigStruct ecdsaSignature
		if _, err := asn1.Unmarshal(sig, &sigStruct); err != nil {
			return fmt.Errorf("cose: parsing ECDSA signature: %w", err)
		}

		hash := hashMessage(alg, message)
		if !ecdsa.Verify(ecPub, hash, sigStruct.R, sigStruct.S) {
			return fmt.Errorf("cose: %s signature verification failed", alg)
		}
		return nil

	case AlgorithmRS1, AlgorithmRS256, AlgorithmRS384, AlgorithmRS512:
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return fmt.Errorf("cose: public key type %T invalid for %s", pub, alg)
		}
		h, hash := hashFunc(alg), hashMessage(alg, message)
		if err := rsa.VerifyPKCS1v15(rsaPub, h, hash, sig); err != nil {
			return fmt.Errorf("cose: %s signature verification failed: %w", alg, err)
		}
		return nil

	case AlgorithmPS256, AlgorithmPS384, AlgorithmPS512:
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return fmt.Errorf("cose: public key type %T invalid for %s", pub, alg)
		}
		h, hash := hashFunc(alg), hashMessage(alg, message)
		if err := rsa.VerifyPSS(rsaPub, h, hash, sig, nil); err != nil {
			return fmt.Errorf("cose: %s signature verification failed: %w", alg, err)
		}
		return nil

	case AlgorithmEdDSA:
		edPub, ok := pub.(ed25519.PublicKey)
		if !ok {
			return fmt.Errorf("cose: public key type %T invalid for EdDSA", pub)
		}
		if !ed25519.Verify(edPub, message, sig) {
			return fmt.Errorf("cose: EdDSA signature verification failed")
		}
		return nil

	default:
		return fmt.Errorf("cose: unsupported algorithm %s", alg)
	}
}

func hashFunc(alg Algorithm) crypto.Hash {
	switch alg {
	case AlgorithmRS1:
		return crypto.SHA1
	case AlgorithmRS384, AlgorithmPS384, AlgorithmES384:
		return crypto.SHA384
	case AlgorithmRS512, AlgorithmPS512, AlgorithmES512:
		return crypto.SHA512
	default:
		return crypto.SHA256
	}
}

func hashMessage(alg Algorithm, message []byte) []byte {
	switch hashFunc(alg) {
	case crypto.SHA1:
		h := sha1.Sum(message)
		return h[:]
	case crypto.SHA384:
		h := sha512.Sum384(message)
		return h[:]
	case crypto.SHA512:
		h := sha512.Sum512(message)
		return h[:]
	default:
		h := sha256.Sum256(message)
		return h[:]
	}
}
