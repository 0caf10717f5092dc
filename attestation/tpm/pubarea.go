package tpm

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"fmt"
	"math/big"

	"github.com/coreauthn/webauthn/cose"
)

// TPM algorithm identifiers, [TPMv2-Part2] table 9.
const (
	tpmAlgRSA  uint16 = 0x0001
	tpmAlgNull uint16 = 0x0010
	tpmAlgECC  uint16 = 0x0023
)

// TPM_ECC_CURVE identifiers, [TPMv2-Part2] table 11.
const (
	tpmECCNistP256 uint16 = 0x0003
	tpmECCNistP384 uint16 = 0x0004
	tpmECCNistP521 uint16 = 0x0005
)

// pubArea is the subset of TPMT_PUBLIC ([TPMv2-Part2] §12.2.4) needed to
// recover the public key it describes and to recompute its Name digest.
type pubArea struct {
	Type    uint16
	NameAlg uint16

	// RSA fields (Type == tpmAlgRSA).
	Exponent uint32
	Modulus  []byte

	// ECC fields (Type == tpmAlgECC).
	CurveID uint16
	X, Y    []byte

	// Raw is the exact byte range this structure was decoded from, the
	// input to the certInfo attested Name digest.
	Raw []byte
}

func parsePubArea(raw []byte) (*pubArea, error) {
	r := newReader(raw)

	typ, err := r.uint16()
	if err != nil {
		return nil, fmt.Errorf("attestation/tpm: reading pubArea.type: %w", err)
	}
	nameAlg, err := r.uint16()
	if err != nil {
		return nil, fmt.Errorf("attestation/tpm: reading pubArea.nameAlg: %w", err)
	}
	if _, err := r.uint32(); err != nil { // objectAttributes
		return nil, fmt.Errorf("attestation/tpm: reading pubArea.objectAttributes: %w", err)
	}
	if _, err := r.sized(); err != nil { // authPolicy
		return nil, fmt.Errorf("attestation/tpm: reading pubArea.authPolicy: %w", err)
	}

	pub := &pubArea{Type: typ, NameAlg: nameAlg, Raw: raw}

	switch typ {
	case tpmAlgRSA:
		if err := skipSymmetricAndScheme(r); err != nil {
			return nil, err
		}
		if _, err := r.uint16(); err != nil { // keyBits
			return nil, fmt.Errorf("attestation/tpm: reading TPMS_RSA_PARMS.keyBits: %w", err)
		}
		exponent, err := r.uint32()
		if err != nil {
			return nil, fmt.Errorf("attestation/tpm: reading TPMS_RSA_PARMS.exponent: %w", err)
		}
		modulus, err := r.sized()
		if err != nil {
			return nil, fmt.Errorf("attestation/tpm: reading TPM2B_PUBLIC_KEY_RSA: %w", err)
		}
		pub.Exponent = exponent
		pub.Modulus = modulus

	case tpmAlgECC:
		if err := skipSymmetricAndScheme(r); err != nil {
			return nil, err
		}
		curveID, err := r.uint16()
		if err != nil {
			return nil, fmt.Errorf("attestation/tpm: reading TPMS_ECC_PARMS.curveID: %w", err)
		}
		kdf, err := r.uint16()
		if err != nil {
			return nil, fmt.Errorf("attestation/tpm: reading TPMS_ECC_PARMS.kdf.scheme: %w", err)
		}
		if kdf != tpmAlgNull {
			if _, err := r.uint16(); err != nil { // kdf hash algorithm
				return nil, fmt.Errorf("attestation/tpm: reading TPMS_ECC_PARMS.kdf.details: %w", err)
			}
		}
		x, err := r.sized()
		if err != nil {
			return nil, fmt.Errorf("attestation/tpm: reading TPMS_ECC_POINT.x: %w", err)
		}
		y, err := r.sized()
		if err != nil {
			return nil, fmt.Errorf("attestation/tpm: reading TPMS_ECC_POINT.y: %w", err)
		}
		pub.CurveID = curveID
		pub.X = x
		pub.Y = y

	default:
		return nil, fmt.Errorf("attestation/tpm: unsupported pubArea type %#04x", typ)
	}

	return pub, nil
}

// skipSymmetricAndScheme consumes the TPMT_SYM_DEF_OBJECT and scheme union
// fields shared by TPMS_RSA_PARMS and TPMS_ECC_PARMS. Both are TPM_ALG_NULL
// for the signing-only attestation keys WebAuthn authenticators present, but
// the wire format is decoded generally rather than assumed.
func skipSymmetricAndScheme(r *reader) error {
	symAlg, err := r.uint16()
	if err != nil {
		return fmt.Errorf("attestation/tpm: reading symmetric.algorithm: %w", err)
	}
	if symAlg != tpmAlgNull {
		if _, err := r.uint16(); err != nil { // keyBits
			return fmt.Errorf("attestation/tpm: reading symmetric.keyBits: %w", err)
		}
		if _, err := r.uint16(); err != nil { // mode
			return fmt.Errorf("attestation/tpm: reading symmetric.mode: %w", err)
		}
	}
	schemeAlg, err := r.uint16()
	if err != nil {
		return fmt.Errorf("attestation/tpm: reading scheme.scheme: %w", err)
	}
	if schemeAlg != tpmAlgNull {
		if _, err := r.uint16(); err != nil { // hash algorithm detail
			return fmt.Errorf("attestation/tpm: reading scheme.details: %w", err)
		}
	}
	return nil
}

func eccCurve(id uint16) (elliptic.Curve, error) {
	switch id {
	case tpmECCNistP256:
		return elliptic.P256(), nil
	case tpmECCNistP384:
		return elliptic.P384(), nil
	case tpmECCNistP521:
		return elliptic.P521(), nil
	default:
		return nil, fmt.Errorf("attestation/tpm: unsupported ECC curve id %#04x", id)
	}
}

// verifyPublicKeyMatch checks that the public key described by pub is
// identical to the credential public key from the authenticator data.
func verifyPublicKeyMatch(pub *pubArea, credKey *cose.Key) error {
	if credKey == nil {
		return fmt.Errorf("attestation/tpm: missing credential public key")
	}
	credPub, err := credKey.PublicKey()
	if err != nil {
		return fmt.Errorf("attestation/tpm: decoding credential public key: %w", err)
	}

	switch pub.Type {
	case tpmAlgRSA:
		rsaPub, ok := credPub.(*rsa.PublicKey)
		if !ok {
			return fmt.Errorf("attestation/tpm: pubArea type RSA but credential key is %T", credPub)
		}
		exponent := pub.Exponent
		if exponent == 0 {
			exponent = 65537
		}
		if rsaPub.E != int(exponent) {
			return fmt.Errorf("attestation/tpm: pubArea exponent %d does not match credential key exponent %d", exponent, rsaPub.E)
		}
		if new(big.Int).SetBytes(pub.Modulus).Cmp(rsaPub.N) != 0 {
			return fmt.Errorf("attestation/tpm: pubArea modulus does not match credential key modulus")
		}
		return nil

	case tpmAlgECC:
		ecPub, ok := credPub.(*ecdsa.PublicKey)
		if !ok {
			return fmt.Errorf("attestation/tpm: pubArea type ECC but credential key is %T", credPub)
		}
		curve, err := eccCurve(pub.CurveID)
		if err != nil {
			return err
		}
		if ecPub.Curve != curve {
			return fmt.Errorf("attestation/tpm: pubArea curve does not match credential key curve")
		}
		if new(big.Int).SetBytes(pub.X).Cmp(ecPub.X) != 0 || new(big.Int).SetBytes(pub.Y).Cmp(ecPub.Y) != 0 {
			return fmt.Errorf("attestation/tpm: pubArea coordinates do not match credential key")
		}
		return nil

	default:
		return fmt.Errorf("attestation/tpm: unsupported pubArea type %#04x", pub.Type)
	}
}
