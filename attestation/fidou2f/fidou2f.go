// Package fidou2f verifies the "fido-u2f" attestation statement format,
// produced by CTAP1/U2F security keys operating in WebAuthn compatibility
// mode.
package fidou2f

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/coreauthn/webauthn/attestation"
	"github.com/coreauthn/webauthn/cose"
)

func init() {
	attestation.Register(attestation.FormatFidoU2F, Verify)
}

type statement struct {
	Sig []byte   `cbor:"sig"`
	X5C [][]byte `cbor:"x5c"`
}

// Verify implements attestation.Verifier for the "fido-u2f" format.
//
// The WebAuthn spec leaves the reported AttestationType ambiguous for this
// format: the U2F wire format cannot distinguish Basic from AttCA, so
// callers that drive risk decisions off the AttestationType should treat
// fido-u2f as "Basic-or-better" (spec.md §9 Open Question (c)).
func Verify(in *attestation.Input) (attestation.Output, error) {
	var stmt statement
	if err := cbor.Unmarshal(in.RawStatement, &stmt); err != nil {
		return attestation.Output{}, fmt.Errorf("attestation/fido-u2f: decoding statement: %w", err)
	}
	if len(stmt.X5C) != 1 {
		return attestation.Output{}, fmt.Errorf("attestation/fido-u2f: statement must carry exactly one certificate, got %d", len(stmt.X5C))
	}
	if len(stmt.Sig) == 0 {
		return attestation.Output{}, fmt.Errorf("attestation/fido-u2f: statement missing signature")
	}

	cert, err := x509.ParseCertificate(stmt.X5C[0])
	if err != nil {
		return attestation.Output{}, fmt.Errorf("attestation/fido-u2f: parsing certificate: %w", err)
	}

	pub, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return attestation.Output{}, fmt.Errorf("attestation/fido-u2f: certificate public key type %T, want *ecdsa.PublicKey", cert.PublicKey)
	}
	if pub.Curve.Params().Name != "P-256" {
		return attestation.Output{}, fmt.Errorf("attestation/fido-u2f: certificate key curve %s, want P-256", pub.Curve.Params().Name)
	}

	if in.CredentialKey == nil {
		return attestation.Output{}, fmt.Errorf("attestation/fido-u2f: missing credential public key")
	}
	credPub, err := in.CredentialKey.PublicKey()
	if err != nil {
		return attestation.Output{}, fmt.Errorf("attestation/fido-u2f: decoding credential public key: %w", err)
	}
	credECDSA, ok := credPub.(*ecdsa.PublicKey)
	if !ok {
		return attestation.Output{}, fmt.Errorf("attestation/fido-u2f: credential key type %T, want *ecdsa.PublicKey", credPub)
	}
	if credECDSA.Curve.Params().Name != "P-256" {
		return attestation.Output{}, fmt.Errorf("attestation/fido-u2f: credential key curve %s, want P-256", credECDSA.Curve.Params().Name)
	}

	signedData, err := u2fSignedData(in, credECDSA)
	if err != nil {
		return attestation.Output{}, err
	}

	if err := cose.VerifySignature(pub, cose.AlgorithmES256, signedData, stmt.Sig); err != nil {
		return attestation.Output{}, fmt.Errorf("attestation/fido-u2f: signature verification: %w", err)
	}

	return attestation.Output{Type: attestation.TypeBasic, TrustPath: []*x509.Certificate{cert}}, nil
}

// u2fSignedData builds the raw U2F registration-response signed data:
// 0x00 || SHA-256(rpId) || clientDataHash || credentialId || (0x04 || X || Y).
//
// Open Question (a): this layout assumes a 65-byte uncompressed P-256 point
// (1 + 32 + 32); credentials using any other curve must be rejected before
// reaching this function, which Verify does by requiring a P-256
// credential key above.
func u2fSignedData(in *attestation.Input, pub *ecdsa.PublicKey) ([]byte, error) {
	x := pub.X.Bytes()
	y := pub.Y.Bytes()
	if len(x) > 32 || len(y) > 32 {
		return nil, fmt.Errorf("attestation/fido-u2f: credential key coordinates exceed 32 bytes")
	}
	var point [65]byte
	point[0] = 0x04
	copy(point[1+(32-len(x)):33], x)
	copy(point[33+(32-len(y)):65], y)

	rpIDHash := sha256.Sum256([]byte(in.RPID))

	data := make([]byte, 0, 1+32+32+len(in.CredentialID)+65)
	data = append(data, 0x00)
	data = append(data, rpIDHash[:]...)
	data = append(data, in.ClientDataHash[:]...)
	data = append(data, in.CredentialID...)
	data = append(data, point[:]...)
	return data, nil
}
