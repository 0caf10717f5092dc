// Package apple verifies the "apple" attestation statement format, used by
// iCloud Keychain and other Apple platform authenticators that anonymize
// attestation through a per-device CA rather than a shared attestation key.
package apple

import (
	"bytes"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/coreauthn/webauthn/attestation"
)

func init() {
	attestation.Register(attestation.FormatApple, Verify)
}

// appleNonceExtensionOID carries the attestation nonce inside the
// credential certificate; Apple has not published a formal ASN.1 schema for
// it beyond this single explicitly-tagged OCTET STRING.
var appleNonceExtensionOID = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 8, 2}

type nonceExtension struct {
	Nonce []byte `asn1:"tag:1,explicit"`
}

type statement struct {
	X5C [][]byte `cbor:"x5c"`
}

// Verify implements attestation.Verifier for the "apple" format.
func Verify(in *attestation.Input) (attestation.Output, error) {
	var stmt statement
	if err := cbor.Unmarshal(in.RawStatement, &stmt); err != nil {
		return attestation.Output{}, fmt.Errorf("attestation/apple: decoding statement: %w", err)
	}
	if len(stmt.X5C) == 0 {
		return attestation.Output{}, fmt.Errorf("attestation/apple: statement missing x5c")
	}

	chain := make([]*x509.Certificate, 0, len(stmt.X5C))
	for i, raw := range stmt.X5C {
		cert, err := x509.ParseCertificate(raw)
		if err != nil {
			return attestation.Output{}, fmt.Errorf("attestation/apple: parsing x5c[%d]: %w", i, err)
		}
		chain = append(chain, cert)
	}
	credCert := chain[0]

	nonce := sha256.Sum256(in.SignedData())

	var extBytes []byte
	for _, ext := range credCert.Extensions {
		if ext.Id.Equal(appleNonceExtensionOID) {
			extBytes = ext.Value
			break
		}
	}
	if len(extBytes) == 0 {
		return attestation.Output{}, fmt.Errorf("attestation/apple: credential certificate missing nonce extension %s", appleNonceExtensionOID)
	}

	var decoded nonceExtension
	if _, err := asn1.Unmarshal(extBytes, &decoded); err != nil {
		return attestation.Output{}, fmt.Errorf("attestation/apple: decoding nonce extension: %w", err)
	}
	if !bytes.Equal(decoded.Nonce, nonce[:]) {
		return attestation.Output{}, fmt.Errorf("attestation/apple: nonce extension does not match computed nonce")
	}

	if in.CredentialKey == nil {
		return attestation.Output{}, fmt.Errorf("attestation/apple: missing credential public key")
	}
	credPub, err := in.CredentialKey.PublicKey()
	if err != nil {
		return attestation.Output{}, fmt.Errorf("attestation/apple: decoding credential public key: %w", err)
	}
	credPubBytes, err := x509.MarshalPKIXPublicKey(credPub)
	if err != nil {
		return attestation.Output{}, fmt.Errorf("attestation/apple: marshaling credential public key: %w", err)
	}
	certPubBytes, err := x509.MarshalPKIXPublicKey(credCert.PublicKey)
	if err != nil {
		return attestation.Output{}, fmt.Errorf("attestation/apple: marshaling certificate public key: %w", err)
	}
	if !bytes.Equal(credPubBytes, certPubBytes) {
		return attestation.Output{}, fmt.Errorf("attestation/apple: credential certificate public key does not match credential public key")
	}

	return attestation.Output{Type: attestation.TypeAnonCA, TrustPath: chain}, nil
}
