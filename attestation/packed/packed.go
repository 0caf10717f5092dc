// Package packed verifies the "packed" attestation statement format,
// WebAuthn's general-purpose format for platform and roaming
// authenticators that have an attestation certificate, or fall back to
// self-attestation with the credential's own key.
package packed

import (
	"crypto/x509"
	"encoding/asn1"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/coreauthn/webauthn/attestation"
	"github.com/coreauthn/webauthn/cose"
)

func init() {
	attestation.Register(attestation.FormatPacked, Verify)
}

// idFidoGenCEAAGUID is the id-fido-gen-ce-aaguid certificate extension OID,
// carrying the AAGUID inside the attestation certificate itself. §8.2.1.
var idFidoGenCEAAGUID = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 45724, 1, 1, 4}

type statement struct {
	Alg int64           `cbor:"alg"`
	Sig []byte          `cbor:"sig"`
	X5C [][]byte        `cbor:"x5c,omitempty"`
}

// Verify implements attestation.Verifier for the "packed" format.
func Verify(in *attestation.Input) (attestation.Output, error) {
	var stmt statement
	if err := cbor.Unmarshal(in.RawStatement, &stmt); err != nil {
		return attestation.Output{}, fmt.Errorf("attestation/packed: decoding statement: %w", err)
	}
	if len(stmt.Sig) == 0 {
		return attestation.Output{}, fmt.Errorf("attestation/packed: statement missing signature")
	}

	signedData := in.SignedData()

	if len(stmt.X5C) == 0 {
		return verifySelf(in, &stmt, signedData)
	}
	return verifyFull(in, &stmt, signedData)
}

func verifySelf(in *attestation.Input, stmt *statement, signedData []byte) (attestation.Output, error) {
	if in.CredentialKey == nil {
		return attestation.Output{}, fmt.Errorf("attestation/packed: self attestation requires a credential public key")
	}
	if cose.Algorithm(stmt.Alg) != in.CredentialKey.Alg {
		return attestation.Output{}, fmt.Errorf("attestation/packed: self attestation alg %d does not match credential key alg %s", stmt.Alg, in.CredentialKey.Alg)
	}
	if err := in.CredentialKey.VerifySignature(signedData, stmt.Sig); err != nil {
		return attestation.Output{}, fmt.Errorf("attestation/packed: self attestation signature: %w", err)
	}
	return attestation.Output{Type: attestation.TypeSelf}, nil
}

func verifyFull(in *attestation.Input, stmt *statement, signedData []byte) (attestation.Output, error) {
	chain := make([]*x509.Certificate, 0, len(stmt.X5C))
	for i, raw := range stmt.X5C {
		cert, err := x509.ParseCertificate(raw)
		if err != nil {
			return attestation.Output{}, fmt.Errorf("attestation/packed: parsing x5c[%d]: %w", i, err)
		}
		chain = append(chain, cert)
	}

	attnCert := chain[0]
	if err := cose.VerifySignature(attnCert.PublicKey, cose.Algorithm(stmt.Alg), signedData, stmt.Sig); err != nil {
		return attestation.Output{}, fmt.Errorf("attestation/packed: attestation signature: %w", err)
	}

	if err := validateAttestationCertificate(attnCert, in.AAGUID); err != nil {
		return attestation.Output{}, err
	}

	return attestation.Output{Type: attestation.TypeBasic, TrustPath: chain}, nil
}

// validateAttestationCertificate enforces the §8.2.1 Packed Attestation
// Statement Certificate Requirements.
func validateAttestationCertificate(cert *x509.Certificate, aaguid [16]byte) error {
	if cert.Version != 3 {
		return fmt.Errorf("attestation/packed: attestation certificate must be version 3, got %d", cert.Version)
	}

	ou := cert.Subject.OrganizationalUnit
	if len(ou) != 1 || ou[0] != "Authenticator Attestation" {
		return fmt.Errorf("attestation/packed: attestation certificate Subject OU must be %q, got %v", "Authenticator Attestation", ou)
	}

	if cert.IsCA {
		return fmt.Errorf("attestation/packed: attestation certificate must have CA=false")
	}

	for _, ext := range cert.Extensions {
		if !ext.Id.Equal(idFidoGenCEAAGUID) {
			continue
		}
		var extAAGUID []byte
		if _, err := asn1.Unmarshal(ext.Value, &extAAGUID); err != nil {
			return fmt.Errorf("attestation/packed: decoding id-fido-gen-ce-aaguid extension: %w", err)
		}
		if len(extAAGUID) != 16 {
			return fmt.Errorf("attestation/packed: id-fido-gen-ce-aaguid extension must be 16 bytes, got %d", len(extAAGUID))
		}
		var certAAGUID [16]byte
		copy(certAAGUID[:], extAAGUID)
		if certAAGUID != aaguid {
			return fmt.Errorf("attestation/packed: id-fido-gen-ce-aaguid extension does not match authenticator data AAGUID")
		}
		break
	}

	return nil
}
