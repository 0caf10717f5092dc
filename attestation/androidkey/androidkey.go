// Package androidkey verifies the "android-key" attestation statement
// format, produced by Android's hardware-backed Keystore attestation.
package androidkey

import (
	"bytes"
	"crypto/x509"
	"encoding/asn1"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/coreauthn/webauthn/attestation"
	"github.com/coreauthn/webauthn/cose"
)

func init() {
	attestation.Register(attestation.FormatAndroidKey, Verify)
}

// androidKeyAttestationOID is the Android Key Attestation certificate
// extension, https://source.android.com/docs/security/features/keystore/attestation.
var androidKeyAttestationOID = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 11129, 2, 1, 17}

// Options configures policy choices left open by the WebAuthn spec for the
// android-key format.
type Options struct {
	// TEEEnforcedOnly requires that the "origin" and "purpose" authorization
	// entries appear only in the TEE-enforced authorization list, rejecting
	// keys whose origin/purpose enforcement can be satisfied in software.
	TEEEnforcedOnly bool
}

type statement struct {
	Alg int64    `cbor:"alg"`
	Sig []byte   `cbor:"sig"`
	X5C [][]byte `cbor:"x5c"`
}

// keyDescription mirrors the ASN.1 KeyDescription structure embedded in the
// Android Key Attestation certificate extension. Only the fields the
// WebAuthn verification procedure inspects are decoded; everything else is
// left in the trailing raw tail via asn1's greedy struct decoding being
// tolerant of extra fields is not available, so unused integer/enum fields
// are still declared to keep the sequence offsets aligned.
type keyDescription struct {
	AttestationVersion       int
	AttestationSecurityLevel asn1.Enumerated
	KeymasterVersion         int
	KeymasterSecurityLevel   asn1.Enumerated
	AttestationChallenge     []byte
	UniqueID                 []byte
	SoftwareEnforced         authorizationList
	TeeEnforced              authorizationList
}

// authorizationList decodes the subset of Android's AuthorizationList SEQUENCE
// that WebAuthn's android-key verification procedure inspects: purpose,
// origin, and allApplications, each an explicitly tagged optional field.
type authorizationList struct {
	Purpose         asn1.RawValue `asn1:"optional,explicit,tag:1"`
	Origin          asn1.RawValue `asn1:"optional,explicit,tag:702"`
	AllApplications asn1.RawValue `asn1:"optional,explicit,tag:600"`
}

// Verify implements attestation.Verifier for the "android-key" format,
// applying the default policy (TEEEnforcedOnly disabled). Use VerifyWithOptions
// to enforce a stricter policy.
func Verify(in *attestation.Input) (attestation.Output, error) {
	return VerifyWithOptions(in, Options{})
}

// VerifyWithOptions is Verify with explicit policy options.
func VerifyWithOptions(in *attestation.Input, opts Options) (attestation.Output, error) {
	var stmt statement
	if err := cbor.Unmarshal(in.RawStatement, &stmt); err != nil {
		return attestation.Output{}, fmt.Errorf("attestation/android-key: decoding statement: %w", err)
	}
	if len(stmt.X5C) == 0 {
		return attestation.Output{}, fmt.Errorf("attestation/android-key: statement missing x5c")
	}

	chain := make([]*x509.Certificate, 0, len(stmt.X5C))
	for i, raw := range stmt.X5C {
		cert, err := x509.ParseCertificate(raw)
		if err != nil {
			return attestation.Output{}, fmt.Errorf("attestation/android-key: parsing x5c[%d]: %w", i, err)
		}
		chain = append(chain, cert)
	}
	leaf := chain[0]

	if in.CredentialKey == nil {
		return attestation.Output{}, fmt.Errorf("attestation/android-key: missing credential public key")
	}
	credPub, err := in.CredentialKey.PublicKey()
	if err != nil {
		return attestation.Output{}, fmt.Errorf("attestation/android-key: decoding credential public key: %w", err)
	}
	leafPubBytes, err := x509.MarshalPKIXPublicKey(leaf.PublicKey)
	if err != nil {
		return attestation.Output{}, fmt.Errorf("attestation/android-key: marshaling leaf public key: %w", err)
	}
	credPubBytes, err := x509.MarshalPKIXPublicKey(credPub)
	if err != nil {
		return attestation.Output{}, fmt.Errorf("attestation/android-key: marshaling credential public key: %w", err)
	}
	if !bytes.Equal(leafPubBytes, credPubBytes) {
		return attestation.Output{}, fmt.Errorf("attestation/android-key: leaf certificate public key does not match credential public key")
	}

	signedData := in.SignedData()
	if err := cose.VerifySignature(leaf.PublicKey, cose.Algorithm(stmt.Alg), signedData, stmt.Sig); err != nil {
		return attestation.Output{}, fmt.Errorf("attestation/android-key: signature verification: %w", err)
	}

	if err := verifyKeyDescription(leaf, in.ClientDataHash, opts); err != nil {
		return attestation.Output{}, err
	}

	return attestation.Output{Type: attestation.TypeBasic, TrustPath: chain}, nil
}

func verifyKeyDescription(leaf *x509.Certificate, clientDataHash [32]byte, opts Options) error {
	var ext []byte
	for _, e := range leaf.Extensions {
		if e.Id.Equal(androidKeyAttestationOID) {
			ext = e.Value
			break
		}
	}
	if ext == nil {
		return fmt.Errorf("attestation/android-key: leaf certificate missing key attestation extension")
	}

	var kd keyDescription
	if _, err := asn1.Unmarshal(ext, &kd); err != nil {
		return fmt.Errorf("attestation/android-key: decoding key description: %w", err)
	}

	if !bytes.Equal(kd.AttestationChallenge, clientDataHash[:]) {
		return fmt.Errorf("attestation/android-key: attestationChallenge does not match clientDataHash")
	}

	if kd.SoftwareEnforced.AllApplications.FullBytes != nil {
		return fmt.Errorf("attestation/android-key: allApplications must be absent from softwareEnforced")
	}
	if kd.TeeEnforced.AllApplications.FullBytes != nil {
		return fmt.Errorf("attestation/android-key: allApplications must be absent from teeEnforced")
	}

	if opts.TEEEnforcedOnly {
		if kd.SoftwareEnforced.Origin.FullBytes != nil {
			return fmt.Errorf("attestation/android-key: origin must only appear in teeEnforced")
		}
		if kd.SoftwareEnforced.Purpose.FullBytes != nil {
			return fmt.Errorf("attestation/android-key: purpose must only appear in teeEnforced")
		}
		if kd.TeeEnforced.Origin.FullBytes == nil {
			return fmt.Errorf("attestation/android-key: origin missing from teeEnforced")
		}
		if kd.TeeEnforced.Purpose.FullBytes == nil {
			return fmt.Errorf("attestation/android-key: purpose missing from teeEnforced")
		}
	}

	return nil
}
