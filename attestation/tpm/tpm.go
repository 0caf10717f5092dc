// Package tpm verifies the "tpm" attestation statement format, produced by
// Trusted Platform Module 2.0 authenticators via TPM2_Certify quotes over a
// credential's public area.
package tpm

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"encoding/asn1"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/coreauthn/webauthn/attestation"
	"github.com/coreauthn/webauthn/cose"
)

func init() {
	attestation.Register(attestation.FormatTPM, Verify)
}

// idFidoGenCEAAGUID is the id-fido-gen-ce-aaguid certificate extension OID.
var idFidoGenCEAAGUID = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 45724, 1, 1, 4}

// tcgKPAIKCertificateOID is the tcg-kp-AIKCertificate extended key usage
// OID, [TPMv2-Keys] §3.1, required on the AIK end-entity certificate.
var tcgKPAIKCertificateOID = asn1.ObjectIdentifier{2, 23, 133, 8, 3}

const supportedVersion = "2.0"

// Options configures policy hooks left to the relying party by the WebAuthn
// specification's TPM attestation statement verification procedure.
type Options struct {
	// DevicePropertyDecoder decodes the AIK certificate's SAN directoryName
	// into a DeviceProperty. Nil selects DefaultDevicePropertyDecoder.
	DevicePropertyDecoder DevicePropertyDecoder
	// DevicePropertyValidator applies caller policy to the decoded
	// DeviceProperty. Nil selects DefaultDevicePropertyValidator, which
	// accepts any well-formed value.
	DevicePropertyValidator DevicePropertyValidator
}

func (o Options) decoder() DevicePropertyDecoder {
	if o.DevicePropertyDecoder != nil {
		return o.DevicePropertyDecoder
	}
	return DefaultDevicePropertyDecoder
}

func (o Options) validator() DevicePropertyValidator {
	if o.DevicePropertyValidator != nil {
		return o.DevicePropertyValidator
	}
	return DefaultDevicePropertyValidator
}

type statement struct {
	Ver      string   `cbor:"ver"`
	Alg      int64    `cbor:"alg"`
	Sig      []byte   `cbor:"sig"`
	CertInfo []byte   `cbor:"certInfo"`
	PubArea  []byte   `cbor:"pubArea"`
	X5C      [][]byte `cbor:"x5c,omitempty"`
}

// Verify implements attestation.Verifier for the "tpm" format using the
// default Options (permissive device property policy).
func Verify(in *attestation.Input) (attestation.Output, error) {
	return VerifyWithOptions(in, Options{})
}

// VerifyWithOptions is Verify with explicit policy options.
func VerifyWithOptions(in *attestation.Input, opts Options) (attestation.Output, error) {
	var stmt statement
	if err := cbor.Unmarshal(in.RawStatement, &stmt); err != nil {
		return attestation.Output{}, fmt.Errorf("attestation/tpm: decoding statement: %w", err)
	}
	if stmt.Ver != supportedVersion {
		return attestation.Output{}, fmt.Errorf("attestation/tpm: unsupported ver %q, want %q", stmt.Ver, supportedVersion)
	}
	if len(stmt.Sig) == 0 {
		return attestation.Output{}, fmt.Errorf("attestation/tpm: statement missing signature")
	}
	if len(stmt.X5C) == 0 {
		return attestation.Output{}, fmt.Errorf("attestation/tpm: x5c missing; ECDAA attestation is deprecated and unsupported")
	}

	pub, err := parsePubArea(stmt.PubArea)
	if err != nil {
		return attestation.Output{}, err
	}
	if err := verifyPublicKeyMatch(pub, in.CredentialKey); err != nil {
		return attestation.Output{}, err
	}

	ci, err := parseCertInfo(stmt.CertInfo)
	if err != nil {
		return attestation.Output{}, err
	}
	if ci.Magic != tpmGeneratedValue {
		return attestation.Output{}, fmt.Errorf("attestation/tpm: certInfo.magic %#08x, want TPM_GENERATED_VALUE (%#08x)", ci.Magic, tpmGeneratedValue)
	}
	if ci.Type != tpmSTAttestCertify {
		return attestation.Output{}, fmt.Errorf("attestation/tpm: certInfo.type %#04x, want TPM_ST_ATTEST_CERTIFY (%#04x)", ci.Type, tpmSTAttestCertify)
	}

	wantExtraData, err := signatureHash(cose.Algorithm(stmt.Alg), in.SignedData())
	if err != nil {
		return attestation.Output{}, err
	}
	if !bytes.Equal(ci.ExtraData, wantExtraData) {
		return attestation.Output{}, fmt.Errorf("attestation/tpm: certInfo.extraData does not match hash of authenticatorData || clientDataHash")
	}

	nameDigest, err := tpmHash(ci.NameAlg, pub.Raw)
	if err != nil {
		return attestation.Output{}, err
	}
	if !bytes.Equal(nameDigest, ci.NameDigest) {
		return attestation.Output{}, fmt.Errorf("attestation/tpm: certInfo attested name does not match the digest of pubArea")
	}

	chain := make([]*x509.Certificate, 0, len(stmt.X5C))
	for i, raw := range stmt.X5C {
		cert, err := x509.ParseCertificate(raw)
		if err != nil {
			return attestation.Output{}, fmt.Errorf("attestation/tpm: parsing x5c[%d]: %w", i, err)
		}
		chain = append(chain, cert)
	}
	aik := chain[0]

	if err := cose.VerifySignature(aik.PublicKey, cose.Algorithm(stmt.Alg), stmt.CertInfo, stmt.Sig); err != nil {
		return attestation.Output{}, fmt.Errorf("attestation/tpm: certInfo signature verification: %w", err)
	}

	if err := validateAikCert(aik, opts); err != nil {
		return attestation.Output{}, err
	}

	if err := verifyAAGUIDExtension(aik, in.AAGUID); err != nil {
		return attestation.Output{}, err
	}

	return attestation.Output{Type: attestation.TypeAttCA, TrustPath: chain}, nil
}

// validateAikCert enforces the TPM Attestation Statement Certificate
// Requirements: version 3, empty Subject, a SAN directoryName decodable and
// acceptable as a TPM device property, the tcg-kp-AIKCertificate EKU, and
// CA=false.
func validateAikCert(cert *x509.Certificate, opts Options) error {
	if cert.Version != 3 {
		return fmt.Errorf("attestation/tpm: AIK certificate must be version 3, got %d", cert.Version)
	}
	if cert.Subject.String() != "" {
		return fmt.Errorf("attestation/tpm: AIK certificate Subject must be empty")
	}

	attrs, err := directoryNameAttributes(cert)
	if err != nil {
		return err
	}
	prop, err := opts.decoder()(attrs)
	if err != nil {
		return fmt.Errorf("attestation/tpm: decoding TPM device property: %w", err)
	}
	if err := opts.validator()(prop); err != nil {
		return fmt.Errorf("attestation/tpm: TPM device property rejected: %w", err)
	}

	var hasAIKEKU bool
	for _, oid := range cert.UnknownExtKeyUsage {
		if oid.Equal(tcgKPAIKCertificateOID) {
			hasAIKEKU = true
			break
		}
	}
	if !hasAIKEKU {
		return fmt.Errorf("attestation/tpm: AIK certificate missing tcg-kp-AIKCertificate (%s) extended key usage", tcgKPAIKCertificateOID)
	}

	if cert.IsCA {
		return fmt.Errorf("attestation/tpm: AIK certificate must have CA=false")
	}

	return nil
}

func verifyAAGUIDExtension(cert *x509.Certificate, aaguid [16]byte) error {
	for _, ext := range cert.Extensions {
		if !ext.Id.Equal(idFidoGenCEAAGUID) {
			continue
		}
		var extAAGUID []byte
		if _, err := asn1.Unmarshal(ext.Value, &extAAGUID); err != nil {
			return fmt.Errorf("attestation/tpm: decoding id-fido-gen-ce-aaguid extension: %w", err)
		}
		var certAAGUID [16]byte
		if len(extAAGUID) == 16 {
			copy(certAAGUID[:], extAAGUID)
		}
		if len(extAAGUID) != 16 || certAAGUID != aaguid {
			return fmt.Errorf("attestation/tpm: id-fido-gen-ce-aaguid extension does not match authenticator data AAGUID")
		}
		return nil
	}
	return nil
}

// signatureHash digests data with the hash algorithm implied by the COSE
// signing algorithm alg, matching the algorithm certInfo.extraData was
// computed with.
func signatureHash(alg cose.Algorithm, data []byte) ([]byte, error) {
	switch alg {
	case cose.AlgorithmRS1:
		h := sha1.Sum(data)
		return h[:], nil
	case cose.AlgorithmES256, cose.AlgorithmRS256, cose.AlgorithmPS256:
		h := sha256.Sum256(data)
		return h[:], nil
	case cose.AlgorithmES384, cose.AlgorithmRS384, cose.AlgorithmPS384:
		h := sha512.Sum384(data)
		return h[:], nil
	case cose.AlgorithmES512, cose.AlgorithmRS512, cose.AlgorithmPS512:
		h := sha512.Sum512(data)
		return h[:], nil
	default:
		return nil, fmt.Errorf("attestation/tpm: unsupported alg %s", alg)
	}
}
