package tpm

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
)

// TPM_GENERATED_VALUE, [TPMv2-Part1] §31.3.
const tpmGeneratedValue uint32 = 0xff544347

// TPMI_ST_ATTEST value used for TPM2_Certify quotes, [TPMv2-Part2] table 21.
const tpmSTAttestCertify uint16 = 0x8017

// TPM_ALG_ID hash identifiers, [TPMv2-Part2] table 9.
const (
	tpmAlgSHA1   uint16 = 0x0004
	tpmAlgSHA256 uint16 = 0x000b
	tpmAlgSHA384 uint16 = 0x000c
	tpmAlgSHA512 uint16 = 0x000d
)

// certInfo is the subset of TPMS_ATTEST ([TPMv2-Part2] §10.12.8) needed to
// validate a TPM2_Certify quote over an attested public area. qualifiedSigner,
// clockInfo and firmwareVersion are read to stay positioned but otherwise
// ignored, matching the WebAuthn attestation statement verification
// procedure's explicit note that they MAY feed a risk engine but are not
// required for validity.
type certInfo struct {
	Magic uint32
	Type  uint16

	ExtraData []byte

	// NameAlg and NameDigest are TPMS_CERTIFY_INFO.name split into its
	// leading hash algorithm and trailing digest.
	NameAlg    uint16
	NameDigest []byte
}

func parseCertInfo(raw []byte) (*certInfo, error) {
	r := newReader(raw)

	magic, err := r.uint32()
	if err != nil {
		return nil, fmt.Errorf("attestation/tpm: reading certInfo.magic: %w", err)
	}
	typ, err := r.uint16()
	if err != nil {
		return nil, fmt.Errorf("attestation/tpm: reading certInfo.type: %w", err)
	}
	if _, err := r.sized(); err != nil { // qualifiedSigner
		return nil, fmt.Errorf("attestation/tpm: reading certInfo.qualifiedSigner: %w", err)
	}
	extraData, err := r.sized()
	if err != nil {
		return nil, fmt.Errorf("attestation/tpm: reading certInfo.extraData: %w", err)
	}
	if _, err := r.uint64(); err != nil { // clockInfo.clock
		return nil, fmt.Errorf("attestation/tpm: reading certInfo.clockInfo.clock: %w", err)
	}
	if _, err := r.uint32(); err != nil { // clockInfo.resetCount
		return nil, fmt.Errorf("attestation/tpm: reading certInfo.clockInfo.resetCount: %w", err)
	}
	if _, err := r.uint32(); err != nil { // clockInfo.restartCount
		return nil, fmt.Errorf("attestation/tpm: reading certInfo.clockInfo.restartCount: %w", err)
	}
	if _, err := r.bytes(1); err != nil { // clockInfo.safe
		return nil, fmt.Errorf("attestation/tpm: reading certInfo.clockInfo.safe: %w", err)
	}
	if _, err := r.uint64(); err != nil { // firmwareVersion
		return nil, fmt.Errorf("attestation/tpm: reading certInfo.firmwareVersion: %w", err)
	}

	// attested union, TPMS_CERTIFY_INFO { TPM2B_NAME name; TPM2B_NAME qualifiedName; }
	name, err := r.sized()
	if err != nil {
		return nil, fmt.Errorf("attestation/tpm: reading certInfo.attested.name: %w", err)
	}
	if _, err := r.sized(); err != nil { // qualifiedName
		return nil, fmt.Errorf("attestation/tpm: reading certInfo.attested.qualifiedName: %w", err)
	}

	if len(name) < 2 {
		return nil, fmt.Errorf("attestation/tpm: certInfo.attested.name too short to carry a hash algorithm")
	}
	nr := newReader(name)
	nameAlg, err := nr.uint16()
	if err != nil {
		return nil, fmt.Errorf("attestation/tpm: reading certInfo.attested.name algorithm: %w", err)
	}

	return &certInfo{
		Magic:      magic,
		Type:       typ,
		ExtraData:  extraData,
		NameAlg:    nameAlg,
		NameDigest: nr.buf,
	}, nil
}

// tpmHash digests data with the TPM_ALG_ID hash algorithm alg, as used by
// both certInfo.extraData (over authData||clientDataHash) and the attested
// Name (over pubArea's raw bytes).
func tpmHash(alg uint16, data []byte) ([]byte, error) {
	switch alg {
	case tpmAlgSHA1:
		h := sha1.Sum(data)
		return h[:], nil
	case tpmAlgSHA256:
		h := sha256.Sum256(data)
		return h[:], nil
	case tpmAlgSHA384:
		h := sha512.Sum384(data)
		return h[:], nil
	case tpmAlgSHA512:
		h := sha512.Sum512(data)
		return h[:], nil
	default:
		return nil, fmt.Errorf("attestation/tpm: unsupported name hash algorithm %#04x", alg)
	}
}
