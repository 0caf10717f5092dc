package webauthn

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/coreauthn/webauthn/cose"
)

// Authenticator data flag bits, WebAuthn Level 2 §6.1.
const (
	flagUP byte = 1 << 0 // User Present
	flagUV byte = 1 << 2 // User Verified
	flagBE byte = 1 << 3 // Backup Eligibility
	flagBS byte = 1 << 4 // Backup State
	flagAT byte = 1 << 6 // Attested credential data included
	flagED byte = 1 << 7 // Extension data included
)

// AttestedCredentialData is the variable-length structure carried in
// AuthenticatorData when the AT flag is set, WebAuthn Level 2 §6.5.1.
type AttestedCredentialData struct {
	AAGUID           [16]byte
	CredentialID     []byte
	CredentialKey    *cose.Key
	RawCredentialKey []byte
}

// AuthenticatorData is the decoded authenticator data structure, WebAuthn
// Level 2 §6.1.
type AuthenticatorData struct {
	RPIDHash               [32]byte
	UserPresent            bool
	UserVerified           bool
	BackupEligible         bool
	BackupState            bool
	AttestedCredentialData *AttestedCredentialData
	Extensions             map[string]interface{}
	SignCount              uint32
	Raw                    []byte
}

// DecodeAuthenticatorData parses the fixed-plus-variable-length wire layout
// of authenticator data: 32-byte rpIdHash, 1-byte flags, 4-byte signCount,
// optionally followed by attestedCredentialData and/or extensions.
func DecodeAuthenticatorData(raw []byte) (*AuthenticatorData, error) {
	if len(raw) < 37 {
		return nil, ErrConstraintViolation.Wrap(fmt.Errorf("authenticator data too short: %d bytes", len(raw)))
	}

	ad := &AuthenticatorData{Raw: raw}
	copy(ad.RPIDHash[:], raw[0:32])

	flags := raw[32]
	ad.UserPresent = flags&flagUP != 0
	ad.UserVerified = flags&flagUV != 0
	ad.BackupEligible = flags&flagBE != 0
	ad.BackupState = flags&flagBS != 0

	ad.SignCount = binary.BigEndian.Uint32(raw[33:37])

	rest := raw[37:]

	if flags&flagAT != 0 {
		acd, remaining, err := decodeAttestedCredentialData(rest)
		if err != nil {
			return nil, err
		}
		ad.AttestedCredentialData = acd
		rest = remaining
	}

	if flags&flagED != 0 {
		var ext map[string]interface{}
		if err := cbor.Unmarshal(rest, &ext); err != nil {
			return nil, ErrConstraintViolation.Wrap(fmt.Errorf("decoding extension outputs: %w", err))
		}
		ad.Extensions = ext
	}

	return ad, nil
}

func decodeAttestedCredentialData(raw []byte) (*AttestedCredentialData, []byte, error) {
	if len(raw) < 18 {
		return nil, nil, ErrConstraintViolation.Wrap(fmt.Errorf("attested credential data too short"))
	}
	acd := &AttestedCredentialData{}
	copy(acd.AAGUID[:], raw[0:16])

	credIDLen := binary.BigEndian.Uint16(raw[16:18])
	offset := 18 + int(credIDLen)
	if len(raw) < offset {
		return nil, nil, ErrConstraintViolation.Wrap(fmt.Errorf("credential id truncated"))
	}
	acd.CredentialID = raw[18:offset]

	// The credential public key is a CBOR item embedded in a larger byte
	// string that may be followed by an extensions block; decode through a
	// Decoder and consult NumBytesRead to find where it ends rather than
	// assuming it runs to the end of the buffer.
	reader := bytes.NewReader(raw[offset:])
	decoder := cbor.NewDecoder(reader)
	var rawKey cbor.RawMessage
	if err := decoder.Decode(&rawKey); err != nil {
		return nil, nil, ErrConstraintViolation.Wrap(fmt.Errorf("decoding credential public key: %w", err))
	}
	key, err := cose.DecodeKey(rawKey)
	if err != nil {
		return nil, nil, ErrConstraintViolation.Wrap(err)
	}
	acd.CredentialKey = key
	acd.RawCredentialKey = rawKey

	consumed := int(decoder.NumBytesRead())
	return acd, raw[offset+consumed:], nil
}
