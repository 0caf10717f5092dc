// Package attestation defines the attestation-statement object model shared
// by every per-format verifier (packed, tpm, android-key, android-safetynet,
// apple, fido-u2f, none) and the dispatch table that selects among them.
//
// Per-format verifiers live in sibling packages and register themselves at
// init time via Register, mirroring the format-registry pattern used by
// fxamacker/webauthn. This keeps the dispatcher free of a direct import on
// every format package while still giving each format its own file tree.
package attestation

import (
	"crypto/x509"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/coreauthn/webauthn/cose"
)

// Format identifies a WebAuthn attestation statement format.
type Format string

// Attestation statement formats defined by the WebAuthn specification.
const (
	FormatPacked           Format = "packed"
	FormatTPM              Format = "tpm"
	FormatAndroidKey       Format = "android-key"
	FormatAndroidSafetyNet Format = "android-safetynet"
	FormatApple            Format = "apple"
	FormatFidoU2F          Format = "fido-u2f"
	FormatNone             Format = "none"
)

// Valid reports whether f is a recognized attestation statement format
// identifier.
func (f Format) Valid() error {
	switch f {
	case FormatPacked, FormatTPM, FormatAndroidKey, FormatAndroidSafetyNet, FormatApple, FormatFidoU2F, FormatNone:
		return nil
	default:
		return fmt.Errorf("attestation: unrecognized statement format %q", f)
	}
}

// Type describes the trust model conveyed by a verified attestation
// statement, per §6.5.3 of the WebAuthn specification.
type Type int

// Attestation trust models.
const (
	TypeNone Type = iota
	TypeBasic
	TypeSelf
	TypeAttCA
	TypeAnonCA
)

// String returns a human readable name for the attestation type.
func (t Type) String() string {
	switch t {
	case TypeBasic:
		return "Basic"
	case TypeSelf:
		return "Self"
	case TypeAttCA:
		return "AttCA"
	case TypeAnonCA:
		return "AnonCA"
	case TypeNone:
		return "None"
	default:
		return "Undefined"
	}
}

// Object is the CBOR-decoded attestation object: authenticator data,
// statement format, and the (still raw) format-specific statement.
type Object struct {
	AuthData []byte          `cbor:"authData"`
	Fmt      Format          `cbor:"fmt"`
	AttStmt  cbor.RawMessage `cbor:"attStmt"`
}

// DecodeObject parses a CBOR-encoded attestation object.
func DecodeObject(raw []byte) (*Object, error) {
	var obj Object
	if err := cbor.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("attestation: decoding object: %w", err)
	}
	if len(obj.AuthData) == 0 {
		return nil, fmt.Errorf("attestation: object missing authData")
	}
	if err := obj.Fmt.Valid(); err != nil {
		return nil, err
	}
	return &obj, nil
}

// Input is passed to a per-format Verifier. RawStatement is the still-raw
// CBOR of attStmt; each format package decodes it into its own shape.
type Input struct {
	RawAuthData    []byte
	ClientDataHash [32]byte
	RawStatement   cbor.RawMessage
	AAGUID         [16]byte
	CredentialID   []byte
	CredentialKey  *cose.Key
	RPID           string
}

// SignedData returns the byte-exact concatenation authenticatorData ||
// clientDataHash used as the signed payload for every format except
// fido-u2f, which has its own bespoke layout (see the fidou2f package).
func (in *Input) SignedData() []byte {
	data := make([]byte, 0, len(in.RawAuthData)+len(in.ClientDataHash))
	data = append(data, in.RawAuthData...)
	data = append(data, in.ClientDataHash[:]...)
	return data
}

// Output is the result of a successful per-format verification.
type Output struct {
	Type Type
	// TrustPath is the certificate chain (leaf-first) backing a Basic,
	// AttCA, or AnonCA attestation, or nil for Self/None attestations.
	TrustPath []*x509.Certificate
}

// Verifier verifies one attestation statement format.
type Verifier func(in *Input) (Output, error)

var (
	mu       sync.RWMutex
	registry = map[Format]Verifier{}
)

// Register associates a Verifier with a statement format. Per-format
// packages call this from an init function; it panics on duplicate
// registration since that indicates a build-time wiring mistake, not a
// runtime condition.
func Register(format Format, verifier Verifier) {
	mu.Lock()
	defer mu.Unlock()
	if verifier == nil {
		panic("attestation: nil verifier registered for " + string(format))
	}
	if _, exists := registry[format]; exists {
		panic("attestation: verifier already registered for " + string(format))
	}
	registry[format] = verifier
}

// Dispatch runs the verifier registered for format. Callers are expected to
// have imported (possibly blank-imported) the per-format packages they wish
// to support before calling Dispatch.
func Dispatch(format Format, in *Input) (Output, error) {
	mu.RLock()
	verifier, ok := registry[format]
	mu.RUnlock()
	if !ok {
		return Output{}, fmt.Errorf("attestation: no verifier registered for format %q", format)
	}
	return verifier(in)
}

// Registered reports which formats currently have a verifier registered,
// primarily for diagnostics and tests.
func Registered() []Format {
	mu.RLock()
	defer mu.RUnlock()
	formats := make([]Format, 0, len(registry))
	for f := range registry {
		formats = append(formats, f)
	}
	return formats
}
