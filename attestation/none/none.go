// Package none verifies the "none" attestation statement format, in which
// an authenticator conveys no attestation about itself.
package none

import (
	"bytes"
	"fmt"

	"github.com/coreauthn/webauthn/attestation"
)

func init() {
	attestation.Register(attestation.FormatNone, Verify)
}

// emptyMap is the canonical CBOR encoding of an empty map, the only legal
// attStmt value for the "none" format.
var emptyMap = []byte{0xa0}

// Verify implements attestation.Verifier for the "none" format.
func Verify(in *attestation.Input) (attestation.Output, error) {
	if !bytes.Equal([]byte(in.RawStatement), emptyMap) {
		return attestation.Output{}, fmt.Errorf("attestation/none: statement must be an empty map, got %d bytes", len(in.RawStatement))
	}
	return attestation.Output{Type: attestation.TypeNone}, nil
}
