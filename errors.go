// Package webauthn implements the server-side W3C WebAuthn Level 2 core
// ceremony validator: registration (attestation) and authentication
// (assertion) verification, the per-format attestation dispatch layer, and
// the signature-counter anti-clone protocol.
//
// The package does no I/O of its own. Callers pass the raw clientDataJSON,
// attestation object and authenticator data bytes to DecodeRegistrationData
// or DecodeAuthenticationData, which decode them into CollectedClientData,
// AuthenticatorData and COSE keys (see the cose and attestation packages),
// and supply policy collaborators such as a trustanchor.Validator.
package webauthn

import "fmt"

// Error is a taxonomy member of the flat error set a ceremony validator can
// return. Msg carries a human-readable description of the offending datum;
// Wrapped, when non-nil, is the underlying cause. sentinel identifies which
// of the package-level Err* values this Error was derived from, so that
// errors.Is still recognizes a wrapped Error as that sentinel even though
// Wrap allocates a new *Error rather than returning the sentinel itself.
type Error struct {
	Msg      string
	Wrapped  error
	sentinel *Error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Wrapped)
	}
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// canonical returns the package-level sentinel e was derived from, or e
// itself if e is that sentinel.
func (e *Error) canonical() *Error {
	if e.sentinel != nil {
		return e.sentinel
	}
	return e
}

// Is reports whether target is the same taxonomy member as e, so that
// errors.Is(someWrappedError, webauthn.ErrBadSignature) holds even after
// Wrap has copied the sentinel into a new *Error carrying a cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.canonical() == t.canonical()
}

// Wrap returns a copy of e with err attached as the underlying cause. The
// result still satisfies errors.Is(result, e).
func (e *Error) Wrap(err error) *Error {
	return &Error{Msg: e.Msg, Wrapped: err, sentinel: e.canonical()}
}

// The flat error taxonomy every ceremony validator reports through. Every
// failure surfaces as one of these, never as a bare platform error.
var (
	ErrBadChallenge                = &Error{Msg: "webauthn: challenge does not match"}
	ErrBadOrigin                   = &Error{Msg: "webauthn: origin is not acceptable"}
	ErrBadRpID                     = &Error{Msg: "webauthn: rpIdHash does not match expected rpId"}
	ErrBadSignature                = &Error{Msg: "webauthn: signature verification failed"}
	ErrBadStatus                   = &Error{Msg: "webauthn: authenticator metadata carries a disallowed status"}
	ErrInconsistentClientDataType  = &Error{Msg: "webauthn: clientData.type does not match the ceremony"}
	ErrCrossOrigin                 = &Error{Msg: "webauthn: cross-origin request not permitted"}
	ErrTokenBindingException       = &Error{Msg: "webauthn: token binding validation failed"}
	ErrUserNotPresent              = &Error{Msg: "webauthn: user presence flag not set"}
	ErrUserNotVerified             = &Error{Msg: "webauthn: user verification flag not set"}
	ErrNotAllowedCredentialID      = &Error{Msg: "webauthn: credential id is not in the allow-list"}
	ErrNotAllowedAlgorithm         = &Error{Msg: "webauthn: credential public key algorithm is not acceptable"}
	ErrBadAttestationStatement     = &Error{Msg: "webauthn: attestation statement is invalid"}
	ErrCertificateException        = &Error{Msg: "webauthn: certificate path validation failed"}
	ErrTrustAnchorNotFound         = &Error{Msg: "webauthn: no trust anchor found for this attestation"}
	ErrMaliciousCounterValue       = &Error{Msg: "webauthn: signature counter did not increase, possible cloned authenticator"}
	ErrConstraintViolation         = &Error{Msg: "webauthn: structural invariant violated"}
)
