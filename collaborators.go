package webauthn

import "github.com/coreauthn/webauthn/cose"

// RelyingParty describes the Relying Party for credential-creation and
// credential-request option generation, following the teacher's
// RelyingParty collaborator shape.
type RelyingParty interface {
	ID() string
	Name() string
	Icon() string
}

// Credential is a previously registered credential, as the caller's storage
// layer represents it, sufficient to populate an allow-list or
// exclude-list.
type Credential interface {
	CredentialID() []byte
	Transports() []AuthenticatorTransport
}

// User describes the account a credential is being registered to.
type User interface {
	ID() []byte
	Name() string
	DisplayName() string
	Icon() string
	Credentials() []Credential
}

// Authenticator is the caller-side record of a previously registered
// credential, consulted (and, on successful authentication, mutated in
// place) by AuthenticationValidator.
type Authenticator struct {
	CredentialID    []byte
	AAGUID          [16]byte
	CredentialKey   *cose.Key
	SignCount       uint32
	Transports      []AuthenticatorTransport
	CloneWarning    bool
}

// CredentialStore resolves a previously registered Authenticator by
// credential id. The core never calls this itself (per the external
// interfaces list); callers resolve the credential before invoking
// AuthenticationValidator.
type CredentialStore interface {
	FindByID(id []byte) (*Authenticator, error)
}

// OriginValidator is an injectable replacement for the default exact-match
// origin check. It receives the client-reported origin and reports whether
// it is acceptable.
type OriginValidator func(origin string) bool

// CustomRegistrationValidator runs after every built-in registration check
// has passed, in insertion order, and may reject the ceremony for
// RP-specific reasons.
type CustomRegistrationValidator func(*RegistrationData) error

// CustomAuthenticationValidator runs after every built-in authentication
// check has passed, in insertion order.
type CustomAuthenticationValidator func(*AuthenticationData) error

// MaliciousCounterValueHandler is invoked when a presented signature
// counter does not represent forward progress over the stored value,
// suggesting the authenticator (or its key material) has been cloned.
type MaliciousCounterValueHandler func(stored, presented uint32) error

// RejectOnMaliciousCounter is the default MaliciousCounterValueHandler: it
// aborts the ceremony with ErrMaliciousCounterValue.
func RejectOnMaliciousCounter(stored, presented uint32) error {
	return ErrMaliciousCounterValue
}

// IgnoreMaliciousCounter downgrades a non-increasing counter to a no-op,
// for Relying Parties that only log clone suspicion rather than blocking
// the ceremony.
func IgnoreMaliciousCounter(stored, presented uint32) error {
	return nil
}
