package webauthn

import (
	"crypto/rand"
	"fmt"

	"github.com/coreauthn/webauthn/cose"
)

// ChallengeLength is the size in bytes of a generated challenge. The
// WebAuthn specification requires at least 16 bytes of entropy.
var ChallengeLength = 32

// GenerateChallenge returns a fresh cryptographically random challenge of
// ChallengeLength bytes.
func GenerateChallenge() ([]byte, error) {
	challenge := make([]byte, ChallengeLength)
	n, err := rand.Read(challenge)
	if err != nil {
		return nil, ErrConstraintViolation.Wrap(fmt.Errorf("reading random challenge: %w", err))
	}
	if n != ChallengeLength {
		return nil, ErrConstraintViolation.Wrap(fmt.Errorf("read %d random bytes, needed %d", n, ChallengeLength))
	}
	return challenge, nil
}

// PublicKeyCredentialType names a credential type. "public-key" is the only
// value defined by WebAuthn Level 2.
type PublicKeyCredentialType string

// PublicKeyCredentialTypePublicKey is the sole defined credential type.
const PublicKeyCredentialTypePublicKey PublicKeyCredentialType = "public-key"

// AuthenticatorTransport hints at how a client might reach an
// authenticator, WebAuthn Level 2 §5.10.4.
type AuthenticatorTransport string

// Transport hint values.
const (
	TransportUSB      AuthenticatorTransport = "usb"
	TransportNFC      AuthenticatorTransport = "nfc"
	TransportBLE      AuthenticatorTransport = "ble"
	TransportInternal AuthenticatorTransport = "internal"
	TransportHybrid   AuthenticatorTransport = "hybrid"
)

// PublicKeyCredentialParameters pairs a credential type with an acceptable
// COSE algorithm, WebAuthn Level 2 §5.3.
type PublicKeyCredentialParameters struct {
	Type PublicKeyCredentialType `json:"type"`
	Alg  cose.Algorithm          `json:"alg"`
}

// PublicKeyCredentialDescriptor identifies a credential as an input to
// create() or get(), WebAuthn Level 2 §5.10.3.
type PublicKeyCredentialDescriptor struct {
	Type       PublicKeyCredentialType  `json:"type"`
	ID         []byte                   `json:"id"`
	Transports []AuthenticatorTransport `json:"transports,omitempty"`
}

// AuthenticatorAttachment constrains which authenticator modality the
// client should use, WebAuthn Level 2 §5.4.5.
type AuthenticatorAttachment string

// Attachment values.
const (
	AttachmentPlatform      AuthenticatorAttachment = "platform"
	AttachmentCrossPlatform AuthenticatorAttachment = "cross-platform"
)

// UserVerificationRequirement is the Relying Party's user verification
// policy, WebAuthn Level 2 §5.10.6.
type UserVerificationRequirement string

// User verification requirement values.
const (
	VerificationRequired    UserVerificationRequirement = "required"
	VerificationPreferred   UserVerificationRequirement = "preferred"
	VerificationDiscouraged UserVerificationRequirement = "discouraged"
)

// AuthenticatorSelectionCriteria expresses the Relying Party's preferences
// regarding authenticator attributes, WebAuthn Level 2 §5.4.4.
type AuthenticatorSelectionCriteria struct {
	AuthenticatorAttachment AuthenticatorAttachment     `json:"authenticatorAttachment,omitempty"`
	RequireResidentKey      bool                        `json:"requireResidentKey,omitempty"`
	UserVerification        UserVerificationRequirement `json:"userVerification,omitempty"`
}

// AttestationConveyancePreference is the Relying Party's preference
// regarding attestation conveyance, WebAuthn Level 2 §5.4.6.
type AttestationConveyancePreference string

// Attestation conveyance preference values.
const (
	AttestationNone     AttestationConveyancePreference = "none"
	AttestationIndirect AttestationConveyancePreference = "indirect"
	AttestationDirect   AttestationConveyancePreference = "direct"
)

// PublicKeyCredentialRpEntity supplies additional Relying Party attributes
// for credential creation, WebAuthn Level 2 §5.4.2.
type PublicKeyCredentialRpEntity struct {
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
	ID   string `json:"id"`
}

// PublicKeyCredentialUserEntity supplies additional account attributes for
// credential creation, WebAuthn Level 2 §5.4.3.
type PublicKeyCredentialUserEntity struct {
	Name        string `json:"name"`
	Icon        string `json:"icon,omitempty"`
	ID          []byte `json:"id"`
	DisplayName string `json:"displayName"`
}

// PublicKeyCredentialCreationOptions is the registration ceremony's
// options object, WebAuthn Level 2 §5.4.
type PublicKeyCredentialCreationOptions struct {
	RP                     PublicKeyCredentialRpEntity      `json:"rp"`
	User                   PublicKeyCredentialUserEntity    `json:"user"`
	Challenge              []byte                           `json:"challenge"`
	PubKeyCredParams       []PublicKeyCredentialParameters  `json:"pubKeyCredParams"`
	Timeout                uint                             `json:"timeout,omitempty"`
	ExcludeCredentials     []PublicKeyCredentialDescriptor  `json:"excludeCredentials,omitempty"`
	AuthenticatorSelection *AuthenticatorSelectionCriteria  `json:"authenticatorSelection,omitempty"`
	Attestation            AttestationConveyancePreference  `json:"attestation,omitempty"`
	Extensions             AuthenticationExtensionsClientInputs `json:"extensions,omitempty"`
}

// PublicKeyCredentialRequestOptions is the authentication ceremony's
// options object, WebAuthn Level 2 §5.5.
type PublicKeyCredentialRequestOptions struct {
	Challenge        []byte                                `json:"challenge"`
	Timeout          uint                                  `json:"timeout,omitempty"`
	RPID             string                                `json:"rpId,omitempty"`
	AllowCredentials []PublicKeyCredentialDescriptor        `json:"allowCredentials,omitempty"`
	UserVerification UserVerificationRequirement            `json:"userVerification,omitempty"`
	Extensions       AuthenticationExtensionsClientInputs   `json:"extensions,omitempty"`
}

// SupportedPublicKeyCredentialParameters enumerates credential parameters
// for the supplied set of acceptable COSE algorithms. An empty algs list
// defaults to ES256, the most broadly implemented WebAuthn algorithm.
func SupportedPublicKeyCredentialParameters(algs []cose.Algorithm) []PublicKeyCredentialParameters {
	if len(algs) == 0 {
		algs = []cose.Algorithm{cose.AlgorithmES256}
	}
	params := make([]PublicKeyCredentialParameters, len(algs))
	for i, alg := range algs {
		params[i] = PublicKeyCredentialParameters{Type: PublicKeyCredentialTypePublicKey, Alg: alg}
	}
	return params
}

// CreationOption adjusts a PublicKeyCredentialCreationOptions built by
// BeginRegistration.
type CreationOption func(*PublicKeyCredentialCreationOptions)

// WithTimeout sets the creation options' timeout hint.
func WithTimeout(timeout uint) CreationOption {
	return func(co *PublicKeyCredentialCreationOptions) { co.Timeout = timeout }
}

// WithExcludeCredentials sets the credentials to exclude from creation.
func WithExcludeCredentials(creds []PublicKeyCredentialDescriptor) CreationOption {
	return func(co *PublicKeyCredentialCreationOptions) { co.ExcludeCredentials = creds }
}

// WithAuthenticatorSelection sets authenticator selection criteria.
func WithAuthenticatorSelection(criteria AuthenticatorSelectionCriteria) CreationOption {
	return func(co *PublicKeyCredentialCreationOptions) { co.AuthenticatorSelection = &criteria }
}

// WithAttestation sets the attestation conveyance preference.
func WithAttestation(pref AttestationConveyancePreference) CreationOption {
	return func(co *PublicKeyCredentialCreationOptions) { co.Attestation = pref }
}

// WithCreationExtensions sets client extension inputs for registration.
func WithCreationExtensions(exts AuthenticationExtensionsClientInputs) CreationOption {
	return func(co *PublicKeyCredentialCreationOptions) { co.Extensions = exts }
}

// WithCredentialParameters overrides the default (ES256-only) credential
// parameters list.
func WithCredentialParameters(params []PublicKeyCredentialParameters) CreationOption {
	return func(co *PublicKeyCredentialCreationOptions) { co.PubKeyCredParams = params }
}

// BeginRegistration starts the registration ceremony by building a
// credential creation options object to send to the client.
func BeginRegistration(rp RelyingParty, user User, opts ...CreationOption) (*PublicKeyCredentialCreationOptions, error) {
	challenge, err := GenerateChallenge()
	if err != nil {
		return nil, err
	}

	creationOptions := &PublicKeyCredentialCreationOptions{
		RP: PublicKeyCredentialRpEntity{
			Name: rp.Name(),
			Icon: rp.Icon(),
			ID:   rp.ID(),
		},
		User: PublicKeyCredentialUserEntity{
			Name:        user.Name(),
			Icon:        user.Icon(),
			ID:          user.ID(),
			DisplayName: user.DisplayName(),
		},
		Challenge:        challenge,
		PubKeyCredParams: SupportedPublicKeyCredentialParameters(nil),
	}

	for _, opt := range opts {
		opt(creationOptions)
	}

	return creationOptions, nil
}

// RequestOption adjusts a PublicKeyCredentialRequestOptions built by
// BeginAuthentication.
type RequestOption func(*PublicKeyCredentialRequestOptions)

// WithRequestTimeout sets the request options' timeout hint.
func WithRequestTimeout(timeout uint) RequestOption {
	return func(ro *PublicKeyCredentialRequestOptions) { ro.Timeout = timeout }
}

// WithRPID sets the request options' rpId.
func WithRPID(rpID string) RequestOption {
	return func(ro *PublicKeyCredentialRequestOptions) { ro.RPID = rpID }
}

// WithAllowCredentials restricts the ceremony to the given credentials.
func WithAllowCredentials(creds []PublicKeyCredentialDescriptor) RequestOption {
	return func(ro *PublicKeyCredentialRequestOptions) { ro.AllowCredentials = creds }
}

// WithUserVerification sets the request options' user verification policy.
func WithUserVerification(req UserVerificationRequirement) RequestOption {
	return func(ro *PublicKeyCredentialRequestOptions) { ro.UserVerification = req }
}

// WithRequestExtensions sets client extension inputs for authentication.
func WithRequestExtensions(exts AuthenticationExtensionsClientInputs) RequestOption {
	return func(ro *PublicKeyCredentialRequestOptions) { ro.Extensions = exts }
}

// BeginAuthentication starts the authentication ceremony by building a
// credential request options object to send to the client.
func BeginAuthentication(opts ...RequestOption) (*PublicKeyCredentialRequestOptions, error) {
	challenge, err := GenerateChallenge()
	if err != nil {
		return nil, err
	}

	requestOptions := &PublicKeyCredentialRequestOptions{Challenge: challenge}
	for _, opt := range opts {
		opt(requestOptions)
	}
	return requestOptions, nil
}
