package webauthn

import (
	"crypto/sha256"
	"fmt"

	"github.com/coreauthn/webauthn/attestation"
	"github.com/coreauthn/webauthn/cose"
	"github.com/coreauthn/webauthn/trustanchor"
)

// RegistrationData is the immutable input bundle a RegistrationValidator
// operates on: the raw bytes the signature was
// computed over, the structures decoded from them, and the client
// extension outputs reported alongside the credential.
type RegistrationData struct {
	RawClientDataJSON      []byte
	ClientData             *CollectedClientData
	RawAuthenticatorData   []byte
	AuthenticatorData      *AuthenticatorData
	AttestationFormat      attestation.Format
	RawAttestationStatement []byte
	ClientExtensionOutputs AuthenticationExtensionsClientOutputs
}

// DecodeRegistrationData decodes the wire structures a registration
// response carries: clientDataJSON, the CBOR attestation object, and the
// client extension outputs the client reported.
func DecodeRegistrationData(clientDataJSON, attestationObject []byte, clientExtensionOutputs AuthenticationExtensionsClientOutputs) (*RegistrationData, error) {
	clientData, err := ParseClientData(clientDataJSON)
	if err != nil {
		return nil, err
	}

	obj, err := attestation.DecodeObject(attestationObject)
	if err != nil {
		return nil, ErrConstraintViolation.Wrap(err)
	}

	authData, err := DecodeAuthenticatorData(obj.AuthData)
	if err != nil {
		return nil, err
	}

	return &RegistrationData{
		RawClientDataJSON:       clientDataJSON,
		ClientData:              clientData,
		RawAuthenticatorData:    obj.AuthData,
		AuthenticatorData:       authData,
		AttestationFormat:       obj.Fmt,
		RawAttestationStatement: obj.AttStmt,
		ClientExtensionOutputs:  clientExtensionOutputs,
	}, nil
}

// RegistrationParameters configures a single registration ceremony.
type RegistrationParameters struct {
	ServerProperty              ServerProperty
	UserPresenceRequired        bool
	UserVerificationRequired    bool
	PubKeyCredParams            []cose.Algorithm // empty means accept any algorithm
	RequestedClientExtensions   AuthenticationExtensionsClientInputs
}

// RegistrationValidatorConfig builds an immutable RegistrationValidator.
// Following spec.md §9's "global mutable configuration" redesign note,
// every field here is write-only until Build is called; the returned
// RegistrationValidator is safe for concurrent use from many request
// handlers.
type RegistrationValidatorConfig struct {
	originValidator        OriginValidator
	trustAnchorValidator   *trustanchor.Validator
	selfAttestationAllowed bool
	extraExtensions        []ExtensionIdentifier
	customValidators       []CustomRegistrationValidator
}

// NewRegistrationValidatorConfig returns an empty builder.
func NewRegistrationValidatorConfig() *RegistrationValidatorConfig {
	return &RegistrationValidatorConfig{}
}

// WithOriginValidator installs a non-default origin acceptance policy.
func (c *RegistrationValidatorConfig) WithOriginValidator(v OriginValidator) *RegistrationValidatorConfig {
	c.originValidator = v
	return c
}

// WithTrustAnchorValidator installs the certificate-path trustworthiness
// validator used for Basic/AttCA/AnonCA attestations. Required unless every
// accepted attestation format returns Self or None.
func (c *RegistrationValidatorConfig) WithTrustAnchorValidator(v *trustanchor.Validator) *RegistrationValidatorConfig {
	c.trustAnchorValidator = v
	return c
}

// WithSelfAttestationAllowed controls whether Self-type attestations are
// accepted. The default, matching spec.md §4.5, is to reject them.
func (c *RegistrationValidatorConfig) WithSelfAttestationAllowed(allowed bool) *RegistrationValidatorConfig {
	c.selfAttestationAllowed = allowed
	return c
}

// WithCustomValidator appends a custom registration validator, run in
// insertion order after every built-in check has passed.
func (c *RegistrationValidatorConfig) WithCustomValidator(v CustomRegistrationValidator) *RegistrationValidatorConfig {
	c.customValidators = append(c.customValidators, v)
	return c
}

// WithExtension registers an additional extension identifier as acceptable
// in authenticator and client extension outputs, beyond this package's
// default set (ExtensionAppID, ExtensionCredProps, ExtensionHMACSecret,
// ExtensionLargeBlob).
func (c *RegistrationValidatorConfig) WithExtension(id ExtensionIdentifier) *RegistrationValidatorConfig {
	c.extraExtensions = append(c.extraExtensions, id)
	return c
}

// Build returns an immutable RegistrationValidator from the accumulated
// configuration.
func (c *RegistrationValidatorConfig) Build() *RegistrationValidator {
	customValidators := make([]CustomRegistrationValidator, len(c.customValidators))
	copy(customValidators, c.customValidators)
	return &RegistrationValidator{
		originValidator:        c.originValidator,
		trustAnchorValidator:   c.trustAnchorValidator,
		selfAttestationAllowed: c.selfAttestationAllowed,
		extensions:             newExtensionRegistry(c.extraExtensions),
		customValidators:       customValidators,
	}
}

// RegistrationValidator orchestrates the registration ceremony. Construct
// one via RegistrationValidatorConfig; it is immutable and safe for
// concurrent use.
type RegistrationValidator struct {
	originValidator        OriginValidator
	trustAnchorValidator   *trustanchor.Validator
	selfAttestationAllowed bool
	extensions             map[ExtensionIdentifier]bool
	customValidators       []CustomRegistrationValidator
}

// Validate runs the registration ceremony's ordered checks against data and
// params. Any failing check aborts immediately with a typed Error; there is
// no partial success.
func (v *RegistrationValidator) Validate(data *RegistrationData, params RegistrationParameters) (attestation.Type, error) {
	cd := data.ClientData

	// WebAuthn §7.1 steps 3-7: clientData.type, challenge, origin, and
	// token binding are prerequisites the attestation-specific checks below
	// assume already hold.
	if cd.Type != ClientDataTypeCreate {
		return attestation.TypeNone, ErrInconsistentClientDataType
	}
	if err := compareChallenge(cd, params.ServerProperty.Challenge); err != nil {
		return attestation.TypeNone, err
	}
	if err := validateOrigin(cd, params.ServerProperty.Origins, v.originValidator); err != nil {
		return attestation.TypeNone, err
	}
	if err := validateTokenBinding(cd, params.ServerProperty.TokenBindingID); err != nil {
		return attestation.TypeNone, err
	}

	authData := data.AuthenticatorData

	// 1. attestedCredentialData must be present with a non-null public key.
	if authData.AttestedCredentialData == nil || authData.AttestedCredentialData.CredentialKey == nil {
		return attestation.TypeNone, ErrConstraintViolation.Wrap(fmt.Errorf("attestedCredentialData or its public key is absent"))
	}

	// 2. rpIdHash == SHA-256(rpId).
	expectedHash := sha256.Sum256([]byte(params.ServerProperty.RPID))
	if authData.RPIDHash != expectedHash {
		return attestation.TypeNone, ErrBadRpID
	}

	// 3. UP/UV flag policy.
	if params.UserPresenceRequired && !authData.UserPresent {
		return attestation.TypeNone, ErrUserNotPresent
	}
	if params.UserVerificationRequired && !authData.UserVerified {
		return attestation.TypeNone, ErrUserNotVerified
	}

	// 4. COSE key algorithm must be among the acceptable set.
	if err := checkAllowedAlgorithm(authData.AttestedCredentialData.CredentialKey.Alg, params.PubKeyCredParams); err != nil {
		return attestation.TypeNone, err
	}

	// 5. Authenticator extension outputs and client extension outputs must
	// use only registered identifiers; client outputs must have been
	// requested.
	if authData.Extensions != nil {
		if err := validateAuthenticatorExtensionOutputs(v.extensions, authData.Extensions); err != nil {
			return attestation.TypeNone, err
		}
	}
	if err := validateClientExtensionOutputs(v.extensions, params.RequestedClientExtensions, data.ClientExtensionOutputs); err != nil {
		return attestation.TypeNone, err
	}

	// 6. Dispatch the attestation statement format's verifier.
	clientDataHash := sha256.Sum256(data.RawClientDataJSON)
	out, err := attestation.Dispatch(data.AttestationFormat, &attestation.Input{
		RawAuthData:    data.RawAuthenticatorData,
		ClientDataHash: clientDataHash,
		RawStatement:   data.RawAttestationStatement,
		AAGUID:         authData.AttestedCredentialData.AAGUID,
		CredentialID:   authData.AttestedCredentialData.CredentialID,
		CredentialKey:  authData.AttestedCredentialData.CredentialKey,
		RPID:           params.ServerProperty.RPID,
	})
	if err != nil {
		return attestation.TypeNone, ErrBadAttestationStatement.Wrap(err)
	}

	// 7. Assess attestation trustworthiness.
	switch out.Type {
	case attestation.TypeBasic, attestation.TypeAttCA, attestation.TypeAnonCA:
		if v.trustAnchorValidator == nil {
			return attestation.TypeNone, ErrTrustAnchorNotFound.Wrap(fmt.Errorf("no trust anchor validator configured"))
		}
		if len(out.TrustPath) == 0 {
			return attestation.TypeNone, ErrCertificateException.Wrap(fmt.Errorf("attestation produced no trust path"))
		}
		ski := trustanchor.SubjectKeyIdentifierOf(out.TrustPath[len(out.TrustPath)-1])
		aaguid := authData.AttestedCredentialData.AAGUID
		if _, err := v.trustAnchorValidator.Validate(out.TrustPath, aaguid, true, ski); err != nil {
			if err == trustanchor.ErrNotFound {
				return attestation.TypeNone, ErrTrustAnchorNotFound
			}
			return attestation.TypeNone, ErrCertificateException.Wrap(err)
		}
	case attestation.TypeSelf:
		if !v.selfAttestationAllowed {
			return attestation.TypeNone, ErrBadAttestationStatement.Wrap(fmt.Errorf("self attestation is not permitted by policy"))
		}
	case attestation.TypeNone:
		// No trust assessment required.
	}

	// 8. Custom validators, in insertion order.
	for _, custom := range v.customValidators {
		if err := custom(data); err != nil {
			return attestation.TypeNone, err
		}
	}

	return out.Type, nil
}

func checkAllowedAlgorithm(alg cose.Algorithm, allowed []cose.Algorithm) error {
	if len(allowed) == 0 {
		return nil
	}
	for _, a := range allowed {
		if a == alg {
			return nil
		}
	}
	return ErrNotAllowedAlgorithm
}
