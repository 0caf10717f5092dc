package webauthn

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"github.com/coreauthn/webauthn/cose"
)

// AuthenticationData is the immutable input bundle an
// AuthenticationValidator operates on.
type AuthenticationData struct {
	RawClientDataJSON      []byte
	ClientData             *CollectedClientData
	RawAuthenticatorData   []byte
	AuthenticatorData      *AuthenticatorData
	Signature              []byte
	CredentialID           []byte
	UserHandle             []byte
	ClientExtensionOutputs AuthenticationExtensionsClientOutputs
}

// DecodeAuthenticationData decodes the wire structures an authentication
// response carries.
func DecodeAuthenticationData(clientDataJSON, rawAuthenticatorData, signature, credentialID, userHandle []byte, clientExtensionOutputs AuthenticationExtensionsClientOutputs) (*AuthenticationData, error) {
	clientData, err := ParseClientData(clientDataJSON)
	if err != nil {
		return nil, err
	}
	authData, err := DecodeAuthenticatorData(rawAuthenticatorData)
	if err != nil {
		return nil, err
	}
	return &AuthenticationData{
		RawClientDataJSON:      clientDataJSON,
		ClientData:             clientData,
		RawAuthenticatorData:   rawAuthenticatorData,
		AuthenticatorData:      authData,
		Signature:              signature,
		CredentialID:           credentialID,
		UserHandle:             userHandle,
		ClientExtensionOutputs: clientExtensionOutputs,
	}, nil
}

// AuthenticationParameters configures a single authentication ceremony.
type AuthenticationParameters struct {
	ServerProperty            ServerProperty
	AllowCredentials          []PublicKeyCredentialDescriptor // empty means any registered credential is acceptable
	CrossOriginAllowed        bool
	UserPresenceRequired      bool
	UserVerificationRequired  bool
	RequestedClientExtensions AuthenticationExtensionsClientInputs
}

// AuthenticationValidatorConfig builds an immutable AuthenticationValidator.
type AuthenticationValidatorConfig struct {
	originValidator              OriginValidator
	maliciousCounterValueHandler MaliciousCounterValueHandler
	extraExtensions              []ExtensionIdentifier
	customValidators             []CustomAuthenticationValidator
}

// NewAuthenticationValidatorConfig returns an empty builder.
func NewAuthenticationValidatorConfig() *AuthenticationValidatorConfig {
	return &AuthenticationValidatorConfig{}
}

// WithOriginValidator installs a non-default origin acceptance policy.
func (c *AuthenticationValidatorConfig) WithOriginValidator(v OriginValidator) *AuthenticationValidatorConfig {
	c.originValidator = v
	return c
}

// WithMaliciousCounterValueHandler installs a non-default response to a
// signature counter that failed to advance. The default is
// RejectOnMaliciousCounter.
func (c *AuthenticationValidatorConfig) WithMaliciousCounterValueHandler(h MaliciousCounterValueHandler) *AuthenticationValidatorConfig {
	c.maliciousCounterValueHandler = h
	return c
}

// WithCustomValidator appends a custom authentication validator, run in
// insertion order after every built-in check has passed.
func (c *AuthenticationValidatorConfig) WithCustomValidator(v CustomAuthenticationValidator) *AuthenticationValidatorConfig {
	c.customValidators = append(c.customValidators, v)
	return c
}

// WithExtension registers an additional extension identifier as acceptable
// in authenticator and client extension outputs, beyond this package's
// default set (ExtensionAppID, ExtensionCredProps, ExtensionHMACSecret,
// ExtensionLargeBlob).
func (c *AuthenticationValidatorConfig) WithExtension(id ExtensionIdentifier) *AuthenticationValidatorConfig {
	c.extraExtensions = append(c.extraExtensions, id)
	return c
}

// Build returns an immutable AuthenticationValidator from the accumulated
// configuration.
func (c *AuthenticationValidatorConfig) Build() *AuthenticationValidator {
	handler := c.maliciousCounterValueHandler
	if handler == nil {
		handler = RejectOnMaliciousCounter
	}
	customValidators := make([]CustomAuthenticationValidator, len(c.customValidators))
	copy(customValidators, c.customValidators)
	return &AuthenticationValidator{
		originValidator:              c.originValidator,
		maliciousCounterValueHandler: handler,
		extensions:                   newExtensionRegistry(c.extraExtensions),
		customValidators:             customValidators,
	}
}

// AuthenticationValidator orchestrates the authentication ceremony.
// Construct one via AuthenticationValidatorConfig; it is immutable and safe
// for concurrent use.
type AuthenticationValidator struct {
	originValidator              OriginValidator
	maliciousCounterValueHandler MaliciousCounterValueHandler
	extensions                   map[ExtensionIdentifier]bool
	customValidators             []CustomAuthenticationValidator
}

// Validate runs the authentication ceremony's ordered checks against data,
// params, and the caller-resolved authenticator record. On success it
// updates authenticator.SignCount in place; the caller owns persisting that
// mutation.
func (v *AuthenticationValidator) Validate(data *AuthenticationData, params AuthenticationParameters, authenticator *Authenticator) error {
	// 1. If allowCredentials was given, credentialId must be one of them.
	if len(params.AllowCredentials) > 0 {
		found := false
		for _, c := range params.AllowCredentials {
			if bytes.Equal(c.ID, data.CredentialID) {
				found = true
				break
			}
		}
		if !found {
			return ErrNotAllowedCredentialID
		}
	}

	cd := data.ClientData

	// 2. clientData.type == "webauthn.get".
	if cd.Type != ClientDataTypeGet {
		return ErrInconsistentClientDataType
	}

	// 3. Challenge equality.
	if err := compareChallenge(cd, params.ServerProperty.Challenge); err != nil {
		return err
	}

	// 4. Origin validation.
	if err := validateOrigin(cd, params.ServerProperty.Origins, v.originValidator); err != nil {
		return err
	}

	// 5. Cross-origin policy.
	if cd.CrossOrigin && !params.CrossOriginAllowed {
		return ErrCrossOrigin
	}

	// 6. Token binding.
	if err := validateTokenBinding(cd, params.ServerProperty.TokenBindingID); err != nil {
		return err
	}

	authData := data.AuthenticatorData

	// 7. rpIdHash equality, honoring the appid extension override.
	effectiveRPID := EffectiveRPID(params.ServerProperty.RPID, params.RequestedClientExtensions, data.ClientExtensionOutputs)
	expectedHash := sha256.Sum256([]byte(effectiveRPID))
	if authData.RPIDHash != expectedHash {
		return ErrBadRpID
	}

	// 8. UP/UV flag policy.
	if params.UserPresenceRequired && !authData.UserPresent {
		return ErrUserNotPresent
	}
	if params.UserVerificationRequired && !authData.UserVerified {
		return ErrUserNotVerified
	}

	// 9. attestedCredentialData must be absent on an assertion; extension
	// outputs must use only registered identifiers.
	if authData.AttestedCredentialData != nil {
		return ErrConstraintViolation.Wrap(fmt.Errorf("attestedCredentialData present in assertion authenticator data"))
	}
	if authData.Extensions != nil {
		if err := validateAuthenticatorExtensionOutputs(v.extensions, authData.Extensions); err != nil {
			return err
		}
	}
	if err := validateClientExtensionOutputs(v.extensions, params.RequestedClientExtensions, data.ClientExtensionOutputs); err != nil {
		return err
	}

	// 10. Assertion signature verification.
	if authenticator.CredentialKey == nil {
		return ErrConstraintViolation.Wrap(fmt.Errorf("stored authenticator has no credential key"))
	}
	pub, err := authenticator.CredentialKey.PublicKey()
	if err != nil {
		return ErrBadSignature.Wrap(err)
	}
	clientDataHash := sha256.Sum256(data.RawClientDataJSON)
	signedData := make([]byte, 0, len(data.RawAuthenticatorData)+len(clientDataHash))
	signedData = append(signedData, data.RawAuthenticatorData...)
	signedData = append(signedData, clientDataHash[:]...)
	if err := cose.VerifySignature(pub, authenticator.CredentialKey.Alg, signedData, data.Signature); err != nil {
		return ErrBadSignature.Wrap(err)
	}

	// 11. Signature counter anti-clone check.
	stored, presented := authenticator.SignCount, authData.SignCount
	switch {
	case stored == 0 && presented == 0:
		// Authenticator does not maintain a counter.
	case presented > stored:
		authenticator.SignCount = presented
		authenticator.CloneWarning = false
	default:
		authenticator.CloneWarning = true
		if err := v.maliciousCounterValueHandler(stored, presented); err != nil {
			return err
		}
	}

	// 12. Custom validators, in insertion order.
	for _, custom := range v.customValidators {
		if err := custom(data); err != nil {
			return err
		}
	}

	return nil
}
