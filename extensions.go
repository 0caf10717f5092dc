package webauthn

import "fmt"

// AuthenticationExtensionsClientInputs carries the client extension inputs
// requested via the extensions member of the credential creation or
// request options, WebAuthn Level 2 §9.
type AuthenticationExtensionsClientInputs map[string]interface{}

// AuthenticationExtensionsClientOutputs carries the client extension
// outputs returned alongside a credential, WebAuthn Level 2 §9.
type AuthenticationExtensionsClientOutputs map[string]interface{}

// ExtensionIdentifier names a WebAuthn extension.
type ExtensionIdentifier string

// Extensions recognized by this validator by default. Any identifier
// outside a validator's registered set, appearing in either the client
// extension outputs or the authenticator extension outputs carried in
// AuthenticatorData, is a ConstraintViolation: unknown extensions are never
// silently accepted. A Relying Party that supports an extension beyond this
// default set registers it on its ValidatorConfig via WithExtension, rather
// than through package-level mutable state, so that a RegistrationValidator
// or AuthenticationValidator remains immutable and safe for concurrent use
// once built (spec.md §9's "global mutable configuration" redesign note).
const (
	ExtensionAppID      ExtensionIdentifier = "appid"
	ExtensionCredProps  ExtensionIdentifier = "credProps"
	ExtensionHMACSecret ExtensionIdentifier = "hmac-secret"
	ExtensionLargeBlob  ExtensionIdentifier = "largeBlob"
)

// defaultExtensions is the base registry every ValidatorConfig starts from.
// It is never mutated after init; WithExtension layers additions onto a copy
// held by the config being built, never onto this map.
var defaultExtensions = map[ExtensionIdentifier]bool{
	ExtensionAppID:      true,
	ExtensionCredProps:  true,
	ExtensionHMACSecret: true,
	ExtensionLargeBlob:  true,
}

// newExtensionRegistry returns a fresh copy of defaultExtensions with extra
// identifiers added, for a ValidatorConfig's Build to hand to its validator.
func newExtensionRegistry(extra []ExtensionIdentifier) map[ExtensionIdentifier]bool {
	registry := make(map[ExtensionIdentifier]bool, len(defaultExtensions)+len(extra))
	for id := range defaultExtensions {
		registry[id] = true
	}
	for _, id := range extra {
		registry[id] = true
	}
	return registry
}

// validateAuthenticatorExtensionOutputs rejects any authenticator extension
// output identifier that is not registered, per spec §4.1 step 5 / §4.2
// step 9.
func validateAuthenticatorExtensionOutputs(registered map[ExtensionIdentifier]bool, outputs map[string]interface{}) error {
	for id := range outputs {
		if !registered[ExtensionIdentifier(id)] {
			return ErrConstraintViolation.Wrap(fmt.Errorf("unregistered authenticator extension output %q", id))
		}
	}
	return nil
}

// validateClientExtensionOutputs rejects any client extension output
// identifier that is either unregistered or was not present among the
// extension inputs requested at the start of the ceremony.
func validateClientExtensionOutputs(registered map[ExtensionIdentifier]bool, requested AuthenticationExtensionsClientInputs, outputs AuthenticationExtensionsClientOutputs) error {
	for id := range outputs {
		if !registered[ExtensionIdentifier(id)] {
			return ErrConstraintViolation.Wrap(fmt.Errorf("unregistered client extension output %q", id))
		}
		if _, requestedID := requested[id]; !requestedID {
			return ErrConstraintViolation.Wrap(fmt.Errorf("client extension output %q was not requested", id))
		}
	}
	return nil
}

// EffectiveRPID implements the appid extension, WebAuthn Level 2 §10.1: if
// the client used the legacy FIDO AppID instead of the RP ID during
// authentication, and reports so via the appid extension output, the
// rpIdHash check must be run against SHA-256(appID) instead of
// SHA-256(rpID).
func EffectiveRPID(rpID string, requested AuthenticationExtensionsClientInputs, outputs AuthenticationExtensionsClientOutputs) string {
	appID, hasInput := requested[string(ExtensionAppID)]
	if !hasInput {
		return rpID
	}
	used, hasOutput := outputs[string(ExtensionAppID)]
	if !hasOutput {
		return rpID
	}
	if usedBool, ok := used.(bool); ok && usedBool {
		if appIDStr, ok := appID.(string); ok {
			return appIDStr
		}
	}
	return rpID
}
