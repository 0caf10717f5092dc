package webauthn

import "testing"

func TestValidateAuthenticatorExtensionOutputsRejectsUnregistered(t *testing.T) {
	registry := newExtensionRegistry(nil)
	outputs := map[string]interface{}{"totally-made-up": true}
	if err := validateAuthenticatorExtensionOutputs(registry, outputs); err == nil {
		t.Fatalf("expected rejection of unregistered extension")
	}
}

func TestValidateAuthenticatorExtensionOutputsAcceptsRegistered(t *testing.T) {
	registry := newExtensionRegistry(nil)
	outputs := map[string]interface{}{string(ExtensionHMACSecret): true}
	if err := validateAuthenticatorExtensionOutputs(registry, outputs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateAuthenticatorExtensionOutputsAcceptsCustomRegistered(t *testing.T) {
	custom := ExtensionIdentifier("com.example.custom")
	registry := newExtensionRegistry([]ExtensionIdentifier{custom})
	outputs := map[string]interface{}{string(custom): true}
	if err := validateAuthenticatorExtensionOutputs(registry, outputs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateClientExtensionOutputsRejectsUnrequested(t *testing.T) {
	registry := newExtensionRegistry(nil)
	requested := AuthenticationExtensionsClientInputs{}
	outputs := AuthenticationExtensionsClientOutputs{string(ExtensionCredProps): map[string]interface{}{"rk": true}}
	if err := validateClientExtensionOutputs(registry, requested, outputs); err == nil {
		t.Fatalf("expected rejection of unrequested extension output")
	}
}

func TestValidateClientExtensionOutputsAcceptsRequested(t *testing.T) {
	registry := newExtensionRegistry(nil)
	requested := AuthenticationExtensionsClientInputs{string(ExtensionCredProps): true}
	outputs := AuthenticationExtensionsClientOutputs{string(ExtensionCredProps): map[string]interface{}{"rk": true}}
	if err := validateClientExtensionOutputs(registry, requested, outputs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEffectiveRPIDFallsBackWithoutAppIDUsage(t *testing.T) {
	requested := AuthenticationExtensionsClientInputs{string(ExtensionAppID): "https://appid.example/appid.json"}
	outputs := AuthenticationExtensionsClientOutputs{string(ExtensionAppID): false}
	if got := EffectiveRPID("example.com", requested, outputs); got != "example.com" {
		t.Fatalf("EffectiveRPID = %q, want rpID unchanged", got)
	}
}

func TestEffectiveRPIDUsesAppIDWhenReported(t *testing.T) {
	requested := AuthenticationExtensionsClientInputs{string(ExtensionAppID): "https://appid.example/appid.json"}
	outputs := AuthenticationExtensionsClientOutputs{string(ExtensionAppID): true}
	if got := EffectiveRPID("example.com", requested, outputs); got != "https://appid.example/appid.json" {
		t.Fatalf("EffectiveRPID = %q, want appid override", got)
	}
}
