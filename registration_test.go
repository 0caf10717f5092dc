package webauthn

import (
	"crypto/ecdsa"
	"testing"

	"github.com/coreauthn/webauthn/attestation"
	"github.com/coreauthn/webauthn/cose"
)

func buildValidRegistration(t *testing.T) (*RegistrationData, RegistrationParameters, *ecdsa.PrivateKey) {
	t.Helper()
	priv := newP256Key(t)
	key := ec2COSEKey(t, &priv.PublicKey)
	credID := []byte("credential-1")

	rawAuthData := buildAuthenticatorData(t, testRPID, flagUP|flagUV|flagAT, 1, credID, key)
	attObj := buildNoneAttestationObject(t, rawAuthData)
	clientDataJSON := testClientDataJSON(t, ClientDataTypeCreate, string(testChallenge()), testOrigin)

	data, err := DecodeRegistrationData(clientDataJSON, attObj, nil)
	if err != nil {
		t.Fatalf("DecodeRegistrationData: %v", err)
	}

	params := RegistrationParameters{
		ServerProperty: ServerProperty{
			Origins:   []string{testOrigin},
			RPID:      testRPID,
			Challenge: testChallenge(),
		},
		UserPresenceRequired: true,
	}

	return data, params, priv
}

func TestRegistrationValidatorHappyPath(t *testing.T) {
	data, params, _ := buildValidRegistration(t)
	v := NewRegistrationValidatorConfig().Build()

	typ, err := v.Validate(data, params)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if typ != attestation.TypeNone {
		t.Fatalf("attestation type = %v, want None", typ)
	}
}

func TestRegistrationValidatorRejectsBadChallenge(t *testing.T) {
	data, params, _ := buildValidRegistration(t)
	params.ServerProperty.Challenge = []byte("wrong-challenge-value-32-bytes!")

	v := NewRegistrationValidatorConfig().Build()
	if _, err := v.Validate(data, params); err == nil {
		t.Fatalf("expected error for mismatched challenge")
	}
}

func TestRegistrationValidatorRejectsBadOrigin(t *testing.T) {
	data, params, _ := buildValidRegistration(t)
	params.ServerProperty.Origins = []string{"https://evil.example"}

	v := NewRegistrationValidatorConfig().Build()
	if _, err := v.Validate(data, params); err == nil {
		t.Fatalf("expected error for mismatched origin")
	}
}

func TestRegistrationValidatorRejectsBadRPID(t *testing.T) {
	data, params, _ := buildValidRegistration(t)
	params.ServerProperty.RPID = "other.example"

	v := NewRegistrationValidatorConfig().Build()
	if _, err := v.Validate(data, params); err == nil {
		t.Fatalf("expected error for rpIdHash mismatch")
	}
}

func TestRegistrationValidatorRequiresUserPresence(t *testing.T) {
	priv := newP256Key(t)
	key := ec2COSEKey(t, &priv.PublicKey)
	credID := []byte("credential-1")

	rawAuthData := buildAuthenticatorData(t, testRPID, flagAT, 1, credID, key) // no UP flag
	attObj := buildNoneAttestationObject(t, rawAuthData)
	clientDataJSON := testClientDataJSON(t, ClientDataTypeCreate, string(testChallenge()), testOrigin)

	data, err := DecodeRegistrationData(clientDataJSON, attObj, nil)
	if err != nil {
		t.Fatalf("DecodeRegistrationData: %v", err)
	}

	params := RegistrationParameters{
		ServerProperty: ServerProperty{
			Origins:   []string{testOrigin},
			RPID:      testRPID,
			Challenge: testChallenge(),
		},
		UserPresenceRequired: true,
	}

	v := NewRegistrationValidatorConfig().Build()
	if _, err := v.Validate(data, params); err == nil {
		t.Fatalf("expected error for missing user presence")
	}
}

func TestRegistrationValidatorRejectsDisallowedAlgorithm(t *testing.T) {
	data, params, _ := buildValidRegistration(t)
	params.PubKeyCredParams = []cose.Algorithm{cose.AlgorithmRS256}

	v := NewRegistrationValidatorConfig().Build()
	if _, err := v.Validate(data, params); err == nil {
		t.Fatalf("expected error for disallowed algorithm")
	}
}

func TestRegistrationValidatorRejectsTamperedClientData(t *testing.T) {
	priv := newP256Key(t)
	key := ec2COSEKey(t, &priv.PublicKey)
	credID := []byte("credential-1")

	rawAuthData := buildAuthenticatorData(t, testRPID, flagUP|flagAT, 1, credID, key)
	attObj := buildNoneAttestationObject(t, rawAuthData)
	clientDataJSON := testClientDataJSON(t, ClientDataTypeCreate, string(testChallenge()), testOrigin)
	clientDataJSON[len(clientDataJSON)-2] ^= 0xff // corrupt a byte before the closing brace

	// A tampered clientDataJSON either fails to parse or fails the
	// challenge/origin comparison; either is an acceptable rejection here.
	data, err := DecodeRegistrationData(clientDataJSON, attObj, nil)
	if err != nil {
		return
	}
	params := RegistrationParameters{
		ServerProperty: ServerProperty{
			Origins:   []string{testOrigin},
			RPID:      testRPID,
			Challenge: testChallenge(),
		},
		UserPresenceRequired: true,
	}
	v := NewRegistrationValidatorConfig().Build()
	if _, err := v.Validate(data, params); err == nil {
		t.Fatalf("expected rejection of tampered clientDataJSON")
	}
}

func TestRegistrationValidatorRejectsSelfAttestationByDefault(t *testing.T) {
	// The "none" format never returns Self, so this exercises the policy
	// gate directly rather than through a format verifier.
	v := NewRegistrationValidatorConfig().Build()
	if v.selfAttestationAllowed {
		t.Fatalf("self attestation must be disallowed by default")
	}
}
