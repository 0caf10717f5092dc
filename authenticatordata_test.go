package webauthn

import "testing"

func TestDecodeAuthenticatorDataWithAttestedCredential(t *testing.T) {
	priv := newP256Key(t)
	key := ec2COSEKey(t, &priv.PublicKey)
	credID := []byte("credential-1")

	raw := buildAuthenticatorData(t, testRPID, flagUP|flagUV|flagAT, 7, credID, key)

	ad, err := DecodeAuthenticatorData(raw)
	if err != nil {
		t.Fatalf("DecodeAuthenticatorData: %v", err)
	}
	if !ad.UserPresent || !ad.UserVerified {
		t.Fatalf("expected UP and UV set")
	}
	if ad.SignCount != 7 {
		t.Fatalf("SignCount = %d, want 7", ad.SignCount)
	}
	if ad.AttestedCredentialData == nil {
		t.Fatalf("expected attestedCredentialData to be present")
	}
	if string(ad.AttestedCredentialData.CredentialID) != string(credID) {
		t.Fatalf("CredentialID = %q", ad.AttestedCredentialData.CredentialID)
	}
	if ad.AttestedCredentialData.CredentialKey == nil {
		t.Fatalf("expected decoded credential key")
	}
}

func TestDecodeAuthenticatorDataWithoutAttestedCredential(t *testing.T) {
	raw := buildAuthenticatorData(t, testRPID, flagUP, 3, nil, nil)
	ad, err := DecodeAuthenticatorData(raw)
	if err != nil {
		t.Fatalf("DecodeAuthenticatorData: %v", err)
	}
	if ad.AttestedCredentialData != nil {
		t.Fatalf("expected no attestedCredentialData")
	}
}

func TestDecodeAuthenticatorDataRejectsTruncated(t *testing.T) {
	if _, err := DecodeAuthenticatorData(make([]byte, 10)); err == nil {
		t.Fatalf("expected error for truncated authenticator data")
	}
}
