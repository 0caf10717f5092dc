package webauthn

import "testing"

func TestParseClientData(t *testing.T) {
	raw := testClientDataJSON(t, ClientDataTypeCreate, string(testChallenge()), testOrigin)
	cd, err := ParseClientData(raw)
	if err != nil {
		t.Fatalf("ParseClientData: %v", err)
	}
	if cd.Type != ClientDataTypeCreate {
		t.Fatalf("Type = %q", cd.Type)
	}
	if cd.Origin != testOrigin {
		t.Fatalf("Origin = %q", cd.Origin)
	}
}

func TestParseClientDataRejectsMalformedJSON(t *testing.T) {
	if _, err := ParseClientData([]byte("not json")); err == nil {
		t.Fatalf("expected error for malformed clientDataJSON")
	}
}

func TestCompareChallengeRejectsMismatch(t *testing.T) {
	cd, err := ParseClientData(testClientDataJSON(t, ClientDataTypeCreate, "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", testOrigin))
	if err != nil {
		t.Fatalf("ParseClientData: %v", err)
	}
	if err := compareChallenge(cd, testChallenge()); err == nil {
		t.Fatalf("expected challenge mismatch error")
	}
}

func TestValidateOriginExactMatch(t *testing.T) {
	cd := &CollectedClientData{Origin: testOrigin}
	if err := validateOrigin(cd, []string{testOrigin}, nil); err != nil {
		t.Fatalf("expected match: %v", err)
	}
	if err := validateOrigin(cd, []string{"https://other.example"}, nil); err == nil {
		t.Fatalf("expected mismatch to be rejected")
	}
}

func TestValidateOriginCustomValidator(t *testing.T) {
	cd := &CollectedClientData{Origin: "https://sub.example.com"}
	validator := func(origin string) bool { return origin == "https://sub.example.com" }
	if err := validateOrigin(cd, nil, validator); err != nil {
		t.Fatalf("expected custom validator to accept: %v", err)
	}
}

func TestValidateTokenBindingPresentRequiresServerID(t *testing.T) {
	cd := &CollectedClientData{TokenBinding: &TokenBinding{Status: TokenBindingStatusPresent, ID: "abc"}}
	if err := validateTokenBinding(cd, nil); err == nil {
		t.Fatalf("expected error when server has no token binding id configured")
	}
}

func TestValidateTokenBindingSupportedPasses(t *testing.T) {
	cd := &CollectedClientData{TokenBinding: &TokenBinding{Status: TokenBindingStatusSupported}}
	if err := validateTokenBinding(cd, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
