package webauthn

import "testing"

type testUser struct {
	id   []byte
	name string
}

func (u testUser) ID() []byte            { return u.id }
func (u testUser) Name() string          { return u.name }
func (u testUser) Icon() string          { return "" }
func (u testUser) DisplayName() string   { return u.name }
func (u testUser) Credentials() []Credential { return nil }

type testRP struct{}

func (testRP) ID() string   { return testRPID }
func (testRP) Name() string { return "Test RP" }
func (testRP) Icon() string { return "" }

func TestBeginRegistrationPopulatesOptions(t *testing.T) {
	u := testUser{id: []byte("user-1"), name: "alice"}
	opts, err := BeginRegistration(testRP{}, u, WithAttestation(AttestationDirect))
	if err != nil {
		t.Fatalf("BeginRegistration: %v", err)
	}
	if opts.RP.ID != testRPID {
		t.Fatalf("RP.ID = %q", opts.RP.ID)
	}
	if len(opts.Challenge) != ChallengeLength {
		t.Fatalf("Challenge length = %d, want %d", len(opts.Challenge), ChallengeLength)
	}
	if opts.Attestation != AttestationDirect {
		t.Fatalf("Attestation = %q", opts.Attestation)
	}
	if len(opts.PubKeyCredParams) == 0 {
		t.Fatalf("expected default credential parameters")
	}
}

func TestBeginAuthenticationPopulatesOptions(t *testing.T) {
	allow := []PublicKeyCredentialDescriptor{{Type: PublicKeyCredentialTypePublicKey, ID: []byte("cred")}}
	opts, err := BeginAuthentication(WithRPID(testRPID), WithAllowCredentials(allow))
	if err != nil {
		t.Fatalf("BeginAuthentication: %v", err)
	}
	if opts.RPID != testRPID {
		t.Fatalf("RPID = %q", opts.RPID)
	}
	if len(opts.AllowCredentials) != 1 {
		t.Fatalf("expected one allowed credential")
	}
}

func TestGenerateChallengeLength(t *testing.T) {
	c, err := GenerateChallenge()
	if err != nil {
		t.Fatalf("GenerateChallenge: %v", err)
	}
	if len(c) != ChallengeLength {
		t.Fatalf("len = %d, want %d", len(c), ChallengeLength)
	}
}
