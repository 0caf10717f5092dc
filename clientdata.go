package webauthn

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// TokenBindingStatus is the state of Token Binding for the TLS connection
// over which a ceremony was carried out.
type TokenBindingStatus string

// Token Binding status values, WebAuthn Level 2 §5.8.1.
const (
	TokenBindingStatusPresent   TokenBindingStatus = "present"
	TokenBindingStatusSupported TokenBindingStatus = "supported"
)

// TokenBinding carries the Token Binding state reported by the client.
type TokenBinding struct {
	Status TokenBindingStatus `json:"status"`
	ID     string              `json:"id"`
}

// CollectedClientData is the decoded clientDataJSON, WebAuthn Level 2 §5.8.1.
type CollectedClientData struct {
	Type         string        `json:"type"`
	Challenge    string        `json:"challenge"`
	Origin       string        `json:"origin"`
	CrossOrigin  bool          `json:"crossOrigin,omitempty"`
	TokenBinding *TokenBinding `json:"tokenBinding,omitempty"`
}

// ClientDataTypeCreate and ClientDataTypeGet are the only two values
// clientData.type may take.
const (
	ClientDataTypeCreate = "webauthn.create"
	ClientDataTypeGet    = "webauthn.get"
)

// ParseClientData decodes the UTF-8 JSON text of clientDataJSON.
func ParseClientData(raw []byte) (*CollectedClientData, error) {
	var c CollectedClientData
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, ErrConstraintViolation.Wrap(fmt.Errorf("decoding clientDataJSON: %w", err))
	}
	return &c, nil
}

// compareChallenge verifies that the base64url-encoded challenge carried in
// c matches the expected raw challenge bytes, in constant time.
func compareChallenge(c *CollectedClientData, expected []byte) error {
	got, err := base64.RawURLEncoding.DecodeString(c.Challenge)
	if err != nil {
		return ErrBadChallenge.Wrap(fmt.Errorf("decoding clientData.challenge: %w", err))
	}
	if len(got) != len(expected) || subtle.ConstantTimeCompare(got, expected) != 1 {
		return ErrBadChallenge
	}
	return nil
}

// validateOrigin checks c.origin against the acceptable set, using validator
// if non-nil, otherwise falling back to exact string match against origins.
func validateOrigin(c *CollectedClientData, origins []string, validator OriginValidator) error {
	if validator != nil {
		if validator(c.Origin) {
			return nil
		}
		return ErrBadOrigin
	}
	for _, o := range origins {
		if o == c.Origin {
			return nil
		}
	}
	return ErrBadOrigin
}

// validateTokenBinding implements WebAuthn Level 2 §7.1 step 12 / §7.2 step
// 14: if the client reports Token Binding was in the "present" state, its id
// must match the server-recorded id; "supported" requires no further check.
func validateTokenBinding(c *CollectedClientData, tokenBindingID []byte) error {
	if c.TokenBinding == nil {
		return nil
	}
	switch c.TokenBinding.Status {
	case TokenBindingStatusSupported:
		return nil
	case TokenBindingStatusPresent:
		if len(tokenBindingID) == 0 {
			return ErrTokenBindingException.Wrap(fmt.Errorf("token binding present but no server-side id configured"))
		}
		id, err := base64.RawURLEncoding.DecodeString(c.TokenBinding.ID)
		if err != nil {
			return ErrTokenBindingException.Wrap(fmt.Errorf("decoding tokenBinding.id: %w", err))
		}
		if subtle.ConstantTimeCompare(id, tokenBindingID) != 1 {
			return ErrTokenBindingException.Wrap(fmt.Errorf("tokenBinding.id does not match"))
		}
		return nil
	default:
		return ErrTokenBindingException.Wrap(fmt.Errorf("unrecognized tokenBinding.status %q", c.TokenBinding.Status))
	}
}
