package webauthn

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"github.com/coreauthn/webauthn/cose"

	_ "github.com/coreauthn/webauthn/attestation/none"
)

const testRPID = "example.com"
const testOrigin = "https://example.com"

func testChallenge() []byte {
	return []byte("0123456789abcdef0123456789abcde")
}

func marshalCBORInt(t *testing.T, v int) cbor.RawMessage {
	t.Helper()
	b, err := cbor.Marshal(v)
	if err != nil {
		t.Fatalf("marshal int: %v", err)
	}
	return b
}

func marshalCBORBytes(t *testing.T, v []byte) cbor.RawMessage {
	t.Helper()
	b, err := cbor.Marshal(v)
	if err != nil {
		t.Fatalf("marshal bytes: %v", err)
	}
	return b
}

func ec2COSEKey(t *testing.T, pub *ecdsa.PublicKey) *cose.Key {
	t.Helper()
	return &cose.Key{
		Kty:       cose.KeyTypeEC2,
		Alg:       cose.AlgorithmES256,
		CrvOrNOrK: marshalCBORInt(t, int(cose.CurveP256)),
		XOrE:      marshalCBORBytes(t, pub.X.Bytes()),
		Y:         marshalCBORBytes(t, pub.Y.Bytes()),
	}
}

// buildAuthenticatorData constructs the raw wire encoding of an
// AuthenticatorData structure, optionally including attested credential
// data.
func buildAuthenticatorData(t *testing.T, rpID string, flags byte, signCount uint32, credentialID []byte, key *cose.Key) []byte {
	t.Helper()
	hash := sha256.Sum256([]byte(rpID))

	buf := make([]byte, 0, 128)
	buf = append(buf, hash[:]...)
	buf = append(buf, flags)
	countBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(countBytes, signCount)
	buf = append(buf, countBytes...)

	if flags&flagAT != 0 {
		buf = append(buf, make([]byte, 16)...) // AAGUID, zeroed for test fixtures
		idLen := make([]byte, 2)
		binary.BigEndian.PutUint16(idLen, uint16(len(credentialID)))
		buf = append(buf, idLen...)
		buf = append(buf, credentialID...)

		keyBytes, err := cbor.Marshal(key)
		if err != nil {
			t.Fatalf("marshal cose key: %v", err)
		}
		buf = append(buf, keyBytes...)
	}

	return buf
}

func signES256(t *testing.T, priv *ecdsa.PrivateKey, message []byte) []byte {
	t.Helper()
	hash := sha256.Sum256(message)
	sig, err := ecdsa.SignASN1(rand.Reader, priv, hash[:])
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	return sig
}

func testClientDataJSON(t *testing.T, typ, challenge, origin string) []byte {
	t.Helper()
	cd := struct {
		Type      string `json:"type"`
		Challenge string `json:"challenge"`
		Origin    string `json:"origin"`
	}{
		Type:      typ,
		Challenge: base64.RawURLEncoding.EncodeToString([]byte(challenge)),
		Origin:    origin,
	}
	b, err := json.Marshal(cd)
	if err != nil {
		t.Fatalf("marshal clientData: %v", err)
	}
	return b
}

// buildNoneAttestationObject builds a CBOR attestation object using the
// "none" format, wrapping rawAuthData.
func buildNoneAttestationObject(t *testing.T, rawAuthData []byte) []byte {
	t.Helper()
	obj := struct {
		AuthData []byte                 `cbor:"authData"`
		Fmt      string                 `cbor:"fmt"`
		AttStmt  map[string]interface{} `cbor:"attStmt"`
	}{
		AuthData: rawAuthData,
		Fmt:      "none",
		AttStmt:  map[string]interface{}{},
	}
	b, err := cbor.Marshal(obj)
	if err != nil {
		t.Fatalf("marshal attestation object: %v", err)
	}
	return b
}

func sha256Sum(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}

func marshalCrossOriginClientData(t *testing.T, challenge, origin string) ([]byte, error) {
	t.Helper()
	cd := struct {
		Type        string `json:"type"`
		Challenge   string `json:"challenge"`
		Origin      string `json:"origin"`
		CrossOrigin bool   `json:"crossOrigin"`
	}{
		Type:        ClientDataTypeGet,
		Challenge:   base64.RawURLEncoding.EncodeToString([]byte(challenge)),
		Origin:      origin,
		CrossOrigin: true,
	}
	return json.Marshal(cd)
}

func newP256Key(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	return priv
}
