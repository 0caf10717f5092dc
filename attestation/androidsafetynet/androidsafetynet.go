// Package androidsafetynet verifies the "android-safetynet" attestation
// statement format, a JWS produced by Google Play Services' SafetyNet
// attestation API.
package androidsafetynet

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/coreauthn/webauthn/attestation"
)

func init() {
	attestation.Register(attestation.FormatAndroidSafetyNet, Verify)
}

const attestAndroidCN = "attest.android.com"

// DefaultSkew is the RP-configured allowance between the SafetyNet
// response's timestampMs and the verification wall clock, per spec.md
// §4.3's default of ±1 minute.
const DefaultSkew = time.Minute

// Options configures android-safetynet verification policy.
type Options struct {
	// Roots are the trust anchors the JWS signing certificate chain must
	// chain up to. If nil, the system root pool is used.
	Roots *x509.CertPool
	// Now returns the current time; defaults to time.Now.
	Now func() time.Time
	// ForwardSkew bounds how far into the future the response timestamp may
	// be, clamped to [0, 60s] per spec.md §4.3. Zero means DefaultSkew.
	ForwardSkew time.Duration
	// BackwardSkew bounds how far into the past the response timestamp may
	// be. Zero means DefaultSkew.
	BackwardSkew time.Duration
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o Options) forwardSkew() time.Duration {
	switch {
	case o.ForwardSkew <= 0:
		return DefaultSkew
	case o.ForwardSkew > time.Minute:
		return time.Minute
	default:
		return o.ForwardSkew
	}
}

func (o Options) backwardSkew() time.Duration {
	if o.BackwardSkew <= 0 {
		return DefaultSkew
	}
	return o.BackwardSkew
}

type statement struct {
	Ver      string `cbor:"ver"`
	Response []byte `cbor:"response"`
}

// safetyNetClaims are the fields of the SafetyNet attestation JWS payload
// relevant to WebAuthn verification.
type safetyNetClaims struct {
	jwt.RegisteredClaims
	Nonce           string `json:"nonce"`
	TimestampMs     int64  `json:"timestampMs"`
	CtsProfileMatch bool   `json:"ctsProfileMatch"`
}

// Verify implements attestation.Verifier for the "android-safetynet" format
// using the default Options (system root pool, ±1 minute skew).
func Verify(in *attestation.Input) (attestation.Output, error) {
	return VerifyWithOptions(in, Options{})
}

// VerifyWithOptions is Verify with explicit policy options.
func VerifyWithOptions(in *attestation.Input, opts Options) (attestation.Output, error) {
	var stmt statement
	if err := cbor.Unmarshal(in.RawStatement, &stmt); err != nil {
		return attestation.Output{}, fmt.Errorf("attestation/android-safetynet: decoding statement: %w", err)
	}
	if stmt.Ver == "" {
		return attestation.Output{}, fmt.Errorf("attestation/android-safetynet: statement missing ver")
	}

	var chain []*x509.Certificate
	claims := &safetyNetClaims{}
	keyFunc := func(token *jwt.Token) (interface{}, error) {
		certs, err := chainFromHeader(token.Header)
		if err != nil {
			return nil, err
		}
		if err := verifyChain(certs, opts); err != nil {
			return nil, err
		}
		chain = certs
		if len(certs[0].Subject.CommonName) == 0 || certs[0].Subject.CommonName != attestAndroidCN {
			return nil, fmt.Errorf("attestation/android-safetynet: leaf certificate CN %q, want %q", certs[0].Subject.CommonName, attestAndroidCN)
		}
		return certs[0].PublicKey, nil
	}

	if _, err := jwt.ParseWithClaims(string(stmt.Response), claims, keyFunc); err != nil {
		return attestation.Output{}, fmt.Errorf("attestation/android-safetynet: parsing JWS: %w", err)
	}

	wantNonce := expectedNonce(in)
	if claims.Nonce != wantNonce {
		return attestation.Output{}, fmt.Errorf("attestation/android-safetynet: nonce mismatch")
	}

	if !claims.CtsProfileMatch {
		return attestation.Output{}, fmt.Errorf("attestation/android-safetynet: ctsProfileMatch is false")
	}

	if err := verifyTimestamp(claims.TimestampMs, opts); err != nil {
		return attestation.Output{}, err
	}

	return attestation.Output{Type: attestation.TypeBasic, TrustPath: chain}, nil
}

func expectedNonce(in *attestation.Input) string {
	sum := sha256.Sum256(in.SignedData())
	return base64.StdEncoding.EncodeToString(sum[:])
}

func chainFromHeader(header map[string]interface{}) ([]*x509.Certificate, error) {
	raw, ok := header["x5c"]
	if !ok {
		return nil, fmt.Errorf("attestation/android-safetynet: JWS header missing x5c")
	}
	items, ok := raw.([]interface{})
	if !ok || len(items) == 0 {
		return nil, fmt.Errorf("attestation/android-safetynet: JWS header x5c is not a non-empty array")
	}

	chain := make([]*x509.Certificate, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("attestation/android-safetynet: x5c[%d] is not a string", i)
		}
		der, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("attestation/android-safetynet: decoding x5c[%d]: %w", i, err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("attestation/android-safetynet: parsing x5c[%d]: %w", i, err)
		}
		chain = append(chain, cert)
	}
	return chain, nil
}

func verifyChain(chain []*x509.Certificate, opts Options) error {
	intermediates := x509.NewCertPool()
	for _, cert := range chain[1:] {
		intermediates.AddCert(cert)
	}
	verifyOpts := x509.VerifyOptions{
		Roots:         opts.Roots,
		Intermediates: intermediates,
		CurrentTime:   opts.now(),
	}
	if _, err := chain[0].Verify(verifyOpts); err != nil {
		return fmt.Errorf("attestation/android-safetynet: verifying certificate chain: %w", err)
	}
	return nil
}

func verifyTimestamp(timestampMs int64, opts Options) error {
	responseTime := time.UnixMilli(timestampMs)
	now := opts.now()

	if responseTime.After(now.Add(opts.forwardSkew())) {
		return fmt.Errorf("attestation/android-safetynet: response timestamp %s too far in the future", responseTime)
	}
	if responseTime.Before(now.Add(-opts.backwardSkew())) {
		return fmt.Errorf("attestation/android-safetynet: response timestamp %s too far in the past", responseTime)
	}
	return nil
}
