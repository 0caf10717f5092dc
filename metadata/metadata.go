// Package metadata parses FIDO Metadata Service BLOB payloads and adapts
// them into trust anchors consumable by the trustanchor package.
package metadata

import (
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/coreauthn/webauthn/trustanchor"
)

// Status is a FIDO Metadata Service StatusReport status code.
// https://fidoalliance.org/specs/mds/fido-metadata-service-v3.0-ps-20210518.html#authenticator-status-type
type Status string

// Status values that make an authenticator's attestations untrustworthy
// regardless of an otherwise-valid certificate path.
const (
	StatusAttestationKeyCompromise  Status = "ATTESTATION_KEY_COMPROMISE"
	StatusUserVerificationBypass    Status = "USER_VERIFICATION_BYPASS"
	StatusUserKeyRemoteCompromise   Status = "USER_KEY_REMOTE_COMPROMISE"
	StatusUserKeyPhysicalCompromise Status = "USER_KEY_PHYSICAL_COMPROMISE"
	StatusRevoked                   Status = "REVOKED"
)

var disallowedStatuses = map[Status]bool{
	StatusAttestationKeyCompromise:  true,
	StatusUserVerificationBypass:    true,
	StatusUserKeyRemoteCompromise:   true,
	StatusUserKeyPhysicalCompromise: true,
	StatusRevoked:                   true,
}

// StatusReport is one entry of a metadata statement's status history.
type StatusReport struct {
	Status        Status
	EffectiveDate string
}

// Statement is a single FIDO Metadata Service entry: an authenticator
// model's AAGUID, its trusted attestation root certificates, and its
// status history.
type Statement struct {
	AAGUID                      [16]byte
	Description                 string
	AttestationRootCertificates []*x509.Certificate
	StatusReports               []StatusReport
}

// BadStatus reports whether any status report on the statement names a
// status that must reject attestations from this authenticator model
// outright, returning the offending status for error reporting.
func (s Statement) BadStatus() (Status, bool) {
	for _, r := range s.StatusReports {
		if disallowedStatuses[r.Status] {
			return r.Status, true
		}
	}
	return "", false
}

// Provider supplies the current set of metadata statements, for example by
// periodically re-fetching and re-parsing the FIDO MDS BLOB. Provide may do
// I/O; Repository calls it once at construction, matching the "configured
// before publication to worker threads" rule applied to every policy
// collaborator here.
type Provider interface {
	Provide() ([]Statement, error)
}

// StaticProvider adapts a fixed statement slice, typically the result of a
// prior ParseBlob call, into a Provider.
type StaticProvider []Statement

func (p StaticProvider) Provide() ([]Statement, error) {
	return []Statement(p), nil
}

// Repository indexes metadata statements by AAGUID and by the subject key
// identifier of their attestation root certificates, implementing
// trustanchor.Repository. Authenticator models whose metadata carries a
// disallowed status are excluded from the index entirely; BadStatus
// recovers the reason for a model that was excluded this way.
type Repository struct {
	byAAGUID map[[16]byte][]trustanchor.Anchor
	bySKI    map[string][]trustanchor.Anchor
	bad      map[[16]byte]Status
}

// NewRepository builds a Repository from provider's current statements.
func NewRepository(provider Provider) (*Repository, error) {
	statements, err := provider.Provide()
	if err != nil {
		return nil, fmt.Errorf("metadata: provide: %w", err)
	}

	repo := &Repository{
		byAAGUID: make(map[[16]byte][]trustanchor.Anchor),
		bySKI:    make(map[string][]trustanchor.Anchor),
		bad:      make(map[[16]byte]Status),
	}

	for _, st := range statements {
		if status, bad := st.BadStatus(); bad {
			repo.bad[st.AAGUID] = status
			continue
		}
		for _, root := range st.AttestationRootCertificates {
			anchor := trustanchor.Anchor{
				AAGUID:               st.AAGUID,
				HasAAGUID:            true,
				SubjectKeyIdentifier: root.SubjectKeyId,
				Certificate:          root,
			}
			repo.byAAGUID[st.AAGUID] = append(repo.byAAGUID[st.AAGUID], anchor)
			if len(root.SubjectKeyId) > 0 {
				repo.bySKI[string(root.SubjectKeyId)] = append(repo.bySKI[string(root.SubjectKeyId)], anchor)
			}
		}
	}

	return repo, nil
}

func (r *Repository) FindByAAGUID(aaguid [16]byte) []trustanchor.Anchor {
	return r.byAAGUID[aaguid]
}

func (r *Repository) FindBySubjectKeyIdentifier(ski []byte) []trustanchor.Anchor {
	return r.bySKI[string(ski)]
}

// BadStatus reports the disallowed status, if any, recorded for aaguid.
// Callers use this to distinguish "no metadata for this authenticator" from
// "metadata exists but the authenticator has been flagged untrustworthy".
func (r *Repository) BadStatus(aaguid [16]byte) (Status, bool) {
	status, ok := r.bad[aaguid]
	return status, ok
}

// mdsAAGUID decodes a hyphenated or bare hex AAGUID string, as carried by
// both "aaguid" fields in a metadata BLOB entry.
type mdsAAGUID [16]byte

func (m *mdsAAGUID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("metadata: aaguid is not a string: %w", err)
	}
	s = strings.ReplaceAll(s, "-", "")
	data, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("metadata: decoding aaguid hex: %w", err)
	}
	if len(data) != 16 {
		return fmt.Errorf("metadata: aaguid must decode to 16 bytes, got %d", len(data))
	}
	copy(m[:], data)
	return nil
}

type mdsStatusReport struct {
	Status        Status `json:"status"`
	EffectiveDate string `json:"effectiveDate"`
}

type mdsStatement struct {
	AAGUID                      mdsAAGUID `json:"aaguid"`
	Description                 string    `json:"description"`
	AttestationRootCertificates []string  `json:"attestationRootCertificates"`
}

type mdsEntry struct {
	AAGUID        mdsAAGUID         `json:"aaguid"`
	Metadata      mdsStatement      `json:"metadataStatement"`
	StatusReports []mdsStatusReport `json:"statusReports"`
}

type mdsBlobClaims struct {
	jwt.RegisteredClaims
	Entries []mdsEntry `json:"entries"`
}

// ParseBlob decodes a FIDO Metadata Service BLOB JWT payload without
// verifying its signature, for use when the caller has already verified
// blob provenance out of band (e.g. fetched over a pinned TLS connection
// straight from the FIDO Alliance endpoint). Use ParseBlobVerified to
// additionally verify the JWS signature against a root pool.
func ParseBlob(raw []byte) ([]Statement, error) {
	parts := strings.Split(string(raw), ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("metadata: blob is not a JWT")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("metadata: decoding JWT payload: %w", err)
	}
	var claims mdsBlobClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("metadata: decoding BLOB payload: %w", err)
	}
	return entriesToStatements(claims.Entries)
}

// ParseBlobVerified decodes a FIDO Metadata Service BLOB JWT and verifies
// its JWS signature via the x5c chain carried in its header against roots.
func ParseBlobVerified(raw []byte, roots *x509.CertPool, now func() time.Time) ([]Statement, error) {
	if roots == nil {
		return nil, fmt.Errorf("metadata: verified parse requires a non-nil root pool")
	}
	if now == nil {
		now = time.Now
	}

	var claims mdsBlobClaims
	keyFunc := func(token *jwt.Token) (interface{}, error) {
		chain, err := blobChainFromHeader(token.Header)
		if err != nil {
			return nil, err
		}
		intermediates := x509.NewCertPool()
		for _, cert := range chain[1:] {
			intermediates.AddCert(cert)
		}
		if _, err := chain[0].Verify(x509.VerifyOptions{
			Roots:         roots,
			Intermediates: intermediates,
			CurrentTime:   now(),
		}); err != nil {
			return nil, fmt.Errorf("metadata: verifying BLOB signing chain: %w", err)
		}
		return chain[0].PublicKey, nil
	}

	if _, err := jwt.ParseWithClaims(string(raw), &claims, keyFunc); err != nil {
		return nil, fmt.Errorf("metadata: verifying BLOB JWS: %w", err)
	}
	return entriesToStatements(claims.Entries)
}

func blobChainFromHeader(header map[string]interface{}) ([]*x509.Certificate, error) {
	raw, ok := header["x5c"]
	if !ok {
		return nil, fmt.Errorf("metadata: JWS header missing x5c")
	}
	items, ok := raw.([]interface{})
	if !ok || len(items) == 0 {
		return nil, fmt.Errorf("metadata: JWS header x5c is not a non-empty array")
	}
	chain := make([]*x509.Certificate, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("metadata: x5c[%d] is not a string", i)
		}
		der, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("metadata: decoding x5c[%d]: %w", i, err)
		}
		cert, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, fmt.Errorf("metadata: parsing x5c[%d]: %w", i, err)
		}
		chain = append(chain, cert)
	}
	return chain, nil
}

func entriesToStatements(entries []mdsEntry) ([]Statement, error) {
	statements := make([]Statement, 0, len(entries))
	for i, entry := range entries {
		aaguid := entry.AAGUID
		if aaguid == (mdsAAGUID{}) {
			aaguid = entry.Metadata.AAGUID
		}

		roots := make([]*x509.Certificate, 0, len(entry.Metadata.AttestationRootCertificates))
		for j, b64 := range entry.Metadata.AttestationRootCertificates {
			der, err := base64.StdEncoding.DecodeString(b64)
			if err != nil {
				return nil, fmt.Errorf("metadata: entry %d root certificate %d: decoding base64: %w", i, j, err)
			}
			cert, err := x509.ParseCertificate(der)
			if err != nil {
				return nil, fmt.Errorf("metadata: entry %d root certificate %d: parsing: %w", i, j, err)
			}
			roots = append(roots, cert)
		}

		reports := make([]StatusReport, 0, len(entry.StatusReports))
		for _, r := range entry.StatusReports {
			reports = append(reports, StatusReport{Status: r.Status, EffectiveDate: r.EffectiveDate})
		}

		statements = append(statements, Statement{
			AAGUID:                      [16]byte(aaguid),
			Description:                 entry.Metadata.Description,
			AttestationRootCertificates: roots,
			StatusReports:               reports,
		})
	}
	return statements, nil
}
