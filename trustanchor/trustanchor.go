// Package trustanchor resolves and validates attestation certificate paths
// against a caller-supplied set of trusted root certificates, keyed by
// AAGUID or by subject key identifier.
package trustanchor

import (
	"bytes"
	"crypto/x509"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Validate when the repository has no trust
// anchor registered for either the AAGUID or the subject key identifier
// presented by the attestation certificate path.
var ErrNotFound = errors.New("trustanchor: no trust anchor found")

// Anchor is a single trusted root, associated with the authenticator model
// (by AAGUID) or certificate authority (by subject key identifier) it
// vouches for.
type Anchor struct {
	AAGUID               [16]byte
	HasAAGUID            bool
	SubjectKeyIdentifier []byte
	Certificate          *x509.Certificate
}

// Repository resolves trust anchors. Implementations MUST be safe for
// concurrent use by multiple validators; the core never mutates what it
// returns.
type Repository interface {
	FindByAAGUID(aaguid [16]byte) []Anchor
	FindBySubjectKeyIdentifier(ski []byte) []Anchor
}

// StaticRepository is an immutable, in-memory Repository built once at
// startup time from a fixed anchor list, matching the "configuration MUST
// be completed before publication to worker threads" rule that governs
// every policy collaborator here.
type StaticRepository struct {
	byAAGUID map[[16]byte][]Anchor
	bySKI    map[string][]Anchor
}

// NewStaticRepository indexes anchors by AAGUID and by subject key
// identifier for O(1) lookup.
func NewStaticRepository(anchors []Anchor) *StaticRepository {
	repo := &StaticRepository{
		byAAGUID: make(map[[16]byte][]Anchor),
		bySKI:    make(map[string][]Anchor),
	}
	for _, a := range anchors {
		if a.HasAAGUID {
			repo.byAAGUID[a.AAGUID] = append(repo.byAAGUID[a.AAGUID], a)
		}
		if len(a.SubjectKeyIdentifier) > 0 {
			repo.bySKI[string(a.SubjectKeyIdentifier)] = append(repo.bySKI[string(a.SubjectKeyIdentifier)], a)
		}
	}
	return repo
}

func (r *StaticRepository) FindByAAGUID(aaguid [16]byte) []Anchor {
	return r.byAAGUID[aaguid]
}

func (r *StaticRepository) FindBySubjectKeyIdentifier(ski []byte) []Anchor {
	return r.bySKI[string(ski)]
}

// RevocationChecker applies caller-supplied revocation policy (CRL, OCSP,
// or an allowlist/denylist) to a validated chain. Validate treats a nil
// checker as "revocation checking disabled", the documented default, since
// the core has no I/O of its own to fetch revocation data.
type RevocationChecker func(chain []*x509.Certificate) error

// Validator runs PKIX path validation against the anchors resolved from a
// Repository.
type Validator struct {
	Repository Repository
	// Now returns the current time for certificate validity checks;
	// defaults to time.Now.
	Now func() time.Time
	// RevocationChecker optionally rejects chains with revoked
	// certificates. Nil disables revocation checking.
	RevocationChecker RevocationChecker
}

func (v *Validator) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

// Validate resolves trust anchors for aaguid (preferred) or
// subjectKeyIdentifier (fallback), then builds and validates a PKIX path
// from chain's leaf certificate to one of the resolved anchors. chain is
// ordered leaf-to-root, matching the x5c encoding in an attestation
// statement. On success it returns the verified chain (leaf-to-root,
// inclusive of the matched anchor).
func (v *Validator) Validate(chain []*x509.Certificate, aaguid [16]byte, hasAAGUID bool, subjectKeyIdentifier []byte) ([]*x509.Certificate, error) {
	if len(chain) == 0 {
		return nil, fmt.Errorf("trustanchor: certificate chain is empty")
	}

	var anchors []Anchor
	if hasAAGUID {
		anchors = v.Repository.FindByAAGUID(aaguid)
	}
	if len(anchors) == 0 && len(subjectKeyIdentifier) > 0 {
		anchors = v.Repository.FindBySubjectKeyIdentifier(subjectKeyIdentifier)
	}
	if len(anchors) == 0 {
		return nil, ErrNotFound
	}

	intermediates := x509.NewCertPool()
	for _, cert := range chain[1:] {
		intermediates.AddCert(cert)
	}

	var lastErr error
	for _, anchor := range anchors {
		roots := x509.NewCertPool()
		roots.AddCert(anchor.Certificate)

		verified, err := chain[0].Verify(x509.VerifyOptions{
			Roots:         roots,
			Intermediates: intermediates,
			CurrentTime:   v.now(),
			KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
		})
		if err != nil {
			lastErr = err
			continue
		}

		path := verified[0]
		if v.RevocationChecker != nil {
			if err := v.RevocationChecker(path); err != nil {
				lastErr = fmt.Errorf("revocation check failed: %w", err)
				continue
			}
		}
		return path, nil
	}

	return nil, fmt.Errorf("trustanchor: no resolved anchor validates the certificate path: %w", lastErr)
}

// SubjectKeyIdentifierOf returns cert's Subject Key Identifier extension
// value, or nil if absent. Provided as a convenience for building Anchor
// values and for resolving an x5c leaf's issuer by SKI when no AAGUID match
// exists.
func SubjectKeyIdentifierOf(cert *x509.Certificate) []byte {
	if len(cert.SubjectKeyId) > 0 {
		return cert.SubjectKeyId
	}
	return nil
}

// EqualSubjectKeyIdentifier reports whether two subject key identifiers are
// byte-identical, the comparison the FIDO Metadata Service resolver uses to
// match a metadata statement's root certificates against an x5c chain.
func EqualSubjectKeyIdentifier(a, b []byte) bool {
	return bytes.Equal(a, b)
}
