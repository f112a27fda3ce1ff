// Package registry implements the certificate lookup store the validator
// consults: an in-memory index over trust roots, extra trust roots, and
// other (intermediate) certificates, plus breadth-first path construction
// with cycle detection.
package registry

import (
	"bytes"
	"context"
	"crypto/x509"
	"crypto/x509/pkix"

	"github.com/go-phorce/pkixvalidator/xlog"
	"github.com/go-phorce/pkixvalidator/xpki/certutil"
	"github.com/go-phorce/pkixvalidator/xpki/certvalidator"
	"github.com/go-phorce/pkixvalidator/xpki/certvalidator/poe"
	iradix "github.com/hashicorp/go-immutable-radix"
	"github.com/juju/errors"
)

var logger = xlog.NewPackageLogger("github.com/go-phorce/pkixvalidator/xpki", "certvalidator/registry")

// maxPathDepth bounds BuildPaths' breadth-first search. A malformed
// registry with a certificate loop would otherwise recurse forever, and
// the cycle-detection set alone is not enough: two distinct certificates
// can each reissue the other indefinitely without ever repeating the same
// (issuer, subject) pair.
const maxPathDepth = 64

// Fetcher is the external certificate-fetch collaborator, consulted on a
// registry miss. Package fetch supplies a
// concrete, AIA/CRL-DP-aware implementation; nil is a valid "no fetching"
// value.
type Fetcher interface {
	FetchCertIssuers(ctx context.Context, cert *certvalidator.Certificate) ([]*certvalidator.Certificate, error)
}

// Registry is an in-memory certvalidator.Registry. Certificates are seeded
// into one of three tiers — trust roots, extra trust roots, other certs —
// that determine precedence during path building (trust roots first).
type Registry struct {
	anchors []*certvalidator.TrustAnchor // trust roots, in seed order
	extra   []*certvalidator.TrustAnchor // extra trust roots
	others  []*certvalidator.Certificate // intermediates / end-entities

	byKeyID *iradix.Tree // subjectKeyId -> []*certvalidator.Certificate
	byName  map[string][]*certvalidator.Certificate

	fetcher Fetcher
}

// New returns an empty Registry. Use AddTrustAnchor / AddExtraTrustAnchor /
// AddCertificate to seed it, and WithFetcher to attach the out-of-scope
// fetch collaborator.
func New() *Registry {
	return &Registry{
		byKeyID: iradix.New(),
		byName:  make(map[string][]*certvalidator.Certificate),
	}
}

// WithFetcher attaches f, which BuildPaths consults when the seeded sets
// hold no candidate issuer for a certificate. ByName and ByKeyIdentifier do
// not consult it.
func (r *Registry) WithFetcher(f Fetcher) *Registry {
	r.fetcher = f
	return r
}

// AddTrustAnchor seeds a into the highest-precedence tier.
func (r *Registry) AddTrustAnchor(a *certvalidator.TrustAnchor) {
	r.anchors = append(r.anchors, a)
	r.indexName(a.Subject(), anchorAsCert(a))
}

// AddExtraTrustAnchor seeds a into the second tier: preferred over bare
// intermediates but not over AddTrustAnchor entries.
func (r *Registry) AddExtraTrustAnchor(a *certvalidator.TrustAnchor) {
	r.extra = append(r.extra, a)
	r.indexName(a.Subject(), anchorAsCert(a))
}

// AddBundleFromPEM verifies a PEM bundle and seeds the registry from it:
// the bundle's root becomes a trust anchor, the rest of its chain joins the
// "other certs" tier. A bundle chaining to untrusted roots is rejected; an
// expiring one is seeded with a warning.
func (r *Registry) AddBundleFromPEM(certPEM, intCAPEM, rootPEM []byte) (*certutil.BundleStatus, error) {
	bundle, status, err := certutil.VerifyBundleFromPEM(certPEM, intCAPEM, rootPEM)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if status.IsUntrusted() {
		return status, errors.Errorf("bundle for %q chains to untrusted roots", bundle.Subject.CommonName)
	}
	if status.IsExpiring() {
		logger.Warningf("reason=bundle_expiring, subject=%q, expires_in=[%v]",
			bundle.Subject.CommonName, bundle.ExpiresInHours())
	}

	if bundle.RootCert != nil {
		root, err := certvalidator.NewCertificate(bundle.RootCert)
		if err != nil {
			return status, errors.Trace(err)
		}
		r.AddTrustAnchor(&certvalidator.TrustAnchor{Cert: root})
	}
	seen := map[string]bool{}
	for _, c := range append([]*x509.Certificate{bundle.Cert}, bundle.Chain...) {
		if c == nil || seen[string(c.Raw)] {
			continue
		}
		if bundle.RootCert != nil && bytes.Equal(c.Raw, bundle.RootCert.Raw) {
			continue
		}
		seen[string(c.Raw)] = true
		cert, err := certvalidator.NewCertificate(c)
		if err != nil {
			return status, errors.Trace(err)
		}
		r.AddCertificate(cert)
	}
	return status, nil
}

// AddCertificate seeds an intermediate or end-entity certificate into the
// lowest-precedence "other certs" tier.
func (r *Registry) AddCertificate(cert *certvalidator.Certificate) {
	r.others = append(r.others, cert)
	r.indexName(cert.Subject, cert)
	if len(cert.SubjectKeyId) > 0 {
		r.indexKeyID(cert.SubjectKeyId, cert)
	}
}

func anchorAsCert(a *certvalidator.TrustAnchor) *certvalidator.Certificate {
	return a.Cert // nil for a bare authority-record anchor; name/keyID index skips it below
}

func (r *Registry) indexName(name pkix.Name, cert *certvalidator.Certificate) {
	key := name.String()
	r.byName[key] = append(r.byName[key], cert) // cert may be nil for a bare anchor record; callers filter
}

func (r *Registry) indexKeyID(keyID []byte, cert *certvalidator.Certificate) {
	existing, _ := r.byKeyID.Get(keyID)
	var list []*certvalidator.Certificate
	if existing != nil {
		list = existing.([]*certvalidator.Certificate)
	}
	list = append(list, cert)
	r.byKeyID, _, _ = r.byKeyID.Insert(keyID, list)
}

// ByName implements certvalidator.Registry: returns every certificate (from
// any tier) whose subject matches name, trust roots first, then extra trust
// roots, then other certs. When preferIssuer is set the caller is looking for
// an issuer of some subordinate certificate (used by path building and CRL
// issuer discovery) rather than a subject lookup; the ordering is identical,
// preferIssuer only documents the caller's intent for implementations that
// might otherwise deprioritize end-entity-shaped certs.
func (r *Registry) ByName(ctx context.Context, name pkix.Name, preferIssuer bool) ([]*certvalidator.Certificate, error) {
	var out []*certvalidator.Certificate
	key := name.String()
	seen := map[string]bool{}
	for _, a := range r.anchors {
		if a.Subject().String() == key && a.Cert != nil {
			out = append(out, a.Cert)
			seen[fp(a.Cert)] = true
		}
	}
	for _, a := range r.extra {
		if a.Subject().String() == key && a.Cert != nil && !seen[fp(a.Cert)] {
			out = append(out, a.Cert)
			seen[fp(a.Cert)] = true
		}
	}
	for _, c := range r.byName[key] {
		if c != nil && !seen[fp(c)] {
			out = append(out, c)
			seen[fp(c)] = true
		}
	}
	if len(out) == 0 && r.fetcher != nil {
		return nil, errors.NotFoundf("certificate with subject %q in local registry (fetcher not consulted by ByName; use BuildPaths)", key)
	}
	return out, nil
}

// ByKeyIdentifier implements certvalidator.Registry.
func (r *Registry) ByKeyIdentifier(ctx context.Context, keyID []byte) ([]*certvalidator.Certificate, error) {
	v, ok := r.byKeyID.Get(keyID)
	if !ok {
		return nil, nil
	}
	return v.([]*certvalidator.Certificate), nil
}

// ByIssuerSerial implements certvalidator.Registry: key is the canonical key
// produced by certvalidator.IssuerSerialKey, compared against the key of
// every seeded certificate; a DER-encoded IssuerSerial does not match.
func (r *Registry) ByIssuerSerial(ctx context.Context, key []byte) (*certvalidator.Certificate, error) {
	for _, c := range r.allCerts() {
		if string(certvalidator.IssuerSerialKey(c.Issuer, c.SerialNumber)) == string(key) {
			return c, nil
		}
	}
	return nil, errors.NotFoundf("certificate for issuer/serial key")
}

func (r *Registry) allCerts() []*certvalidator.Certificate {
	var out []*certvalidator.Certificate
	for _, a := range r.anchors {
		if a.Cert != nil {
			out = append(out, a.Cert)
		}
	}
	for _, a := range r.extra {
		if a.Cert != nil {
			out = append(out, a.Cert)
		}
	}
	out = append(out, r.others...)
	return out
}

// pathCandidate is one partially-built path during build_paths' breadth-
// first search: the chain of certificates found so far, nearest issuer last.
type pathCandidate struct {
	anchor *certvalidator.TrustAnchor
	chain  []*certvalidator.Certificate // cert first, anchor-adjacent last
	seen   map[string]bool              // (issuer,subject) pairs visited, cycle guard
}

// BuildPaths implements certvalidator.Registry.BuildPaths: a breadth-first
// search from cert up through its issuers to a trust anchor, preferring
// trust-root-rooted paths over extra-trust-root-rooted ones. Every anchor
// a candidate chain reaches is a separate returned path; the fetcher is
// consulted only when the seeded registry has no candidate issuer for the
// current top of a chain.
func (r *Registry) BuildPaths(ctx context.Context, cert *certvalidator.Certificate) ([]*certvalidator.ValidationPath, error) {
	var results []*certvalidator.ValidationPath

	queue := []pathCandidate{{chain: []*certvalidator.Certificate{cert}, seen: map[string]bool{}}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		top := cur.chain[len(cur.chain)-1]

		if len(cur.chain) > maxPathDepth {
			return nil, certvalidator.NewPathBuildingError("certificate chain exceeds maximum depth %d building path to %q", maxPathDepth, cert.Subject)
		}

		if anchor := r.matchingAnchor(top); anchor != nil {
			results = append(results, buildPath(anchor, cur.chain))
			continue
		}

		issuers, err := r.issuersOf(ctx, top)
		if err != nil {
			return nil, err
		}
		for _, issuer := range issuers {
			pairKey := issuer.Subject.String() + "->" + top.Subject.String()
			if cur.seen[pairKey] {
				continue // cycle: this (issuer, subject) edge already walked
			}
			if certvalidator.NamesEqual(issuer.Subject, top.Subject) && issuer.SerialNumber.Cmp(top.SerialNumber) == 0 {
				continue // same certificate reappearing as its own issuer
			}
			next := pathCandidate{
				chain: append(append([]*certvalidator.Certificate(nil), cur.chain...), issuer),
				seen:  map[string]bool{},
			}
			for k := range cur.seen {
				next.seen[k] = true
			}
			next.seen[pairKey] = true
			queue = append(queue, next)
		}
	}

	if len(results) == 0 {
		return nil, certvalidator.NewPathBuildingError("no path to a trust anchor found for %q", cert.Subject)
	}
	return results, nil
}

// matchingAnchor returns a trust anchor (root tier preferred) whose subject
// equals cert's issuer, or nil. Only names are compared; the anchor's key is
// not checked against cert's signature.
func (r *Registry) matchingAnchor(cert *certvalidator.Certificate) *certvalidator.TrustAnchor {
	for _, a := range r.anchors {
		if anchorIssued(a, cert) {
			return a
		}
	}
	for _, a := range r.extra {
		if anchorIssued(a, cert) {
			return a
		}
	}
	return nil
}

func anchorIssued(a *certvalidator.TrustAnchor, cert *certvalidator.Certificate) bool {
	return certvalidator.NamesEqual(a.Subject(), cert.Issuer)
}

// issuersOf returns candidate issuers of cert: first from the seeded "other
// certs" tier (by AKI/name), falling back to the fetcher on a miss.
func (r *Registry) issuersOf(ctx context.Context, cert *certvalidator.Certificate) ([]*certvalidator.Certificate, error) {
	var candidates []*certvalidator.Certificate
	if len(cert.AuthorityKeyId) > 0 {
		byKey, _ := r.ByKeyIdentifier(ctx, cert.AuthorityKeyId)
		candidates = append(candidates, byKey...)
	}
	if len(candidates) == 0 {
		for _, c := range r.others {
			if certvalidator.NamesEqual(c.Subject, cert.Issuer) {
				candidates = append(candidates, c)
			}
		}
	}
	if len(candidates) == 0 && r.fetcher != nil {
		fetched, err := r.fetcher.FetchCertIssuers(ctx, cert)
		if err != nil {
			logger.Debugf("reason=fetch_issuers_failed, subject=%q, err=[%v]", cert.Subject.String(), err)
			return nil, nil // a fetch miss simply yields no candidates along this branch, not a hard failure
		}
		candidates = fetched
	}
	return candidates, nil
}

func buildPath(anchor *certvalidator.TrustAnchor, chain []*certvalidator.Certificate) *certvalidator.ValidationPath {
	path := certvalidator.NewValidationPath(anchor)
	for i := len(chain) - 1; i >= 0; i-- {
		path = path.CopyAndAppend(chain[i])
	}
	return path
}

func fp(cert *certvalidator.Certificate) string {
	d := poe.DigestOf(cert.Raw)
	return string(d[:])
}
