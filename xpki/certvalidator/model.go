// Package certvalidator implements the core of a PKIX certification-path
// validator: RFC 5280 §6.1 path validation, RFC 5280 §6.3 CRL-based
// revocation, and the combinator that reconciles CRL/OCSP outcomes. Package
// ac (RFC 5755 attribute certificates) builds on top of it.
//
// Certificate fetching, OCSP response fetching, the ASN.1 decoder for
// certificates themselves, and the cryptographic signature primitive are
// treated as external collaborators; this package consumes them through the
// interfaces declared here (Registry, OCSPOracle) or in package fetch.
package certvalidator

import (
	"context"
	"crypto"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"time"

	"github.com/go-phorce/pkixvalidator/audit"
	"github.com/go-phorce/pkixvalidator/slices"
	"github.com/go-phorce/pkixvalidator/xlog"
	"github.com/go-phorce/pkixvalidator/xpki/certvalidator/poe"
	"github.com/juju/errors"
)

var logger = xlog.NewPackageLogger("github.com/go-phorce/pkixvalidator/xpki", "certvalidator")

// CertLike is implemented by both public-key certificates and attribute
// certificates so the critical-extension gate and a handful of other
// checks can be written once instead of branching on a dynamic type, per
// the "Dynamic cert/attribute-cert polymorphism" design note.
type CertLike interface {
	IssuerDN() pkix.Name
	CriticalExtensions() []asn1ObjectIdentifierString
	ExtensionValue(oidStr string) ([]byte, bool)
}

// asn1ObjectIdentifierString avoids importing encoding/asn1 into the
// CertLike contract itself; callers compare against OID.String().
type asn1ObjectIdentifierString = string

// Certificate wraps a decoded X.509 certificate with the extension fields
// RFC 5280 path validation needs that crypto/x509 does not surface
// (policy mappings, policy constraints, inhibit-any-policy, AA controls,
// full distribution-point structures).
type Certificate struct {
	*x509.Certificate

	policies          []PolicyInformation
	policyMappings    []PolicyMapping
	policyConstraints *PolicyConstraintsInfo
	inhibitAnyPolicy  *int
	aaControls        *AAControlsInfo
	crlDistPoints     []DistributionPoint
	freshestCRL       []DistributionPoint

	criticalOIDs []string
	extByOID     map[string][]byte
	sigAlgID     pkix.AlgorithmIdentifier
}

// NewCertificate decodes the path-validation-relevant extensions of cert
// and returns a Certificate ready for use by Validate.
func NewCertificate(cert *x509.Certificate) (*Certificate, error) {
	c := &Certificate{Certificate: cert, extByOID: make(map[string][]byte)}

	var outer struct {
		TBSCertificate     asn1.RawValue
		SignatureAlgorithm pkix.AlgorithmIdentifier
		SignatureValue     asn1.BitString
	}
	if _, err := asn1.Unmarshal(cert.Raw, &outer); err != nil {
		return nil, errors.Annotate(err, "decoding outer signatureAlgorithm")
	}
	c.sigAlgID = outer.SignatureAlgorithm

	for _, ext := range cert.Extensions {
		oidStr := ext.Id.String()
		c.extByOID[oidStr] = ext.Value
		if ext.Critical {
			c.criticalOIDs = append(c.criticalOIDs, oidStr)
		}
		var err error
		switch oidStr {
		case oidExtCertificatePolicies.String():
			c.policies, err = parseCertificatePolicies(ext.Value)
		case oidExtPolicyMappings.String():
			c.policyMappings, err = parsePolicyMappings(ext.Value)
		case oidExtPolicyConstraints.String():
			c.policyConstraints, err = parsePolicyConstraints(ext.Value)
		case oidExtInhibitAnyPolicy.String():
			var n int
			n, err = parseInhibitAnyPolicy(ext.Value)
			c.inhibitAnyPolicy = &n
		case oidExtAACertAttributes.String():
			c.aaControls, err = parseAAControls(ext.Value)
		case oidExtCRLDistributionPoints.String():
			c.crlDistPoints, err = parseDistributionPoints(ext.Value)
		case oidExtFreshestCRL.String():
			c.freshestCRL, err = parseDistributionPoints(ext.Value)
		}
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Policies returns the decoded certificatePolicies entries (nil if absent).
func (c *Certificate) Policies() []PolicyInformation { return c.policies }

// PolicyMappings returns the decoded policyMappings entries.
func (c *Certificate) PolicyMappings() []PolicyMapping { return c.policyMappings }

// PolicyConstraints returns the decoded policyConstraints extension, or nil.
func (c *Certificate) PolicyConstraints() *PolicyConstraintsInfo { return c.policyConstraints }

// InhibitAnyPolicy returns the decoded inhibitAnyPolicy SkipCerts value.
func (c *Certificate) InhibitAnyPolicy() (int, bool) {
	if c.inhibitAnyPolicy == nil {
		return 0, false
	}
	return *c.inhibitAnyPolicy, true
}

// AAControls returns the decoded aa-controls extension, or nil.
func (c *Certificate) AAControls() *AAControlsInfo { return c.aaControls }

// CRLDistributionPoints returns the fully decoded CRL DPs (richer than
// crypto/x509.Certificate.CRLDistributionPoints, which only keeps URIs).
func (c *Certificate) CRLDistributionPoints() []DistributionPoint { return c.crlDistPoints }

// FreshestCRL returns the decoded freshestCRL (delta CRL DP) extension.
func (c *Certificate) FreshestCRL() []DistributionPoint { return c.freshestCRL }

// IsSelfIssued reports whether subject == issuer (RFC 5280 §6.1, not to be
// confused with a self-signed trust anchor).
func (c *Certificate) IsSelfIssued() bool {
	return namesEqual(c.Subject, c.Issuer)
}

// IssuerDN implements CertLike.
func (c *Certificate) IssuerDN() pkix.Name { return c.Issuer }

// CriticalExtensions implements CertLike.
func (c *Certificate) CriticalExtensions() []string { return c.criticalOIDs }

// ExtensionValue implements CertLike.
func (c *Certificate) ExtensionValue(oidStr string) ([]byte, bool) {
	v, ok := c.extByOID[oidStr]
	return v, ok
}

func namesEqual(a, b pkix.Name) bool {
	return a.String() == b.String()
}

// TrustQualifiers overrides and augments caller-supplied PKIX parameters
// for certification paths rooted at a particular TrustAnchor.
type TrustQualifiers struct {
	MaxPathLength               *int
	MaxAAPathLength             *int
	InitialPolicySet            []string // nil means "any_policy"
	InitialExplicitPolicy       bool
	InitialPolicyMappingInhibit bool
	InitialAnyPolicyInhibit     bool
	InitialPermittedSubtrees    *Subtrees
	InitialExcludedSubtrees     *Subtrees
}

// TrustAnchor is either a self-signed certificate or a bare authority
// record, optionally carrying TrustQualifiers.
type TrustAnchor struct {
	Name       pkix.Name
	PublicKey  crypto.PublicKey
	Cert       *Certificate // optional: present when anchor is a self-signed cert
	Qualifiers *TrustQualifiers
}

// Subject returns the trust anchor's authoritative subject name.
func (a *TrustAnchor) Subject() pkix.Name {
	if a.Cert != nil {
		return a.Cert.Subject
	}
	return a.Name
}

// Key returns the trust anchor's authoritative public key.
func (a *TrustAnchor) Key() crypto.PublicKey {
	if a.Cert != nil {
		return a.Cert.PublicKey
	}
	return a.PublicKey
}

// ValidationPath is a non-empty ordered sequence (trust anchor, c1, ..., cn)
// where each ci is the subject-cert of issuer c(i-1).
type ValidationPath struct {
	anchor *TrustAnchor
	certs  []*Certificate
}

// NewValidationPath starts a path at anchor.
func NewValidationPath(anchor *TrustAnchor) *ValidationPath {
	return &ValidationPath{anchor: anchor}
}

// Len returns n, the number of certificates past the trust anchor.
func (p *ValidationPath) Len() int { return len(p.certs) }

// At returns the i'th certificate, 1-indexed (1..n).
func (p *ValidationPath) At(i int) *Certificate { return p.certs[i-1] }

// TrustAnchor returns the path's trust anchor.
func (p *ValidationPath) TrustAnchor() *TrustAnchor { return p.anchor }

// Last returns the leaf certificate (cn), or nil for an anchor-only path.
func (p *ValidationPath) Last() *Certificate {
	if len(p.certs) == 0 {
		return nil
	}
	return p.certs[len(p.certs)-1]
}

// CopyAndAppend returns a new path with cert appended, leaving p untouched.
func (p *ValidationPath) CopyAndAppend(cert *Certificate) *ValidationPath {
	next := &ValidationPath{anchor: p.anchor, certs: make([]*Certificate, len(p.certs), len(p.certs)+1)}
	copy(next.certs, p.certs)
	next.certs = append(next.certs, cert)
	return next
}

// TruncateToIssuerAndAppend finds the deepest prefix of p whose last
// element's subject equals cert.Issuer (by key identifier, then by name),
// and returns a new path consisting of that prefix with cert appended. It
// fails with a lookup error when no such prefix exists.
func (p *ValidationPath) TruncateToIssuerAndAppend(cert *Certificate) (*ValidationPath, error) {
	for i := len(p.certs); i >= 0; i-- {
		var subjectKeyID []byte
		var subjectName pkix.Name
		if i == 0 {
			subjectName = p.anchor.Subject()
			if tc := p.anchor.Cert; tc != nil {
				subjectKeyID = tc.SubjectKeyId
			}
		} else {
			subjectName = p.certs[i-1].Subject
			subjectKeyID = p.certs[i-1].SubjectKeyId
		}
		matches := false
		if len(cert.AuthorityKeyId) > 0 && len(subjectKeyID) > 0 {
			matches = slices.ByteSlicesEqual(cert.AuthorityKeyId, subjectKeyID)
		} else {
			matches = namesEqual(subjectName, cert.Issuer)
		}
		if matches {
			prefix := &ValidationPath{anchor: p.anchor, certs: append([]*Certificate(nil), p.certs[:i]...)}
			return prefix.CopyAndAppend(cert), nil
		}
	}
	return nil, newErr(KindPathBuildingError, "no prefix of the path issued %q", cert.Subject)
}

// QualifiedPolicy is a (user_domain_policy_id, issuer_domain_policy_id,
// qualifiers) triple produced by intersecting the final policy tree with
// the caller's acceptable policy set.
type QualifiedPolicy struct {
	UserDomainPolicyID   string
	IssuerDomainPolicyID string
	Qualifiers           []PolicyQualifier
}

// PKIXParams are the caller-supplied initial PKIX parameters, combined with
// TrustQualifiers during state initialization.
type PKIXParams struct {
	AcceptablePolicies      []string // nil means {any_policy}
	InitialPolicyMapping    bool     // inhibit policy mapping
	InitialExplicitPolicy   bool
	InitialAnyPolicyInhibit bool
	PermittedSubtrees       *Subtrees
	ExcludedSubtrees        *Subtrees
}

// PathState is the per-traversal RFC 5280 §6.1.2 state.
type PathState struct {
	ValidPolicyTree   *PolicyNode
	ExplicitPolicy    int
	InhibitAnyPolicy  int
	PolicyMapping     int
	MaxPathLength     int
	MaxAAPathLength   int
	WorkingPublicKey  crypto.PublicKey
	WorkingIssuerName pkix.Name
	PermittedSubtrees Subtrees
	ExcludedSubtrees  Subtrees
	AAControlsUsed    bool
}

// ProcessingState is the per-traversal bookkeeping around PathState: the
// current index, an end-entity-name override (used when the CRL engine
// recurses into path validation for a CRL issuer's own path), the
// recursion guard stack, and the side-validation flag.
type ProcessingState struct {
	Index                 int
	EndEntityNameOverride string
	PathStack             []*ValidationPath
	IsSideValidation      bool
}

// Describe returns a human label for diagnostics, honoring the end-entity
// override the CRL engine sets when validating a CRL issuer's own chain.
func (s *ProcessingState) Describe(leaf *Certificate) string {
	if s.EndEntityNameOverride != "" {
		return s.EndEntityNameOverride
	}
	return leaf.Subject.String()
}

// OnStack reports whether cert (by SHA-256 fingerprint) already appears as
// the leaf of any path on the recursion stack, consulted before recursing
// into path validation for a CRL issuer's own chain.
func (s *ProcessingState) OnStack(cert *Certificate) bool {
	fp := poe.DigestOf(cert.Raw)
	for _, p := range s.PathStack {
		if last := p.Last(); last != nil && poe.DigestOf(last.Raw) == fp {
			return true
		}
	}
	return false
}

// Push returns a copy of s with path appended to the recursion stack.
func (s *ProcessingState) Push(path *ValidationPath) *ProcessingState {
	next := *s
	next.PathStack = append(append([]*ValidationPath(nil), s.PathStack...), path)
	return &next
}

// RevocationMode names one position's (EE vs intermediate CA) revocation
// policy.
type RevocationMode int

const (
	// ModeNoCheck never checks revocation for this position.
	ModeNoCheck RevocationMode = iota
	// ModeCheckIfDeclared checks only revinfo the cert itself declares.
	ModeCheckIfDeclared
	// ModeCRLRequired names a position that requires a CRL check; the
	// requirement itself is enforced through RevocationRule.CRLMandatory.
	ModeCRLRequired
	// ModeOCSPRequired names a position that requires an OCSP check; the
	// requirement itself is enforced through RevocationRule.OCSPMandatory.
	ModeOCSPRequired
	// ModeCRLOrOCSPRequired requires at least one of CRL/OCSP to succeed.
	ModeCRLOrOCSPRequired
	// ModeCRLAndOCSPRequired keeps a good OCSP status from settling the check
	// on its own and fails when no revocation information is found; whether
	// each of CRL and OCSP must succeed is set by the rule's mandatory flags.
	ModeCRLAndOCSPRequired
)

// RevocationRule is the per-position policy consumed by the revocation combinator.
type RevocationRule struct {
	Mode          RevocationMode
	OCSPRelevant  bool
	OCSPMandatory bool
	CRLRelevant   bool
	CRLMandatory  bool
	Tolerant      bool
	Strict        bool
}

// RevocationPolicy supplies the per-position rules and the freshness
// classifier the CRL engine consults.
type RevocationPolicy struct {
	EndEntityRule      RevocationRule
	IntermediateCARule RevocationRule
	MaxAge             time.Duration
	ClassifyFreshness  func(thisUpdate, nextUpdate, now time.Time, maxAge time.Duration) Freshness
}

// Freshness classifies a CRL's recency relative to the validation moment.
type Freshness int

const (
	FreshnessOK Freshness = iota
	FreshnessStale
	FreshnessTooNew
	FreshnessIndeterminate
)

// DefaultClassifyFreshness implements the straightforward thisUpdate <= now
// <= nextUpdate (with an optional MaxAge cap) rule used when a caller does
// not supply its own.
func DefaultClassifyFreshness(thisUpdate, nextUpdate, now time.Time, maxAge time.Duration) Freshness {
	if now.Before(thisUpdate) {
		return FreshnessTooNew
	}
	if !nextUpdate.IsZero() && now.After(nextUpdate) {
		return FreshnessStale
	}
	if maxAge > 0 && now.Sub(thisUpdate) > maxAge {
		return FreshnessStale
	}
	return FreshnessOK
}

// SoftFailEvent is reported through ValidationContext.SoftFailHook whenever
// a fetch or check fails under a tolerant policy.
type SoftFailEvent struct {
	Certificate *Certificate
	Stage       string // "ocsp" or "crl"
	Err         error
}

// ValidationContext aggregates every input a validation consumes: the
// moment, tolerances, weak-hash set, revocation policy, lookup stores, and
// diagnostic hooks.
type ValidationContext struct {
	Time             time.Time
	TimeTolerance    time.Duration
	WeakHashes       map[string]bool
	Whitelisted      func(cert *Certificate) bool
	RevocationPolicy *RevocationPolicy
	Registry         Registry
	CRLClient        CRLClient
	OCSPOracle       OCSPOracle
	POE              *poe.Map
	SoftFailHook     func(SoftFailEvent)
	Auditor          audit.Auditor

	validatedPaths map[string]bool
}

// NewValidationContext returns a context defaulting Time to time.Now(),
// WeakHashes to {MD2,MD5,SHA1}, and an empty POE map.
func NewValidationContext(opts ...ContextOption) *ValidationContext {
	vc := &ValidationContext{
		Time:           time.Now().UTC(),
		WeakHashes:     map[string]bool{"MD2": true, "MD5": true, "SHA1": true},
		POE:            poe.New(nil),
		validatedPaths: make(map[string]bool),
	}
	for _, o := range opts {
		o(vc)
	}
	return vc
}

// ContextOption configures a ValidationContext.
type ContextOption func(*ValidationContext)

// WithCurrentTime overrides the validation moment.
func WithCurrentTime(t time.Time) ContextOption { return func(vc *ValidationContext) { vc.Time = t } }

// WithTimeTolerance sets the clock-skew tolerance applied at both validity
// boundaries.
func WithTimeTolerance(d time.Duration) ContextOption {
	return func(vc *ValidationContext) { vc.TimeTolerance = d }
}

// WithWeakHashes overrides the weak-hash-algorithm-name set.
func WithWeakHashes(names ...string) ContextOption {
	return func(vc *ValidationContext) {
		m := make(map[string]bool, len(names))
		for _, n := range names {
			m[n] = true
		}
		vc.WeakHashes = m
	}
}

// WithRegistry sets the certificate registry.
func WithRegistry(r Registry) ContextOption { return func(vc *ValidationContext) { vc.Registry = r } }

// WithRevocationPolicy sets the revocation policy consumed by revocation checking.
func WithRevocationPolicy(p *RevocationPolicy) ContextOption {
	return func(vc *ValidationContext) { vc.RevocationPolicy = p }
}

// WithCRLClient sets the CRL-with-POE source.
func WithCRLClient(c CRLClient) ContextOption { return func(vc *ValidationContext) { vc.CRLClient = c } }

// WithOCSPOracle sets the OCSP oracle.
func WithOCSPOracle(o OCSPOracle) ContextOption {
	return func(vc *ValidationContext) { vc.OCSPOracle = o }
}

// WithSoftFailHook sets the soft-fail diagnostic hook.
func WithSoftFailHook(h func(SoftFailEvent)) ContextOption {
	return func(vc *ValidationContext) { vc.SoftFailHook = h }
}

// WithAuditor sets the audit sink that receives a record of every path
// validation, revocation check, and soft-fail this package observes.
func WithAuditor(a audit.Auditor) ContextOption {
	return func(vc *ValidationContext) { vc.Auditor = a }
}

// reportSoftFail invokes the hook if one is set and records the event with
// the configured Auditor; always non-fatal.
func (vc *ValidationContext) reportSoftFail(ev SoftFailEvent) {
	if vc.SoftFailHook != nil {
		vc.SoftFailHook(ev)
	}
	subject := ""
	if ev.Certificate != nil {
		subject = ev.Certificate.Subject.String()
	}
	auditEvent(vc, EventSoftFail, subject, "%s: %s", ev.Stage, ev.Err)
}

// MarkValidated registers path as already validated and reports whether it
// was registered before; re-registering the same path changes nothing.
func (vc *ValidationContext) MarkValidated(path *ValidationPath) bool {
	key := pathCacheKey(path)
	if vc.validatedPaths[key] {
		return true
	}
	vc.validatedPaths[key] = true
	return false
}

// IssuerSerialKey builds the canonical lookup key Registry.ByIssuerSerial
// expects for an (issuer name, serial number) pair, used both by a Registry
// implementation's own index and by package ac when resolving an
// AttributeCertificate's base_certificate_id / AKI-embedded issuer-serial
// reference to a concrete certificate.
func IssuerSerialKey(issuer pkix.Name, serial *big.Int) []byte {
	key := issuer.String()
	if serial != nil {
		key += ":" + serial.String()
	}
	return []byte(key)
}

func pathCacheKey(path *ValidationPath) string {
	key := path.TrustAnchor().Subject().String()
	for i := 1; i <= path.Len(); i++ {
		key += "/" + string(path.At(i).Raw)
	}
	return key
}

// IsWhitelisted reports whether cert is exempt from validity-period checks.
func (vc *ValidationContext) IsWhitelisted(cert *Certificate) bool {
	return vc.Whitelisted != nil && vc.Whitelisted(cert)
}

// Registry is the certificate lookup store path building and CRL-issuer
// resolution consult.
type Registry interface {
	ByName(ctx context.Context, name pkix.Name, preferIssuer bool) ([]*Certificate, error)
	ByKeyIdentifier(ctx context.Context, keyID []byte) ([]*Certificate, error)
	ByIssuerSerial(ctx context.Context, issuerSerialDER []byte) (*Certificate, error)
	BuildPaths(ctx context.Context, cert *Certificate) ([]*ValidationPath, error)
}

// CRLClient retrieves candidate CRLs (with POE) for a certificate; the
// decoding of the CRL bytes themselves is out of this package's scope, so
// this interface hands back already-decoded CRLs paired with their POE
// timestamp.
type CRLClient interface {
	FetchCRLs(ctx context.Context, cert *Certificate) ([]*CRLWithPOE, error)
}

// OCSPOracle is the external collaborator that fetches and verifies OCSP
// responses; its semantics live outside this package.
type OCSPOracle interface {
	VerifyOCSPResponse(ctx context.Context, cert *Certificate, path *ValidationPath, vctx *ValidationContext, pstate *ProcessingState) error
}
