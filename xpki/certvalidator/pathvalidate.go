package certvalidator

import (
	"context"
	"crypto/dsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"time"

	"github.com/go-phorce/pkixvalidator/metrics"
	"github.com/juju/errors"
)

var metricsKeyValidate = []string{"certvalidator", "validate"}

// initialPathState implements RFC 5280 §6.1.2: derive
// the starting PathState from the trust anchor, the caller's PKIXParams, and
// any TrustQualifiers the anchor carries, which narrow (never widen) the
// caller-supplied parameters.
func initialPathState(anchor *TrustAnchor, params PKIXParams, pathLen int) *PathState {
	q := anchor.Qualifiers

	explicit := 0
	if !params.InitialExplicitPolicy {
		explicit = pathLen + 1
	}
	mapping := 0
	if !params.InitialPolicyMapping {
		mapping = pathLen + 1
	}
	inhibitAny := 0
	if !params.InitialAnyPolicyInhibit {
		inhibitAny = pathLen + 1
	}

	maxPathLen := pathLen
	maxAAPathLen := pathLen

	permitted := Subtrees{}
	excluded := Subtrees{}
	if params.PermittedSubtrees != nil {
		permitted = *params.PermittedSubtrees
	}
	if params.ExcludedSubtrees != nil {
		excluded = *params.ExcludedSubtrees
	}

	if q != nil {
		if q.MaxPathLength != nil && *q.MaxPathLength < maxPathLen {
			maxPathLen = *q.MaxPathLength
		}
		if q.MaxAAPathLength != nil && *q.MaxAAPathLength < maxAAPathLen {
			maxAAPathLen = *q.MaxAAPathLength
		}
		if q.InitialExplicitPolicy {
			explicit = 0
		}
		if q.InitialPolicyMappingInhibit {
			mapping = 0
		}
		if q.InitialAnyPolicyInhibit {
			inhibitAny = 0
		}
		if q.InitialPermittedSubtrees != nil {
			permitted = permitted.IntersectSubtrees(*q.InitialPermittedSubtrees)
		}
		if q.InitialExcludedSubtrees != nil {
			excluded = excluded.IntersectSubtrees(*q.InitialExcludedSubtrees)
		}
	}

	return &PathState{
		ValidPolicyTree:   newPolicyTreeRoot(),
		ExplicitPolicy:    explicit,
		InhibitAnyPolicy:  inhibitAny,
		PolicyMapping:     mapping,
		MaxPathLength:     maxPathLen,
		MaxAAPathLength:   maxAAPathLen,
		WorkingPublicKey:  anchor.Key(),
		WorkingIssuerName: anchor.Subject(),
		PermittedSubtrees: permitted,
		ExcludedSubtrees:  excluded,
	}
}

// checkCriticalExtensions implements the critical-extension gate shared by
// certificates and attribute certificates: every OID the
// CertLike marks critical must be one this package (or the AC package, for
// ACs) understands.
func checkCriticalExtensions(c CertLike, supported map[string]bool) error {
	for _, oid := range c.CriticalExtensions() {
		if !supported[oid] {
			return newErr(KindInvalidCertificate, "unsupported critical extension %s", oid)
		}
	}
	return nil
}

// checkValidityPeriod applies vctx.TimeTolerance symmetrically to both
// bounds, unless cert is whitelisted.
func checkValidityPeriod(vctx *ValidationContext, cert *Certificate) error {
	if vctx.IsWhitelisted(cert) {
		return nil
	}
	t := vctx.Time
	if t.Before(cert.NotBefore.Add(-vctx.TimeTolerance)) {
		return newErr(KindNotYetValid, "certificate %q not valid until %s", cert.Subject, cert.NotBefore)
	}
	if t.After(cert.NotAfter.Add(vctx.TimeTolerance)) {
		return newErr(KindExpired, "certificate %q expired at %s", cert.Subject, cert.NotAfter)
	}
	return nil
}

// Validate is the path state machine: RFC 5280 §6.1's basic certificate
// processing loop plus wrap-up. path must contain at least one certificate
// (the end entity). When the context carries no RevocationPolicy revocation
// is not checked; callers that need RFC 5280 §6.3 behavior supply one via
// ValidationContext.RevocationPolicy.
func Validate(ctx context.Context, vctx *ValidationContext, path *ValidationPath, params PKIXParams, pstate *ProcessingState) (*PathState, []QualifiedPolicy, error) {
	start := time.Now()
	state, policies, err := validate(ctx, vctx, path, params, pstate)

	leafSubject := ""
	if path.Len() > 0 {
		leafSubject = path.Last().Subject.String()
	}
	metrics.MeasureSince(metricsKeyValidate, start, metrics.Tag{Name: "outcome", Value: outcomeTag(err)})
	metrics.IncrCounter(metricsKeyValidate, 1, metrics.Tag{Name: "outcome", Value: outcomeTag(err)})
	if err != nil {
		auditEvent(vctx, EventPathRejected, leafSubject, "%s", err)
	} else {
		auditEvent(vctx, EventPathValidated, leafSubject, "path of length %d validated", path.Len())
	}
	return state, policies, err
}

func outcomeTag(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// validate is the unwrapped implementation Validate measures and audits.
func validate(ctx context.Context, vctx *ValidationContext, path *ValidationPath, params PKIXParams, pstate *ProcessingState) (*PathState, []QualifiedPolicy, error) {
	n := path.Len()
	if n == 0 {
		return nil, nil, newErr(KindPathValidationError, "validation path has no certificates")
	}
	if pstate == nil {
		pstate = &ProcessingState{}
	}
	if pstate.OnStack(path.Last()) {
		return nil, nil, newErr(KindPathValidationError, "recursive validation of %q detected", pstate.Describe(path.Last()))
	}
	pstate = pstate.Push(path)

	state := initialPathState(path.TrustAnchor(), params, n)

	for i := 1; i <= n; i++ {
		cert := path.At(i)
		isFinal := i == n

		if err := checkCriticalExtensions(cert, supportedCriticalExtensions); err != nil {
			return nil, nil, err
		}
		if err := VerifyCertificateSignature(vctx, cert, state.WorkingPublicKey); err != nil {
			return nil, nil, err
		}
		if err := checkValidityPeriod(vctx, cert); err != nil {
			return nil, nil, err
		}

		if vctx.RevocationPolicy != nil && !pstate.IsSideValidation {
			rule := vctx.RevocationPolicy.IntermediateCARule
			if isFinal {
				rule = vctx.RevocationPolicy.EndEntityRule
			}
			// issuer is nil when the trust anchor is a bare authority record;
			// the CRL engine falls back to the registry in that case.
			if err := CheckRevocation(ctx, vctx, cert, issuerCertOf(path, i), path, pstate, rule); err != nil {
				return nil, nil, err
			}
		}

		if !namesEqual(cert.Issuer, state.WorkingIssuerName) {
			return nil, nil, newErr(KindPathValidationError, "certificate %q issuer does not match %q", cert.Subject, state.WorkingIssuerName)
		}

		selfIssued := cert.IsSelfIssued()
		if !selfIssued || isFinal {
			if name, ok := state.PermittedSubtrees.AcceptCert(cert); !ok {
				return nil, nil, newErr(KindPathValidationError, "name %v in %q is outside the permitted subtrees", name, cert.Subject)
			}
			if name, ok := state.ExcludedSubtrees.AcceptCert(cert); !ok {
				return nil, nil, newErr(KindPathValidationError, "name %v in %q falls in an excluded subtree", name, cert.Subject)
			}
		}

		anyPolicyUninhibited := state.InhibitAnyPolicy > 0 || (!isFinal && selfIssued)
		state.ValidPolicyTree = updatePolicyTree(state.ValidPolicyTree, i, cert.Policies(), anyPolicyUninhibited)
		if state.ExplicitPolicy == 0 && state.ValidPolicyTree == nil {
			return nil, nil, newErr(KindPathValidationError, "no valid policy remains after processing %q", cert.Subject)
		}

		if !isFinal {
			if err := prepareNextCertificate(state, i, cert); err != nil {
				return nil, nil, err
			}
		} else {
			if state.ExplicitPolicy > 0 {
				state.ExplicitPolicy--
			}
			if pc := cert.PolicyConstraints(); pc != nil && pc.RequireExplicitPolicy != nil && *pc.RequireExplicitPolicy == 0 {
				state.ExplicitPolicy = 0
			}
		}
	}

	leaf := path.Last()
	acceptable := params.AcceptablePolicies
	if len(acceptable) == 0 {
		acceptable = []string{AnyPolicy.String()}
	}
	if q := path.TrustAnchor().Qualifiers; q != nil && q.InitialPolicySet != nil {
		acceptable = intersectPolicySets(acceptable, q.InitialPolicySet)
	}
	out, err := finishPolicyProcessing(state, n, acceptable, leaf)
	if err != nil {
		return nil, nil, err
	}
	vctx.MarkValidated(path)
	return state, out, nil
}

// finishPolicyProcessing is the tail of RFC 5280 §6.1.5 step 4 g: intersect
// the final policy tree's depth-n nodes with the acceptable-policy set and
// produce the qualified-policy triples. A certification path that asserted
// no policies at all is still acceptable to a caller that accepts anyPolicy:
// it yields the singleton (anyPolicy, anyPolicy, no qualifiers).
func finishPolicyProcessing(state *PathState, depth int, acceptable []string, leaf *Certificate) ([]QualifiedPolicy, error) {
	acceptAny := containsAnyPolicy(acceptable)
	if state.ValidPolicyTree == nil {
		if state.ExplicitPolicy == 0 {
			return nil, newErr(KindPathValidationError, "no valid set of policies for %q", leaf.Subject)
		}
		if acceptAny {
			return []QualifiedPolicy{{UserDomainPolicyID: AnyPolicy.String(), IssuerDomainPolicyID: AnyPolicy.String()}}, nil
		}
		return nil, nil
	}

	var nodes []*PolicyNode
	if acceptAny {
		nodes = nodesAtDepth(state.ValidPolicyTree, depth)
	} else {
		nodes = pruneUnacceptable(state.ValidPolicyTree, depth, acceptable)
	}
	if len(nodes) == 0 {
		if state.ExplicitPolicy == 0 {
			return nil, newErr(KindPathValidationError, "no acceptable policy for %q", leaf.Subject)
		}
		return nil, nil
	}
	out := make([]QualifiedPolicy, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, QualifiedPolicy{
			UserDomainPolicyID:   userDomainPolicyID(n),
			IssuerDomainPolicyID: n.ValidPolicy,
			Qualifiers:           n.Qualifiers,
		})
	}
	return out, nil
}

// intersectPolicySets combines the caller's AcceptablePolicies with a
// trust anchor's InitialPolicySet: anyPolicy on either side is a wildcard
// that does not narrow the other side; otherwise the result is the overlap
// of the two sets.
func intersectPolicySets(a, b []string) []string {
	aAny, bAny := containsAnyPolicy(a), containsAnyPolicy(b)
	switch {
	case aAny && bAny:
		return a
	case aAny:
		return b
	case bAny:
		return a
	}
	bSet := make(map[string]bool, len(b))
	for _, p := range b {
		bSet[p] = true
	}
	var out []string
	for _, p := range a {
		if bSet[p] {
			out = append(out, p)
		}
	}
	return out
}

func containsAnyPolicy(policies []string) bool {
	for _, p := range policies {
		if p == AnyPolicy.String() {
			return true
		}
	}
	return false
}

// prepareNextCertificate implements RFC 5280 §6.1.4, the per-certificate
// state transition applied after basic processing of a non-final
// certificate, before moving on to its subordinate.
func prepareNextCertificate(state *PathState, depth int, cert *Certificate) error {
	if mappings := cert.PolicyMappings(); len(mappings) > 0 {
		for _, m := range mappings {
			if m.IssuerDomainPolicy.String() == AnyPolicy.String() || m.SubjectDomainPolicy.String() == AnyPolicy.String() {
				return newErr(KindInvalidCertificate, "policyMappings in %q may not name anyPolicy", cert.Subject)
			}
		}
		if state.PolicyMapping > 0 {
			applyPolicyMapping(state.ValidPolicyTree, depth, mappings, false, state.InhibitAnyPolicy > 0)
		} else {
			var issuerDomains []string
			for _, m := range mappings {
				issuerDomains = append(issuerDomains, m.IssuerDomainPolicy.String())
			}
			deletePolicyNodes(state.ValidPolicyTree, depth, issuerDomains)
		}
	}

	state.WorkingPublicKey = inheritDSAParameters(state.WorkingPublicKey, cert.PublicKey)
	state.WorkingIssuerName = cert.Subject

	if !cert.IsSelfIssued() {
		if state.ExplicitPolicy > 0 {
			state.ExplicitPolicy--
		}
		if state.PolicyMapping > 0 {
			state.PolicyMapping--
		}
		if state.InhibitAnyPolicy > 0 {
			state.InhibitAnyPolicy--
		}
		if state.MaxPathLength == 0 {
			return newErr(KindPathValidationError, "path length constraint exceeded at %q", cert.Subject)
		}
		state.MaxPathLength--
		if state.MaxAAPathLength == 0 {
			return newErr(KindPathValidationError, "AA path length constraint exceeded at %q", cert.Subject)
		}
		state.MaxAAPathLength--
	}

	if pc := cert.PolicyConstraints(); pc != nil {
		if pc.RequireExplicitPolicy != nil && *pc.RequireExplicitPolicy < state.ExplicitPolicy {
			state.ExplicitPolicy = *pc.RequireExplicitPolicy
		}
		if pc.InhibitPolicyMapping != nil && *pc.InhibitPolicyMapping < state.PolicyMapping {
			state.PolicyMapping = *pc.InhibitPolicyMapping
		}
	}
	if n, ok := cert.InhibitAnyPolicy(); ok && n < state.InhibitAnyPolicy {
		state.InhibitAnyPolicy = n
	}

	if !cert.IsCA || !cert.BasicConstraintsValid {
		return newErr(KindPathValidationError, "%q is not a valid CA certificate", cert.Subject)
	}
	if _, hasKeyUsage := cert.ExtensionValue(oidExtKeyUsage.String()); hasKeyUsage && cert.KeyUsage&x509.KeyUsageCertSign == 0 {
		return newErr(KindPathValidationError, "%q key usage does not permit certificate signing", cert.Subject)
	}
	if err := applyAAControls(state, depth, cert); err != nil {
		return err
	}
	if cert.BasicConstraintsValid && (cert.MaxPathLenZero || cert.MaxPathLen > 0) && cert.MaxPathLen < state.MaxPathLength {
		state.MaxPathLength = cert.MaxPathLen
	}

	if nc, ok := cert.ExtensionValue(oidExtNameConstraints.String()); ok {
		permitted, excluded, err := parseNameConstraints(nc)
		if err != nil {
			return err
		}
		state.PermittedSubtrees = state.PermittedSubtrees.IntersectPermitted(permitted)
		state.ExcludedSubtrees = state.ExcludedSubtrees.UnionExcluded(excluded)
	}
	return nil
}

type nameConstraintsASN1 struct {
	Permitted []generalSubtreeASN1 `asn1:"optional,tag:0"`
	Excluded  []generalSubtreeASN1 `asn1:"optional,tag:1"`
}

type generalSubtreeASN1 struct {
	Base asn1.RawValue
	// Minimum/Maximum (tags 0/1) are not supported: RFC 5280 requires
	// minimum 0 and forbids maximum, so they are never meaningfully present.
}

func parseNameConstraints(ext []byte) ([]GeneralName, []GeneralName, error) {
	var raw nameConstraintsASN1
	if _, err := asn1.Unmarshal(ext, &raw); err != nil {
		return nil, nil, errors.Trace(err)
	}
	permitted, err := decodeSubtrees(raw.Permitted)
	if err != nil {
		return nil, nil, err
	}
	excluded, err := decodeSubtrees(raw.Excluded)
	if err != nil {
		return nil, nil, err
	}
	return permitted, excluded, nil
}

func decodeSubtrees(subtrees []generalSubtreeASN1) ([]GeneralName, error) {
	var out []GeneralName
	for _, st := range subtrees {
		gn, err := parseGeneralName(st.Base)
		if err != nil {
			return nil, errors.Trace(err)
		}
		out = append(out, gn)
	}
	return out, nil
}

// issuerCertOf returns the certificate at depth i-1 (1-indexed path position
// i's issuer): either the previous certificate in the path, or nil when i==1
// and the trust anchor is a bare authority record rather than a certificate
// (the CRL engine then resolves the issuer through the registry).
func issuerCertOf(path *ValidationPath, i int) *Certificate {
	if i == 1 {
		return path.TrustAnchor().Cert
	}
	return path.At(i - 1)
}

// NamesEqual exports namesEqual's DN-comparison rule for package ac, which
// needs the identical notion of equality when matching an attribute
// certificate's holder/issuer against a public-key certificate's subject.
func NamesEqual(a, b pkix.Name) bool { return namesEqual(a, b) }

// inheritDSAParameters implements RFC 5280 §6.1.4(f) key inheritance: a DSA
// public key whose domain parameters (P, Q, G) are absent inherits them
// verbatim from the previous working key, when that key was also DSA.
// Nothing beyond this verbatim copy-forward is supported (no re-derivation
// or cross-algorithm inheritance).
func inheritDSAParameters(previous, next interface{}) interface{} {
	nextDSA, ok := next.(*dsa.PublicKey)
	if !ok || nextDSA.Parameters.P != nil {
		return next
	}
	prevDSA, ok := previous.(*dsa.PublicKey)
	if !ok {
		return next
	}
	inherited := *nextDSA
	inherited.Parameters = prevDSA.Parameters
	return &inherited
}

// applyAAControls implements RFC 5755 §4.4.3 AAControls tracking: a
// certificate carrying the
// aa_controls extension marks state.AAControlsUsed and clamps
// MaxAAPathLength by its path_len_constraint. It is an error for AA
// controls to appear mid-chain after having been absent from an earlier
// certificate in the path (once used, it must remain present on every
// subsequent CA certificate).
func applyAAControls(state *PathState, depth int, cert *Certificate) error {
	controls := cert.AAControls()
	if controls == nil {
		if state.AAControlsUsed {
			return newErr(KindInvalidCertificate, "%q lacks aa_controls after an earlier certificate required it", cert.Subject)
		}
		return nil
	}
	if !state.AAControlsUsed && depth > 1 {
		return newErr(KindInvalidCertificate, "%q carries aa_controls although an earlier certificate lacked it", cert.Subject)
	}
	state.AAControlsUsed = true
	if controls.PathLenConstraint != nil && *controls.PathLenConstraint < state.MaxAAPathLength {
		state.MaxAAPathLength = *controls.PathLenConstraint
	}
	return nil
}
