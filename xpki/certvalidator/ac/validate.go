package ac

import (
	"bytes"
	"context"
	"crypto/x509/pkix"
	"encoding/asn1"

	"github.com/go-phorce/pkixvalidator/xpki/certvalidator"
	"github.com/juju/errors"
)

// CRLClient retrieves candidate CRLs for an attribute certificate's own
// revocation check, the AC-side counterpart of certvalidator.CRLClient.
type CRLClient interface {
	FetchCRLs(ctx context.Context, ac *AttributeCertificate) ([]*certvalidator.CRLWithPOE, error)
}

// AcceptableTarget is one entry of the caller-supplied acceptable-target set
// consulted against an AC's targetInformation extension (RFC 5755
// §4.3.2). Exactly one of Name/NameRaw (and,
// independently, one of Group/GroupRaw) is meaningful for a given entry.
type AcceptableTarget struct {
	Name     *pkix.Name
	NameRaw  []byte // DER GeneralName fallback when Name cannot express the comparison
	Group    *pkix.Name
	GroupRaw []byte
}

// Options configures one Validate call.
type Options struct {
	// HolderCert, when set, is compared against the AC's Holder. A nil HolderCert skips the check.
	HolderCert *certvalidator.Certificate

	// AcceptableTargets is the context's set of validator names and group
	// memberships, consulted only when the AC carries targetInformation.
	AcceptableTargets []AcceptableTarget
}

// Result is the outcome of a successful Validate call.
type Result struct {
	AttributeCertificate *AttributeCertificate
	AAPath               *certvalidator.ValidationPath
	// ApprovedAttributes is Attributes filtered to the OIDs the AA path's
	// aggregated AA-controls scope permits.
	ApprovedAttributes []Attribute
}

// Validate validates an attribute certificate: critical extension gate,
// targeting, holder match, AA discovery and path validation via
// certvalidator.Validate, envelope/inner signature-algorithm
// cross-check, validity period, revocation, and AA-controls scope
// filtering.
func Validate(ctx context.Context, vctx *certvalidator.ValidationContext, attr *AttributeCertificate, pstate *certvalidator.ProcessingState, opts Options) (*Result, error) {
	for _, oid := range attr.CriticalExtensions() {
		if !supportedCriticalExtensions[oid] {
			return nil, invalidACErr("unsupported critical extension %s", oid)
		}
	}

	if err := checkTargeting(attr, opts.AcceptableTargets); err != nil {
		return nil, err
	}

	if opts.HolderCert != nil {
		if err := checkHolder(attr, opts.HolderCert); err != nil {
			return nil, err
		}
	}

	aaCert, aaPath, err := discoverAA(ctx, vctx, attr, pstate)
	if err != nil {
		return nil, err
	}

	if err := checkSignatureAlgorithmAgreement(attr); err != nil {
		return nil, err
	}
	hashAlgOID := ""
	pss := certvalidator.PSSParamsFromAlgorithmIdentifier(attr.SignatureAlgorithm)
	if err := certvalidator.VerifySignature(vctx, attr.TBSRaw, attr.Signature, aaCert.PublicKey, attr.SignatureAlgorithm.Algorithm.String(), hashAlgOID, pss); err != nil {
		return nil, err
	}

	if err := checkACValidityPeriod(vctx, attr); err != nil {
		return nil, err
	}

	if !attr.HasNoRevAvail() {
		if err := checkACRevocation(ctx, vctx, attr, aaCert); err != nil {
			return nil, err
		}
	}

	approved := scopeFilter(attr.Attributes, aggregateAAControls(aaPath))
	return &Result{AttributeCertificate: attr, AAPath: aaPath, ApprovedAttributes: approved}, nil
}

func invalidACErr(format string, args ...interface{}) error {
	return certvalidator.NewInvalidAttrCertificateError(format, args...)
}

// checkTargeting implements RFC 5755 §4.3.2 targeting: presence of
// targetInformation requires the caller to have supplied at least one
// acceptable target, and at least one of the AC's Targets groups must be
// fully satisfied by the acceptable set (every Target entry within that
// group matches some acceptable entry).
func checkTargeting(attr *AttributeCertificate, acceptable []AcceptableTarget) error {
	groups, present, err := attr.TargetInformation()
	if err != nil {
		return errors.Annotate(err, "decoding targetInformation")
	}
	if !present {
		return nil
	}
	for _, group := range groups {
		if targetsGroupSatisfied(group, acceptable) {
			return nil
		}
	}
	return invalidACErr("no targets-sequence in targetInformation is satisfied by the acceptable target set")
}

func targetsGroupSatisfied(group Targets, acceptable []AcceptableTarget) bool {
	if len(group) == 0 {
		return false
	}
	for _, t := range group {
		if !targetMatchesAny(t, acceptable) {
			return false
		}
	}
	return true
}

func targetMatchesAny(t Target, acceptable []AcceptableTarget) bool {
	for _, a := range acceptable {
		if generalNameMatches(t.Name, a.Name, a.NameRaw) || generalNameMatches(t.Group, a.Group, a.GroupRaw) {
			return true
		}
	}
	return false
}

// generalNameMatches compares an AC's decoded target name against a caller
// acceptable entry, by decoded directoryName equality when both sides
// decoded one, falling back to raw DER byte equality otherwise.
func generalNameMatches(target *generalName, acceptDN *pkix.Name, acceptRaw []byte) bool {
	if target == nil {
		return false
	}
	if target.Directory != nil && acceptDN != nil {
		return certvalidator.NamesEqual(*target.Directory, *acceptDN)
	}
	if len(acceptRaw) > 0 {
		return bytes.Equal(target.Other.FullBytes, acceptRaw)
	}
	return false
}

// checkHolder matches the AC's Holder against a supplied holder
// certificate: base_certificate_id
// (by issuer+serial), entity_name (by DN), and the unsupported
// object_digest_info form, reporting every mismatching field.
func checkHolder(attr *AttributeCertificate, holder *certvalidator.Certificate) error {
	var mismatches []string

	if attr.Holder.HasObjectDigestInfo {
		mismatches = append(mismatches, "objectDigestInfo (unsupported)")
	}
	if bci := attr.Holder.BaseCertificateID; bci != nil {
		want := certvalidator.IssuerSerialKey(bci.Issuer, bci.Serial)
		got := certvalidator.IssuerSerialKey(holder.Issuer, holder.SerialNumber)
		if string(want) != string(got) {
			mismatches = append(mismatches, "baseCertificateID")
		}
	}
	if attr.Holder.EntityName != nil && !certvalidator.NamesEqual(*attr.Holder.EntityName, holder.Subject) {
		mismatches = append(mismatches, "entityName")
	}
	if len(mismatches) > 0 {
		return invalidACErr("holder mismatch: %v", mismatches)
	}
	return nil
}

// discoverAA resolves the attribute authority that issued attr: candidate AA
// certificates from the issuer form (v1Form is rejected outright, per RFC
// 5755 §4.1), filter by AKI/subject and AA usage, build candidate paths via
// the registry, and validate each chain, keeping the first that succeeds.
func discoverAA(ctx context.Context, vctx *certvalidator.ValidationContext, attr *AttributeCertificate, pstate *certvalidator.ProcessingState) (*certvalidator.Certificate, *certvalidator.ValidationPath, error) {
	if attr.Issuer.IsV1Form {
		return nil, nil, invalidACErr("AttCertIssuer v1Form is not supported")
	}
	if vctx.Registry == nil {
		return nil, nil, invalidACErr("no certificate registry configured")
	}

	var candidates []*certvalidator.Certificate
	if keyID, _, ok := attr.AuthorityKeyIdentifier(); ok && len(keyID) > 0 {
		byKey, err := vctx.Registry.ByKeyIdentifier(ctx, keyID)
		if err != nil {
			return nil, nil, errors.Trace(err)
		}
		candidates = append(candidates, byKey...)
	}
	if len(candidates) == 0 && attr.Issuer.IssuerName != nil {
		byName, err := vctx.Registry.ByName(ctx, *attr.Issuer.IssuerName, true)
		if err != nil {
			return nil, nil, errors.Trace(err)
		}
		candidates = append(candidates, byName...)
	}

	var failures []error
	for _, candidate := range candidates {
		if !isAcceptableAA(candidate) {
			continue
		}
		paths, err := vctx.Registry.BuildPaths(ctx, candidate)
		if err != nil {
			failures = append(failures, err)
			continue
		}
		for _, path := range paths {
			sidePstate := pstate
			if sidePstate == nil {
				sidePstate = &certvalidator.ProcessingState{}
			}
			sidePstate = &certvalidator.ProcessingState{
				EndEntityNameOverride: candidate.Subject.String() + " AA issuer",
				PathStack:             sidePstate.PathStack,
				IsSideValidation:      true,
			}
			if _, _, err := certvalidator.Validate(ctx, vctx, path, certvalidator.PKIXParams{}, sidePstate); err != nil {
				logger.Debugf("reason=aa_candidate_path_rejected, candidate=%q, err=[%v]", candidate.Subject.String(), err)
				failures = append(failures, err)
				continue
			}
			return candidate, path, nil
		}
	}
	if len(failures) > 0 {
		return nil, nil, certvalidator.NewPathBuildingError("no candidate AA certificate for %q validated: %v", attr.Issuer.IssuerName, failures)
	}
	return nil, nil, certvalidator.NewPathBuildingError("no candidate AA certificate found for attribute certificate issuer")
}

// isAcceptableAA requires the candidate to assert digitalSignature key
// usage and not be a CA.
func isAcceptableAA(cert *certvalidator.Certificate) bool {
	if cert.IsCA {
		return false
	}
	return hasDigitalSignatureUsage(cert)
}

func hasDigitalSignatureUsage(cert *certvalidator.Certificate) bool {
	const keyUsageDigitalSignature = 1 << 0
	return int(cert.KeyUsage)&keyUsageDigitalSignature != 0
}

// checkSignatureAlgorithmAgreement enforces RFC 5755 §4.2.3: the
// envelope's signatureAlgorithm must DER-match ac_info.signature exactly.
func checkSignatureAlgorithmAgreement(attr *AttributeCertificate) error {
	outer, err := asn1.Marshal(attr.SignatureAlgorithm)
	if err != nil {
		return errors.Trace(err)
	}
	inner, err := asn1.Marshal(attr.InnerSigAlg)
	if err != nil {
		return errors.Trace(err)
	}
	if !bytes.Equal(outer, inner) {
		return invalidACErr("envelope signatureAlgorithm does not match ac_info.signature")
	}
	return nil
}

// checkACValidityPeriod applies vctx.TimeTolerance symmetrically, matching
// the certificate validity check in package certvalidator.
func checkACValidityPeriod(vctx *certvalidator.ValidationContext, attr *AttributeCertificate) error {
	t := vctx.Time
	if t.Before(attr.NotBefore.Add(-vctx.TimeTolerance)) {
		return invalidACErr("attribute certificate not valid until %s", attr.NotBefore)
	}
	if t.After(attr.NotAfter.Add(vctx.TimeTolerance)) {
		return invalidACErr("attribute certificate expired at %s", attr.NotAfter)
	}
	return nil
}

// checkACRevocation is a simplified CRL check: it fetches CRLs for attr
// through the AC-capable CRL client, verifies each against aaCert's key and
// looks up attr's serial number in every CRL whose signature verifies. Any
// such CRL counts as covering every revocation reason: issuing distribution
// point scope, reason partitions, freshness, delta CRLs and indirect CRL
// issuers are not evaluated, and OCSP is not consulted.
func checkACRevocation(ctx context.Context, vctx *certvalidator.ValidationContext, attr *AttributeCertificate, aaCert *certvalidator.Certificate) error {
	client, _ := vctx.CRLClient.(CRLClient)
	if client == nil {
		return invalidACErr("no AC-capable CRL client configured")
	}
	candidates, err := client.FetchCRLs(ctx, attr)
	if err != nil {
		return errors.Annotate(err, "fetching CRLs for attribute certificate")
	}

	var covered certvalidator.ReasonFlags
	var failures []error
	for _, crlw := range candidates {
		if err := certvalidator.VerifyCRLSignature(vctx, crlw.CRL, aaCert.PublicKey); err != nil {
			failures = append(failures, err)
			continue
		}
		for i := range crlw.CRL.RevokedCertificateEntries {
			entry := &crlw.CRL.RevokedCertificateEntries[i]
			if entry.SerialNumber != nil && entry.SerialNumber.Cmp(attr.SerialNumber) == 0 {
				return certvalidator.NewRevokedError(entry.RevocationTime, "attribute certificate revoked")
			}
		}
		covered |= certvalidator.AllReasons
	}
	if covered&certvalidator.AllReasons != certvalidator.AllReasons {
		return certvalidator.NewIndeterminateError(certvalidator.KindInsufficientRevinfo, "no applicable CRL set covers the attribute certificate", failures)
	}
	return nil
}

// aggregatedAAControls is the scope produced by intersecting/unioning every
// AA-controls extension present on an AA's certification path.
type aggregatedAAControls struct {
	permitted         map[string]bool // nil means "no explicit permitted-list seen"
	hasPermittedList  bool
	excluded          map[string]bool
	permitUnspecified bool
}

// aggregateAAControls walks path's certificates and combines their
// aa_controls extensions: permitted attribute sets intersect, excluded
// sets union, and permit_unspecified is the conjunction across every
// certificate that declares aa_controls at all. A path with no aa_controls
// anywhere is treated as unrestricted (every attribute approved), matching
// pathvalidate.go's rule that aa_controls, once unused throughout a path,
// imposes no constraint.
func aggregateAAControls(path *certvalidator.ValidationPath) aggregatedAAControls {
	agg := aggregatedAAControls{excluded: map[string]bool{}, permitUnspecified: true}
	for i := 1; i <= path.Len(); i++ {
		controls := path.At(i).AAControls()
		if controls == nil {
			continue
		}
		if controls.PermittedAttrs != nil {
			next := map[string]bool{}
			for _, oid := range controls.PermittedAttrs {
				key := oid.String()
				if !agg.hasPermittedList || agg.permitted[key] {
					next[key] = true
				}
			}
			agg.permitted = next
			agg.hasPermittedList = true
		}
		for _, oid := range controls.ExcludedAttrs {
			agg.excluded[oid.String()] = true
		}
		agg.permitUnspecified = agg.permitUnspecified && controls.PermitUnSpecified
	}
	return agg
}

func scopeFilter(attrs []Attribute, scope aggregatedAAControls) []Attribute {
	var out []Attribute
	for _, a := range attrs {
		oid := a.Type.String()
		if scope.excluded[oid] {
			continue
		}
		if scope.hasPermittedList {
			if scope.permitted[oid] {
				out = append(out, a)
			}
			continue
		}
		if scope.permitUnspecified {
			out = append(out, a)
		}
	}
	return out
}
