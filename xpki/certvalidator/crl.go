package certvalidator

import (
	"bytes"
	"context"
	"crypto"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"time"

	"github.com/go-phorce/pkixvalidator/xpki/certvalidator/poe"
	"github.com/juju/errors"
)

var oidCRLEntryCertificateIssuer = asn1.ObjectIdentifier{2, 5, 29, 29}

// ReasonFlags is the RFC 5280 §4.2.1.13 reasonFlags BIT STRING, used both on
// a DistributionPoint's Reasons field and an IssuingDistributionPoint's
// OnlySomeReasons field to scope a (possibly partitioned) CRL to a subset of
// revocation reasons.
type ReasonFlags uint16

const (
	ReasonUnused ReasonFlags = 1 << iota
	ReasonKeyCompromise
	ReasonCACompromise
	ReasonAffiliationChanged
	ReasonSuperseded
	ReasonCessationOfOperation
	ReasonCertificateHold
	ReasonPrivilegeWithdrawn
	ReasonAACompromise

	// AllReasons is every bit RFC 5280 defines for this BIT STRING, including
	// the reserved "unused" bit 0; a CRL silent on reason scoping covers all
	// of it.
	AllReasons = ReasonUnused | ReasonKeyCompromise | ReasonCACompromise | ReasonAffiliationChanged |
		ReasonSuperseded | ReasonCessationOfOperation | ReasonCertificateHold | ReasonPrivilegeWithdrawn | ReasonAACompromise

	// RevocationReasons is AllReasons minus the reserved "unused" bit: the
	// set a CRL's reason coverage must actually union to. Using AllReasons
	// there would require coverage of a bit no CRL ever legitimately sets,
	// making full coverage unreachable.
	RevocationReasons = AllReasons &^ ReasonUnused

	// reasonCodeRemoveFromCRL is the CRLReason value (RFC 5280 §5.3.1) a
	// delta-CRL entry carries to cancel a revocation reported by the base
	// CRL it complements (RFC 5280 §5.2.4).
	reasonCodeRemoveFromCRL = 8
)

func reasonsFromBitString(bs asn1.BitString) ReasonFlags {
	if bs.BitLength == 0 {
		return AllReasons
	}
	var out ReasonFlags
	for i := 0; i < bs.BitLength && i < 16; i++ {
		if bs.At(i) != 0 {
			out |= 1 << uint(i)
		}
	}
	return out
}

// reasonScope returns the set of revocation reasons a CRL (or one of its
// distribution points) is authoritative for.
func reasonScope(dp *DistributionPoint, idp *IssuingDistributionPointInfo) ReasonFlags {
	if idp != nil && idp.OnlySomeReasons != nil {
		return reasonsFromBitString(*idp.OnlySomeReasons)
	}
	if dp != nil && dp.Reasons.BitLength > 0 {
		return reasonsFromBitString(dp.Reasons)
	}
	return AllReasons
}

// CRLWithPOE pairs a decoded CRL with the earliest time it is known to have
// existed. IsDelta marks a CRL retrieved via the
// certificate's freshestCRL (delta CRL distribution point) extension rather
// than its ordinary crlDistributionPoints.
type CRLWithPOE struct {
	CRL     *x509.RevocationList
	POE     time.Time
	IsDelta bool

	idp     *IssuingDistributionPointInfo
	idpErr  error
	idpOnce bool
}

// NewCRLWithPOE wraps a parsed CRL with its proof-of-existence time. Its
// IssuingDistributionPoint extension is decoded on the first call to
// IssuingDistributionPoint and cached from then on.
func NewCRLWithPOE(crl *x509.RevocationList, poeTime time.Time, isDelta bool) *CRLWithPOE {
	return &CRLWithPOE{CRL: crl, POE: poeTime, IsDelta: isDelta}
}

// IssuingDistributionPoint lazily decodes and caches the CRL's IDP extension.
func (c *CRLWithPOE) IssuingDistributionPoint() (*IssuingDistributionPointInfo, error) {
	if c.idpOnce {
		return c.idp, c.idpErr
	}
	c.idpOnce = true
	for _, ext := range c.CRL.Extensions {
		if ext.Id.String() == "2.5.29.28" { // id-ce-issuingDistributionPoint
			c.idp, c.idpErr = ParseIssuingDistributionPoint(ext.Value)
			return c.idp, c.idpErr
		}
	}
	return nil, nil
}

// crlSignatureAlgorithmID re-decodes the CRL's outer signatureAlgorithm, which
// x509.RevocationList exposes only as the coarse SignatureAlgorithm enum.
func crlSignatureAlgorithmID(crl *x509.RevocationList) (pkix.AlgorithmIdentifier, error) {
	var outer struct {
		TBSCertList        asn1.RawValue
		SignatureAlgorithm pkix.AlgorithmIdentifier
		SignatureValue     asn1.BitString
	}
	if _, err := asn1.Unmarshal(crl.Raw, &outer); err != nil {
		return pkix.AlgorithmIdentifier{}, errors.Annotate(err, "decoding CRL signatureAlgorithm")
	}
	return outer.SignatureAlgorithm, nil
}

// VerifyCRLSignature checks crl's signature against issuerPub, applying the
// same weak-hash gate and RSA-PSS handling as certificate signatures.
func VerifyCRLSignature(vctx *ValidationContext, crl *x509.RevocationList, issuerPub crypto.PublicKey) error {
	algID, err := crlSignatureAlgorithmID(crl)
	if err != nil {
		return err
	}
	sigAlgOID := algID.Algorithm.String()
	return VerifySignature(vctx, crl.RawTBSRevocationList, crl.Signature, issuerPub, sigAlgOID, sigHashOID(sigAlgOID), pssParamsFromAlgID(algID))
}

// liftRelativeName concatenates a nameRelativeToCRLIssuer RDN onto issuer's
// own RDN sequence, producing the full distinguished name the relative form
// abbreviates. Both sequences are copied; issuer is never mutated.
func liftRelativeName(issuer pkix.Name, rdn pkix.RelativeDistinguishedNameSET) pkix.Name {
	seq := append(pkix.RDNSequence{}, issuer.ToRDNSequence()...)
	seq = append(seq, rdn)
	var out pkix.Name
	out.FillFromRDNSequence(&seq)
	return out
}

// dpFullNames resolves a DistributionPointName to its full GeneralName list,
// lifting the nameRelativeToCRLIssuer form into a directoryName rooted at
// crlIssuer.
func dpFullNames(name *DistributionPointName, crlIssuer pkix.Name) []GeneralName {
	if name == nil {
		return nil
	}
	if len(name.FullName) > 0 {
		return name.FullName
	}
	if name.NameRelativeToCRLIssuer != nil {
		lifted := liftRelativeName(crlIssuer, *name.NameRelativeToCRLIssuer)
		return []GeneralName{{Directory: &lifted}}
	}
	return nil
}

// generalNamesOverlap reports whether any name in a equals some name in b,
// comparing URIs textually and directoryNames by DN equality.
func generalNamesOverlap(a, b []GeneralName) bool {
	for _, x := range a {
		for _, y := range b {
			switch {
			case x.URI != "" && x.URI == y.URI:
				return true
			case x.Directory != nil && y.Directory != nil && namesEqual(*x.Directory, *y.Directory):
				return true
			case x.DNS != "" && x.DNS == y.DNS:
				return true
			}
		}
	}
	return false
}

// idpNameMatchesDP checks the RFC 5280 §6.3.3(b)(1) name agreement between a
// CRL's IDP and one of the certificate's distribution points: when the IDP
// names its distribution point, the certificate's DP (or its cRLIssuer, for
// a DP with no name of its own) must share at least one of those names.
func idpNameMatchesDP(dp DistributionPoint, idp *IssuingDistributionPointInfo, crlIssuer pkix.Name) bool {
	if idp == nil || idp.DistributionPoint == nil {
		return true
	}
	idpNames := dpFullNames(idp.DistributionPoint, crlIssuer)
	if dpNames := dpFullNames(dp.Name, crlIssuer); len(dpNames) > 0 {
		return generalNamesOverlap(idpNames, dpNames)
	}
	return generalNamesOverlap(idpNames, dp.CRLIssuer)
}

// crlAppliesToCertificate implements the RFC 5280 §6.3.3(b) distribution
// point matching step: crlw must be scoped to the same kind of certificate
// (CA vs end-entity) and must correspond to one of cert's own CRL
// distribution points (direct) or one the issuer's cRLIssuer names point at
// (indirect, requiring the IDP's indirectCRL flag). A certificate with no
// distribution points at all falls back to "the CRL issuer is my own
// issuer". The matched DP, when any, is returned so the caller can scope
// revocation reasons to it.
func crlAppliesToCertificate(cert *Certificate, crlw *CRLWithPOE) (*DistributionPoint, bool, error) {
	idp, err := crlw.IssuingDistributionPoint()
	if err != nil {
		return nil, false, err
	}
	if idp != nil {
		if idp.OnlyContainsAttributeCerts {
			return nil, false, nil
		}
		isCA := cert.IsCA && cert.BasicConstraintsValid
		if idp.OnlyContainsUserCerts && isCA {
			return nil, false, nil
		}
		if idp.OnlyContainsCACerts && !isCA {
			return nil, false, nil
		}
	}

	dps := append(append([]DistributionPoint(nil), cert.CRLDistributionPoints()...), cert.FreshestCRL()...)
	if len(dps) == 0 {
		return nil, namesEqual(crlw.CRL.Issuer, cert.Issuer), nil
	}
	for i := range dps {
		dp := dps[i]
		if !idpNameMatchesDP(dp, idp, crlw.CRL.Issuer) {
			continue
		}
		if len(dp.CRLIssuer) > 0 {
			if idp == nil || !idp.IndirectCRL {
				continue
			}
			for _, gn := range dp.CRLIssuer {
				if gn.Kind() == "directoryName" && namesEqual(*gn.Directory, crlw.CRL.Issuer) {
					return &dps[i], true, nil
				}
			}
			continue
		}
		if namesEqual(crlw.CRL.Issuer, cert.Issuer) {
			return &dps[i], true, nil
		}
	}
	return nil, false, nil
}

// entryCertificateIssuer decodes a CRL entry's certificateIssuer extension,
// when present.
func entryCertificateIssuer(entry x509.RevocationListEntry) (pkix.Name, bool, error) {
	for _, ext := range entry.Extensions {
		if ext.Id.Equal(oidCRLEntryCertificateIssuer) {
			var seq asn1.RawValue
			if _, err := asn1.Unmarshal(ext.Value, &seq); err != nil {
				return pkix.Name{}, false, errors.Trace(err)
			}
			names, err := parseGeneralNames(seq.Bytes)
			if err != nil {
				return pkix.Name{}, false, errors.Trace(err)
			}
			for _, gn := range names {
				if gn.Kind() == "directoryName" {
					return *gn.Directory, true, nil
				}
			}
		}
	}
	return pkix.Name{}, false, nil
}

// lookupCRLEntry finds the entry for (certIssuer, serial) in crl, applying
// the certificateIssuer carry-forward rule of RFC 5280 §5.3.3: an indirect
// CRL entry that omits its own certificateIssuer inherits the most recently
// stated one from an earlier entry in the SAME CRL. The carried issuer is
// reset to crl.Issuer at the start of every lookup; it is never inherited
// across different CRLWithPOE values, since each represents an independent
// response.
func lookupCRLEntry(crl *x509.RevocationList, certIssuer pkix.Name, serial *big.Int) (*x509.RevocationListEntry, bool, error) {
	currentIssuer := crl.Issuer
	for i := range crl.RevokedCertificateEntries {
		entry := &crl.RevokedCertificateEntries[i]
		if issuer, ok, err := entryCertificateIssuer(*entry); err != nil {
			return nil, false, err
		} else if ok {
			currentIssuer = issuer
		}
		if entry.SerialNumber != nil && entry.SerialNumber.Cmp(serial) == 0 && namesEqual(currentIssuer, certIssuer) {
			return entry, true, nil
		}
	}
	return nil, false, nil
}

// lookupRevocationEntry implements the RFC 5280 §5.2.4 delta-first entry
// search: a serial's delta-CRL entry, when present, is authoritative over
// the base CRL's, including the case where its reason code is
// removeFromCRL, which cancels a revocation the base CRL reports rather
// than reporting a revocation itself.
func lookupRevocationEntry(delta, base *x509.RevocationList, certIssuer pkix.Name, serial *big.Int) (*x509.RevocationListEntry, bool, error) {
	if delta != nil {
		entry, found, err := lookupCRLEntry(delta, certIssuer, serial)
		if err != nil {
			return nil, false, err
		}
		if found {
			if entry.ReasonCode == reasonCodeRemoveFromCRL {
				return nil, false, nil
			}
			return entry, true, nil
		}
	}
	return lookupCRLEntry(base, certIssuer, serial)
}

// knownCRLCriticalExtensions / knownCRLEntryCriticalExtensions are the CRL-
// and entry-level critical extensions this engine understands: any OTHER
// critical extension at either level is a policy failure, since an
// unrecognized critical extension may narrow the CRL's or entry's meaning
// in a way this engine cannot evaluate.
var knownCRLCriticalExtensions = map[string]bool{
	"2.5.29.20": true, // cRLNumber
	"2.5.29.27": true, // deltaCRLIndicator
	"2.5.29.28": true, // issuingDistributionPoint
	oidExtAuthorityKeyIdentifier.String(): true,
}

var knownCRLEntryCriticalExtensions = map[string]bool{
	"2.5.29.21":                           true, // cRLReason
	oidCRLEntryCertificateIssuer.String(): true, // certificateIssuer
	"2.5.29.23":                           true, // holdInstructionCode
	"2.5.29.24":                           true, // invalidityDate
}

func checkCRLCriticalExtensions(crl *x509.RevocationList) error {
	for _, ext := range crl.Extensions {
		if ext.Critical && !knownCRLCriticalExtensions[ext.Id.String()] {
			return newErr(KindCRLValidationIndeterminate, "CRL from %q carries unsupported critical extension %s", crl.Issuer, ext.Id)
		}
	}
	return nil
}

func checkCRLEntryCriticalExtensions(entry *x509.RevocationListEntry) error {
	for _, ext := range entry.Extensions {
		if ext.Critical && !knownCRLEntryCriticalExtensions[ext.Id.String()] {
			return newErr(KindCRLValidationIndeterminate, "CRL entry for serial %s carries unsupported critical extension %s", entry.SerialNumber, ext.Id)
		}
	}
	return nil
}

// idpAuthorityName returns the directoryName alternative of an IDP's
// distributionPoint fullName, when present.
func idpAuthorityName(idp *IssuingDistributionPointInfo) (pkix.Name, bool) {
	if idp == nil || idp.DistributionPoint == nil {
		return pkix.Name{}, false
	}
	for _, gn := range idp.DistributionPoint.FullName {
		if gn.Directory != nil {
			return *gn.Directory, true
		}
	}
	return pkix.Name{}, false
}

// crlAuthorityKeyIdentifier decodes the CRL's own authorityKeyIdentifier
// extension, when present.
func crlAuthorityKeyIdentifier(crl *x509.RevocationList) ([]byte, []GeneralName) {
	for _, ext := range crl.Extensions {
		if ext.Id.Equal(oidExtAuthorityKeyIdentifier) {
			keyID, names, err := parseAuthorityKeyIdentifier(ext.Value)
			if err == nil {
				return keyID, names
			}
		}
	}
	return nil, nil
}

// crlAuthorityName derives the name search key for
// finding the certificate that issued crl. An indirect CRL's IDP names its
// issuer's distinguished name directly; otherwise the authorityKeyIdentifier
// extension's authorityCertIssuer, when present, is preferred over the
// CRL's own Issuer field, since for an indirect CRL that field need not name
// the certificate that actually signed it.
func crlAuthorityName(crl *x509.RevocationList, idp *IssuingDistributionPointInfo) pkix.Name {
	if idp != nil && idp.IndirectCRL {
		if name, ok := idpAuthorityName(idp); ok {
			return name
		}
	}
	if _, names := crlAuthorityKeyIdentifier(crl); len(names) > 0 {
		for _, gn := range names {
			if gn.Directory != nil {
				return *gn.Directory
			}
		}
	}
	return crl.Issuer
}

// crlIssuerCandidateEligible applies the RFC 5280 §6.3.3(f)/(g) eligibility
// test for a candidate CRL-issuer certificate: it must be cert's own path
// issuer (the ordinary, direct-CRL case), a sibling certificate issued by
// cert's own issuer that is not cert itself (a dedicated CRL signer under
// the same CA), or -- only for an indirect CRL -- any other certificate,
// since an indirect CRL's issuer is by definition not necessarily related
// to cert's own issuer.
func crlIssuerCandidateEligible(cert, candidate *Certificate, idp *IssuingDistributionPointInfo) bool {
	if namesEqual(candidate.Subject, cert.Issuer) {
		return true
	}
	if namesEqual(candidate.Issuer, cert.Issuer) && !sameCertificate(candidate, cert) {
		return true
	}
	if idp != nil && idp.IndirectCRL {
		return true
	}
	return false
}

func sameCertificate(a, b *Certificate) bool {
	return poe.DigestOf(a.Raw) == poe.DigestOf(b.Raw)
}

// resolveCRLIssuerCert implements RFC 5280 §6.3.3(f): find the
// certificate that actually signed crlw, which for an indirect CRL may
// differ from cert's own path issuer. The path issuer is tried first (the
// common direct-CRL case); on a miss the registry is searched by the CRL's
// authority name, and each candidate must be eligible, carry
// cRLSign in its key usage (when that extension is present), and verify
// crlw's signature. The path issuer needs no further validation: it is
// already checked by the enclosing traversal before CRL work ever runs. Any
// OTHER candidate -- unless it is already on the recursion-guard stack --
// must additionally validate its own certification path per RFC 5280 §6.1,
// guarded by ProcessingState.OnStack/Push so a CRL issuer cannot
// recursively require its own validation to complete.
func resolveCRLIssuerCert(ctx context.Context, vctx *ValidationContext, cert, pathIssuer *Certificate, crlw *CRLWithPOE, idp *IssuingDistributionPointInfo, path *ValidationPath, pstate *ProcessingState) (*Certificate, error) {
	authorityName := crlAuthorityName(crlw.CRL, idp)

	var candidates []*Certificate
	if pathIssuer != nil && namesEqual(pathIssuer.Subject, authorityName) {
		candidates = append(candidates, pathIssuer)
	}
	if vctx.Registry != nil {
		found, err := vctx.Registry.ByName(ctx, authorityName, true)
		if err == nil {
			candidates = append(candidates, found...)
		}
	}

	var lastErr error
	for _, candidate := range candidates {
		if sameCertificate(candidate, cert) {
			continue
		}
		if !crlIssuerCandidateEligible(cert, candidate, idp) {
			continue
		}
		if _, hasKeyUsage := candidate.ExtensionValue(oidExtKeyUsage.String()); hasKeyUsage && candidate.KeyUsage&x509.KeyUsageCRLSign == 0 {
			lastErr = newErr(KindCRLValidationIndeterminate, "CRL issuer candidate %q lacks cRLSign key usage", candidate.Subject)
			continue
		}
		if err := VerifyCRLSignature(vctx, crlw.CRL, candidate.PublicKey); err != nil {
			logger.Debugf("reason=crl_issuer_candidate_rejected, candidate=%q, err=[%v]", candidate.Subject.String(), err)
			lastErr = err
			continue
		}
		if pathIssuer != nil && sameCertificate(candidate, pathIssuer) {
			// cert's own path issuer is already validated by the enclosing
			// certification-path traversal before any CRL work runs, so the
			// ordinary direct-CRL case needs no separate chain validation here.
			return candidate, nil
		}
		if pstate.OnStack(candidate) {
			return candidate, nil
		}
		if vctx.Registry == nil {
			lastErr = newErr(KindCRLValidationIndeterminate, "no registry configured to validate CRL issuer %q", candidate.Subject)
			continue
		}
		candPaths, err := vctx.Registry.BuildPaths(ctx, candidate)
		if err != nil {
			lastErr = err
			continue
		}
		sideState := &ProcessingState{
			EndEntityNameOverride: cert.Subject.String() + " CRL issuer",
			PathStack:             pstate.PathStack,
			IsSideValidation:      true,
		}
		validated := false
		for _, cp := range candPaths {
			if _, _, verr := Validate(ctx, vctx, cp, PKIXParams{}, sideState); verr == nil {
				validated = true
				break
			} else {
				lastErr = verr
			}
		}
		if !validated {
			continue
		}
		return candidate, nil
	}
	if lastErr != nil {
		return nil, errors.Trace(lastErr)
	}
	return nil, newErr(KindCRLNoMatches, "no CRL issuer certificate found for CRL issued by %q", crlw.CRL.Issuer)
}

// matchingDelta implements the RFC 5280 §6.3.3(c) delta-CRL lookup: from the
// delta bucket grouped by authority name, pick the one whose CRL issuer,
// IndirectCRL flag, and (when both sides carry one) authorityKeyIdentifier
// key identifier agree with the complete CRL l it complements.
func matchingDelta(byAuthority map[string][]*CRLWithPOE, authorityName pkix.Name, l *CRLWithPOE, lIDP *IssuingDistributionPointInfo) *CRLWithPOE {
	lKeyID, _ := crlAuthorityKeyIdentifier(l.CRL)
	for _, d := range byAuthority[authorityName.String()] {
		if !namesEqual(d.CRL.Issuer, l.CRL.Issuer) {
			continue
		}
		dIDP, err := d.IssuingDistributionPoint()
		if err != nil {
			continue
		}
		if lIDP != nil && dIDP != nil && lIDP.IndirectCRL != dIDP.IndirectCRL {
			continue
		}
		if dKeyID, _ := crlAuthorityKeyIdentifier(d.CRL); len(lKeyID) > 0 && len(dKeyID) > 0 && !bytes.Equal(lKeyID, dKeyID) {
			continue
		}
		return d
	}
	return nil
}

// CRLCheckResult is the per-CRL outcome the revocation combinator consumes.
type CRLCheckResult struct {
	Revoked        bool
	RevokedAt      time.Time
	Reason         string
	ReasonsCovered ReasonFlags
	Freshness      Freshness
	CRL            *CRLWithPOE
}

// CheckCRL checks one complete CRL against cert: resolve the certificate
// that actually signed crlw (which may differ from pathIssuer for an indirect CRL),
// verify crlw's (and, when supplied, delta's) signature and freshness
// against it, reject either CRL over an unsupported critical extension, and
// look up cert's entry -- consulting delta first, per RFC 5280 §5.2.4 --
// returning whether it is revoked and which revocation reasons this CRL is
// authoritative for (so the caller can union coverage across a partitioned
// set). delta may be nil when no matching delta CRL was found.
func CheckCRL(ctx context.Context, vctx *ValidationContext, cert, pathIssuer *Certificate, crlw, delta *CRLWithPOE, path *ValidationPath, pstate *ProcessingState) (*CRLCheckResult, error) {
	matchedDP, applies, err := crlAppliesToCertificate(cert, crlw)
	if err != nil {
		return nil, err
	}
	if !applies {
		return nil, newErr(KindCRLNoMatches, "CRL issued by %q does not cover certificate %q", crlw.CRL.Issuer, cert.Subject)
	}
	if err := checkCRLCriticalExtensions(crlw.CRL); err != nil {
		return nil, err
	}

	idp, err := crlw.IssuingDistributionPoint()
	if err != nil {
		return nil, err
	}

	issuerCert, err := resolveCRLIssuerCert(ctx, vctx, cert, pathIssuer, crlw, idp, path, pstate)
	if err != nil {
		return nil, err
	}
	if err := VerifyCRLSignature(vctx, crlw.CRL, issuerCert.PublicKey); err != nil {
		return nil, errors.Trace(err)
	}

	policy := vctx.RevocationPolicy
	maxAge := time.Duration(0)
	classify := DefaultClassifyFreshness
	if policy != nil {
		maxAge = policy.MaxAge
		if policy.ClassifyFreshness != nil {
			classify = policy.ClassifyFreshness
		}
	}
	freshness := classify(crlw.CRL.ThisUpdate, crlw.CRL.NextUpdate, vctx.Time, maxAge)

	covered := reasonScope(matchedDP, idp)

	var deltaCRL *x509.RevocationList
	if delta != nil {
		if err := checkCRLCriticalExtensions(delta.CRL); err != nil {
			return nil, err
		}
		if err := VerifyCRLSignature(vctx, delta.CRL, issuerCert.PublicKey); err != nil {
			return nil, errors.Trace(err)
		}
		deltaFreshness := classify(delta.CRL.ThisUpdate, delta.CRL.NextUpdate, vctx.Time, maxAge)
		if deltaFreshness != FreshnessOK {
			return nil, newErr(KindCRLValidationIndeterminate, "delta CRL from %q is not fresh", delta.CRL.Issuer)
		}
		deltaCRL = delta.CRL
	}

	entry, found, err := lookupRevocationEntry(deltaCRL, crlw.CRL, cert.Issuer, cert.SerialNumber)
	if err != nil {
		return nil, err
	}
	result := &CRLCheckResult{ReasonsCovered: covered, Freshness: freshness, CRL: crlw}
	if found {
		if err := checkCRLEntryCriticalExtensions(entry); err != nil {
			return nil, err
		}
		result.Revoked = true
		result.RevokedAt = entry.RevocationTime
		result.Reason = reasonCodeName(entry.ReasonCode)
	}
	return result, nil
}

func reasonCodeName(code int) string {
	names := map[int]string{
		0: "unspecified", 1: "keyCompromise", 2: "cACompromise", 3: "affiliationChanged",
		4: "superseded", 5: "cessationOfOperation", 6: "certificateHold", 8: "removeFromCRL",
		9: "privilegeWithdrawn", 10: "aACompromise",
	}
	if n, ok := names[code]; ok {
		return n
	}
	return "unspecified"
}

// CheckRevocationViaCRLs implements RFC 5280 §6.3 end to end: fetch
// candidate CRLs for cert, classify them into complete and delta buckets
// pair each complete CRL with a matching delta when one exists,
// check each applicable pair, and union their reason coverage. A revoked
// verdict from any CRL is final. Otherwise the result is "not revoked" only
// if the union of consulted CRLs' reason scopes covers every real
// revocation reason RFC 5280 defines; partial coverage, or a set of
// candidates none of which actually applied to cert, is reported back to
// the combinator so it can apply the position's tolerance policy.
func CheckRevocationViaCRLs(ctx context.Context, vctx *ValidationContext, cert, issuer *Certificate, path *ValidationPath, pstate *ProcessingState) (*CRLCheckResult, error) {
	if vctx.CRLClient == nil {
		return nil, newErr(KindInsufficientRevinfo, "no CRL client configured")
	}
	candidates, err := vctx.CRLClient.FetchCRLs(ctx, cert)
	if err != nil {
		return nil, newErr(KindCRLFetchError, "fetching CRLs: %s", err)
	}

	var complete []*CRLWithPOE
	deltasByAuthority := map[string][]*CRLWithPOE{}
	for _, crlw := range candidates {
		if crlw.IsDelta {
			idp, _ := crlw.IssuingDistributionPoint()
			key := crlAuthorityName(crlw.CRL, idp).String()
			deltasByAuthority[key] = append(deltasByAuthority[key], crlw)
			continue
		}
		complete = append(complete, crlw)
	}

	var covered ReasonFlags
	var failures []error
	var lastFresh *CRLCheckResult
	sawApplicable := false
	for _, crlw := range complete {
		idp, _ := crlw.IssuingDistributionPoint()
		authorityName := crlAuthorityName(crlw.CRL, idp)
		delta := matchingDelta(deltasByAuthority, authorityName, crlw, idp)

		res, err := CheckCRL(ctx, vctx, cert, issuer, crlw, delta, path, pstate)
		if err != nil {
			failures = append(failures, err)
			if kind, ok := KindOf(err); !ok || kind != KindCRLNoMatches {
				sawApplicable = true
			}
			continue
		}
		sawApplicable = true
		if res.Revoked {
			return res, nil
		}
		if res.Freshness != FreshnessOK {
			failures = append(failures, newErr(KindCRLValidationIndeterminate, "CRL from %q is not fresh", crlw.CRL.Issuer))
			continue
		}
		covered |= res.ReasonsCovered
		lastFresh = res
	}

	if covered&RevocationReasons == RevocationReasons {
		if lastFresh == nil {
			lastFresh = &CRLCheckResult{ReasonsCovered: covered, Freshness: FreshnessOK}
		}
		return lastFresh, nil
	}
	if !sawApplicable && len(failures) > 0 {
		return nil, newErr(KindCRLNoMatches, "no candidate CRL matched certificate %q", cert.Subject)
	}
	return nil, NewIndeterminateError(KindInsufficientRevinfo, "no applicable CRL set covers all revocation reasons", failures)
}
