package certvalidator

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"net"

	"github.com/juju/errors"
)

// RFC 5280 / RFC 5755 extension OIDs that crypto/x509 does not decode far
// enough for path validation (policy mappings, policy constraints,
// inhibit-any-policy, AA controls, full CRL/issuing distribution points).
var (
	oidExtKeyUsage               = asn1.ObjectIdentifier{2, 5, 29, 15}
	oidExtBasicConstraints       = asn1.ObjectIdentifier{2, 5, 29, 19}
	oidExtNameConstraints        = asn1.ObjectIdentifier{2, 5, 29, 30}
	oidExtCRLDistributionPoints  = asn1.ObjectIdentifier{2, 5, 29, 31}
	oidExtCertificatePolicies    = asn1.ObjectIdentifier{2, 5, 29, 32}
	oidExtPolicyMappings         = asn1.ObjectIdentifier{2, 5, 29, 33}
	oidExtAuthorityKeyIdentifier = asn1.ObjectIdentifier{2, 5, 29, 35}
	oidExtPolicyConstraints      = asn1.ObjectIdentifier{2, 5, 29, 36}
	oidExtExtKeyUsage            = asn1.ObjectIdentifier{2, 5, 29, 37}
	oidExtFreshestCRL            = asn1.ObjectIdentifier{2, 5, 29, 46}
	oidExtInhibitAnyPolicy       = asn1.ObjectIdentifier{2, 5, 29, 54}
	oidExtSubjectAltName         = asn1.ObjectIdentifier{2, 5, 29, 17}
	oidExtSubjectKeyIdentifier   = asn1.ObjectIdentifier{2, 5, 29, 14}
	oidExtAuthorityInfoAccess    = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 1}
	oidExtAACertAttributes       = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 6} // id-pe-aaControls
	oidExtOCSPNoCheck            = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 1, 5}

	// AnyPolicy is the distinguished "any policy" policy OID (RFC 5280 §4.2.1.4).
	AnyPolicy = asn1.ObjectIdentifier{2, 5, 29, 32, 0}
)

// supportedCriticalExtensions is the set the critical-extension gate in
// RFC 5280 §6.1 path processing understands on a certificate.
var supportedCriticalExtensions = map[string]bool{
	oidExtAuthorityInfoAccess.String():    true,
	oidExtAuthorityKeyIdentifier.String(): true,
	oidExtBasicConstraints.String():       true,
	oidExtCRLDistributionPoints.String():  true,
	oidExtExtKeyUsage.String():            true,
	oidExtFreshestCRL.String():            true,
	oidExtSubjectKeyIdentifier.String():   true,
	oidExtKeyUsage.String():               true,
	oidExtOCSPNoCheck.String():            true,
	oidExtCertificatePolicies.String():    true,
	oidExtPolicyMappings.String():         true,
	oidExtPolicyConstraints.String():      true,
	oidExtInhibitAnyPolicy.String():       true,
	oidExtNameConstraints.String():        true,
	oidExtSubjectAltName.String():         true,
	oidExtAACertAttributes.String():       true,
}

// supportedACCriticalExtensions is the set RFC 5755 §4.5 allows on an AC.
var supportedACCriticalExtensions = map[string]bool{
	oidExtAuthorityInfoAccess.String():    true,
	oidExtAuthorityKeyIdentifier.String(): true,
	oidExtCRLDistributionPoints.String():  true,
	oidExtFreshestCRL.String():            true,
	oidExtSubjectKeyIdentifier.String():   true,
	// no_rev_avail, target_information, audit_identity use their own OIDs,
	// registered in package ac.
}

// PolicyQualifier is an opaque (id, DER value) pair preserved on a policy
// tree node exactly as received.
type PolicyQualifier struct {
	ID    asn1.ObjectIdentifier
	Value []byte
}

// PolicyInformation is one entry of a certificatePolicies extension.
type PolicyInformation struct {
	Policy     asn1.ObjectIdentifier
	Qualifiers []PolicyQualifier
}

// PolicyMapping is one issuer-domain -> subject-domain policy mapping.
type PolicyMapping struct {
	IssuerDomainPolicy  asn1.ObjectIdentifier
	SubjectDomainPolicy asn1.ObjectIdentifier
}

// PolicyConstraintsInfo mirrors the PolicyConstraints extension.
type PolicyConstraintsInfo struct {
	RequireExplicitPolicy *int
	InhibitPolicyMapping  *int
}

// AAControlsInfo mirrors RFC 5755 §4.4.3 AAControls.
type AAControlsInfo struct {
	PathLenConstraint *int
	PermittedAttrs    []asn1.ObjectIdentifier
	ExcludedAttrs     []asn1.ObjectIdentifier
	PermitUnSpecified bool
}

// GeneralName is a decoded RFC 5280 GeneralName, restricted to the kinds
// the name-constraint engine understands (RFC 5280 §4.2.1.10).
type GeneralName struct {
	Directory *pkix.Name
	DNS       string
	Email     string
	URI       string
	IP        net.IP     // present for SAN-style single addresses
	IPNet     *net.IPNet // present for constraint-style address+mask subtrees
	otherTag  int
}

// Kind identifies which alternative of the GeneralName CHOICE is set.
func (g GeneralName) Kind() string {
	switch {
	case g.Directory != nil:
		return "directoryName"
	case g.DNS != "":
		return "dNSName"
	case g.Email != "":
		return "rfc822Name"
	case g.URI != "":
		return "uniformResourceIdentifier"
	case g.IP != nil || g.IPNet != nil:
		return "iPAddress"
	default:
		return "unsupported"
	}
}

// DistributionPointName is the decoded CHOICE of a DistributionPoint's name.
type DistributionPointName struct {
	FullName                []GeneralName
	NameRelativeToCRLIssuer *pkix.RelativeDistinguishedNameSET
}

// DistributionPoint mirrors RFC 5280 §4.2.1.13.
type DistributionPoint struct {
	Name      *DistributionPointName
	Reasons   asn1.BitString
	CRLIssuer []GeneralName
}

// IssuingDistributionPointInfo mirrors RFC 5280 §5.2.5.
type IssuingDistributionPointInfo struct {
	DistributionPoint          *DistributionPointName
	OnlyContainsUserCerts      bool
	OnlyContainsCACerts        bool
	OnlySomeReasons            *asn1.BitString
	IndirectCRL                bool
	OnlyContainsAttributeCerts bool
}

func rawSeqContent(data []byte) ([]asn1.RawValue, error) {
	var out []asn1.RawValue
	rest := data
	for len(rest) > 0 {
		var v asn1.RawValue
		var err error
		rest, err = asn1.Unmarshal(rest, &v)
		if err != nil {
			return nil, errors.Trace(err)
		}
		out = append(out, v)
	}
	return out, nil
}

// parseGeneralName decodes a single GeneralName CHOICE alternative.
func parseGeneralName(raw asn1.RawValue) (GeneralName, error) {
	if raw.Class != asn1.ClassContextSpecific {
		return GeneralName{otherTag: raw.Tag}, nil
	}
	switch raw.Tag {
	case 1: // rfc822Name
		return GeneralName{Email: string(raw.Bytes)}, nil
	case 2: // dNSName
		return GeneralName{DNS: string(raw.Bytes)}, nil
	case 4: // directoryName -- CHOICE Name, explicitly tagged
		var rdn pkix.RDNSequence
		if _, err := asn1.Unmarshal(raw.Bytes, &rdn); err != nil {
			return GeneralName{}, errors.Annotate(err, "directoryName")
		}
		var name pkix.Name
		name.FillFromRDNSequence(&rdn)
		return GeneralName{Directory: &name}, nil
	case 6: // uniformResourceIdentifier
		return GeneralName{URI: string(raw.Bytes)}, nil
	case 7: // iPAddress
		switch len(raw.Bytes) {
		case 4, 16:
			return GeneralName{IP: net.IP(append([]byte(nil), raw.Bytes...))}, nil
		case 8:
			return GeneralName{IPNet: &net.IPNet{
				IP:   net.IP(append([]byte(nil), raw.Bytes[:4]...)),
				Mask: net.IPMask(append([]byte(nil), raw.Bytes[4:]...)),
			}}, nil
		case 32:
			return GeneralName{IPNet: &net.IPNet{
				IP:   net.IP(append([]byte(nil), raw.Bytes[:16]...)),
				Mask: net.IPMask(append([]byte(nil), raw.Bytes[16:]...)),
			}}, nil
		default:
			return GeneralName{}, errors.Errorf("iPAddress: unexpected length %d", len(raw.Bytes))
		}
	default:
		return GeneralName{otherTag: raw.Tag}, nil
	}
}

// ParseGeneralName decodes a single DER GeneralName CHOICE value. Exported
// so package ac can decode the GeneralName alternatives embedded in a
// Target (RFC 5755 §4.3.2) without duplicating the CHOICE tag table.
func ParseGeneralName(raw asn1.RawValue) (GeneralName, error) {
	return parseGeneralName(raw)
}

func parseGeneralNames(content []byte) ([]GeneralName, error) {
	raws, err := rawSeqContent(content)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var out []GeneralName
	for _, r := range raws {
		gn, err := parseGeneralName(r)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if gn.Kind() != "unsupported" {
			out = append(out, gn)
		}
	}
	return out, nil
}

// parseDistributionPointName decodes the EXPLICIT-tagged DistributionPointName
// CHOICE from the raw bytes of a [0] wrapper field.
func parseDistributionPointName(wrapped []byte) (*DistributionPointName, error) {
	var inner asn1.RawValue
	if _, err := asn1.Unmarshal(wrapped, &inner); err != nil {
		return nil, errors.Trace(err)
	}
	switch inner.Tag {
	case 0: // fullName, implicit GeneralNames
		names, err := parseGeneralNames(inner.Bytes)
		if err != nil {
			return nil, errors.Trace(err)
		}
		return &DistributionPointName{FullName: names}, nil
	case 1: // nameRelativeToCRLIssuer, implicit RDN SET
		var rdn pkix.RelativeDistinguishedNameSET
		// the content is a SET OF AttributeTypeAndValue; reuse encoding/asn1's
		// native SET-of decoding by re-wrapping with a universal SET tag.
		reTagged := append([]byte{0x31}, inner.FullBytes[1:]...)
		if _, err := asn1.Unmarshal(reTagged, &rdn); err != nil {
			return nil, errors.Annotate(err, "nameRelativeToCRLIssuer")
		}
		return &DistributionPointName{NameRelativeToCRLIssuer: &rdn}, nil
	default:
		return nil, errors.Errorf("unsupported DistributionPointName choice tag %d", inner.Tag)
	}
}

type distributionPointASN1 struct {
	Name      asn1.RawValue  `asn1:"optional,tag:0"`
	Reasons   asn1.BitString `asn1:"optional,tag:1"`
	CRLIssuer asn1.RawValue  `asn1:"optional,tag:2"`
}

func parseDistributionPoints(ext []byte) ([]DistributionPoint, error) {
	var raw []distributionPointASN1
	if _, err := asn1.Unmarshal(ext, &raw); err != nil {
		return nil, errors.Trace(err)
	}
	out := make([]DistributionPoint, 0, len(raw))
	for _, dp := range raw {
		var decoded DistributionPoint
		if len(dp.Name.FullBytes) > 0 {
			n, err := parseDistributionPointName(dp.Name.Bytes)
			if err != nil {
				return nil, errors.Trace(err)
			}
			decoded.Name = n
		}
		decoded.Reasons = dp.Reasons
		if len(dp.CRLIssuer.FullBytes) > 0 {
			names, err := parseGeneralNames(dp.CRLIssuer.Bytes)
			if err != nil {
				return nil, errors.Trace(err)
			}
			decoded.CRLIssuer = names
		}
		out = append(out, decoded)
	}
	return out, nil
}

type issuingDistributionPointASN1 struct {
	Name                       asn1.RawValue  `asn1:"optional,tag:0"`
	OnlyContainsUserCerts      bool           `asn1:"optional,tag:1,default:false"`
	OnlyContainsCACerts        bool           `asn1:"optional,tag:2,default:false"`
	OnlySomeReasons            asn1.BitString `asn1:"optional,tag:3"`
	IndirectCRL                bool           `asn1:"optional,tag:4,default:false"`
	OnlyContainsAttributeCerts bool           `asn1:"optional,tag:5,default:false"`
}

// ParseIssuingDistributionPoint decodes a CRL's IDP extension value.
func ParseIssuingDistributionPoint(ext []byte) (*IssuingDistributionPointInfo, error) {
	var raw issuingDistributionPointASN1
	if _, err := asn1.Unmarshal(ext, &raw); err != nil {
		return nil, errors.Trace(err)
	}
	out := &IssuingDistributionPointInfo{
		OnlyContainsUserCerts:      raw.OnlyContainsUserCerts,
		OnlyContainsCACerts:        raw.OnlyContainsCACerts,
		IndirectCRL:                raw.IndirectCRL,
		OnlyContainsAttributeCerts: raw.OnlyContainsAttributeCerts,
	}
	if len(raw.Name.FullBytes) > 0 {
		n, err := parseDistributionPointName(raw.Name.Bytes)
		if err != nil {
			return nil, errors.Trace(err)
		}
		out.DistributionPoint = n
	}
	if raw.OnlySomeReasons.BitLength > 0 {
		r := raw.OnlySomeReasons
		out.OnlySomeReasons = &r
	}
	return out, nil
}

type authorityKeyIdentifierASN1 struct {
	KeyIdentifier       []byte        `asn1:"optional,tag:0"`
	AuthorityCertIssuer asn1.RawValue `asn1:"optional,tag:1"`
	AuthorityCertSerial asn1.RawValue `asn1:"optional,tag:2"`
}

// parseAuthorityKeyIdentifier decodes the authorityKeyIdentifier extension,
// returning its keyIdentifier (if present) and its authorityCertIssuer
// GeneralNames, used to resolve a CRL's issuing certificate by name when the
// CRL's own Issuer field does not name it directly (indirect CRLs).
func parseAuthorityKeyIdentifier(ext []byte) ([]byte, []GeneralName, error) {
	var raw authorityKeyIdentifierASN1
	if _, err := asn1.Unmarshal(ext, &raw); err != nil {
		return nil, nil, errors.Trace(err)
	}
	var names []GeneralName
	if len(raw.AuthorityCertIssuer.FullBytes) > 0 {
		// authorityCertIssuer is [1] IMPLICIT GeneralNames, a SEQUENCE OF
		// GeneralName; re-tag as a universal SEQUENCE to decode its members.
		retag := append([]byte{0x30}, raw.AuthorityCertIssuer.FullBytes[1:]...)
		var seq asn1.RawValue
		if _, err := asn1.Unmarshal(retag, &seq); err != nil {
			return nil, nil, errors.Annotate(err, "authorityCertIssuer")
		}
		n, err := parseGeneralNames(seq.Bytes)
		if err != nil {
			return nil, nil, errors.Trace(err)
		}
		names = n
	}
	return raw.KeyIdentifier, names, nil
}

type policyInformationASN1 struct {
	Policy     asn1.ObjectIdentifier
	Qualifiers []policyQualifierASN1 `asn1:"optional"`
}

type policyQualifierASN1 struct {
	ID    asn1.ObjectIdentifier
	Value asn1.RawValue
}

func parseCertificatePolicies(ext []byte) ([]PolicyInformation, error) {
	var raw []policyInformationASN1
	if _, err := asn1.Unmarshal(ext, &raw); err != nil {
		return nil, errors.Trace(err)
	}
	out := make([]PolicyInformation, 0, len(raw))
	for _, p := range raw {
		pi := PolicyInformation{Policy: p.Policy}
		for _, q := range p.Qualifiers {
			pi.Qualifiers = append(pi.Qualifiers, PolicyQualifier{ID: q.ID, Value: q.Value.FullBytes})
		}
		out = append(out, pi)
	}
	return out, nil
}

type policyMappingASN1 struct {
	IssuerDomainPolicy  asn1.ObjectIdentifier
	SubjectDomainPolicy asn1.ObjectIdentifier
}

func parsePolicyMappings(ext []byte) ([]PolicyMapping, error) {
	var raw []policyMappingASN1
	if _, err := asn1.Unmarshal(ext, &raw); err != nil {
		return nil, errors.Trace(err)
	}
	out := make([]PolicyMapping, 0, len(raw))
	for _, m := range raw {
		out = append(out, PolicyMapping{IssuerDomainPolicy: m.IssuerDomainPolicy, SubjectDomainPolicy: m.SubjectDomainPolicy})
	}
	return out, nil
}

type policyConstraintsASN1 struct {
	RequireExplicitPolicy int `asn1:"optional,tag:0"`
	InhibitPolicyMapping  int `asn1:"optional,tag:1"`
}

func parsePolicyConstraints(ext []byte) (*PolicyConstraintsInfo, error) {
	// Presence must be distinguished from the zero value, so decode into
	// a raw struct with explicit optional markers first.
	var raw struct {
		RequireExplicitPolicy asn1.RawValue `asn1:"optional,tag:0"`
		InhibitPolicyMapping  asn1.RawValue `asn1:"optional,tag:1"`
	}
	if _, err := asn1.Unmarshal(ext, &raw); err != nil {
		return nil, errors.Trace(err)
	}
	out := &PolicyConstraintsInfo{}
	if len(raw.RequireExplicitPolicy.FullBytes) > 0 {
		n, err := decodeSkipCerts(raw.RequireExplicitPolicy)
		if err != nil {
			return nil, errors.Trace(err)
		}
		out.RequireExplicitPolicy = &n
	}
	if len(raw.InhibitPolicyMapping.FullBytes) > 0 {
		n, err := decodeSkipCerts(raw.InhibitPolicyMapping)
		if err != nil {
			return nil, errors.Trace(err)
		}
		out.InhibitPolicyMapping = &n
	}
	return out, nil
}

func decodeSkipCerts(raw asn1.RawValue) (int, error) {
	// implicit INTEGER tagged [N]: re-tag as a universal INTEGER (2) and
	// unmarshal normally.
	retag := append([]byte{0x02}, raw.FullBytes[1:]...)
	var n int
	if _, err := asn1.Unmarshal(retag, &n); err != nil {
		return 0, errors.Trace(err)
	}
	return n, nil
}

func parseInhibitAnyPolicy(ext []byte) (int, error) {
	var n int
	if _, err := asn1.Unmarshal(ext, &n); err != nil {
		return 0, errors.Trace(err)
	}
	return n, nil
}

type aaControlsASN1 struct {
	PathLenConstraint int                     `asn1:"optional"`
	PermittedAttrs    []asn1.ObjectIdentifier `asn1:"optional,tag:0"`
	ExcludedAttrs     []asn1.ObjectIdentifier `asn1:"optional,tag:1"`
	PermitUnSpecified bool                    `asn1:"optional,default:true"`
}

// parseAAControls walks the AAControls SEQUENCE element by element: every
// field is optional, so decoding into a struct would let an absent
// pathLenConstraint misbind the [0] permitted list.
func parseAAControls(ext []byte) (*AAControlsInfo, error) {
	var seq asn1.RawValue
	if _, err := asn1.Unmarshal(ext, &seq); err != nil {
		return nil, errors.Trace(err)
	}
	out := &AAControlsInfo{PermitUnSpecified: true}
	rest := seq.Bytes
	for len(rest) > 0 {
		var el asn1.RawValue
		var err error
		rest, err = asn1.Unmarshal(rest, &el)
		if err != nil {
			return nil, errors.Trace(err)
		}
		switch {
		case el.Class == asn1.ClassUniversal && el.Tag == asn1.TagInteger:
			var n int
			if _, err := asn1.Unmarshal(el.FullBytes, &n); err != nil {
				return nil, errors.Annotate(err, "pathLenConstraint")
			}
			out.PathLenConstraint = &n
		case el.Class == asn1.ClassContextSpecific && el.Tag == 0:
			oids, err := decodeOIDList(el)
			if err != nil {
				return nil, errors.Annotate(err, "permittedAttrs")
			}
			out.PermittedAttrs = oids
		case el.Class == asn1.ClassContextSpecific && el.Tag == 1:
			oids, err := decodeOIDList(el)
			if err != nil {
				return nil, errors.Annotate(err, "excludedAttrs")
			}
			out.ExcludedAttrs = oids
		case el.Class == asn1.ClassUniversal && el.Tag == asn1.TagBoolean:
			out.PermitUnSpecified = len(el.Bytes) > 0 && el.Bytes[0] != 0
		}
	}
	return out, nil
}

// decodeOIDList decodes an implicitly tagged SEQUENCE OF OBJECT IDENTIFIER.
func decodeOIDList(el asn1.RawValue) ([]asn1.ObjectIdentifier, error) {
	var out []asn1.ObjectIdentifier
	rest := el.Bytes
	for len(rest) > 0 {
		var oid asn1.ObjectIdentifier
		var err error
		rest, err = asn1.Unmarshal(rest, &oid)
		if err != nil {
			return nil, errors.Trace(err)
		}
		out = append(out, oid)
	}
	return out, nil
}
