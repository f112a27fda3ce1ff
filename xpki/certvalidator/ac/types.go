// Package ac implements RFC 5755 attribute-certificate decoding and
// validation, built on top of package certvalidator's signature verifier
// and path validator for the
// issuing AA's own certificate chain.
package ac

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"time"

	"github.com/go-phorce/pkixvalidator/xlog"
	"github.com/juju/errors"
)

var logger = xlog.NewPackageLogger("github.com/go-phorce/pkixvalidator/xpki", "certvalidator/ac")

// RFC 5755 extension OIDs this package decodes or allow-lists.
var (
	oidAuthorityKeyIdentifier = asn1.ObjectIdentifier{2, 5, 29, 35}
	oidCRLDistributionPoints  = asn1.ObjectIdentifier{2, 5, 29, 31}
	oidFreshestCRL            = asn1.ObjectIdentifier{2, 5, 29, 46}
	oidSubjectKeyIdentifier   = asn1.ObjectIdentifier{2, 5, 29, 14}
	oidAuthorityInfoAccess    = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 1}
	oidNoRevAvail             = asn1.ObjectIdentifier{2, 5, 29, 56}
	oidTargetInformation      = asn1.ObjectIdentifier{2, 5, 29, 55}
	oidAuditIdentity          = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 4}
)

// supportedCriticalExtensions is the RFC 5755 §4.5 allow-list:
// an AC carrying a critical extension outside this set fails validation
// outright.
var supportedCriticalExtensions = map[string]bool{
	oidAuthorityInfoAccess.String():    true,
	oidAuthorityKeyIdentifier.String(): true,
	oidCRLDistributionPoints.String():  true,
	oidFreshestCRL.String():            true,
	oidSubjectKeyIdentifier.String():   true,
	oidNoRevAvail.String():             true,
	oidTargetInformation.String():      true,
	oidAuditIdentity.String():          true,
}

// IssuerSerial mirrors RFC 5755's IssuerSerial, used both in a Holder's
// baseCertificateID and an AttCertIssuer's v2Form.baseCertificateID.
type IssuerSerial struct {
	Issuer pkix.Name
	Serial *big.Int
}

type issuerSerialASN1 struct {
	Issuer    asn1.RawValue `asn1:"optional"` // GeneralNames
	Serial    *big.Int
	IssuerUID asn1.BitString `asn1:"optional"`
}

func decodeIssuerSerial(raw asn1.RawValue) (*IssuerSerial, error) {
	var is issuerSerialASN1
	if _, err := asn1.Unmarshal(raw.FullBytes, &is); err != nil {
		return nil, errors.Annotate(err, "decoding IssuerSerial")
	}
	dn, err := extractDirName(is.Issuer)
	if err != nil {
		return nil, errors.Annotate(err, "IssuerSerial.issuer")
	}
	return &IssuerSerial{Issuer: dn, Serial: is.Serial}, nil
}

// extractDirName returns the single directoryName of a GeneralNames
// SEQUENCE, the common case RFC 5755 restricts IssuerSerial.issuer /
// Holder.entityName to in practice. Names of other kinds are skipped; a
// SEQUENCE with no directoryName, or with more than one, is an error.
func extractDirName(generalNames asn1.RawValue) (pkix.Name, error) {
	var raws []asn1.RawValue
	if _, err := asn1.Unmarshal(generalNames.FullBytes, &raws); err != nil {
		return pkix.Name{}, errors.Annotate(err, "decoding GeneralNames")
	}
	var found *pkix.Name
	for _, r := range raws {
		gn, err := generalNameFromRaw(r)
		if err != nil {
			continue
		}
		if gn.Directory != nil {
			if found != nil {
				return pkix.Name{}, errors.New("GeneralNames contains more than one directoryName")
			}
			found = gn.Directory
		}
	}
	if found == nil {
		return pkix.Name{}, errors.New("GeneralNames contains no directoryName")
	}
	return *found, nil
}

// generalName is the subset of RFC 5280 GeneralName this package needs to
// distinguish, decoded locally so Holder/AttCertIssuer/Target parsing does
// not need to round-trip through certvalidator.GeneralName's constraint
// engine-specific shape.
type generalName struct {
	Directory *pkix.Name
	Other     asn1.RawValue
}

func generalNameFromRaw(raw asn1.RawValue) (generalName, error) {
	if raw.Class != asn1.ClassContextSpecific || raw.Tag != 4 {
		return generalName{Other: raw}, nil
	}
	var rdn pkix.RDNSequence
	if _, err := asn1.Unmarshal(raw.Bytes, &rdn); err != nil {
		return generalName{}, errors.Annotate(err, "directoryName")
	}
	var name pkix.Name
	name.FillFromRDNSequence(&rdn)
	return generalName{Directory: &name, Other: raw}, nil
}

// Holder mirrors RFC 5755 §4.2.1, restricted to the fields this validator
// consumes (base_certificate_id, entity_name; object_digest_info is
// explicitly unsupported: its presence is only recorded, and Validate
// reports it as a holder mismatch when a holder certificate is checked).
type Holder struct {
	BaseCertificateID   *IssuerSerial
	EntityName          *pkix.Name
	HasObjectDigestInfo bool
}

type holderASN1 struct {
	BaseCertificateID asn1.RawValue `asn1:"optional,tag:0"`
	EntityName        asn1.RawValue `asn1:"optional,tag:1"`
	ObjectDigestInfo  asn1.RawValue `asn1:"optional,tag:2"`
}

func decodeHolder(raw asn1.RawValue) (Holder, error) {
	var h holderASN1
	if _, err := asn1.Unmarshal(raw.FullBytes, &h); err != nil {
		return Holder{}, errors.Annotate(err, "decoding Holder")
	}
	out := Holder{HasObjectDigestInfo: len(h.ObjectDigestInfo.FullBytes) > 0}
	if len(h.BaseCertificateID.FullBytes) > 0 {
		// [0] IssuerSerial is implicitly tagged; re-tag as a universal
		// SEQUENCE before decoding with decodeIssuerSerial.
		retagged := asn1.RawValue{FullBytes: append([]byte{0x30}, h.BaseCertificateID.FullBytes[1:]...)}
		is, err := decodeIssuerSerial(retagged)
		if err != nil {
			return Holder{}, errors.Annotate(err, "Holder.baseCertificateID")
		}
		out.BaseCertificateID = is
	}
	if len(h.EntityName.FullBytes) > 0 {
		retagged := asn1.RawValue{FullBytes: append([]byte{0x30}, h.EntityName.FullBytes[1:]...)}
		dn, err := extractDirName(retagged)
		if err != nil {
			return Holder{}, errors.Annotate(err, "Holder.entityName")
		}
		out.EntityName = &dn
	}
	return out, nil
}

// AttCertIssuer mirrors RFC 5755's AttCertIssuer CHOICE. The v1Form
// alternative (bare GeneralNames) is decoded but RFC 5755 §4.1 forbids its
// use; callers should reject an AC using it unless explicitly relaxed.
type AttCertIssuer struct {
	IsV1Form            bool
	IssuerName          *pkix.Name
	BaseCertificateID   *IssuerSerial
	HasObjectDigestInfo bool
}

type v2FormASN1 struct {
	IssuerName        asn1.RawValue `asn1:"optional"`
	BaseCertificateID asn1.RawValue `asn1:"optional,tag:0"`
	ObjectDigestInfo  asn1.RawValue `asn1:"optional,tag:1"`
}

func decodeAttCertIssuer(raw asn1.RawValue) (AttCertIssuer, error) {
	if raw.Class == asn1.ClassContextSpecific && raw.Tag == 0 {
		var v2 v2FormASN1
		if _, err := asn1.Unmarshal(raw.Bytes, &v2); err != nil {
			return AttCertIssuer{}, errors.Annotate(err, "decoding v2Form")
		}
		out := AttCertIssuer{HasObjectDigestInfo: len(v2.ObjectDigestInfo.FullBytes) > 0}
		if len(v2.IssuerName.FullBytes) > 0 {
			dn, err := extractDirName(v2.IssuerName)
			if err != nil {
				return AttCertIssuer{}, errors.Annotate(err, "v2Form.issuerName")
			}
			out.IssuerName = &dn
		}
		if len(v2.BaseCertificateID.FullBytes) > 0 {
			retagged := asn1.RawValue{FullBytes: append([]byte{0x30}, v2.BaseCertificateID.FullBytes[1:]...)}
			is, err := decodeIssuerSerial(retagged)
			if err != nil {
				return AttCertIssuer{}, errors.Annotate(err, "v2Form.baseCertificateID")
			}
			out.BaseCertificateID = is
		}
		return out, nil
	}
	// v1Form: bare GeneralNames, not [0]-wrapped.
	dn, err := extractDirName(raw)
	if err != nil {
		return AttCertIssuer{}, errors.Annotate(err, "v1Form")
	}
	return AttCertIssuer{IsV1Form: true, IssuerName: &dn}, nil
}

// Attribute is one RFC 5755 §4.2.4 Attribute: an OID and its (unparsed,
// caller-interpreted) DER-encoded values.
type Attribute struct {
	Type   asn1.ObjectIdentifier
	Values []asn1.RawValue
}

type attributeASN1 struct {
	Type   asn1.ObjectIdentifier
	Values []asn1.RawValue `asn1:"set"`
}

type attCertValidityASN1 struct {
	NotBefore time.Time
	NotAfter  time.Time
}

type attCertInfoASN1 struct {
	Version                int
	Holder                 asn1.RawValue
	Issuer                 asn1.RawValue
	Signature              pkix.AlgorithmIdentifier
	SerialNumber           *big.Int
	AttrCertValidityPeriod attCertValidityASN1
	Attributes             []attributeASN1
	IssuerUniqueID         asn1.BitString   `asn1:"optional"`
	Extensions             []pkix.Extension `asn1:"optional"`
}

type attributeCertificateASN1 struct {
	ACInfo             asn1.RawValue
	SignatureAlgorithm pkix.AlgorithmIdentifier
	SignatureValue     asn1.BitString
}

// AttributeCertificate is a decoded RFC 5755 AttributeCertificate, holding
// both the structured fields the validator needs and the raw TBS bytes the
// signature verifier operates on.
type AttributeCertificate struct {
	Raw                []byte
	TBSRaw             []byte
	SignatureAlgorithm pkix.AlgorithmIdentifier
	Signature          []byte

	Holder       Holder
	Issuer       AttCertIssuer
	InnerSigAlg  pkix.AlgorithmIdentifier
	SerialNumber *big.Int
	NotBefore    time.Time
	NotAfter     time.Time
	Attributes   []Attribute

	criticalOIDs []string
	extByOID     map[string][]byte
}

// ParseAttributeCertificate decodes der into an AttributeCertificate.
func ParseAttributeCertificate(der []byte) (*AttributeCertificate, error) {
	var outer attributeCertificateASN1
	if _, err := asn1.Unmarshal(der, &outer); err != nil {
		return nil, errors.Annotate(err, "decoding AttributeCertificate")
	}
	var info attCertInfoASN1
	if _, err := asn1.Unmarshal(outer.ACInfo.FullBytes, &info); err != nil {
		return nil, errors.Annotate(err, "decoding AttributeCertificateInfo")
	}

	holder, err := decodeHolder(info.Holder)
	if err != nil {
		return nil, errors.Trace(err)
	}
	issuer, err := decodeAttCertIssuer(info.Issuer)
	if err != nil {
		return nil, errors.Trace(err)
	}

	ac := &AttributeCertificate{
		Raw:                der,
		TBSRaw:             outer.ACInfo.FullBytes,
		SignatureAlgorithm: outer.SignatureAlgorithm,
		Signature:          outer.SignatureValue.RightAlign(),
		Holder:             holder,
		Issuer:             issuer,
		InnerSigAlg:        info.Signature,
		SerialNumber:       info.SerialNumber,
		NotBefore:          info.AttrCertValidityPeriod.NotBefore,
		NotAfter:           info.AttrCertValidityPeriod.NotAfter,
		extByOID:           make(map[string][]byte),
	}
	for _, a := range info.Attributes {
		ac.Attributes = append(ac.Attributes, Attribute{Type: a.Type, Values: a.Values})
	}
	for _, ext := range info.Extensions {
		oidStr := ext.Id.String()
		ac.extByOID[oidStr] = ext.Value
		if ext.Critical {
			ac.criticalOIDs = append(ac.criticalOIDs, oidStr)
		}
	}
	return ac, nil
}

// ExtensionValue returns the raw extension value for oidStr, if present.
func (c *AttributeCertificate) ExtensionValue(oidStr string) ([]byte, bool) {
	v, ok := c.extByOID[oidStr]
	return v, ok
}

// CriticalExtensions returns the dot-notation OIDs of every critical
// extension on the AC.
func (c *AttributeCertificate) CriticalExtensions() []string { return c.criticalOIDs }

// HasNoRevAvail reports whether the AC carries the noRevAvail extension
// (RFC 5755 §4.3.6), which exempts it from revocation checking.
func (c *AttributeCertificate) HasNoRevAvail() bool {
	_, ok := c.extByOID[oidNoRevAvail.String()]
	return ok
}

// CRLDistributionPoints decodes the AC's own crlDistributionPoints
// extension, when present.
func (c *AttributeCertificate) CRLDistributionPoints() ([]DistributionPoint, error) {
	v, ok := c.extByOID[oidCRLDistributionPoints.String()]
	if !ok {
		return nil, nil
	}
	return decodeDistributionPoints(v)
}

// AuthorityKeyIdentifier decodes the AC's authorityKeyIdentifier extension,
// when present, returning the key identifier and, if present, the issuing
// AA's own (issuer, serial) identification.
func (c *AttributeCertificate) AuthorityKeyIdentifier() (keyID []byte, issuer *IssuerSerial, ok bool) {
	v, present := c.extByOID[oidAuthorityKeyIdentifier.String()]
	if !present {
		return nil, nil, false
	}
	var raw struct {
		KeyIdentifier []byte        `asn1:"optional,tag:0"`
		Issuer        asn1.RawValue `asn1:"optional,tag:1"`
		Serial        *big.Int      `asn1:"optional,tag:2"`
	}
	if _, err := asn1.Unmarshal(v, &raw); err != nil {
		return nil, nil, false
	}
	if len(raw.Issuer.FullBytes) > 0 && raw.Serial != nil {
		retagged := asn1.RawValue{FullBytes: append([]byte{0x30}, raw.Issuer.FullBytes[1:]...)}
		if dn, err := extractDirName(retagged); err == nil {
			issuer = &IssuerSerial{Issuer: dn, Serial: raw.Serial}
		}
	}
	return raw.KeyIdentifier, issuer, true
}

// TargetInformation decodes the AC's targetInformation extension (a
// SEQUENCE OF Targets), when present.
func (c *AttributeCertificate) TargetInformation() ([]Targets, bool, error) {
	v, ok := c.extByOID[oidTargetInformation.String()]
	if !ok {
		return nil, false, nil
	}
	var groups []asn1.RawValue
	if _, err := asn1.Unmarshal(v, &groups); err != nil {
		return nil, true, errors.Annotate(err, "decoding targetInformation")
	}
	out := make([]Targets, 0, len(groups))
	for _, g := range groups {
		targets, err := decodeTargets(g)
		if err != nil {
			return nil, true, errors.Trace(err)
		}
		out = append(out, targets)
	}
	return out, true, nil
}

// Target is one entry of a Targets SEQUENCE (RFC 5755 §4.3.2). Only
// targetName and targetGroup are supported;
// targetCert entries are ignored for matching purposes.
type Target struct {
	Name  *generalName
	Group *generalName
}

// Targets is one SEQUENCE OF Target group within a targetInformation
// extension.
type Targets []Target

func decodeTargets(raw asn1.RawValue) (Targets, error) {
	var entries []asn1.RawValue
	if _, err := asn1.Unmarshal(raw.FullBytes, &entries); err != nil {
		return nil, errors.Annotate(err, "decoding Targets")
	}
	out := make(Targets, 0, len(entries))
	for _, e := range entries {
		// targetName [0] and targetGroup [1] both EXPLICITLY wrap a
		// GeneralName, so e.Bytes is that GeneralName's own full TLV.
		switch {
		case e.Class == asn1.ClassContextSpecific && e.Tag == 0:
			var inner asn1.RawValue
			if _, err := asn1.Unmarshal(e.Bytes, &inner); err != nil {
				return nil, errors.Annotate(err, "targetName")
			}
			gn, err := generalNameFromRaw(inner)
			if err != nil {
				return nil, errors.Annotate(err, "targetName")
			}
			out = append(out, Target{Name: &gn})
		case e.Class == asn1.ClassContextSpecific && e.Tag == 1:
			var inner asn1.RawValue
			if _, err := asn1.Unmarshal(e.Bytes, &inner); err != nil {
				return nil, errors.Annotate(err, "targetGroup")
			}
			gn, err := generalNameFromRaw(inner)
			if err != nil {
				return nil, errors.Annotate(err, "targetGroup")
			}
			out = append(out, Target{Group: &gn})
		default:
			// targetCert or an unrecognized alternative: not used for
			// matching.
		}
	}
	return out, nil
}

// DistributionPoint is the minimal CRL distribution point shape this package needs:
// just the URIs/names a CRL fetcher would dereference. Full DP semantics
// (reason scoping, indirect CRL issuer names) live in package certvalidator
// and are not duplicated here; an AC's own revocation check (checkACRevocation
// in validate.go) only needs to know where to fetch from and who issued the CRL it gets back.
type DistributionPoint struct {
	FullNameDirectory *pkix.Name
	FullNameURI       string
}

type dpASN1 struct {
	Name asn1.RawValue `asn1:"optional,tag:0"`
}

func decodeDistributionPoints(ext []byte) ([]DistributionPoint, error) {
	var raw []dpASN1
	if _, err := asn1.Unmarshal(ext, &raw); err != nil {
		return nil, errors.Annotate(err, "decoding CRLDistributionPoints")
	}
	var out []DistributionPoint
	for _, dp := range raw {
		if len(dp.Name.FullBytes) == 0 {
			continue
		}
		var inner asn1.RawValue
		if _, err := asn1.Unmarshal(dp.Name.Bytes, &inner); err != nil {
			return nil, errors.Trace(err)
		}
		if inner.Tag != 0 { // fullName
			continue
		}
		var names []asn1.RawValue
		if _, err := asn1.Unmarshal(inner.FullBytes, &names); err != nil {
			return nil, errors.Trace(err)
		}
		for _, n := range names {
			gn, err := generalNameFromRaw(n)
			if err != nil {
				continue
			}
			if gn.Directory != nil {
				out = append(out, DistributionPoint{FullNameDirectory: gn.Directory})
			} else if n.Class == asn1.ClassContextSpecific && n.Tag == 6 {
				out = append(out, DistributionPoint{FullNameURI: string(n.Bytes)})
			}
		}
	}
	return out, nil
}
