package certvalidator

import (
	"crypto/x509/pkix"
	"encoding/asn1"
	"net"
	"strings"
)

// constraintSet is one CA's nameConstraints extension, grouped by
// GeneralName kind, used as a single generation of the permitted lattice
// (RFC 5280 §4.2.1.10: permitted subtrees intersect on descent).
type constraintSet struct {
	kind  string
	bases []GeneralName
}

// Subtrees is the accumulated name-constraint state carried in PathState.
// Permitted subtrees intersect as the
// path descends: each CA's own permittedSubtrees adds one more generation
// that must ALSO be satisfied, on top of everything inherited from its
// issuers. Excluded subtrees union: any CA along the path excluding a name
// is final.
type Subtrees struct {
	permitted []constraintSet // AND across generations, OR within a generation
	excluded  []GeneralName   // OR across all entries: any match excludes
}

// IntersectPermitted returns a new Subtrees with one more generation of
// permitted constraints applied, grouped by kind. A kind absent from
// newConstraints remains unconstrained by this generation (but may still
// be constrained by an earlier one).
func (s Subtrees) IntersectPermitted(newConstraints []GeneralName) Subtrees {
	if len(newConstraints) == 0 {
		return s
	}
	byKind := map[string][]GeneralName{}
	for _, gn := range newConstraints {
		byKind[gn.Kind()] = append(byKind[gn.Kind()], gn)
	}
	next := Subtrees{
		permitted: append([]constraintSet(nil), s.permitted...),
		excluded:  s.excluded,
	}
	for kind, bases := range byKind {
		next.permitted = append(next.permitted, constraintSet{kind: kind, bases: bases})
	}
	return next
}

// UnionExcluded returns a new Subtrees with newConstraints added to the
// excluded set.
func (s Subtrees) UnionExcluded(newConstraints []GeneralName) Subtrees {
	if len(newConstraints) == 0 {
		return s
	}
	return Subtrees{
		permitted: s.permitted,
		excluded:  append(append([]GeneralName(nil), s.excluded...), newConstraints...),
	}
}

// IntersectSubtrees combines two full Subtrees values the same way a CA's
// nameConstraints extension combines with what came before it: permitted
// generations accumulate (AND), excluded entries accumulate (OR). Used to
// combine a trust anchor's TrustQualifiers-level constraints with the
// caller's PKIXParams-level ones, where each side conventionally
// populates only the slot (permitted or excluded) it represents, so the
// other side's empty field is a no-op to merge in.
func (s Subtrees) IntersectSubtrees(other Subtrees) Subtrees {
	return Subtrees{
		permitted: append(append([]constraintSet(nil), s.permitted...), other.permitted...),
		excluded:  append(append([]GeneralName(nil), s.excluded...), other.excluded...),
	}
}

// Accept reports whether name satisfies every permitted-subtree generation
// that constrains its kind, and matches no excluded entry of its kind.
// Unrecognized GeneralName kinds are neither constrained nor excludable,
// and always pass.
func (s Subtrees) Accept(name GeneralName) bool {
	kind := name.Kind()
	if kind == "unsupported" {
		return true
	}
	for _, excl := range s.excluded {
		if excl.Kind() == kind && namesMatch(excl, name) {
			return false
		}
	}
	for _, gen := range s.permitted {
		if gen.kind != kind {
			continue
		}
		matched := false
		for _, base := range gen.bases {
			if namesMatch(base, name) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// AcceptCert applies Accept to every name the path-validation name-constraint
// step must check on cert: its subject directoryName (when non-empty) and
// every subjectAltName entry, per RFC 5280 §6.1.4(g).
func (s Subtrees) AcceptCert(cert *Certificate) (GeneralName, bool) {
	if len(cert.Subject.ToRDNSequence()) > 0 {
		subject := cert.Subject
		subj := GeneralName{Directory: &subject}
		if !s.Accept(subj) {
			return subj, false
		}
	}
	for _, gn := range subjectAltNames(cert) {
		if !s.Accept(gn) {
			return gn, false
		}
	}
	return GeneralName{}, true
}

// subjectAltNames decodes the cert's subjectAltName extension into the
// GeneralName entries the constraint engine checks. The extension value is
// the full GeneralNames SEQUENCE; unwrap it before walking the members.
func subjectAltNames(cert *Certificate) []GeneralName {
	v, ok := cert.ExtensionValue(oidExtSubjectAltName.String())
	if !ok {
		return nil
	}
	var seq asn1.RawValue
	if _, err := asn1.Unmarshal(v, &seq); err != nil {
		return nil
	}
	names, _ := parseGeneralNames(seq.Bytes)
	return names
}

// namesMatch reports whether candidate falls within the subtree rooted at
// base. base and candidate must be the same Kind(); kinds the engine does
// not specifically understand never match (handled by the unsupported
// short-circuit in Accept).
func namesMatch(base, candidate GeneralName) bool {
	switch base.Kind() {
	case "directoryName":
		return dnIsSubordinate(*candidate.Directory, *base.Directory)
	case "dNSName":
		return dnsMatchesSubtree(base.DNS, candidate.DNS)
	case "rfc822Name":
		return emailMatchesSubtree(base.Email, candidate.Email)
	case "uniformResourceIdentifier":
		return uriMatchesSubtree(base.URI, candidate.URI)
	case "iPAddress":
		return ipMatchesSubtree(base, candidate)
	default:
		return false
	}
}

// dnIsSubordinate reports whether name is equal to or a descendant of base
// in the X.500 DN tree: base's RDN sequence, read most-significant-first,
// must be a prefix of name's, attribute types matching exactly and string
// values compared case-insensitively.
func dnIsSubordinate(name, base pkix.Name) bool {
	nameSeq := name.ToRDNSequence()
	baseSeq := base.ToRDNSequence()
	if len(baseSeq) > len(nameSeq) {
		return false
	}
	for i, baseRDN := range baseSeq {
		if !rdnEqual(nameSeq[i], baseRDN) {
			return false
		}
	}
	return true
}

func rdnEqual(a, b pkix.RelativeDistinguishedNameSET) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Type.Equal(b[i].Type) {
			return false
		}
		if attrValueString(a[i].Value) != attrValueString(b[i].Value) {
			return false
		}
	}
	return true
}

func attrValueString(v interface{}) string {
	if s, ok := v.(string); ok {
		return strings.ToLower(s)
	}
	return ""
}

// dnsMatchesSubtree implements RFC 5280 §4.2.1.10: any DNS name formed by
// prepending zero or more labels to base satisfies the constraint.
func dnsMatchesSubtree(base, candidate string) bool {
	base = strings.ToLower(strings.TrimPrefix(base, "."))
	candidate = strings.ToLower(candidate)
	if candidate == base {
		return true
	}
	return strings.HasSuffix(candidate, "."+base)
}

// emailMatchesSubtree handles the three RFC 5280 §4.2.1.6 rfc822Name
// constraint forms: a full mailbox (exact match), "@host" (exact host
// match), or a bare host/domain (subtree match on the candidate's host).
func emailMatchesSubtree(base, candidate string) bool {
	base = strings.ToLower(base)
	candidate = strings.ToLower(candidate)
	at := strings.LastIndex(candidate, "@")
	if at < 0 {
		return false
	}
	candidateHost := candidate[at+1:]
	if strings.HasPrefix(base, "@") {
		return base[1:] == candidateHost
	}
	if strings.Contains(base, "@") {
		return base == candidate
	}
	return dnsMatchesSubtree(base, candidateHost)
}

// uriMatchesSubtree implements RFC 5280 §4.2.1.6's URI constraint: base
// names a host (or domain), matched against the host part of candidate's
// authority component using the same subtree rule as dNSName.
func uriMatchesSubtree(base, candidate string) bool {
	host := candidate
	if idx := strings.Index(host, "://"); idx >= 0 {
		host = host[idx+3:]
	}
	if idx := strings.IndexAny(host, "/?#"); idx >= 0 {
		host = host[:idx]
	}
	if idx := strings.LastIndex(host, "@"); idx >= 0 {
		host = host[idx+1:]
	}
	if idx := strings.LastIndex(host, ":"); idx >= 0 && !strings.Contains(host, "]") {
		host = host[:idx]
	}
	return dnsMatchesSubtree(base, host)
}

// ipMatchesSubtree reports whether candidate's address falls within base's
// address+mask subtree, per RFC 5280 §4.2.1.10.
func ipMatchesSubtree(base, candidate GeneralName) bool {
	var baseNet *net.IPNet
	switch {
	case base.IPNet != nil:
		baseNet = base.IPNet
	case base.IP != nil:
		baseNet = &net.IPNet{IP: base.IP, Mask: net.CIDRMask(len(base.IP)*8, len(base.IP)*8)}
	default:
		return false
	}
	if candidate.IP != nil {
		return baseNet.Contains(candidate.IP)
	}
	if candidate.IPNet != nil {
		return baseNet.Contains(candidate.IPNet.IP)
	}
	return false
}
