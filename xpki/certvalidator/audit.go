package certvalidator

import (
	"github.com/go-phorce/pkixvalidator/audit"
)

// auditSource identifies this package as the audit.Source for every Event
// it raises.
type auditSource int

// Source is the single audit.Source value this package emits under.
const Source auditSource = 1

func (auditSource) ID() int        { return 1 }
func (auditSource) String() string { return "certvalidator" }

// auditEventType enumerates the audit.EventType values this package raises.
type auditEventType int

const (
	// EventPathValidated marks a successful RFC 5280 §6.1 path validation.
	EventPathValidated auditEventType = iota + 1
	// EventPathRejected marks a path that failed validation.
	EventPathRejected
	// EventRevocationChecked marks a completed (CRL and/or OCSP) revocation
	// determination for one certificate.
	EventRevocationChecked
	// EventSoftFail marks a tolerated revocation-source failure, mirroring
	// ValidationContext.SoftFailHook.
	EventSoftFail
)

func (e auditEventType) ID() int { return int(e) }

func (e auditEventType) String() string {
	switch e {
	case EventPathValidated:
		return "PathValidated"
	case EventPathRejected:
		return "PathRejected"
	case EventRevocationChecked:
		return "RevocationChecked"
	case EventSoftFail:
		return "SoftFail"
	default:
		return "Unknown"
	}
}

// auditEvent emits an audit.Event through vctx.Auditor, when one is
// configured. identity is the certificate subject the event concerns; it is
// used as the Event's Identity() since path validation has no notion of an
// acting principal separate from the certificate being evaluated.
func auditEvent(vctx *ValidationContext, evt auditEventType, identity string, message string, vals ...interface{}) {
	if vctx.Auditor == nil {
		return
	}
	vctx.Auditor.Event(audit.New(identity, "", Source, evt, 0, message, vals...))
}
