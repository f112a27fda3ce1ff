package certvalidator

import (
	"fmt"
	"time"

	"github.com/juju/errors"
)

// Kind enumerates this package's error categories. These are kinds, not
// distinct Go types: every Error carries one.
type Kind int

const (
	KindPathValidationError Kind = iota
	KindNotYetValid
	KindExpired
	KindWeakAlgorithm
	KindPSSParameterMismatch
	KindInvalidSignature
	KindInvalidCertificate
	KindInvalidAttrCertificate
	KindCRLNoMatches
	KindCRLValidationIndeterminate
	KindOCSPNoMatches
	KindOCSPValidationIndeterminate
	KindRevoked
	KindInsufficientRevinfo
	KindCRLFetchError
	KindOCSPFetchError
	KindCertificateFetchError
	KindPathBuildingError
	KindUnsupportedAlgorithm
)

func (k Kind) String() string {
	switch k {
	case KindPathValidationError:
		return "PathValidationError"
	case KindNotYetValid:
		return "NotYetValid"
	case KindExpired:
		return "Expired"
	case KindWeakAlgorithm:
		return "WeakAlgorithm"
	case KindPSSParameterMismatch:
		return "PSSParameterMismatch"
	case KindInvalidSignature:
		return "InvalidSignature"
	case KindInvalidCertificate:
		return "InvalidCertificate"
	case KindInvalidAttrCertificate:
		return "InvalidAttrCertificate"
	case KindCRLNoMatches:
		return "CRLNoMatchesError"
	case KindCRLValidationIndeterminate:
		return "CRLValidationIndeterminateError"
	case KindOCSPNoMatches:
		return "OCSPNoMatchesError"
	case KindOCSPValidationIndeterminate:
		return "OCSPValidationIndeterminateError"
	case KindRevoked:
		return "RevokedError"
	case KindInsufficientRevinfo:
		return "InsufficientRevinfoError"
	case KindCRLFetchError:
		return "CRLFetchError"
	case KindOCSPFetchError:
		return "OCSPFetchError"
	case KindCertificateFetchError:
		return "CertificateFetchError"
	case KindPathBuildingError:
		return "PathBuildingError"
	case KindUnsupportedAlgorithm:
		return "UnsupportedAlgorithm"
	default:
		return "Error"
	}
}

// Error is the core package's error type: a Kind plus a message, optionally
// carrying revocation detail (RevokedError) or a list of per-CRL/per-OCSP
// diagnostics (the *Indeterminate kinds).
type Error struct {
	Kind    Kind
	Message string

	// RevokedAt / Reason are set only for KindRevoked.
	RevokedAt time.Time
	Reason    string

	// Failures carries accumulated sub-diagnostics for the *Indeterminate
	// kinds.
	Failures []error
}

func (e *Error) Error() string {
	if e.Kind == KindRevoked {
		return fmt.Sprintf("%s: revoked at %s, reason=%s", e.Kind, e.RevokedAt.Format(time.RFC3339), e.Reason)
	}
	if len(e.Failures) > 0 {
		return fmt.Sprintf("%s: %s (%d sub-failures)", e.Kind, e.Message, len(e.Failures))
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newErr(kind Kind, format string, args ...interface{}) error {
	return errors.Trace(&Error{Kind: kind, Message: fmt.Sprintf(format, args...)})
}

// NewRevokedError builds a KindRevoked error carrying the revocation
// moment and reason.
func NewRevokedError(at time.Time, reason string) error {
	return &Error{Kind: KindRevoked, RevokedAt: at, Reason: reason, Message: "certificate revoked"}
}

// NewIndeterminateError builds an *Error of the given kind carrying the
// accumulated per-candidate failures.
func NewIndeterminateError(kind Kind, message string, failures []error) error {
	return &Error{Kind: kind, Message: message, Failures: failures}
}

// NewPathBuildingError builds a KindPathBuildingError, the error category a
// Registry implementation's BuildPaths raises.
func NewPathBuildingError(format string, args ...interface{}) error {
	return newErr(KindPathBuildingError, format, args...)
}

// NewInvalidAttrCertificateError builds a KindInvalidAttrCertificate error,
// raised by package ac for attribute-certificate shape and profile
// violations.
func NewInvalidAttrCertificateError(format string, args ...interface{}) error {
	return newErr(KindInvalidAttrCertificate, format, args...)
}

// AsError unwraps err (possibly traced by juju/errors) to a *Error.
func AsError(err error) (*Error, bool) {
	cause := errors.Cause(err)
	e, ok := cause.(*Error)
	return e, ok
}

// KindOf returns the Kind of err if it is (or wraps) a *Error, else false.
func KindOf(err error) (Kind, bool) {
	e, ok := AsError(err)
	if !ok {
		return 0, false
	}
	return e.Kind, true
}
