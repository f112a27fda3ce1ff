package certvalidator

import (
	"context"
	"time"

	"github.com/go-phorce/pkixvalidator/metrics"
)

var metricsKeyRevocation = []string{"certvalidator", "revocation"}

// CheckRevocation is the revocation combinator: it reconciles the CRL
// engine and the external OCSP oracle according to
// the position's RevocationRule, honoring Tolerant (soft-fail) and Strict
// (hard-fail) semantics. A revoked verdict from either source is immediately
// final; fetch failures under a tolerant rule are reported through the
// context's soft-fail hook and do not abort on their own.
func CheckRevocation(ctx context.Context, vctx *ValidationContext, cert, issuer *Certificate, path *ValidationPath, pstate *ProcessingState, rule RevocationRule) error {
	if rule.Mode == ModeNoCheck {
		return nil
	}

	start := time.Now()
	err := checkRevocation(ctx, vctx, cert, issuer, path, pstate, rule)
	metrics.MeasureSince(metricsKeyRevocation, start, metrics.Tag{Name: "outcome", Value: outcomeTag(err)})
	metrics.IncrCounter(metricsKeyRevocation, 1, metrics.Tag{Name: "outcome", Value: outcomeTag(err)})
	if err != nil {
		auditEvent(vctx, EventRevocationChecked, cert.Subject.String(), "revocation check failed: %s", err)
	} else {
		auditEvent(vctx, EventRevocationChecked, cert.Subject.String(), "revocation check passed")
	}
	return err
}

// checkRevocation is the unwrapped implementation CheckRevocation measures
// and audits. The sequence: read the declared
// revinfo, consult OCSP, enforce ocsp_mandatory, derive status_good, decide
// whether CRLs must run, consult them, enforce crl_mandatory, then apply the
// expected-revinfo rule over what actually matched.
func checkRevocation(ctx context.Context, vctx *ValidationContext, cert, issuer *Certificate, path *ValidationPath, pstate *ProcessingState, rule RevocationRule) error {
	declaredOCSP := len(cert.OCSPServer) > 0
	declaredCRL := len(cert.CRLDistributionPoints()) > 0 || len(cert.FreshestCRL()) > 0
	declared := declaredOCSP || declaredCRL

	var failures []error
	ocspGood, ocspMatched := false, false

	if rule.OCSPRelevant && declaredOCSP && vctx.OCSPOracle != nil {
		err := vctx.OCSPOracle.VerifyOCSPResponse(ctx, cert, path, vctx, pstate)
		kind, _ := KindOf(err)
		switch {
		case err == nil:
			ocspGood, ocspMatched = true, true
		case kind == KindRevoked:
			return err
		case kind == KindOCSPNoMatches:
			// no responder covered this certificate; stay silent
		case kind == KindOCSPFetchError:
			if rule.Tolerant {
				vctx.reportSoftFail(SoftFailEvent{Certificate: cert, Stage: "ocsp", Err: err})
			} else {
				failures = append(failures, err)
			}
		default:
			ocspMatched = true
			failures = append(failures, err)
		}
	}
	if rule.OCSPMandatory && !ocspGood {
		return newErr(KindInsufficientRevinfo, "mandatory OCSP check did not succeed for %q", cert.Subject)
	}

	statusGood := ocspGood && rule.Mode != ModeCRLAndOCSPRequired

	crlGood, crlMatched := false, false
	runCRL := rule.CRLMandatory ||
		(rule.CRLRelevant && declaredCRL && !statusGood) ||
		(rule.Mode == ModeCRLOrOCSPRequired && !statusGood)
	if runCRL {
		res, err := CheckRevocationViaCRLs(ctx, vctx, cert, issuer, path, pstate)
		kind, _ := KindOf(err)
		switch {
		case err == nil && res.Revoked:
			return NewRevokedError(res.RevokedAt, res.Reason)
		case err == nil:
			crlGood, crlMatched = true, true
		case kind == KindCRLNoMatches:
			// no candidate CRL covered this certificate; stay silent
		case kind == KindCRLFetchError:
			if rule.Tolerant {
				vctx.reportSoftFail(SoftFailEvent{Certificate: cert, Stage: "crl", Err: err})
			} else {
				failures = append(failures, err)
			}
		default:
			crlMatched = true
			failures = append(failures, err)
		}
	}
	if rule.CRLMandatory && !crlGood {
		return newErr(KindInsufficientRevinfo, "mandatory CRL check did not succeed for %q", cert.Subject)
	}

	expected := rule.Strict || (declared && rule.Mode == ModeCheckIfDeclared) ||
		rule.Mode == ModeCRLOrOCSPRequired || rule.Mode == ModeCRLAndOCSPRequired
	if !ocspMatched && !crlMatched {
		if expected {
			return newErr(KindInsufficientRevinfo, "no revocation information found for %q", cert.Subject)
		}
		return nil
	}
	if !statusGood && !crlGood && len(failures) > 0 {
		return NewIndeterminateError(KindInsufficientRevinfo, "revocation checks failed for "+cert.Subject.String(), failures)
	}
	return nil
}
