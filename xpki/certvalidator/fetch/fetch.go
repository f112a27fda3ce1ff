// Package fetch implements a concrete, good-citizen version of the
// out-of-scope "Certificate fetcher" external interface: AIA
// and CRL distribution point retrieval over HTTP, built on xhttp/retriable
// exactly as the rest of this module builds its HTTP clients. It is non-normative
// — callers of package certvalidator may supply their own fetcher or CRL
// client instead.
package fetch

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/pem"
	"io/ioutil"
	"mime"
	"net/http"
	"time"

	"github.com/cloudflare/cfssl/helpers"
	"github.com/go-phorce/pkixvalidator/xhttp/retriable"
	"github.com/go-phorce/pkixvalidator/xlog"
	"github.com/go-phorce/pkixvalidator/xpki/certutil"
	"github.com/go-phorce/pkixvalidator/xpki/certvalidator"
	"github.com/go-phorce/pkixvalidator/xpki/certvalidator/ac"
	"github.com/go-phorce/pkixvalidator/xpki/certvalidator/poe"
	"github.com/juju/errors"
)

var logger = xlog.NewPackageLogger("github.com/go-phorce/pkixvalidator/xpki", "certvalidator/fetch")

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithPEMPermissive additionally accepts "application/x-pem-file" and
// "text/plain" responses, decoding every PEM CERTIFICATE block found.
func WithPEMPermissive() Option {
	return func(f *Fetcher) { f.pemPermissive = true }
}

// WithClient overrides the retriable HTTP client (e.g. for custom TLS
// config or a test double).
func WithClient(c *retriable.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// Fetcher implements certvalidator/registry.Fetcher (FetchCertIssuers, via
// AIA caIssuers URLs) and certvalidator.CRLClient (FetchCRLs, via CRL
// distribution points), and is the default, non-mandatory implementation of
// the AIA/CRL-DP certificate-fetcher collaborator.
type Fetcher struct {
	client        *retriable.Client
	pemPermissive bool
	poe           *poe.Map
}

// New returns a Fetcher. poeMap records the fetch time as each response's
// proof-of-existence; pass nil to skip POE
// bookkeeping.
func New(poeMap *poe.Map, opts ...Option) *Fetcher {
	f := &Fetcher{client: retriable.New(), poe: poeMap}
	for _, o := range opts {
		o(f)
	}
	return f
}

// ACCRLClient adapts a Fetcher to ac.CRLClient. Fetcher cannot implement
// that interface directly: Go does not allow two FetchCRLs methods
// distinguished only by argument type on the same receiver, and Fetcher
// already implements certvalidator.CRLClient's FetchCRLs(*Certificate).
type ACCRLClient struct {
	*Fetcher
}

// FetchCRLs implements ac.CRLClient.
func (a ACCRLClient) FetchCRLs(ctx context.Context, attr *ac.AttributeCertificate) ([]*certvalidator.CRLWithPOE, error) {
	return a.Fetcher.FetchACCRLs(ctx, attr)
}

// FetchCertIssuers implements registry.Fetcher: follow cert's
// Authority Information Access caIssuers URLs and decode whatever
// certificates come back.
func (f *Fetcher) FetchCertIssuers(ctx context.Context, cert *certvalidator.Certificate) ([]*certvalidator.Certificate, error) {
	urls := cert.IssuingCertificateURL
	var out []*certvalidator.Certificate
	var lastErr error
	for _, u := range urls {
		certs, err := f.fetchCertificates(ctx, u)
		if err != nil {
			lastErr = err
			logger.Debugf("reason=aia_fetch_failed, url=%q, err=[%v]", u, err)
			continue
		}
		for _, c := range certs {
			wrapped, err := certvalidator.NewCertificate(c)
			if err != nil {
				continue
			}
			out = append(out, wrapped)
		}
	}
	if len(out) == 0 && lastErr != nil {
		return nil, certFetchError(lastErr)
	}
	return out, nil
}

// FetchCRLs implements certvalidator.CRLClient: retrieve cert's ordinary
// CRL distribution points as complete CRLs and its freshestCRL distribution
// points as delta CRLs.
func (f *Fetcher) FetchCRLs(ctx context.Context, cert *certvalidator.Certificate) ([]*certvalidator.CRLWithPOE, error) {
	var out []*certvalidator.CRLWithPOE
	for _, dp := range cert.CRLDistributionPoints() {
		crls, err := f.fetchCRLsFromDP(ctx, dp, false)
		if err != nil {
			logger.Debugf("reason=crl_dp_fetch_failed, err=[%v]", err)
			continue
		}
		out = append(out, crls...)
	}
	for _, dp := range cert.FreshestCRL() {
		crls, err := f.fetchCRLsFromDP(ctx, dp, true)
		if err != nil {
			logger.Debugf("reason=delta_crl_fetch_failed, err=[%v]", err)
			continue
		}
		out = append(out, crls...)
	}
	if len(out) == 0 {
		return nil, newCRLFetchError("no CRL distribution point for %q yielded a CRL", cert.Subject)
	}
	return out, nil
}

// FetchACCRLs retrieves an attribute certificate's own CRL distribution
// points as complete CRLs (ACCRLClient exposes it as ac.CRLClient), mirroring the
// certvalidator.CRLClient method above but keyed off an AttributeCertificate
// rather than a Certificate (RFC 5755 §4.7's holder-less revocation check
// has no freshestCRL/delta-CRL analogue to chase).
func (f *Fetcher) FetchACCRLs(ctx context.Context, attr *ac.AttributeCertificate) ([]*certvalidator.CRLWithPOE, error) {
	dps, err := attr.CRLDistributionPoints()
	if err != nil {
		return nil, errors.Annotate(err, "decoding attribute certificate CRL distribution points")
	}
	var out []*certvalidator.CRLWithPOE
	for _, dp := range dps {
		if dp.FullNameURI == "" {
			continue
		}
		body, err := f.get(ctx, dp.FullNameURI)
		if err != nil {
			logger.Debugf("reason=ac_crl_dp_fetch_failed, url=%q, err=[%v]", dp.FullNameURI, err)
			continue
		}
		crl, err := x509.ParseRevocationList(body)
		if err != nil {
			block, _ := pem.Decode(body)
			if block == nil {
				logger.Debugf("reason=ac_crl_parse_failed, url=%q, err=[%v]", dp.FullNameURI, err)
				continue
			}
			crl, err = x509.ParseRevocationList(block.Bytes)
			if err != nil {
				logger.Debugf("reason=ac_crl_parse_failed, url=%q, err=[%v]", dp.FullNameURI, err)
				continue
			}
		}
		now := time.Now().UTC()
		if f.poe != nil {
			now = f.poe.Get(poe.DigestOf(body))
		}
		out = append(out, certvalidator.NewCRLWithPOE(crl, now, false))
	}
	if len(out) == 0 {
		return nil, newCRLFetchError("no CRL distribution point for attribute certificate serial %s yielded a CRL", attr.SerialNumber)
	}
	return out, nil
}

func (f *Fetcher) fetchCRLsFromDP(ctx context.Context, dp certvalidator.DistributionPoint, isDelta bool) ([]*certvalidator.CRLWithPOE, error) {
	if dp.Name == nil {
		return nil, errors.New("distribution point has no name")
	}
	var out []*certvalidator.CRLWithPOE
	for _, gn := range dp.Name.FullName {
		if gn.Kind() != "uniformResourceIdentifier" {
			continue
		}
		body, err := f.get(ctx, gn.URI)
		if err != nil {
			return nil, err
		}
		crl, err := x509.ParseRevocationList(body)
		if err != nil {
			// a CRL DP URI may itself be PEM-wrapped; fall back before giving up.
			block, _ := pem.Decode(body)
			if block == nil {
				return nil, errors.Annotatef(err, "parsing CRL from %q", gn.URI)
			}
			crl, err = x509.ParseRevocationList(block.Bytes)
			if err != nil {
				return nil, errors.Annotatef(err, "parsing PEM-wrapped CRL from %q", gn.URI)
			}
		}
		now := time.Now().UTC()
		if f.poe != nil {
			now = f.poe.Get(poe.DigestOf(body))
		}
		out = append(out, certvalidator.NewCRLWithPOE(crl, now, isDelta))
	}
	return out, nil
}

// fetchCertificates retrieves url and decodes every certificate found in
// the response body, dispatching on Content-Type.
func (f *Fetcher) fetchCertificates(ctx context.Context, url string) ([]*x509.Certificate, error) {
	body, contentType, err := f.getWithContentType(ctx, url)
	if err != nil {
		return nil, err
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch mediaType {
	case "application/pkix-cert", "application/x-x509-ca-cert":
		cert, err := x509.ParseCertificate(body)
		if err != nil {
			return nil, errors.Annotatef(err, "parsing DER certificate from %q", url)
		}
		return []*x509.Certificate{cert}, nil
	case "application/pkcs7-mime":
		certs, _, err := helpers.ParseCertificatesDER(body, "")
		if err != nil {
			return nil, errors.Annotatef(err, "parsing PKCS7 certs-only message from %q", url)
		}
		return certs, nil
	case "application/x-pem-file", "text/plain":
		if !f.pemPermissive {
			return nil, errors.Errorf("content type %q not accepted (enable WithPEMPermissive)", contentType)
		}
		return certutil.ParseChainFromPEM(body)
	default:
		// Some AIA/CRL-DP responders omit or mis-set Content-Type; sniff for
		// PEM framing before failing outright, matching certutil's own
		// PEM-or-DER tolerance (certutil/pem.go).
		if bytes.Contains(body, []byte("-----BEGIN CERTIFICATE-----")) {
			return certutil.ParseChainFromPEM(body)
		}
		if cert, err := x509.ParseCertificate(body); err == nil {
			return []*x509.Certificate{cert}, nil
		}
		return nil, errors.Errorf("unsupported content type %q from %q", contentType, url)
	}
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	body, _, err := f.getWithContentType(ctx, url)
	return body, err
}

func (f *Fetcher) getWithContentType(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", errors.Trace(err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", errors.Trace(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", errors.Errorf("unexpected status %d fetching %q", resp.StatusCode, url)
	}
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, "", errors.Trace(err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func certFetchError(cause error) error {
	return errors.Annotate(cause, "certificate fetch error")
}

func newCRLFetchError(format string, args ...interface{}) error {
	return errors.Errorf(format, args...)
}
