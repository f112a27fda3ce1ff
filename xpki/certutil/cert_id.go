package certutil

import (
	"crypto/x509"
	"encoding/hex"

	"github.com/go-phorce/pkixvalidator/xlog"
	"github.com/juju/errors"
)

var logger = xlog.NewPackageLogger("github.com/go-phorce/pkixvalidator/xpki", "certutil")

// GetThumbprintStr returns hex-encoded SHA1 of the DER encoded certificate
func GetThumbprintStr(c *x509.Certificate) (string, error) {
	if c == nil || len(c.Raw) == 0 {
		return "", errors.New("certificate is empty")
	}
	return SHA1Hex(c.Raw), nil
}

// GetSubjectKeyID returns hex-encoded Subject Key Identifier
func GetSubjectKeyID(c *x509.Certificate) string {
	return hex.EncodeToString(c.SubjectKeyId)
}

// GetAuthorityKeyID returns hex-encoded Authority Key Identifier
func GetAuthorityKeyID(c *x509.Certificate) string {
	return hex.EncodeToString(c.AuthorityKeyId)
}

// GetSubjectID returns ID of the subject:
// the Subject Key Identifier when present, else SHA1 of the subject's public key
func GetSubjectID(c *x509.Certificate) string {
	if len(c.SubjectKeyId) > 0 {
		return GetSubjectKeyID(c)
	}
	return SHA1Hex(c.RawSubjectPublicKeyInfo)
}

// GetIssuerID returns ID of the issuer:
// the Authority Key Identifier when present, else SHA1 of the issuer name
func GetIssuerID(c *x509.Certificate) string {
	if len(c.AuthorityKeyId) > 0 {
		return GetAuthorityKeyID(c)
	}
	return SHA1Hex(c.RawIssuer)
}
