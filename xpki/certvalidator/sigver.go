package certvalidator

import (
	"crypto"
	"crypto/dsa"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"

	"github.com/go-phorce/pkixvalidator/xpki/certutil"
	"github.com/go-phorce/pkixvalidator/xpki/oid"
	"github.com/juju/errors"
)

// PSSParameters mirrors RFC 4055 §3.1 RSASSA-PSS-params, the pieces the
// signature verifier uses to verify an RSASSA-PSS signature.
type PSSParameters struct {
	HashAlgorithm asn1.ObjectIdentifier
	SaltLength    int
}

// VerifySignature is the signature verifier. It rejects a weak hash
// algorithm (per vctx.WeakHashes) before computing anything, and recognizes
// EdDSA OIDs. An RSASSA-PSS signature without parameters fails with
// KindPSSParameterMismatch rather than KindInvalidSignature; parameters that
// are present are not compared with any PSS constraint carried by the key.
//
// sigAlgOID and hashAlgOID are dot-notation OID strings; pssParams is
// non-nil only when sigAlgOID names RSASSA-PSS.
func VerifySignature(vctx *ValidationContext, signed, signature []byte, pub crypto.PublicKey, sigAlgOID, hashAlgOID string, pssParams *PSSParameters) error {
	info := oid.LookupByOID(sigAlgOID)
	sigInfo, _ := info.(oid.SignatureAlgorithmInfo)

	hashName := ""
	if hashAlgOID != "" {
		if hInfo, ok := oid.LookupByOID(hashAlgOID).(oid.HashAlgorithmInfo); ok {
			hashName = hInfo.Name()
		}
	} else if sigInfo.HashAlgorithm != nil {
		hashName = sigInfo.HashAlgorithm.Name()
	}

	if sigAlgOID == oid.SignatureAlgorithmRSASSAPSS.String() {
		if pssParams == nil {
			return newErr(KindPSSParameterMismatch, "RSA-PSS signature missing algorithm parameters")
		}
		if hInfo, ok := oid.LookupByOID(pssParams.HashAlgorithm.String()).(oid.HashAlgorithmInfo); ok {
			hashName = hInfo.Name()
		}
	}

	if hashName != "" && vctx != nil && vctx.WeakHashes[hashName] {
		return newErr(KindWeakAlgorithm, "weak hash algorithm %s", hashName)
	}

	switch sigAlgOID {
	case oid.SignatureAlgorithmEd25519.String():
		return verifyEd25519(pub, signed, signature)
	case oid.SignatureAlgorithmRSASSAPSS.String():
		return verifyRSAPSS(pub, signed, signature, pssParams)
	case oid.SignatureAlgorithmRSA.String(),
		"1.2.840.113549.1.1.5", "1.2.840.113549.1.1.11", "1.2.840.113549.1.1.12", "1.2.840.113549.1.1.13":
		return verifyRSAPKCS1(pub, signed, signature, hashName)
	case oid.SignatureAlgorithmECDSA.String(),
		"1.2.840.10045.4.1", "1.2.840.10045.4.3.2", "1.2.840.10045.4.3.3", "1.2.840.10045.4.3.4":
		return verifyECDSA(pub, signed, signature, hashName)
	case oid.SignatureAlgorithmDSA.String():
		return verifyDSA(pub, signed, signature, hashName)
	default:
		return newErr(KindUnsupportedAlgorithm, "unsupported signature algorithm %s", sigAlgOID)
	}
}

func hashBytes(name string, data []byte) ([]byte, crypto.Hash, error) {
	if name == "" {
		name = "SHA1"
	}
	h := certutil.StrToHashAlgo(name)
	if h == 0 || !h.Available() {
		return nil, 0, errors.Errorf("unsupported hash algorithm %s", name)
	}
	return certutil.Digest(h, data), h, nil
}

func verifyRSAPKCS1(pub crypto.PublicKey, signed, signature []byte, hashName string) error {
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return newErr(KindUnsupportedAlgorithm, "RSA signature requires an RSA public key")
	}
	digest, h, err := hashBytes(hashName, signed)
	if err != nil {
		return newErr(KindUnsupportedAlgorithm, "%s", err)
	}
	if err := rsa.VerifyPKCS1v15(rsaPub, h, digest, signature); err != nil {
		return newErr(KindInvalidSignature, "RSA PKCS1v15 verification failed: %s", err)
	}
	return nil
}

func verifyRSAPSS(pub crypto.PublicKey, signed, signature []byte, params *PSSParameters) error {
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return newErr(KindUnsupportedAlgorithm, "RSA-PSS signature requires an RSA public key")
	}
	hashName := "SHA256"
	saltLen := rsa.PSSSaltLengthAuto
	if params != nil {
		if hInfo, ok := oid.LookupByOID(params.HashAlgorithm.String()).(oid.HashAlgorithmInfo); ok {
			hashName = hInfo.Name()
		}
		saltLen = params.SaltLength
	}
	digest, h, err := hashBytes(hashName, signed)
	if err != nil {
		return newErr(KindUnsupportedAlgorithm, "%s", err)
	}
	opts := &rsa.PSSOptions{SaltLength: saltLen, Hash: h}
	if err := rsa.VerifyPSS(rsaPub, h, digest, signature, opts); err != nil {
		return newErr(KindInvalidSignature, "RSA-PSS verification failed: %s", err)
	}
	return nil
}

func verifyECDSA(pub crypto.PublicKey, signed, signature []byte, hashName string) error {
	ecPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return newErr(KindUnsupportedAlgorithm, "ECDSA signature requires an ECDSA public key")
	}
	digest, _, err := hashBytes(hashName, signed)
	if err != nil {
		return newErr(KindUnsupportedAlgorithm, "%s", err)
	}
	if !ecdsa.VerifyASN1(ecPub, digest, signature) {
		return newErr(KindInvalidSignature, "ECDSA verification failed")
	}
	return nil
}

func verifyDSA(pub crypto.PublicKey, signed, signature []byte, hashName string) error {
	dsaPub, ok := pub.(*dsa.PublicKey)
	if !ok {
		return newErr(KindUnsupportedAlgorithm, "DSA signature requires a DSA public key")
	}
	digest, _, err := hashBytes(hashName, signed)
	if err != nil {
		return newErr(KindUnsupportedAlgorithm, "%s", err)
	}
	var sig struct{ R, S *big.Int }
	if _, err := asn1.Unmarshal(signature, &sig); err != nil {
		return newErr(KindInvalidSignature, "malformed DSA signature: %s", err)
	}
	if !dsa.Verify(dsaPub, digest, sig.R, sig.S) {
		return newErr(KindInvalidSignature, "DSA verification failed")
	}
	return nil
}

func verifyEd25519(pub crypto.PublicKey, signed, signature []byte) error {
	edPub, ok := pub.(ed25519.PublicKey)
	if !ok {
		return newErr(KindUnsupportedAlgorithm, "EdDSA signature requires an Ed25519 public key")
	}
	if !ed25519.Verify(edPub, signed, signature) {
		return newErr(KindInvalidSignature, "Ed25519 verification failed")
	}
	return nil
}

// VerifyCertificateSignature verifies that child was signed by a key
// belonging to (or standing in for) issuer, dispatching on child's
// declared signature algorithm. issuerPub is used as given; DSA parameter
// inheritance (RFC 5280 §6.1.4(f)) is applied by the caller when it builds
// the working public key.
func VerifyCertificateSignature(vctx *ValidationContext, child *Certificate, issuerPub crypto.PublicKey) error {
	sigAlgOID := child.SignatureAlgorithmOID()
	hashAlgOID := ""
	var pss *PSSParameters
	if p := child.PSSParameters(); p != nil {
		pss = p
	}
	if hInfo := sigHashOID(sigAlgOID); hInfo != "" {
		hashAlgOID = hInfo
	}
	return VerifySignature(vctx, child.RawTBSCertificate, child.Signature, issuerPub, sigAlgOID, hashAlgOID, pss)
}

func sigHashOID(sigAlgOID string) string {
	if info, ok := oid.LookupByOID(sigAlgOID).(oid.SignatureAlgorithmInfo); ok && info.HashAlgorithm != nil {
		return info.HashAlgorithm.OID().String()
	}
	return ""
}

// SignatureAlgorithmOID returns the dot-notation OID of the certificate's
// signatureAlgorithm field.
func (c *Certificate) SignatureAlgorithmOID() string {
	return c.sigAlgID.Algorithm.String()
}

// PSSParameters decodes RSASSA-PSS parameters from the certificate's
// signatureAlgorithm, when present.
func (c *Certificate) PSSParameters() *PSSParameters {
	return pssParamsFromAlgID(c.sigAlgID)
}

// PSSParamsFromAlgorithmIdentifier exports pssParamsFromAlgID for package
// ac, which must decode the same RSASSA-PSS parameters out of an attribute
// certificate's envelope signatureAlgorithm rather than a Certificate's.
func PSSParamsFromAlgorithmIdentifier(algID pkix.AlgorithmIdentifier) *PSSParameters {
	return pssParamsFromAlgID(algID)
}

// pssParamsFromAlgID decodes RFC 4055 §3.1 RSASSA-PSS-params from any
// signatureAlgorithm AlgorithmIdentifier, certificate or CRL alike.
func pssParamsFromAlgID(algID pkix.AlgorithmIdentifier) *PSSParameters {
	if algID.Algorithm.String() != oid.SignatureAlgorithmRSASSAPSS.String() {
		return nil
	}
	var params struct {
		Hash pkix.AlgorithmIdentifier `asn1:"optional,explicit,tag:0"`
		Salt asn1.RawValue            `asn1:"optional,explicit,tag:2"`
	}
	if _, err := asn1.Unmarshal(algID.Parameters.FullBytes, &params); err != nil {
		return nil
	}
	out := &PSSParameters{HashAlgorithm: params.Hash.Algorithm, SaltLength: 32}
	if len(params.Salt.FullBytes) > 0 {
		var n int
		if _, err := asn1.Unmarshal(params.Salt.FullBytes, &n); err == nil {
			out.SaltLength = n
		}
	}
	return out
}
