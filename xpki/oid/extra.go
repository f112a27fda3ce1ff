package oid

import (
	"crypto/x509"
	"encoding/asn1"
)

// Additional signature/public-key OIDs needed by xpki/certvalidator that the
// original cryptoid tables did not carry: EdDSA (RFC 8410/8032), DSA, and
// RSASSA-PSS (RFC 4055).
var (
	// SignatureAlgorithmEd25519 is the id-Ed25519 OID (RFC 8410 §3).
	SignatureAlgorithmEd25519 = asn1.ObjectIdentifier{1, 3, 101, 112}
	// SignatureAlgorithmDSA is the id-dsa-with-sha1 OID family root.
	SignatureAlgorithmDSA = asn1.ObjectIdentifier{1, 2, 840, 10040, 4, 1}
	// SignatureAlgorithmRSASSAPSS is the id-RSASSA-PSS OID (RFC 4055 §3.1).
	SignatureAlgorithmRSASSAPSS = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 10}
)

// Ed25519 describes the EdDSA public-key/signature algorithm. EdDSA has no
// separate hash-algorithm OID: the hash is baked into the curve.
var Ed25519 = SignatureAlgorithmInfo{
	name:         "Ed25519",
	oid:          SignatureAlgorithmEd25519,
	registration: "{iso(1) identified-organization(3) thawte(101) id-Ed25519(112)}",
	X509:         x509.PureEd25519,
}

// DSAWithSHA1 describes the classic DSA/SHA-1 signature algorithm.
var DSAWithSHA1 = SignatureAlgorithmInfo{
	name:               "DSA-SHA1",
	oid:                SignatureAlgorithmDSA,
	registration:       "{iso(1) member-body(2) us(840) x9-57(10040) x9cm(4) dsa-with-sha1(1)}",
	PublicKeyAlgorithm: &DSA,
	HashAlgorithm:      &SHA1,
}

// RSAPSS describes RSASSA-PSS; the hash algorithm is not fixed by the OID
// and must come from the signature's PSS parameters.
var RSAPSS = SignatureAlgorithmInfo{
	name:               "RSA-PSS",
	oid:                SignatureAlgorithmRSASSAPSS,
	registration:       "{iso(1) member-body(2) us(840) rsadsi(113549) pkcs(1) pkcs-1(1) id-RSASSA-PSS(10)}",
	PublicKeyAlgorithm: &RSA,
}

// DSA specifies RFC 3279 §2.3.2 DSA public keys.
var DSA = PublicKeyAlgorithmInfo{
	name:         x509.DSA.String(),
	publey:       x509.DSA,
	oid:          SignatureAlgorithmDSA,
	registration: "{iso(1) member-body(2) us(840) x9-57(10040) x9algorithm(4) 1}",
}

func init() {
	OIDStrToInfo[SignatureAlgorithmEd25519.String()] = Ed25519
	OIDStrToInfo[SignatureAlgorithmDSA.String()] = DSAWithSHA1
	OIDStrToInfo[SignatureAlgorithmRSASSAPSS.String()] = RSAPSS
	AlgNameToInfo["Ed25519"] = Ed25519
	AlgNameToInfo["EdDSA"] = Ed25519
	AlgNameToInfo["DSA-SHA1"] = DSAWithSHA1
	AlgNameToInfo["RSA-PSS"] = RSAPSS
}

// WeakHashNames lists the hash algorithm names MD2, MD5 and SHA1. The
// certvalidator package does not read it: NewValidationContext sets its own
// default weak-hash set with the same names.
var WeakHashNames = map[string]bool{
	"MD2":  true,
	"MD5":  true,
	"SHA1": true,
}
