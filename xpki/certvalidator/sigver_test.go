package certvalidator

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"testing"

	"github.com/go-phorce/pkixvalidator/xpki/oid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultWeakHashVCtx() *ValidationContext {
	return &ValidationContext{WeakHashes: map[string]bool{"MD2": true, "MD5": true, "SHA1": true}}
}

func TestVerifySignatureRSAPKCS1(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	msg := []byte("tbs bytes")
	digest := sha256.Sum256(msg)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, oid.SHA256.HashFunc(), digest[:])
	require.NoError(t, err)

	vctx := defaultWeakHashVCtx()
	err = VerifySignature(vctx, msg, sig, &key.PublicKey, oid.RSAWithSHA256.String(), oid.SHA256.OID().String(), nil)
	assert.NoError(t, err)
}

func TestVerifySignatureRSAPKCS1WrongSignature(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	msg := []byte("tbs bytes")
	other := []byte("different bytes")
	digest := sha256.Sum256(other)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, oid.SHA256.HashFunc(), digest[:])
	require.NoError(t, err)

	vctx := defaultWeakHashVCtx()
	err = VerifySignature(vctx, msg, sig, &key.PublicKey, oid.RSAWithSHA256.String(), oid.SHA256.OID().String(), nil)
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindInvalidSignature, kind)
}

func TestVerifySignatureRejectsWeakHash(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	msg := []byte("tbs bytes")
	digest := sha1.Sum(msg)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, oid.SHA1.HashFunc(), digest[:])
	require.NoError(t, err)

	vctx := defaultWeakHashVCtx()
	err = VerifySignature(vctx, msg, sig, &key.PublicKey, oid.RSAWithSHA1.String(), oid.SHA1.OID().String(), nil)
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindWeakAlgorithm, kind)
}

func TestVerifySignatureECDSA(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	msg := []byte("tbs bytes")
	digest := sha256.Sum256(msg)
	sig, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	require.NoError(t, err)

	vctx := defaultWeakHashVCtx()
	err = VerifySignature(vctx, msg, sig, &key.PublicKey, oid.ECDSAWithSHA256.String(), oid.SHA256.OID().String(), nil)
	assert.NoError(t, err)
}

func TestVerifySignatureRSAPSSMissingParams(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	vctx := defaultWeakHashVCtx()
	err = VerifySignature(vctx, []byte("x"), []byte("sig"), &key.PublicKey, oid.SignatureAlgorithmRSASSAPSS.String(), "", nil)
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindPSSParameterMismatch, kind)
}

func TestVerifySignatureRSAPSS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	msg := []byte("tbs bytes")
	digest := sha256.Sum256(msg)
	opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: oid.SHA256.HashFunc()}
	sig, err := rsa.SignPSS(rand.Reader, key, oid.SHA256.HashFunc(), digest[:], opts)
	require.NoError(t, err)

	params := &PSSParameters{HashAlgorithm: oid.SHA256.OID(), SaltLength: rsa.PSSSaltLengthAuto}
	vctx := defaultWeakHashVCtx()
	err = VerifySignature(vctx, msg, sig, &key.PublicKey, oid.SignatureAlgorithmRSASSAPSS.String(), "", params)
	assert.NoError(t, err)
}

func TestVerifySignatureUnsupportedAlgorithm(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	vctx := defaultWeakHashVCtx()
	err = VerifySignature(vctx, []byte("x"), []byte("sig"), &key.PublicKey, "1.2.3.4.5.6.7.8.9", "", nil)
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindUnsupportedAlgorithm, kind)
}
