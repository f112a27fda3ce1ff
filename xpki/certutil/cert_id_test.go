package certutil_test

import (
	"encoding/hex"
	"testing"

	"github.com/go-phorce/pkixvalidator/testify/testca"
	"github.com/go-phorce/pkixvalidator/xpki/certutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_IDs(t *testing.T) {
	root := testca.NewEntity(testca.Authority)
	ica := root.Issue(testca.Authority)
	crt := ica.Certificate

	str, err := certutil.GetThumbprintStr(crt)
	require.NoError(t, err)
	assert.Equal(t, certutil.SHA1Hex(crt.Raw), str)

	require.NotEmpty(t, crt.SubjectKeyId)
	assert.Equal(t, hex.EncodeToString(crt.SubjectKeyId), certutil.GetSubjectKeyID(crt))
	assert.Equal(t, certutil.GetSubjectKeyID(crt), certutil.GetSubjectID(crt))

	require.NotEmpty(t, crt.AuthorityKeyId)
	assert.Equal(t, hex.EncodeToString(crt.AuthorityKeyId), certutil.GetAuthorityKeyID(crt))
	assert.Equal(t, certutil.GetAuthorityKeyID(crt), certutil.GetIssuerID(crt))

	_, err = certutil.GetThumbprintStr(nil)
	require.Error(t, err)
}
