package licence

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestKey(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pub, err := encodePublicKey(&key.PublicKey)
	require.NoError(t, err)
	return key, pub
}

func TestSignVerifyRoundTrip(t *testing.T) {
	key, pub := newTestKey(t)
	data := []byte("%PDF-1.3 licence bytes")

	sig, err := Sign(data, key)
	require.NoError(t, err)
	require.Len(t, sig, 512)

	ok, err := Verify(data, sig, pub)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	key, _ := newTestKey(t)
	_, otherPub := newTestKey(t)
	data := []byte("licence")

	sig, err := Sign(data, key)
	require.NoError(t, err)

	ok, err := Verify(data, sig, otherPub)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyRejectsAlteredData(t *testing.T) {
	key, pub := newTestKey(t)
	data := []byte("licence")

	sig, err := Sign(data, key)
	require.NoError(t, err)

	altered := append([]byte{}, data...)
	altered[0] ^= 0xff

	ok, err := Verify(altered, sig, pub)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyBadSignatureEncodingIsFalse(t *testing.T) {
	_, pub := newTestKey(t)

	ok, err := Verify([]byte("licence"), "not-hex", pub)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = Verify([]byte("licence"), "abcd", pub)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyMalformedKeyIsError(t *testing.T) {
	_, err := Verify([]byte("licence"), "abcd", []byte("not a pem"))
	require.Error(t, err)
}

func TestSignNilKey(t *testing.T) {
	_, err := Sign([]byte("licence"), nil)
	require.Error(t, err)
}

func TestKeyIDStable(t *testing.T) {
	_, pub := newTestKey(t)

	a, err := KeyID(pub)
	require.NoError(t, err)
	b, err := KeyID(pub)
	require.NoError(t, err)

	require.Equal(t, a, b)
	require.Len(t, a, 16)
}

func TestPrivateKeyPEMRoundTrip(t *testing.T) {
	key, _ := newTestKey(t)

	parsed, err := parsePrivateKey(encodePrivateKey(key))
	require.NoError(t, err)
	require.True(t, key.Equal(parsed))
}
