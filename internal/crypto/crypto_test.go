package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	a, err := New(key)
	require.NoError(t, err)

	ct, err := a.EncryptToString("smtp-password-123")
	require.NoError(t, err)
	assert.NotEqual(t, "smtp-password-123", ct)

	pt, err := a.DecryptString(ct)
	require.NoError(t, err)
	assert.Equal(t, "smtp-password-123", pt)
}

func TestDecryptRejectsGarbage(t *testing.T) {
	key := make([]byte, 32)
	a, err := New(key)
	require.NoError(t, err)

	_, err = a.DecryptString("not-base64!!!")
	assert.Error(t, err)

	_, err = a.DecryptString("c2hvcnQ") // valid base64, shorter than a nonce
	assert.Error(t, err)
}

func TestNewRejectsBadKeySize(t *testing.T) {
	_, err := New(make([]byte, 15))
	assert.Error(t, err)
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	k1 := make([]byte, 32)
	k2 := make([]byte, 32)
	k2[0] = 1

	a1, err := New(k1)
	require.NoError(t, err)
	a2, err := New(k2)
	require.NoError(t, err)

	ct, err := a1.EncryptToString("secret")
	require.NoError(t, err)

	_, err = a2.DecryptString(ct)
	assert.Error(t, err)
}
