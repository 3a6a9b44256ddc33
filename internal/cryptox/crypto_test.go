package cryptox

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveMasterKey_Deterministic(t *testing.T) {
	password := []byte("secret-password")
	salt := []byte("fixed-salt")

	key1 := DeriveMasterKey(password, salt)
	key2 := DeriveMasterKey(password, salt)

	if !bytes.Equal(key1, key2) {
		t.Errorf("expected same result for same inputs, got different")
	}

	expectedHex := "34f7a1c64df63ab1ad5b5ee06e64db5713b35f81839823304db63e8e5e6a6a39"
	if hex.EncodeToString(key1) != expectedHex {
		t.Errorf("expected %s, got %s", expectedHex, hex.EncodeToString(key1))
	}
}

func TestDeriveMasterKey_DifferentInputs(t *testing.T) {
	password := []byte("secret-password")

	key1 := DeriveMasterKey(password, []byte("salt-1"))
	key2 := DeriveMasterKey(password, []byte("salt-2"))

	if bytes.Equal(key1, key2) {
		t.Errorf("expected different results for different salts, got same")
	}
	if len(key1) != KeySize {
		t.Errorf("expected %d byte key, got %d", KeySize, len(key1))
	}
}

func TestAESGCM_RoundTrip(t *testing.T) {
	key := DeriveMasterKey([]byte("pw"), []byte("salt"))
	enc := AESGCM{}

	ct1, err := enc.Encrypt([]byte("hunter2"), key)
	require.NoError(t, err)
	ct2, err := enc.Encrypt([]byte("hunter2"), key)
	require.NoError(t, err)

	assert.NotEqual(t, ct1, ct2, "nonce must differ per call")
	assert.NotContains(t, string(ct1), "hunter2")

	pt, err := enc.Decrypt(ct1, key)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", string(pt))
}

func TestAESGCM_Errors(t *testing.T) {
	key := DeriveMasterKey([]byte("pw"), []byte("salt"))
	other := DeriveMasterKey([]byte("other"), []byte("salt"))
	enc := AESGCM{}

	ct, err := enc.Encrypt([]byte("data"), key)
	require.NoError(t, err)

	_, err = enc.Decrypt(ct, other)
	assert.Error(t, err, "wrong key must fail authentication")

	_, err = enc.Decrypt([]byte{1, 2}, key)
	assert.ErrorIs(t, err, ErrCiphertextTooShort)

	_, err = enc.Encrypt([]byte("data"), []byte("short"))
	assert.Error(t, err, "invalid key size")
}

func TestSealOpenJSON(t *testing.T) {
	type rec struct {
		Title  string `json:"title"`
		Secret string `json:"secret"`
	}
	key := DeriveMasterKey([]byte("pw"), []byte("salt"))

	data, err := SealJSON(AESGCM{}, key, rec{Title: "Mail", Secret: "s3"})
	require.NoError(t, err)

	var got rec
	require.NoError(t, OpenJSON(AESGCM{}, key, data, &got))
	assert.Equal(t, rec{Title: "Mail", Secret: "s3"}, got)
}

// keepingEncrypter wraps AESGCM and keeps the buffers it hands out.
type keepingEncrypter struct {
	AESGCM
	sealed []byte
	opened []byte
}

func (k *keepingEncrypter) Encrypt(plaintext, key []byte) ([]byte, error) {
	k.sealed = plaintext
	return k.AESGCM.Encrypt(plaintext, key)
}

func (k *keepingEncrypter) Decrypt(ciphertext, key []byte) ([]byte, error) {
	pt, err := k.AESGCM.Decrypt(ciphertext, key)
	k.opened = pt
	return pt, err
}

func TestSealOpenJSON_WipesPlaintext(t *testing.T) {
	key := DeriveMasterKey([]byte("pw"), []byte("salt"))
	enc := &keepingEncrypter{}

	data, err := SealJSON(enc, key, map[string]string{"secret": "hunter2"})
	require.NoError(t, err)
	require.NotEmpty(t, enc.sealed)
	assert.Equal(t, make([]byte, len(enc.sealed)), enc.sealed)

	var got map[string]string
	require.NoError(t, OpenJSON(enc, key, data, &got))
	assert.Equal(t, "hunter2", got["secret"])
	require.NotEmpty(t, enc.opened)
	assert.Equal(t, make([]byte, len(enc.opened)), enc.opened)
}

func TestAESGCM_NonceLayout(t *testing.T) {
	key := make([]byte, KeySize)
	aead, err := newGCM(key)
	require.NoError(t, err)

	ct, err := AESGCM{}.Encrypt([]byte("data"), key)
	require.NoError(t, err)
	assert.Len(t, ct, aead.NonceSize()+len("data")+aead.Overhead())

	other, err := AESGCM{}.Encrypt([]byte("data"), key)
	require.NoError(t, err)
	assert.NotEqual(t, ct[:aead.NonceSize()], other[:aead.NonceSize()])
}

func TestSHA1Hex(t *testing.T) {
	// well-known digest of "password"
	assert.Equal(t, "5BAA61E4C9B93F3F0682250B6CF8331B7EE68FD8", SHA1Hex("password"))
}
