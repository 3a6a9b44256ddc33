// Package cryptox holds the symmetric encryption and hashing primitives the
// vault consumes as black boxes: AES-GCM sealing, argon2id key derivation and
// the SHA-1 digest used by the breach range protocol.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/dmitrijs2005/keepershare/internal/common"
)

// KeySize is the length in bytes of keys produced by DeriveMasterKey (AES-256).
const KeySize = 32

var ErrCiphertextTooShort = errors.New("ciphertext too short")

// Encrypter is the symmetric encryption collaborator. The ciphertext format is
// opaque to callers; Decrypt must accept whatever Encrypt produced for the same key.
type Encrypter interface {
	Encrypt(plaintext, key []byte) ([]byte, error)
	Decrypt(ciphertext, key []byte) ([]byte, error)
}

// AESGCM implements Encrypter with AES-GCM. A fresh random nonce is generated
// per call and prepended to the sealed output.
type AESGCM struct{}

func (AESGCM) Encrypt(plaintext, key []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := common.GenerateRandByteArray(aead.NonceSize())
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (AESGCM) Decrypt(ciphertext, key []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	ns := aead.NonceSize()
	if len(ciphertext) < ns {
		return nil, ErrCiphertextTooShort
	}

	return aead.Open(nil, ciphertext[:ns], ciphertext[ns:], nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// DeriveMasterKey stretches a password into a KeySize key with argon2id.
func DeriveMasterKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, KeySize)
}

// SealJSON serializes v to JSON and encrypts it with enc under key. The
// intermediate plaintext is wiped before returning.
func SealJSON(enc Encrypter, key []byte, v any) ([]byte, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(plaintext)
	return enc.Encrypt(plaintext, key)
}

// OpenJSON decrypts data with enc under key and unmarshals the JSON into v.
// The decrypted buffer is wiped once v holds its own copy.
func OpenJSON(enc Encrypter, key []byte, data []byte, v any) error {
	plaintext, err := enc.Decrypt(data, key)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(plaintext)
	return json.Unmarshal(plaintext, v)
}

// SHA1Hex returns the uppercase hex SHA-1 digest of s, the form used by
// k-anonymity range endpoints.
func SHA1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
