package common

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeRandHexString(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"empty", 0},
		{"link id", 32},
		{"odd", 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := MakeRandHexString(tt.size)
			require.NoError(t, err)
			assert.Len(t, s, tt.size*2)

			b, err := hex.DecodeString(s)
			require.NoError(t, err)
			assert.Len(t, b, tt.size)
		})
	}

	a, _ := MakeRandHexString(32)
	b, _ := MakeRandHexString(32)
	assert.NotEqual(t, a, b)
}

func TestGenerateRandByteArray(t *testing.T) {
	// 12 bytes is the AES-GCM nonce size
	a := GenerateRandByteArray(12)
	b := GenerateRandByteArray(12)
	assert.Len(t, a, 12)
	assert.NotEqual(t, a, b)

	assert.Empty(t, GenerateRandByteArray(0))
}

func TestWipeByteArray(t *testing.T) {
	pw := []byte("hunter2")
	view := pw[2:5]

	WipeByteArray(view)
	assert.Equal(t, []byte{'h', 'u', 0, 0, 0, 'r', '2'}, pw)

	WipeByteArray(pw)
	assert.Equal(t, make([]byte, 7), pw)

	assert.NotPanics(t, func() { WipeByteArray(nil) })
}
