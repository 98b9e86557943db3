// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package speaker

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/nacl/secretbox"
)

func testKey() [32]byte {
	var key [32]byte
	for i := range key {
		key[i] = byte(i * 3)
	}
	return key
}

func rtpHeader() []byte {
	hdr := make([]byte, 12)
	hdr[0] = 0x80
	hdr[1] = 0x78
	binary.BigEndian.PutUint16(hdr[2:4], 42)
	binary.BigEndian.PutUint32(hdr[4:8], 960)
	binary.BigEndian.PutUint32(hdr[8:12], 0xDEADBEEF)
	return hdr
}

func TestSelectMode(t *testing.T) {
	tests := []struct {
		name    string
		offered []string
		want    string
	}{
		{"prefers gcm", []string{"xsalsa20_poly1305", "aead_aes256_gcm_rtpsize"}, ModeAEADAES256GCM},
		{"falls back to salsa", []string{"xsalsa20_poly1305", "xsalsa20_poly1305_lite"}, ModeXSalsa20Poly305},
		{"nothing recognised", []string{"plain"}, ModeXSalsa20Poly305},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SelectMode(tt.offered))
		})
	}
}

func TestGCMEncryptRoundTrip(t *testing.T) {
	key := testKey()
	enc, err := newEncryptor(ModeAEADAES256GCM, key)
	require.NoError(t, err)

	header := rtpHeader()
	payload := []byte("opus frame bytes")

	out, err := enc.Encrypt(nil, header, payload)
	require.NoError(t, err)
	// ciphertext + 16-byte tag + 4-byte nonce suffix
	require.Len(t, out, len(payload)+16+4)

	// Reconstruct the nonce from the trailing counter and open.
	counter := out[len(out)-4:]
	var nonce [12]byte
	copy(nonce[:4], counter)

	block, err := aes.NewCipher(key[:])
	require.NoError(t, err)
	aead, err := cipher.NewGCM(block)
	require.NoError(t, err)

	plain, err := aead.Open(nil, nonce[:], out[:len(out)-4], header)
	require.NoError(t, err)
	assert.Equal(t, payload, plain)
}

func TestGCMNonceIncrements(t *testing.T) {
	enc, err := newEncryptor(ModeAEADAES256GCM, testKey())
	require.NoError(t, err)

	header := rtpHeader()
	a, err := enc.Encrypt(nil, header, []byte("x"))
	require.NoError(t, err)
	b, err := enc.Encrypt(nil, header, []byte("x"))
	require.NoError(t, err)

	na := binary.BigEndian.Uint32(a[len(a)-4:])
	nb := binary.BigEndian.Uint32(b[len(b)-4:])
	assert.Equal(t, na+1, nb)
}

func TestSalsaEncryptRoundTrip(t *testing.T) {
	key := testKey()
	enc, err := newEncryptor(ModeXSalsa20Poly305, key)
	require.NoError(t, err)

	header := rtpHeader()
	payload := []byte("opus frame bytes")

	out, err := enc.Encrypt(nil, header, payload)
	require.NoError(t, err)
	require.Len(t, out, len(payload)+secretbox.Overhead)

	var nonce [24]byte
	copy(nonce[:], header)
	plain, ok := secretbox.Open(nil, out, &nonce, &key)
	require.True(t, ok)
	assert.Equal(t, payload, plain)
}

func TestUnknownModeRejected(t *testing.T) {
	_, err := newEncryptor("aead_xchacha20_poly1305_rtpsize", testKey())
	assert.Error(t, err)
}
