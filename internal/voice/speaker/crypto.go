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
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

// Crypto modes negotiated with Discord, in preference order.
const (
	ModeAEADAES256GCM   = "aead_aes256_gcm_rtpsize"
	ModeXSalsa20Poly305 = "xsalsa20_poly1305"
)

// PreferredModes returns our preference order.
func PreferredModes() []string {
	return []string{ModeAEADAES256GCM, ModeXSalsa20Poly305}
}

// SelectMode picks the most preferred mode both sides support, falling
// back to xsalsa20_poly1305.
func SelectMode(offered []string) string {
	for _, want := range PreferredModes() {
		for _, have := range offered {
			if have == want {
				return want
			}
		}
	}
	return ModeXSalsa20Poly305
}

// encryptor seals one RTP payload. header is the 12-byte RTP header,
// already written at the start of dst's backing packet.
type encryptor interface {
	// Encrypt appends the sealed payload (and any trailing nonce bytes)
	// to dst and returns it.
	Encrypt(dst, header, payload []byte) ([]byte, error)
}

func newEncryptor(mode string, key [32]byte) (encryptor, error) {
	switch mode {
	case ModeAEADAES256GCM:
		block, err := aes.NewCipher(key[:])
		if err != nil {
			return nil, err
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, err
		}
		return &gcmEncryptor{aead: aead}, nil
	case ModeXSalsa20Poly305:
		return &salsaEncryptor{key: key}, nil
	default:
		return nil, fmt.Errorf("unsupported crypto mode %q", mode)
	}
}

// gcmEncryptor implements aead_aes256_gcm_rtpsize: a 32-bit incrementing
// nonce occupies the first 4 bytes of the 12-byte GCM nonce, the RTP
// header is authenticated as AAD, and the 4 nonce bytes are appended to
// the packet.
type gcmEncryptor struct {
	aead  cipher.AEAD
	seq   uint32
	nonce [12]byte
}

func (e *gcmEncryptor) Encrypt(dst, header, payload []byte) ([]byte, error) {
	e.seq++
	binary.BigEndian.PutUint32(e.nonce[:4], e.seq)

	dst = e.aead.Seal(dst, e.nonce[:], payload, header)
	dst = binary.BigEndian.AppendUint32(dst, e.seq)
	return dst, nil
}

// salsaEncryptor implements classic xsalsa20_poly1305: the 24-byte nonce
// is the RTP header zero-padded.
type salsaEncryptor struct {
	key [32]byte
}

func (e *salsaEncryptor) Encrypt(dst, header, payload []byte) ([]byte, error) {
	var nonce [24]byte
	copy(nonce[:], header)
	return secretbox.Seal(dst, payload, &nonce, &e.key), nil
}
