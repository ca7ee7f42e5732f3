package emrtd

import (
	"crypto/cipher"
	"crypto/des"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
)

// CRYPTOGRAPHIC PRIMITIVES (ICAO 9303 Part 11):
//
// Basic Access Control and Secure Messaging share a small DES-era toolbox:
//
//  - Key derivation: the first 16 bytes of SHA-1(seed || counter) where the
//    counter selects encryption (1) or MAC (2) usage. The 16-byte result is
//    used as two-key triple DES (K1, K2, K1).
//  - 3DES in CBC mode with a zero IV for all confidentiality.
//  - ISO 9797-1 Algorithm 3 ("retail MAC") for all integrity: single-DES CBC
//    over the message under K1, with the final block sent through
//    DES-decrypt under K2 and DES-encrypt under K1 again. 8-byte tag.
//  - ISO 7816-4 padding: append 0x80, then zero bytes to the block boundary.

// deriveKey expands a seed into a 16-byte two-key 3DES key. counter selects
// the usage: 1 for encryption, 2 for MAC.
func deriveKey(seed []byte, counter uint32) []byte {
	h := sha1.New()
	h.Write(seed)
	var c [4]byte
	binary.BigEndian.PutUint32(c[:], counter)
	h.Write(c[:])
	return h.Sum(nil)[:16]
}

// tdesCipher builds the two-key triple-DES cipher (K1, K2, K1) from a
// 16-byte key.
func tdesCipher(key []byte) (cipher.Block, error) {
	if len(key) != 16 {
		return nil, fmt.Errorf("emrtd: 3DES key must be 16 bytes, got %d", len(key))
	}
	full := make([]byte, 24)
	copy(full, key)
	copy(full[16:], key[:8])
	return des.NewTripleDESCipher(full)
}

// encryptCBC encrypts data with two-key 3DES in CBC mode and a zero IV.
// The input length must be a multiple of the DES block size.
func encryptCBC(key, data []byte) ([]byte, error) {
	if len(data)%des.BlockSize != 0 {
		return nil, fmt.Errorf("emrtd: CBC encrypt: input not block aligned (%d bytes)", len(data))
	}
	block, err := tdesCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, make([]byte, des.BlockSize)).CryptBlocks(out, data)
	return out, nil
}

// decryptCBC is the inverse of encryptCBC.
func decryptCBC(key, data []byte) ([]byte, error) {
	if len(data)%des.BlockSize != 0 {
		return nil, fmt.Errorf("emrtd: CBC decrypt: input not block aligned (%d bytes)", len(data))
	}
	block, err := tdesCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, make([]byte, des.BlockSize)).CryptBlocks(out, data)
	return out, nil
}

// retailMAC computes ISO 9797-1 Algorithm 3 tags. It is initialized once with
// a 16-byte key and reused for every message of a session; Sum is stateless
// between calls.
type retailMAC struct {
	k1 cipher.Block // single DES under the first key half
	k2 cipher.Block // single DES under the second key half
}

func newRetailMAC(key []byte) (*retailMAC, error) {
	if len(key) != 16 {
		return nil, fmt.Errorf("emrtd: MAC key must be 16 bytes, got %d", len(key))
	}
	k1, err := des.NewCipher(key[:8])
	if err != nil {
		return nil, err
	}
	k2, err := des.NewCipher(key[8:])
	if err != nil {
		return nil, err
	}
	return &retailMAC{k1: k1, k2: k2}, nil
}

// Sum applies ISO 7816-4 padding to data and returns the 8-byte tag.
func (m *retailMAC) Sum(data []byte) []byte {
	padded := pad80(data)

	// DES-CBC under K1 with a zero IV; only the running block is kept.
	h := make([]byte, des.BlockSize)
	for i := 0; i < len(padded); i += des.BlockSize {
		for j := 0; j < des.BlockSize; j++ {
			h[j] ^= padded[i+j]
		}
		m.k1.Encrypt(h, h)
	}

	// Final transformation: decrypt under K2, encrypt under K1.
	m.k2.Decrypt(h, h)
	m.k1.Encrypt(h, h)
	return h
}

// pad80 appends ISO 7816-4 padding: a 0x80 marker byte, then zeros up to the
// next 8-byte boundary. Padding is always added, even on aligned input.
func pad80(data []byte) []byte {
	padded := make([]byte, (len(data)/des.BlockSize+1)*des.BlockSize)
	copy(padded, data)
	padded[len(data)] = 0x80
	return padded
}

// unpad80 strips ISO 7816-4 padding by scanning backwards over zero bytes to
// the 0x80 marker. A non-zero byte other than the marker is malformed
// padding. When no marker exists at all the input is returned unchanged;
// some cards deliver unpadded plaintext and rejecting it would drop their
// responses.
func unpad80(data []byte) ([]byte, error) {
	for i := len(data) - 1; i >= 0; i-- {
		switch data[i] {
		case 0x00:
			continue
		case 0x80:
			return data[:i], nil
		default:
			return nil, fmt.Errorf("emrtd: invalid padding byte 0x%02X at offset %d", data[i], i)
		}
	}
	return data, nil
}

// increment performs a big-endian +1 on b in place, wrapping to zero when
// every byte overflows.
func increment(b []byte) {
	for i := len(b) - 1; i >= 0; i-- {
		b[i]++
		if b[i] != 0 {
			return
		}
	}
}

// zero wipes key material.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
