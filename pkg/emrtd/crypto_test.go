package emrtd

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"
)

// Worked-example values from ICAO 9303 Part 11 Appendix D.
var (
	testKSeed  = mustHex("239AB9CB282DAF66231DC5A4DF6BFBAE")
	testKEnc   = mustHex("AB94FCEDF2664EDFB9B291F85D7F77F2")
	testKMAC   = mustHex("7862D9ECE03C1BCD4D77089DCF131442")
	testRndIFD = mustHex("781723860C06C226")
	testRndIC  = mustHex("4608F91988702212")
	testKIFD   = mustHex("0B795240CB7049B01C19B33E32804F0B")
	testEIFD   = mustHex("72C29C2371CC9BDB65B779B8E8D37B29ECC154AA56A8799FAE2F498F76ED92F2")
	testMIFD   = mustHex("5F1448EEA8AD90A7")
)

func mustHex(s string) []byte {
	data, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		panic(err)
	}
	return data
}

func TestDeriveKey(t *testing.T) {
	if got := deriveKey(testKSeed, 1); !bytes.Equal(got, testKEnc) {
		t.Errorf("deriveKey(seed, 1) = %X, want %X", got, testKEnc)
	}
	if got := deriveKey(testKSeed, 2); !bytes.Equal(got, testKMAC) {
		t.Errorf("deriveKey(seed, 2) = %X, want %X", got, testKMAC)
	}
}

func TestDeriveDocumentKeys(t *testing.T) {
	kEnc, kMAC := DeriveDocumentKeys("L898902C<369080619406236")
	if !bytes.Equal(kEnc, testKEnc) {
		t.Errorf("kEnc = %X, want %X", kEnc, testKEnc)
	}
	if !bytes.Equal(kMAC, testKMAC) {
		t.Errorf("kMAC = %X, want %X", kMAC, testKMAC)
	}
}

func TestEncryptCBC(t *testing.T) {
	s := make([]byte, 0, 32)
	s = append(s, testRndIFD...)
	s = append(s, testRndIC...)
	s = append(s, testKIFD...)

	got, err := encryptCBC(testKEnc, s)
	if err != nil {
		t.Fatalf("encryptCBC failed: %v", err)
	}
	if !bytes.Equal(got, testEIFD) {
		t.Errorf("encryptCBC = %X, want %X", got, testEIFD)
	}

	back, err := decryptCBC(testKEnc, got)
	if err != nil {
		t.Fatalf("decryptCBC failed: %v", err)
	}
	if !bytes.Equal(back, s) {
		t.Errorf("decryptCBC did not invert encryptCBC")
	}
}

func TestEncryptCBC_Misaligned(t *testing.T) {
	if _, err := encryptCBC(testKEnc, make([]byte, 7)); err == nil {
		t.Error("encryptCBC accepted misaligned input")
	}
	if _, err := decryptCBC(testKEnc, make([]byte, 9)); err == nil {
		t.Error("decryptCBC accepted misaligned input")
	}
}

func TestRetailMAC(t *testing.T) {
	mac, err := newRetailMAC(testKMAC)
	if err != nil {
		t.Fatalf("newRetailMAC failed: %v", err)
	}

	if got := mac.Sum(testEIFD); !bytes.Equal(got, testMIFD) {
		t.Errorf("Sum = %X, want %X", got, testMIFD)
	}

	// The engine is long-lived: a second message over the same instance must
	// not be influenced by the first.
	if got := mac.Sum(testEIFD); !bytes.Equal(got, testMIFD) {
		t.Errorf("second Sum = %X, want %X", got, testMIFD)
	}
}

func TestPad80Roundtrip(t *testing.T) {
	for n := 0; n <= 24; n++ {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i + 1)
		}

		padded := pad80(data)
		if len(padded)%8 != 0 {
			t.Fatalf("pad80(%d bytes): %d bytes not block aligned", n, len(padded))
		}
		if len(padded) == len(data) {
			t.Fatalf("pad80(%d bytes): padding must always extend the input", n)
		}

		got, err := unpad80(padded)
		if err != nil {
			t.Fatalf("unpad80 failed for %d bytes: %v", n, err)
		}
		if !bytes.Equal(got, data) {
			t.Errorf("pad/unpad not identity for %d bytes", n)
		}
	}
}

func TestUnpad80(t *testing.T) {
	// A stray byte in the zero run is malformed padding.
	if _, err := unpad80(mustHex("AA80000100")); err == nil {
		t.Error("unpad80 accepted a non-zero byte inside the padding run")
	}

	// No marker at all: the whole buffer comes back (defensive fallback for
	// cards that answer unpadded).
	got, err := unpad80(mustHex("0000000000000000"))
	if err != nil {
		t.Fatalf("unpad80 fallback failed: %v", err)
	}
	if len(got) != 8 {
		t.Errorf("fallback returned %d bytes, want 8", len(got))
	}
}

func TestIncrement(t *testing.T) {
	tests := []struct {
		in, want []byte
	}{
		{mustHex("FFFFFFFF"), mustHex("00000000")},
		{mustHex("123456FF"), mustHex("12345700")},
		{mustHex("0000000000000000"), mustHex("0000000000000001")},
		{mustHex("887022120C06C226"), mustHex("887022120C06C227")},
	}
	for _, tt := range tests {
		b := append([]byte(nil), tt.in...)
		increment(b)
		if !bytes.Equal(b, tt.want) {
			t.Errorf("increment(%X) = %X, want %X", tt.in, b, tt.want)
		}
	}

	// 2^(8n) applications of +1 on an n-byte buffer cycle back to the start.
	b := []byte{0xAB}
	for i := 0; i < 256; i++ {
		increment(b)
	}
	if b[0] != 0xAB {
		t.Errorf("256 increments of one byte = %02X, want AB", b[0])
	}
}
