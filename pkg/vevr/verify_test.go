package vevr

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
)

func testCertificate(t *testing.T) (*ecdsa.PrivateKey, []byte) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "Vehicle Registration Authority TEST"},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	return key, der
}

func TestVerify(t *testing.T) {
	key, certDER := testCertificate(t)
	registration := registrationFixture()

	digest := sha256.Sum256(registration)
	signature, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	doc := &Document{Registration: registration, Certificate: certDER, Signature: signature}
	if err := doc.Verify(); err != nil {
		t.Errorf("Verify failed on a valid signature: %v", err)
	}

	// A single flipped data byte must break verification.
	tampered := append([]byte(nil), registration...)
	tampered[4] ^= 0x01
	if err := Verify(tampered, certDER, signature); err != ErrBadSignature {
		t.Errorf("Verify(tampered) = %v, want ErrBadSignature", err)
	}
}

func TestVerify_BadInputs(t *testing.T) {
	if err := Verify(nil, []byte{0x30, 0x00}, nil); err == nil {
		t.Error("malformed certificate accepted")
	}

	// A non-EC certificate must be rejected before signature checking.
	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate RSA key: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "RSA TEST"},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &rsaKey.PublicKey, rsaKey)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	if err := Verify(registrationFixture(), der, nil); err == nil {
		t.Error("RSA certificate accepted for ECDSA verification")
	}
}
