package vevr

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"fmt"
)

// ErrBadSignature is returned when the registration data does not match the
// signature under the certificate's public key.
var ErrBadSignature = errors.New("vevr: registration signature invalid")

// Verify checks the issuing authority's ECDSA-over-SHA256 signature on the
// registration data using the public key of the DER-encoded certificate.
func Verify(registration, certificateDER, signature []byte) error {
	cert, err := x509.ParseCertificate(certificateDER)
	if err != nil {
		return fmt.Errorf("vevr: certificate: %w", err)
	}

	pub, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("vevr: certificate carries a %T key, want ECDSA", cert.PublicKey)
	}

	digest := sha256.Sum256(registration)
	if !ecdsa.VerifyASN1(pub, digest[:], signature) {
		return ErrBadSignature
	}
	return nil
}

// Verify verifies a fully read card.
func (d *Document) Verify() error {
	return Verify(d.Registration, d.Certificate, d.Signature)
}
