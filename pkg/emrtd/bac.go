package emrtd

import (
	"bytes"
	"crypto/rand"
	"crypto/sha1"
	"fmt"
	"io"

	"github.com/gregLibert/card-documents/pkg/iso7816"
	"github.com/gregLibert/card-documents/pkg/mrz"
)

// BASIC ACCESS CONTROL (ICAO 9303 Part 11):
//
// BAC proves to the chip that the terminal has optically read the data page.
// The document keys are derived from the MRZ (document number, birth date,
// expiry date, each with its check digit); a mutual challenge-response over
// those keys authenticates both sides and agrees on session keys:
//
//  1. GET CHALLENGE: the chip returns an 8-byte random RND.IC.
//  2. The terminal draws RND.IFD (8 bytes) and key material K.IFD (16 bytes),
//     encrypts RND.IFD || RND.IC || K.IFD under K_enc and MACs the
//     cryptogram under K_mac.
//  3. EXTERNAL AUTHENTICATE carries cryptogram and MAC; the chip answers with
//     its own cryptogram over RND.IC || RND.IFD || K.IC.
//  4. Both sides XOR K.IFD and K.IC into the session seed and derive the
//     session keys. The send sequence counter starts as the low halves of
//     RND.IC and RND.IFD.

// randRead fills a buffer from the cryptographically secure source. A package
// variable so the handshake can be driven deterministically in tests.
var randRead = rand.Read

// DeriveDocumentKeys computes the BAC document keys from the MRZ-derived key
// derivation string (see mrz.Record.MRZInformation).
func DeriveDocumentKeys(mrzInformation string) (kEnc, kMAC []byte) {
	digest := sha1.Sum([]byte(mrzInformation))
	seed := digest[:16]
	return deriveKey(seed, 1), deriveKey(seed, 2)
}

// Authenticate runs the BAC handshake against tr using the keys derived from
// doc, and returns a ready secure-messaging channel. The channel takes
// ownership of tr on success.
func Authenticate(tr iso7816.Transport, doc *mrz.Record) (*Channel, error) {
	kEnc, kMAC := DeriveDocumentKeys(doc.MRZInformation())
	return authenticate(tr, kEnc, kMAC)
}

func authenticate(tr iso7816.Transport, kEnc, kMAC []byte) (*Channel, error) {
	cls, _ := iso7816.NewClass(0x00)

	// Step 1: GET CHALLENGE.
	insChallenge, _ := iso7816.NewInstruction(iso7816.INS_GET_CHALLENGE)
	resp, err := tr.Transmit(iso7816.NewCommandAPDU(cls, insChallenge, 0x00, 0x00, nil, 8))
	if err != nil {
		return nil, fmt.Errorf("get challenge: %w", err)
	}
	if resp.Status != iso7816.SW_NO_ERROR {
		return nil, &CommunicationError{Process: "get challenge", SW: resp.Status}
	}
	if len(resp.Data) != 8 {
		return nil, fmt.Errorf("get challenge: %d byte challenge: %w", len(resp.Data), io.ErrUnexpectedEOF)
	}
	icRnd := resp.Data

	// Step 2: terminal randomness.
	ifdRnd := make([]byte, 8)
	ifdKey := make([]byte, 16)
	if _, err := randRead(ifdRnd); err != nil {
		return nil, fmt.Errorf("draw terminal nonce: %w", err)
	}
	if _, err := randRead(ifdKey); err != nil {
		return nil, fmt.Errorf("draw terminal key material: %w", err)
	}

	// Step 3: terminal cryptogram and MAC.
	s := make([]byte, 0, 32)
	s = append(s, ifdRnd...)
	s = append(s, icRnd...)
	s = append(s, ifdKey...)

	e, err := encryptCBC(kEnc, s)
	if err != nil {
		return nil, err
	}
	mac, err := newRetailMAC(kMAC)
	if err != nil {
		return nil, err
	}
	payload := append(e, mac.Sum(e)...)

	// Step 4: EXTERNAL AUTHENTICATE.
	insAuth, _ := iso7816.NewInstruction(iso7816.INS_EXTERNAL_AUTHENTICATE)
	resp, err = tr.Transmit(iso7816.NewCommandAPDU(cls, insAuth, 0x00, 0x00, payload, 40))
	if err != nil {
		return nil, fmt.Errorf("external authenticate: %w", err)
	}
	if resp.Status != iso7816.SW_NO_ERROR {
		return nil, &CommunicationError{Process: "external authenticate", SW: resp.Status}
	}
	if len(resp.Data) != 40 {
		return nil, fmt.Errorf("external authenticate: %d byte cryptogram: %w", len(resp.Data), io.ErrUnexpectedEOF)
	}

	// Step 5: verify and open the card cryptogram.
	if !bytes.Equal(mac.Sum(resp.Data[:32]), resp.Data[32:40]) {
		return nil, &MACError{Process: "external authenticate"}
	}
	plain, err := decryptCBC(kEnc, resp.Data[:32])
	if err != nil {
		return nil, err
	}

	// plain = RND.IC' || RND.IFD' || K.IC
	if !bytes.Equal(plain[8:16], ifdRnd) {
		return nil, ErrNonceMismatch
	}
	icKey := plain[16:32]

	// Step 6: session keys and initial send sequence counter.
	seed := make([]byte, 16)
	for i := range seed {
		seed[i] = ifdKey[i] ^ icKey[i]
	}
	sessionEnc := deriveKey(seed, 1)
	sessionMAC := deriveKey(seed, 2)

	var ssc [8]byte
	copy(ssc[:4], icRnd[4:8])
	copy(ssc[4:], ifdRnd[4:8])

	zero(seed)
	zero(ifdKey)

	return NewChannel(tr, sessionEnc, sessionMAC, ssc)
}
