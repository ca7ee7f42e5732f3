package emrtd

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/gregLibert/card-documents/pkg/iso7816"
	"github.com/gregLibert/card-documents/pkg/mrz"
)

// scriptedTransport replays a fixed conversation: each transmitted command is
// checked against the expected bytes and answered with the canned response.
type scriptedTransport struct {
	t     *testing.T
	steps []scriptStep
	next  int
}

type scriptStep struct {
	command  string // expected C-APDU, hex
	response string // canned R-APDU (data + SW), hex
}

func (s *scriptedTransport) Transmit(cmd *iso7816.CommandAPDU) (*iso7816.ResponseAPDU, error) {
	s.t.Helper()

	if s.next >= len(s.steps) {
		return nil, fmt.Errorf("unexpected command %s", cmd)
	}
	step := s.steps[s.next]
	s.next++

	raw, err := cmd.Bytes()
	if err != nil {
		return nil, err
	}
	if got := strings.ToUpper(hex.EncodeToString(raw)); got != step.command {
		s.t.Fatalf("command %d mismatch\ngot:  %s\nwant: %s", s.next, got, step.command)
	}

	return iso7816.ParseResponseAPDU(mustHex(step.response))
}

func (s *scriptedTransport) done() bool { return s.next == len(s.steps) }

// fixedRand overrides the package randomness with a deterministic byte
// stream for the duration of a test.
func fixedRand(t *testing.T, stream []byte) {
	t.Helper()
	orig := randRead
	t.Cleanup(func() { randRead = orig })

	pos := 0
	randRead = func(b []byte) (int, error) {
		if pos+len(b) > len(stream) {
			t.Fatal("test randomness exhausted")
		}
		copy(b, stream[pos:pos+len(b)])
		pos += len(b)
		return len(b), nil
	}
}

// The ICAO 9303 Appendix D handshake, replayed end to end.
func TestAuthenticate(t *testing.T) {
	fixedRand(t, append(append([]byte(nil), testRndIFD...), testKIFD...))

	card := &scriptedTransport{t: t, steps: []scriptStep{
		{
			command:  "0084000008",
			response: "4608F919887022129000",
		},
		{
			command: "008200002872C29C2371CC9BDB65B779B8E8D37B29ECC154AA56A8799FAE2F498F76ED92F25F1448EEA8AD90A728",
			response: "46B9342A41396CD7386BF5803104D7CEDC122B9132139BAF" +
				"2EEDC94EE178534F2F2D235D074D74499000",
		},
	}}

	record, err := mrz.Parse(
		"P<UTOERIKSSON<<ANNA<MARIA<<<<<<<<<<<<<<<<<<<\n" +
			"L898902C<3UTO6908061F9406236ZE184226B<<<<<14")
	if err != nil {
		t.Fatalf("Parse MRZ failed: %v", err)
	}

	ch, err := Authenticate(card, record)
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if !card.done() {
		t.Error("handshake did not consume the whole script")
	}

	wantEnc := mustHex("969EC03B1CBFE9DDD11AB1FED206EBE4")
	if !bytes.Equal(ch.kEnc, wantEnc) {
		t.Errorf("session K_enc = %X, want %X", ch.kEnc, wantEnc)
	}
	if got := hex.EncodeToString(ch.ssc[:]); got != "887022120c06c226" {
		t.Errorf("initial SSC = %s, want 887022120c06c226", got)
	}
}

func TestAuthenticate_BadStatus(t *testing.T) {
	card := &scriptedTransport{t: t, steps: []scriptStep{
		{command: "0084000008", response: "6982"},
	}}

	_, err := authenticate(card, testKEnc, testKMAC)
	commErr, ok := err.(*CommunicationError)
	if !ok {
		t.Fatalf("error = %v, want CommunicationError", err)
	}
	if commErr.SW != iso7816.SW_ERR_SECURITY_STATUS_NOT_SAT {
		t.Errorf("SW = %04X, want 6982", uint16(commErr.SW))
	}
}

func TestAuthenticate_BadMAC(t *testing.T) {
	fixedRand(t, append(append([]byte(nil), testRndIFD...), testKIFD...))

	// Card cryptogram with its trailing MAC byte flipped.
	card := &scriptedTransport{t: t, steps: []scriptStep{
		{command: "0084000008", response: "4608F919887022129000"},
		{
			command: "008200002872C29C2371CC9BDB65B779B8E8D37B29ECC154AA56A8799FAE2F498F76ED92F25F1448EEA8AD90A728",
			response: "46B9342A41396CD7386BF5803104D7CEDC122B9132139BAF" +
				"2EEDC94EE178534F2F2D235D074D74489000",
		},
	}}

	_, err := authenticate(card, testKEnc, testKMAC)
	if _, ok := err.(*MACError); !ok {
		t.Fatalf("error = %v, want MACError", err)
	}
}

func TestAuthenticate_NonceMismatch(t *testing.T) {
	// The terminal draws a nonce that differs from the one baked into the
	// card's (otherwise valid) cryptogram: the echo check must fail.
	otherRnd := mustHex("0000000000000000")
	fixedRand(t, append(append([]byte(nil), otherRnd...), testKIFD...))

	// Terminal cryptogram for the zero nonce, precomputed with the document
	// keys so the scripted command bytes stay checkable.
	s := make([]byte, 0, 32)
	s = append(s, otherRnd...)
	s = append(s, testRndIC...)
	s = append(s, testKIFD...)
	e, err := encryptCBC(testKEnc, s)
	if err != nil {
		t.Fatal(err)
	}
	mac, _ := newRetailMAC(testKMAC)
	payload := append(e, mac.Sum(e)...)

	card := &scriptedTransport{t: t, steps: []scriptStep{
		{command: "0084000008", response: "4608F919887022129000"},
		{
			command: "0082000028" + strings.ToUpper(hex.EncodeToString(payload)) + "28",
			// Valid MAC, but the cryptogram echoes the Appendix D nonce.
			response: "46B9342A41396CD7386BF5803104D7CEDC122B9132139BAF" +
				"2EEDC94EE178534F2F2D235D074D74499000",
		},
	}}

	if _, err := authenticate(card, testKEnc, testKMAC); err != ErrNonceMismatch {
		t.Fatalf("error = %v, want ErrNonceMismatch", err)
	}
}
