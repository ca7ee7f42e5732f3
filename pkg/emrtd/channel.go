package emrtd

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"

	"github.com/gregLibert/card-documents/pkg/ber"
	"github.com/gregLibert/card-documents/pkg/iso7816"
)

// SECURE MESSAGING (ICAO 9303 Part 11):
//
// After BAC every APDU travels wrapped. The command data field becomes a
// sequence of BER-TLV data objects:
//
//   DO'87': 01 || 3DES-CBC(K_enc, padded data)     - when the command sends data
//   DO'97': expected length                        - when the command expects data
//   DO'8E': retail MAC                             - always, last
//
// The MAC covers the send sequence counter, the masked command header
// (CLA forced to 0C, padded to a block) and the data objects before DO'8E'.
// Responses mirror the scheme with DO'87' (data), DO'99' (status) and
// DO'8E' (MAC). The counter increments once per message half, binding each
// MAC to its position in the conversation.
//
// The channel is strictly single-threaded: it owns the counter and keys, and
// exposes no locked variant. An integrity or framing failure poisons the
// channel permanently; the caller tears down the underlying transport.

// claSecureMessaging is the class byte of every wrapped command: first
// interindustry, SM with authenticated header.
const claSecureMessaging = 0x0C

// Secure-messaging data object tag numbers (context-specific, primitive).
const (
	tagEncryptedData  = 0x07 // DO'87'
	tagExpectedLength = 0x17 // DO'97'
	tagStatus         = 0x19 // DO'99'
	tagMAC            = 0x0E // DO'8E'
)

// Channel wraps a Transport in ICAO 9303 secure messaging. It satisfies
// iso7816.Transport itself, so file-reading code runs unchanged over a bare
// or secured connection.
type Channel struct {
	transport iso7816.Transport
	kEnc      []byte
	mac       *retailMAC
	ssc       [8]byte
	log       *slog.Logger
	err       error // set on poisoning, sticky
}

// NewChannel builds a secure channel from freshly negotiated session keys and
// the initial send sequence counter. Authenticate is the usual constructor
// path; NewChannel is exported for transcripts replayed from stored keys.
func NewChannel(tr iso7816.Transport, kEnc, kMAC []byte, ssc [8]byte) (*Channel, error) {
	mac, err := newRetailMAC(kMAC)
	if err != nil {
		return nil, err
	}
	c := &Channel{
		transport: tr,
		kEnc:      append([]byte(nil), kEnc...),
		mac:       mac,
		ssc:       ssc,
		log:       slog.Default(),
	}
	return c, nil
}

// SetLogger redirects the channel's diagnostics (one warning path exists:
// responses without a MAC object).
func (c *Channel) SetLogger(l *slog.Logger) {
	if l != nil {
		c.log = l
	}
}

// Close zeroes the channel's copy of the encryption key and releases the
// underlying transport when it supports closing. The MAC key schedules held
// by the DES ciphers are not wiped. The channel is unusable afterwards.
func (c *Channel) Close() error {
	zero(c.kEnc)
	c.err = fmt.Errorf("emrtd: secure channel closed")
	if closer, ok := c.transport.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Transmit wraps cmd, sends it over the underlying transport and unwraps the
// response. cmd must use the plain class byte 00; the wrapper owns the class.
func (c *Channel) Transmit(cmd *iso7816.CommandAPDU) (*iso7816.ResponseAPDU, error) {
	if c.err != nil {
		return nil, fmt.Errorf("emrtd: secure channel unusable: %w", c.err)
	}
	if cmd.Class.Raw != 0x00 {
		return nil, fmt.Errorf("emrtd: secure messaging requires CLA 00, got %02X", cmd.Class.Raw)
	}

	wrapped, err := c.wrap(cmd)
	if err != nil {
		return nil, err
	}

	resp, err := c.transport.Transmit(wrapped)
	if err != nil {
		return nil, fmt.Errorf("emrtd: secure transmit: %w", err)
	}

	return c.unwrap(resp)
}

// wrap builds the secure-messaging command for cmd.
func (c *Channel) wrap(cmd *iso7816.CommandAPDU) (*iso7816.CommandAPDU, error) {
	cmdCase := cmd.Case()
	var body []byte

	if cmdCase.IsSendingData() {
		ciphertext, err := encryptCBC(c.kEnc, pad80(cmd.Data))
		if err != nil {
			return nil, err
		}
		// Padding-indicator byte 01 announces ISO 7816-4 padding.
		value := append([]byte{0x01}, ciphertext...)
		body = ber.NewPrimitive(ber.ContextSpecific, tagEncryptedData, value).AppendTo(body)
	}

	if cmdCase.IsReceivingData() {
		var le []byte
		if cmdCase.IsExtended() {
			le = []byte{byte(cmd.Ne >> 8), byte(cmd.Ne)}
		} else {
			le = []byte{byte(cmd.Ne)} // 256 encodes as 00
		}
		body = ber.NewPrimitive(ber.ContextSpecific, tagExpectedLength, le).AppendTo(body)
	}

	// The MAC covers the masked header, padded to a full block.
	header := []byte{
		claSecureMessaging, byte(cmd.Instruction.Raw), cmd.P1, cmd.P2,
		0x80, 0x00, 0x00, 0x00,
	}

	increment(c.ssc[:])

	macInput := make([]byte, 0, len(c.ssc)+len(header)+len(body))
	macInput = append(macInput, c.ssc[:]...)
	macInput = append(macInput, header...)
	macInput = append(macInput, body...)
	tag := c.mac.Sum(macInput)

	body = ber.NewPrimitive(ber.ContextSpecific, tagMAC, tag).AppendTo(body)

	smClass, err := iso7816.NewClass(claSecureMessaging)
	if err != nil {
		return nil, err
	}

	// The wrapped command is always case 4 short: Le 00 asks for up to 256
	// bytes regardless of the original case.
	return iso7816.NewCommandAPDU(smClass, cmd.Instruction, cmd.P1, cmd.P2, body, iso7816.MaxShortLe), nil
}

// unwrap verifies and decrypts a secure-messaging response.
func (c *Channel) unwrap(resp *iso7816.ResponseAPDU) (*iso7816.ResponseAPDU, error) {
	// Status-only responses are not protected; pass them through untouched.
	if len(resp.Data) == 0 {
		return resp, nil
	}

	blocks, err := ber.DecodeAll(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("emrtd: secure response framing: %w", err)
	}

	increment(c.ssc[:])

	// Recompute the MAC over everything except DO'8E' itself, in order.
	macInput := append([]byte(nil), c.ssc[:]...)
	for _, b := range blocks {
		if isSMObject(b, tagMAC) {
			continue
		}
		macInput = b.AppendTo(macInput)
	}
	expected := c.mac.Sum(macInput)

	if macBlock, ok := ber.Find(blocks, ber.ContextSpecific, false, tagMAC); ok {
		if !bytes.Equal(macBlock.Value, expected) {
			return nil, c.poison(&MACError{Process: "secure response"})
		}
	} else {
		// Some chips omit DO'8E' on error statuses. The response is passed
		// through unauthenticated rather than lost.
		c.log.Warn("secure messaging response carries no MAC object", "sw", uint16(resp.Status))
	}

	status := resp.Status
	if sb, ok := ber.Find(blocks, ber.ContextSpecific, false, tagStatus); ok && len(sb.Value) == 2 {
		status = iso7816.NewStatusWord(sb.Value[0], sb.Value[1])
	}

	var data []byte
	if db, ok := ber.Find(blocks, ber.ContextSpecific, false, tagEncryptedData); ok {
		if len(db.Value) == 0 || db.Value[0] != 0x01 {
			return nil, c.poison(&FormatError{Process: "secure response", Detail: "missing ISO 7816-4 padding indicator"})
		}
		plain, err := decryptCBC(c.kEnc, db.Value[1:])
		if err != nil {
			return nil, c.poison(&FormatError{Process: "secure response", Detail: err.Error()})
		}
		data, err = unpad80(plain)
		if err != nil {
			return nil, c.poison(&FormatError{Process: "secure response", Detail: err.Error()})
		}
	}

	return &iso7816.ResponseAPDU{Data: data, Status: status}, nil
}

func (c *Channel) poison(err error) error {
	c.err = err
	return err
}

func isSMObject(b ber.Block, tag uint64) bool {
	return b.Class == ber.ContextSpecific && !b.Constructed && b.Tag == tag
}
