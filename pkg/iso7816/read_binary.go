package iso7816

import (
	"fmt"

	"github.com/gregLibert/card-documents/pkg/bits"
)

// READ BINARY COMMAND LOGIC (ISO 7816-4):
// The READ BINARY command (INS 'B0') reads a byte range from a transparent
// Elementary File (EF).
//
// P1/P2 (Offset or SFI + Offset):
// - If Bit 8 of P1 is 0: P1-P2 encode a 15-bit offset into the current EF.
// - If Bit 8 of P1 is 1: Bits 5-1 of P1 carry a Short File Identifier (SFI),
//   selecting the file implicitly, and P2 encodes an 8-bit offset.
//
// Reading past the end of the file yields '6B00' (wrong P1/P2) or the
// warning '6282' (end of file reached before Le bytes), depending on the
// card. Callers that read until the card reports the end of the file stop
// on either.

// MaxBinaryOffset is the largest offset encodable without SFI addressing.
const MaxBinaryOffset = 0x7FFF

// NewReadBinaryCommand creates a READ BINARY command addressing the current
// EF at the given offset.
func NewReadBinaryCommand(cla Class, offset int, ne int) (*CommandAPDU, error) {
	if offset < 0 || offset > MaxBinaryOffset {
		return nil, fmt.Errorf("offset %d out of range (max %d)", offset, MaxBinaryOffset)
	}

	ins, _ := NewInstruction(INS_READ_BINARY)
	return NewCommandAPDU(cla, ins, byte(offset>>8), byte(offset), nil, ne), nil
}

// NewReadBinarySFICommand creates a READ BINARY command that selects the file
// by SFI (1-30) and reads at an 8-bit offset.
func NewReadBinarySFICommand(cla Class, sfi byte, offset byte, ne int) (*CommandAPDU, error) {
	if sfi == 0 || sfi > 30 {
		return nil, fmt.Errorf("SFI %d out of range (1-30)", sfi)
	}

	ins, _ := NewInstruction(INS_READ_BINARY)

	// P1 Construction: Bit 8 flags SFI addressing, bits 5-1 carry the SFI.
	p1 := bits.Set(sfi, 8)
	return NewCommandAPDU(cla, ins, p1, offset, nil, ne), nil
}

// ReadBinary reads up to ne bytes from the current EF at offset.
func ReadBinary(cla Class, offset int, ne int) (*CommandAPDU, error) {
	if ne == 0 {
		ne = MaxShortLe
	}
	return NewReadBinaryCommand(cla, offset, ne)
}
