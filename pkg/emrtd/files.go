package emrtd

import (
	"fmt"
	"strings"

	"github.com/gregLibert/card-documents/pkg/ber"
	"github.com/gregLibert/card-documents/pkg/iso7816"
	"github.com/gregLibert/card-documents/pkg/mrz"
)

// LDS FILE ACCESS:
// The chip's Logical Data Structure is a set of transparent elementary files
// under the eMRTD application. Files are BER-TLV streams whose outer header
// announces the total length, so a reader fetches the first few bytes, sizes
// the file, and then pulls the rest with successive READ BINARY commands.

// AID of the eMRTD LDS1 application.
var ApplicationID = []byte{0xA0, 0x00, 0x00, 0x02, 0x47, 0x10, 0x01}

// Standard LDS file identifiers.
const (
	FileCOM uint16 = 0x011E // EF.COM: common data, data group presence map
	FileDG1 uint16 = 0x0101 // EF.DG1: the MRZ
	FileDG2 uint16 = 0x0102 // EF.DG2: encoded face image
	FileSOD uint16 = 0x011D // EF.SOD: document security object
)

// readChunk is the Le used while pulling file bodies. Secure messaging
// inflates responses by the DO'87'/DO'99'/DO'8E' overhead, so staying under
// 256 keeps the wrapped response within a short APDU.
const readChunk = 0xE0

// SelectApplication selects the eMRTD application by AID. This happens on the
// bare transport, before BAC.
func SelectApplication(tr iso7816.Transport) error {
	cls, _ := iso7816.NewClass(0x00)
	cmd := iso7816.NewSelectCommand(cls, iso7816.SelectByDFName, iso7816.FirstOrOnlyOccurrence, iso7816.ReturnNoData, ApplicationID)

	resp, err := tr.Transmit(cmd)
	if err != nil {
		return fmt.Errorf("select application: %w", err)
	}
	if resp.Status != iso7816.SW_NO_ERROR {
		return &CommunicationError{Process: "select application", SW: resp.Status}
	}
	return nil
}

// SelectFile selects an elementary file under the current application by its
// two-byte identifier.
func SelectFile(tr iso7816.Transport, fid uint16) error {
	cls, _ := iso7816.NewClass(0x00)
	cmd := iso7816.NewSelectCommand(
		cls,
		iso7816.SelectEFUnderCurrentDF,
		iso7816.FirstOrOnlyOccurrence,
		iso7816.ReturnNoData,
		[]byte{byte(fid >> 8), byte(fid)},
	)

	resp, err := tr.Transmit(cmd)
	if err != nil {
		return fmt.Errorf("select file %04X: %w", fid, err)
	}
	if resp.Status != iso7816.SW_NO_ERROR {
		return &CommunicationError{Process: fmt.Sprintf("select file %04X", fid), SW: resp.Status}
	}
	return nil
}

// ReadFile selects fid and reads its whole BER-TLV stream. tr is typically a
// secure Channel; the same code runs over a bare transport for unprotected
// cards.
func ReadFile(tr iso7816.Transport, fid uint16) ([]byte, error) {
	if err := SelectFile(tr, fid); err != nil {
		return nil, err
	}

	cls, _ := iso7816.NewClass(0x00)

	// The first four bytes are enough to size the outer TLV header.
	head, err := readAt(tr, cls, 0, 4)
	if err != nil {
		return nil, err
	}
	total, err := streamLength(head)
	if err != nil {
		return nil, fmt.Errorf("file %04X: %w", fid, err)
	}

	data := append([]byte(nil), head...)
	for len(data) < total {
		ne := total - len(data)
		if ne > readChunk {
			ne = readChunk
		}

		chunk, err := readAt(tr, cls, len(data), ne)
		if err != nil {
			return nil, err
		}
		data = append(data, chunk...)
		if len(chunk) == 0 {
			return nil, fmt.Errorf("file %04X: read stalled at offset %d", fid, len(data))
		}
	}

	// An object shorter than the 4-byte probe leaves spare probe bytes behind.
	if len(data) > total {
		data = data[:total]
	}
	return data, nil
}

func readAt(tr iso7816.Transport, cls iso7816.Class, offset, ne int) ([]byte, error) {
	cmd, err := iso7816.NewReadBinaryCommand(cls, offset, ne)
	if err != nil {
		return nil, err
	}

	resp, err := tr.Transmit(cmd)
	if err != nil {
		return nil, fmt.Errorf("read binary at %d: %w", offset, err)
	}

	switch {
	case resp.Status == iso7816.SW_NO_ERROR:
		return resp.Data, nil
	case resp.Status == iso7816.SW_WARN_EOF_REACHED:
		// Short file: whatever arrived is the tail.
		return resp.Data, nil
	default:
		return nil, &CommunicationError{Process: fmt.Sprintf("read binary at %d", offset), SW: resp.Status}
	}
}

// streamLength computes the total byte count (header included) of the BER-TLV
// object starting at head. Four bytes suffice for LDS files, whose outer tags
// are one byte: a one-byte tag fits with a length of up to three bytes, a
// two-byte tag only with a short or '81' length. Any other header is rejected.
func streamLength(head []byte) (int, error) {
	if len(head) < 4 {
		return 0, fmt.Errorf("emrtd: %d byte header too short to size file", len(head))
	}

	i := 1
	if head[0]&0x1F == 0x1F { // long-form tag, one continuation byte
		i = 2
	}

	switch l := head[i]; {
	case l < 0x80:
		return i + 1 + int(l), nil
	case l == 0x81 && i+1 < len(head):
		return i + 2 + int(head[i+1]), nil
	case l == 0x82 && i+2 < len(head):
		return i + 3 + int(head[i+1])<<8 + int(head[i+2]), nil
	default:
		return 0, fmt.Errorf("emrtd: cannot size file from header % X", head)
	}
}

// ParseDG1 extracts the MRZ text from an EF.DG1 stream and re-parses it,
// cross-checking the printed zone against what the chip carries.
func ParseDG1(data []byte) (*mrz.Record, error) {
	blocks, err := ber.DecodeAll(data)
	if err != nil {
		return nil, fmt.Errorf("emrtd: DG1: %w", err)
	}

	// DG1 is '61' { '5F1F' mrz-characters }.
	outer, ok := ber.Find(blocks, ber.Application, true, 1)
	if !ok {
		return nil, fmt.Errorf("emrtd: DG1: data group template '61' not found")
	}
	inner, ok := ber.Find(outer.Children, ber.Application, false, 0x1F)
	if !ok {
		return nil, fmt.Errorf("emrtd: DG1: MRZ object '5F1F' not found")
	}

	text, err := splitMRZ(string(inner.Value))
	if err != nil {
		return nil, err
	}
	return mrz.Parse(text)
}

// splitMRZ restores line breaks in the chip's continuous MRZ characters.
func splitMRZ(chars string) (string, error) {
	var width int
	switch len(chars) {
	case 88:
		width = 44
	case 90:
		width = 30
	case 72:
		width = 36
	default:
		return "", fmt.Errorf("emrtd: DG1: %d MRZ characters match no layout", len(chars))
	}

	var lines []string
	for i := 0; i < len(chars); i += width {
		lines = append(lines, chars[i:i+width])
	}
	return strings.Join(lines, "\n"), nil
}
