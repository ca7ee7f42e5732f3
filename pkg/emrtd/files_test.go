package emrtd

import (
	"bytes"
	"testing"

	"github.com/gregLibert/card-documents/pkg/ber"
	"github.com/gregLibert/card-documents/pkg/iso7816"
)

// fakeCard is a minimal in-memory LDS: an application with transparent files,
// addressed by SELECT and READ BINARY on the bare transport.
type fakeCard struct {
	files    map[uint16][]byte
	selected []byte
}

func (f *fakeCard) Transmit(cmd *iso7816.CommandAPDU) (*iso7816.ResponseAPDU, error) {
	switch cmd.Instruction.Raw {
	case iso7816.INS_SELECT:
		switch iso7816.SelectionMethod(cmd.P1) {
		case iso7816.SelectByDFName:
			if bytes.Equal(cmd.Data, ApplicationID) {
				return &iso7816.ResponseAPDU{Status: iso7816.SW_NO_ERROR}, nil
			}
		case iso7816.SelectEFUnderCurrentDF:
			if len(cmd.Data) == 2 {
				fid := uint16(cmd.Data[0])<<8 | uint16(cmd.Data[1])
				if file, ok := f.files[fid]; ok {
					f.selected = file
					return &iso7816.ResponseAPDU{Status: iso7816.SW_NO_ERROR}, nil
				}
			}
		}
		return &iso7816.ResponseAPDU{Status: iso7816.SW_ERR_FILE_NOT_FOUND}, nil

	case iso7816.INS_READ_BINARY:
		offset := int(cmd.P1)<<8 | int(cmd.P2)
		if f.selected == nil || offset >= len(f.selected) {
			return &iso7816.ResponseAPDU{Status: iso7816.SW_ERR_WRONG_P1P2}, nil
		}
		end := offset + cmd.Ne
		if end > len(f.selected) {
			end = len(f.selected)
		}
		return &iso7816.ResponseAPDU{Data: f.selected[offset:end], Status: iso7816.SW_NO_ERROR}, nil
	}

	return &iso7816.ResponseAPDU{Status: iso7816.SW_ERR_INS_INVALID}, nil
}

const td3Chars = "P<UTOERIKSSON<<ANNA<MARIA<<<<<<<<<<<<<<<<<<<" +
	"L898902C36UTO7408122F1204159ZE184226B<<<<<10"

func dg1Stream() []byte {
	return ber.NewConstructed(ber.Application, 1,
		ber.NewPrimitive(ber.Application, 0x1F, []byte(td3Chars)),
	).Encode()
}

func TestReadFile(t *testing.T) {
	dg1 := dg1Stream()
	card := &fakeCard{files: map[uint16][]byte{
		FileDG1: dg1,
		FileCOM: ber.NewPrimitive(ber.Application, 0, []byte{0x01}).Encode(),
	}}

	if err := SelectApplication(card); err != nil {
		t.Fatalf("SelectApplication failed: %v", err)
	}

	got, err := ReadFile(card, FileDG1)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.Equal(got, dg1) {
		t.Errorf("ReadFile = %X\nwant      %X", got, dg1)
	}
}

func TestReadFile_NotFound(t *testing.T) {
	card := &fakeCard{files: map[uint16][]byte{}}

	_, err := ReadFile(card, FileDG2)
	commErr, ok := err.(*CommunicationError)
	if !ok {
		t.Fatalf("error = %v, want CommunicationError", err)
	}
	if commErr.SW != iso7816.SW_ERR_FILE_NOT_FOUND {
		t.Errorf("SW = %04X, want 6A82", uint16(commErr.SW))
	}
}

func TestParseDG1(t *testing.T) {
	record, err := ParseDG1(dg1Stream())
	if err != nil {
		t.Fatalf("ParseDG1 failed: %v", err)
	}
	if record.DocumentNumber != "L898902C3" {
		t.Errorf("DocumentNumber = %q, want L898902C3", record.DocumentNumber)
	}
	if record.PrimaryIdentifier != "ERIKSSON" {
		t.Errorf("PrimaryIdentifier = %q, want ERIKSSON", record.PrimaryIdentifier)
	}
}

func TestParseDG1_Malformed(t *testing.T) {
	if _, err := ParseDG1([]byte{0x61, 0x03, 0x5F}); err == nil {
		t.Error("truncated DG1 accepted")
	}

	// Template present but MRZ object missing.
	stream := ber.NewConstructed(ber.Application, 1,
		ber.NewPrimitive(ber.Application, 0x02, []byte{0x00}),
	).Encode()
	if _, err := ParseDG1(stream); err == nil {
		t.Error("DG1 without '5F1F' accepted")
	}

	// Wrong character count for every layout.
	stream = ber.NewConstructed(ber.Application, 1,
		ber.NewPrimitive(ber.Application, 0x1F, []byte("SHORT")),
	).Encode()
	if _, err := ParseDG1(stream); err == nil {
		t.Error("DG1 with 5 MRZ characters accepted")
	}
}
