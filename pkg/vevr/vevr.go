// Package vevr reads and verifies VEVR-01 electronic vehicle registration
// cards.
//
// The card holds a dedicated application with three transparent files: the
// BER-TLV registration data, an X.509 certificate, and an ECDSA signature
// computed by the issuing authority over the registration data. Reading is
// plain ISO 7816 (no secure messaging); authenticity comes from verifying the
// signature against the certificate's public key.
package vevr

import (
	"fmt"

	"github.com/gregLibert/card-documents/pkg/iso7816"
)

// AID of the vehicle registration application ("VEVR-01").
var ApplicationID = []byte{0xA0, 0x00, 0x00, 0x04, 0x56, 0x45, 0x56, 0x52, 0x2D, 0x30, 0x31}

// File identifiers of the application's elementary files. Dump files on disk
// are conventionally named after these, four hex digits plus ".bin".
const (
	FileRegistration uint16 = 0xD001
	FileCertificate  uint16 = 0xC001
	FileSignature    uint16 = 0xE001
)

// Document bundles the three raw files pulled from one card.
type Document struct {
	Registration []byte // BER-TLV registration data
	Certificate  []byte // DER-encoded X.509 certificate
	Signature    []byte // ECDSA signature over Registration
}

// ReadAll selects the application and pulls the three files.
func ReadAll(tr iso7816.Transport) (*Document, error) {
	cls, _ := iso7816.NewClass(0x00)

	cmd := iso7816.NewSelectCommand(cls, iso7816.SelectByDFName,
		iso7816.FirstOrOnlyOccurrence, iso7816.ReturnNoData, ApplicationID)
	resp, err := tr.Transmit(cmd)
	if err != nil {
		return nil, fmt.Errorf("vevr: select application: %w", err)
	}
	if resp.Status != iso7816.SW_NO_ERROR {
		return nil, fmt.Errorf("vevr: select application: %s", resp.Status.Verbose())
	}

	doc := &Document{}
	for _, file := range []struct {
		fid  uint16
		dest *[]byte
	}{
		{FileRegistration, &doc.Registration},
		{FileCertificate, &doc.Certificate},
		{FileSignature, &doc.Signature},
	} {
		data, err := readFile(tr, cls, file.fid)
		if err != nil {
			return nil, err
		}
		*file.dest = data
	}

	return doc, nil
}

// readFile selects fid and reads until the card reports the end of the file.
func readFile(tr iso7816.Transport, cls iso7816.Class, fid uint16) ([]byte, error) {
	sel := iso7816.NewSelectCommand(cls, iso7816.SelectEFUnderCurrentDF,
		iso7816.FirstOrOnlyOccurrence, iso7816.ReturnNoData, []byte{byte(fid >> 8), byte(fid)})
	resp, err := tr.Transmit(sel)
	if err != nil {
		return nil, fmt.Errorf("vevr: select file %04X: %w", fid, err)
	}
	if resp.Status != iso7816.SW_NO_ERROR {
		return nil, fmt.Errorf("vevr: select file %04X: %s", fid, resp.Status.Verbose())
	}

	var data []byte
	for offset := 0; offset <= iso7816.MaxBinaryOffset; {
		cmd, err := iso7816.ReadBinary(cls, offset, iso7816.MaxShortLe)
		if err != nil {
			return nil, err
		}
		resp, err := tr.Transmit(cmd)
		if err != nil {
			return nil, fmt.Errorf("vevr: read file %04X at %d: %w", fid, offset, err)
		}

		switch resp.Status {
		case iso7816.SW_NO_ERROR:
			data = append(data, resp.Data...)
			offset += len(resp.Data)
			if len(resp.Data) < iso7816.MaxShortLe {
				return data, nil
			}
		case iso7816.SW_WARN_EOF_REACHED:
			return append(data, resp.Data...), nil
		case iso7816.SW_ERR_WRONG_P1P2:
			// Offset past the end: the previous chunk was the last one.
			return data, nil
		default:
			return nil, fmt.Errorf("vevr: read file %04X at %d: %s", fid, offset, resp.Status.Verbose())
		}
	}

	return data, nil
}
