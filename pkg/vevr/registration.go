package vevr

import (
	"fmt"
	"strings"

	"github.com/gregLibert/card-documents/pkg/tlv"
	"github.com/moov-io/bertlv"
	"golang.org/x/text/encoding/charmap"
)

// REGISTRATION DATA LAYOUT:
// The registration file carries three templates, one per part of the paper
// document it replaces:
//
//   Tag '71': Part A - vehicle identity (registration number, VIN, dates)
//   Tag '72': Part B - holder and owner
//   Tag '73': Part C - technical characteristics
//
// Text fields are Windows-1252 encoded on the card; DecodeText converts them
// for display.

// PartA (Tag '71') identifies the vehicle and its registration.
type PartA struct {
	RegistrationNumber  []byte `tlv:"81" fmt:"ascii"`
	FirstRegistration   []byte `tlv:"82"`
	VehicleIdentifier   []byte `tlv:"8A" fmt:"ascii"` // VIN
	Make                []byte `tlv:"87" fmt:"ascii"`
	CommercialName      []byte `tlv:"88" fmt:"ascii"`
	RegistrationCountry []byte `tlv:"8F" fmt:"ascii"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// PartB (Tag '72') names the certificate holder.
type PartB struct {
	HolderName    []byte `tlv:"83" fmt:"ascii"`
	HolderAddress []byte `tlv:"84" fmt:"ascii"`
	IsOwner       []byte `tlv:"85"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// PartC (Tag '73') carries the technical characteristics.
type PartC struct {
	MaximumMass     []byte `tlv:"91" fmt:"int"`
	VehicleMass     []byte `tlv:"92" fmt:"int"`
	Capacity        []byte `tlv:"95" fmt:"int"`
	Power           []byte `tlv:"96" fmt:"int"`
	FuelType        []byte `tlv:"97" fmt:"ascii"`
	VehicleCategory []byte `tlv:"98" fmt:"ascii"`
	Seats           []byte `tlv:"99" fmt:"int"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// Registration is the parsed registration file.
type Registration struct {
	A PartA `tlv:"71"`
	B PartB `tlv:"72"`
	C PartC `tlv:"73"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// ParseRegistration maps the raw registration file onto the three templates.
func ParseRegistration(data []byte) (*Registration, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("vevr: empty registration data")
	}

	reg := &Registration{}
	if err := tlv.Unmarshal(data, reg); err != nil {
		return nil, fmt.Errorf("vevr: registration data: %w", err)
	}
	return reg, nil
}

// DecodeText converts a Windows-1252 card text field for display.
func DecodeText(field []byte) string {
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(field)
	if err != nil {
		// Decoding 1252 cannot actually fail (every byte is mapped), but
		// fall back to the raw bytes rather than lose the field.
		return string(field)
	}
	return string(decoded)
}

// Describe generates a report of the registration content in the same shape
// as the ISO 7816 result reports.
func (r *Registration) Describe() string {
	var sb strings.Builder
	sb.WriteString("=== VEHICLE REGISTRATION ===")

	tlv.WriteStructFields(&sb, "PartA", r.A)
	tlv.WriteStructFields(&sb, "PartB", r.B)
	tlv.WriteStructFields(&sb, "PartC", r.C)

	return strings.TrimRight(sb.String(), "\n")
}
