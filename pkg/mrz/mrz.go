// Package mrz parses the Machine Readable Zone of ICAO 9303 travel documents.
//
// Three layouts exist, distinguished purely by line count and line width:
//
//   - TD1: 3 lines of 30 characters (credit-card size identity cards)
//   - TD2: 2 lines of 36 characters
//   - TD3: 2 lines of 44 characters (passports)
//
// Each layout assigns fixed columns to each field. '<' is the filler
// character: it pads short values and doubles as the name separator ("<<"
// splits primary from secondary identifier). Check digits protect the
// document number, the two dates, optional data (TD3) and a composite of the
// machine-relevant columns; a document whose check digits do not verify is
// rejected outright.
package mrz

import (
	"fmt"
	"strings"
)

// Format identifies the physical MRZ layout.
type Format int

const (
	TD1 Format = iota + 1 // 3 x 30
	TD2                   // 2 x 36
	TD3                   // 2 x 44
)

func (f Format) String() string {
	switch f {
	case TD1:
		return "TD1"
	case TD2:
		return "TD2"
	case TD3:
		return "TD3"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Record holds the fields extracted from a validated MRZ.
//
// BirthDate and ExpiryDate stay exactly 6 characters (YYMMDD) and are never
// trimmed: filler characters inside a date are legitimate and participate in
// the check digits. SecondaryIdentifier is nil when the name field carries no
// "<<" separator; OptionalData2 is nil on formats other than TD1.
type Record struct {
	Format               Format
	DocumentType         string
	Issuer               string
	PrimaryIdentifier    string
	SecondaryIdentifier  *string
	NameMightBeTruncated bool
	DocumentNumber       string
	Nationality          string
	BirthDate            string
	Sex                  string
	ExpiryDate           string
	OptionalData1        string
	OptionalData2        *string
}

// Parse splits text into lines, drops blank ones, dispatches on the line
// shape and validates every check digit. No record is returned on failure.
func Parse(text string) (*Record, error) {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			lines = append(lines, l)
		}
	}

	switch {
	case len(lines) == 2 && len(lines[0]) == 44 && len(lines[1]) == 44:
		return parseTD3(lines[0], lines[1])
	case len(lines) == 3 && allWidth(lines, 30):
		return parseTD1(lines[0], lines[1], lines[2])
	case len(lines) == 2 && len(lines[0]) == 36 && len(lines[1]) == 36:
		return parseTD2(lines[0], lines[1])
	default:
		return nil, ErrUnknownFormat
	}
}

func allWidth(lines []string, w int) bool {
	for _, l := range lines {
		if len(l) != w {
			return false
		}
	}
	return true
}

// MRZInformation returns the Basic Access Control key-derivation input:
// document number padded with filler to at least 9 characters, then its check
// digit, then birth date and expiry date each followed by theirs. The record
// was validated at parse time, so the digits recompute without error.
func (r *Record) MRZInformation() string {
	number := r.DocumentNumber
	if len(number) < 9 {
		number += strings.Repeat("<", 9-len(number))
	}

	var sb strings.Builder
	sb.WriteString(number)
	sb.WriteByte('0' + byte(mustCheckDigit(number)))
	sb.WriteString(r.BirthDate)
	sb.WriteByte('0' + byte(mustCheckDigit(r.BirthDate)))
	sb.WriteString(r.ExpiryDate)
	sb.WriteByte('0' + byte(mustCheckDigit(r.ExpiryDate)))
	return sb.String()
}

func mustCheckDigit(s string) int {
	d, err := CheckDigit(s)
	if err != nil {
		panic(fmt.Sprintf("mrz: check digit over validated field %q: %v", s, err))
	}
	return d
}

// =========================================================================
// Format-specific column extraction
// =========================================================================

func parseTD3(top, bottom string) (*Record, error) {
	if err := verifyCheckDigit("document number", bottom[0:9], bottom[9]); err != nil {
		return nil, err
	}
	if err := verifyCheckDigit("birth date", bottom[13:19], bottom[19]); err != nil {
		return nil, err
	}
	if err := verifyCheckDigit("expiry date", bottom[21:27], bottom[27]); err != nil {
		return nil, err
	}
	// The optional-data check digit may be filler when the field is unused.
	if bottom[42] != '<' {
		if err := verifyCheckDigit("optional data", bottom[28:42], bottom[42]); err != nil {
			return nil, err
		}
	}
	if err := verifyCheckDigit("composite", bottom[0:10]+bottom[13:20]+bottom[21:43], bottom[43]); err != nil {
		return nil, err
	}

	r := &Record{
		Format:         TD3,
		DocumentType:   trimFiller(top[0:2]),
		Issuer:         trimFiller(top[2:5]),
		DocumentNumber: trimFiller(bottom[0:9]),
		Nationality:    trimFiller(bottom[10:13]),
		BirthDate:      bottom[13:19],
		Sex:            bottom[20:21],
		ExpiryDate:     bottom[21:27],
		OptionalData1:  trimFiller(bottom[28:42]),
	}
	r.setName(top[5:44])
	return r, nil
}

func parseTD1(top, middle, bottom string) (*Record, error) {
	number, readCheck, optional1 := documentNumber(top[5:14], top[14], top[15:30])
	if err := verifyCheckDigit("document number", number.checkInput, readCheck); err != nil {
		return nil, err
	}
	if err := verifyCheckDigit("birth date", middle[0:6], middle[6]); err != nil {
		return nil, err
	}
	if err := verifyCheckDigit("expiry date", middle[8:14], middle[14]); err != nil {
		return nil, err
	}
	// The composite always covers the raw columns, extended number or not.
	composite := top[5:30] + middle[0:7] + middle[8:15] + middle[18:29]
	if err := verifyCheckDigit("composite", composite, middle[29]); err != nil {
		return nil, err
	}

	optional2 := trimFiller(middle[18:29])
	r := &Record{
		Format:         TD1,
		DocumentType:   trimFiller(top[0:2]),
		Issuer:         trimFiller(top[2:5]),
		DocumentNumber: number.value,
		Nationality:    trimFiller(middle[15:18]),
		BirthDate:      middle[0:6],
		Sex:            middle[7:8],
		ExpiryDate:     middle[8:14],
		OptionalData1:  optional1,
		OptionalData2:  &optional2,
	}
	r.setName(bottom)
	return r, nil
}

func parseTD2(top, bottom string) (*Record, error) {
	number, readCheck, optional1 := documentNumber(bottom[0:9], bottom[9], bottom[28:35])
	if err := verifyCheckDigit("document number", number.checkInput, readCheck); err != nil {
		return nil, err
	}
	if err := verifyCheckDigit("birth date", bottom[13:19], bottom[19]); err != nil {
		return nil, err
	}
	if err := verifyCheckDigit("expiry date", bottom[21:27], bottom[27]); err != nil {
		return nil, err
	}
	if err := verifyCheckDigit("composite", bottom[0:10]+bottom[13:20]+bottom[21:35], bottom[35]); err != nil {
		return nil, err
	}

	r := &Record{
		Format:         TD2,
		DocumentType:   trimFiller(top[0:2]),
		Issuer:         trimFiller(top[2:5]),
		DocumentNumber: number.value,
		Nationality:    trimFiller(bottom[10:13]),
		BirthDate:      bottom[13:19],
		Sex:            bottom[20:21],
		ExpiryDate:     bottom[21:27],
		OptionalData1:  optional1,
	}
	r.setName(top[5:36])
	return r, nil
}

// =========================================================================
// Shared field logic
// =========================================================================

type numberField struct {
	value      string // reconstructed document number, filler trimmed
	checkInput string // exact characters the check digit protects
}

// documentNumber resolves the document-number field of TD1/TD2 layouts.
//
// In the regular case the 9-character field holds the whole number and
// checkColumn its check digit. When checkColumn is filler the number is
// overlong: it continues at the start of the optional-data region up to the
// next filler (or, absent one, to the penultimate column), and the character
// just before that boundary is the true check digit. Whatever follows the
// terminating filler remains optional data.
func documentNumber(field string, checkColumn byte, region string) (numberField, byte, string) {
	if checkColumn != '<' {
		return numberField{
			value:      trimFiller(field),
			checkInput: field,
		}, checkColumn, trimFiller(region)
	}

	idx := strings.IndexByte(region, '<')
	switch {
	case idx == -1:
		// No terminating filler: last column is the check digit.
		number := field + region[:len(region)-1]
		return numberField{value: number, checkInput: number}, region[len(region)-1], ""
	case idx == 0:
		// Nothing before the filler to act as a check digit; the filler
		// itself is reported and can never match a computed digit.
		return numberField{value: field, checkInput: field}, '<', trimFiller(region[1:])
	default:
		number := field + region[:idx-1]
		return numberField{value: number, checkInput: number}, region[idx-1], trimFiller(region[idx+1:])
	}
}

// setName splits the name field into primary and secondary identifiers.
// The field is right-trimmed first; a name that filled its column width
// before trimming may have been truncated by the printer.
func (r *Record) setName(field string) {
	r.NameMightBeTruncated = field[len(field)-1] != '<'

	name := trimFiller(field)
	if primary, secondary, found := strings.Cut(name, "<<"); found {
		r.PrimaryIdentifier = primary
		r.SecondaryIdentifier = &secondary
	} else {
		r.PrimaryIdentifier = name
	}
}

func verifyCheckDigit(field, input string, read byte) error {
	computed, err := CheckDigit(input)
	if err != nil {
		return err
	}
	if read != '0'+byte(computed) {
		return &CheckDigitError{Field: field, Read: read, Computed: computed}
	}
	return nil
}

func trimFiller(s string) string {
	return strings.TrimRight(s, "<")
}
