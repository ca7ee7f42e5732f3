package mrz

import (
	"errors"
	"fmt"
)

// ErrUnknownFormat is returned when the line count and line width do not match
// any of the TD1, TD2 or TD3 layouts.
var ErrUnknownFormat = errors.New("mrz: line shape matches no known format")

// CharacterError reports a character outside the MRZ check-digit alphabet
// ('<', '0'-'9', 'A'-'Z').
type CharacterError struct {
	Char byte
}

func (e *CharacterError) Error() string {
	return fmt.Sprintf("mrz: character %q outside the MRZ alphabet", e.Char)
}

// CheckDigitError reports a mismatch between a check digit read from the MRZ
// and the digit computed from the protected field.
type CheckDigitError struct {
	Field    string // which check failed: "document number", "birth date", ...
	Read     byte   // character found in the check-digit column
	Computed int    // digit computed from the field content
}

func (e *CheckDigitError) Error() string {
	return fmt.Sprintf("mrz: %s check digit mismatch: read %q, computed %d", e.Field, e.Read, e.Computed)
}
