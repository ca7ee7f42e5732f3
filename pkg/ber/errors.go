package ber

import (
	"errors"
	"fmt"
)

// ErrIndefiniteLength is returned when a length byte of 0x80 announces the
// indefinite form, which this codec does not support.
var ErrIndefiniteLength = errors.New("ber: indefinite length form not supported")

// OverflowError is returned when a decoded tag number or length exceeds the
// range of its destination integer.
type OverflowError struct {
	Field string // "tag number" or "length"
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("ber: %s overflows its representable range", e.Field)
}
