package emrtd

import (
	"errors"
	"fmt"

	"github.com/gregLibert/card-documents/pkg/iso7816"
)

// ErrNonceMismatch is returned when the card's authentication response does
// not echo the terminal's random challenge.
var ErrNonceMismatch = errors.New("emrtd: card did not echo terminal nonce")

// CommunicationError reports a non-success status word received during a
// protocol step.
type CommunicationError struct {
	Process string // protocol step that failed
	SW      iso7816.StatusWord
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("emrtd: %s failed: %s", e.Process, e.SW.Verbose())
}

// MACError reports a failed integrity check. A channel that produced one is
// poisoned and must not be reused.
type MACError struct {
	Process string
}

func (e *MACError) Error() string {
	return fmt.Sprintf("emrtd: %s: MAC verification failed", e.Process)
}

// FormatError reports malformed cryptographic framing in a secure-messaging
// response: a wrong padding-indicator byte, misaligned ciphertext, or invalid
// trailing padding. Like MACError it poisons the channel.
type FormatError struct {
	Process string
	Detail  string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("emrtd: %s: %s", e.Process, e.Detail)
}
