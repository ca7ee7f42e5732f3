package iso7816

import "fmt"

// ISO 7816-3 ENCODING CASES:
// The case of a command describes its directionality and length encoding.
// It is fully determined by the presence of Data (Nc > 0), the presence of an
// expected response length (Ne > 0), and whether either exceeds the short
// limits.
//
// - Case 1: neither data nor response.
// - Case 2: response only.
// - Case 3: data only.
// - Case 4: both.
//
// Secure messaging needs the directionality, not the raw fields: a wrapped
// command encrypts its data field if and only if it sends one, and appends an
// expected-length object if and only if it receives one. The predicates below
// exist so that callers never re-derive this from Nc/Ne.

// Case identifies the ISO 7816-3 encoding case of a command.
type Case int

const (
	Case1 Case = iota + 1
	Case2Short
	Case2Extended
	Case3Short
	Case3Extended
	Case4Short
	Case4Extended
)

func (c Case) String() string {
	switch c {
	case Case1:
		return "Case 1"
	case Case2Short:
		return "Case 2 Short"
	case Case2Extended:
		return "Case 2 Extended"
	case Case3Short:
		return "Case 3 Short"
	case Case3Extended:
		return "Case 3 Extended"
	case Case4Short:
		return "Case 4 Short"
	case Case4Extended:
		return "Case 4 Extended"
	default:
		return fmt.Sprintf("Case(%d)", int(c))
	}
}

// IsSendingData reports whether the command carries a data field.
func (c Case) IsSendingData() bool {
	switch c {
	case Case3Short, Case3Extended, Case4Short, Case4Extended:
		return true
	}
	return false
}

// IsReceivingData reports whether the command expects response data.
func (c Case) IsReceivingData() bool {
	switch c {
	case Case2Short, Case2Extended, Case4Short, Case4Extended:
		return true
	}
	return false
}

// IsExtended reports whether the command uses extended length fields.
func (c Case) IsExtended() bool {
	switch c {
	case Case2Extended, Case3Extended, Case4Extended:
		return true
	}
	return false
}

// Case derives the encoding case from the command's data and expected length,
// mirroring the mode selection performed by Bytes().
func (c *CommandAPDU) Case() Case {
	nc := len(c.Data)
	ne := c.Ne
	extended := nc > MaxShortLc || ne > MaxShortLe

	switch {
	case nc == 0 && ne == 0:
		return Case1
	case nc == 0:
		if extended {
			return Case2Extended
		}
		return Case2Short
	case ne == 0:
		if extended {
			return Case3Extended
		}
		return Case3Short
	default:
		if extended {
			return Case4Extended
		}
		return Case4Short
	}
}
