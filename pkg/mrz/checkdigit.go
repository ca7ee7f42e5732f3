package mrz

// CHECK DIGIT ALGORITHM (ICAO 9303 Part 3):
//
// Every numeric check digit in the MRZ is computed the same way:
//
//  1. Map each character to a value: '<' is 0, '0'-'9' map to themselves,
//     'A'-'Z' map to 10-35.
//  2. Multiply the values by the repeating weights 7, 3, 1.
//  3. The check digit is the sum modulo 10.
//
// The same algorithm feeds Basic Access Control key derivation, which is why
// it is exported rather than kept private to the parser.

var checkWeights = [3]int{7, 3, 1}

// charValues maps MRZ characters to their check-digit values. Entries of -1
// mark characters outside the MRZ alphabet.
var charValues [256]int8

func init() {
	for i := range charValues {
		charValues[i] = -1
	}
	charValues['<'] = 0
	for c := byte('0'); c <= '9'; c++ {
		charValues[c] = int8(c - '0')
	}
	for c := byte('A'); c <= 'Z'; c++ {
		charValues[c] = int8(c-'A') + 10
	}
}

// CheckDigit computes the ICAO 9303 check digit over s.
// Characters outside the MRZ alphabet yield a CharacterError.
func CheckDigit(s string) (int, error) {
	sum := 0
	for i := 0; i < len(s); i++ {
		v := charValues[s[i]]
		if v < 0 {
			return 0, &CharacterError{Char: s[i]}
		}
		sum += int(v) * checkWeights[i%3]
	}
	return sum % 10, nil
}
