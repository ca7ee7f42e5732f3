package ber

import (
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func berHex(parts ...string) []byte {
	clean := strings.ReplaceAll(strings.Join(parts, ""), " ", "")
	data, err := hex.DecodeString(clean)
	if err != nil {
		panic("invalid hex in test data: " + clean)
	}
	return data
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name     string
		block    Block
		expected []byte
	}{
		{
			name:     "Context-specific primitive tag 7",
			block:    NewPrimitive(ContextSpecific, 7, []byte{0x01, 0xAA, 0xBB}),
			expected: berHex("87 03 01AABB"),
		},
		{
			name:     "Universal primitive, empty value",
			block:    NewPrimitive(Universal, 5, nil),
			expected: berHex("05 00"),
		},
		{
			name: "Application constructed with children",
			block: NewConstructed(Application, 15,
				NewPrimitive(ContextSpecific, 4, berHex("A000000247")),
				NewPrimitive(ContextSpecific, 0x0E, berHex("1122")),
			),
			expected: berHex("6F 0B", "84 05 A000000247", "8E 02 1122"),
		},
		{
			name:     "Long-form tag, two bytes",
			block:    NewPrimitive(Private, 0x1F, []byte{0x01}),
			expected: berHex("DF 1F 01 01"),
		},
		{
			name:     "Long-form tag, multi byte",
			block:    NewPrimitive(ContextSpecific, 0x2A5B, []byte{0x00}),
			expected: berHex("9F D4 5B 01 00"),
		},
		{
			name:     "Long-form length",
			block:    NewPrimitive(Universal, 4, make([]byte, 0x80)),
			expected: append(berHex("04 81 80"), make([]byte, 0x80)...),
		},
		{
			name:     "Two-byte length",
			block:    NewPrimitive(Universal, 4, make([]byte, 0x1234)),
			expected: append(berHex("04 82 1234"), make([]byte, 0x1234)...),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.block.Encode()
			if diff := cmp.Diff(tt.expected, got); diff != "" {
				t.Errorf("Encode() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRoundtrip(t *testing.T) {
	blocks := []Block{
		NewPrimitive(Universal, 2, []byte{0x42}),
		NewPrimitive(ContextSpecific, 7, berHex("01AABB")),
		NewPrimitive(Private, 30, nil),
		NewPrimitive(Application, 31, []byte{0xFF}),
		NewPrimitive(ContextSpecific, 1<<40, []byte{0x01, 0x02}),
		NewConstructed(Application, 15,
			NewPrimitive(ContextSpecific, 4, berHex("A0000002471001")),
			NewConstructed(ContextSpecific, 5,
				NewPrimitive(Universal, 12, []byte("hello")),
			),
		),
		NewConstructed(Universal, 16), // empty container
	}

	for _, want := range blocks {
		encoded := want.Encode()

		got, err := Decode(&sliceReader{buf: encoded})
		if err != nil {
			t.Fatalf("Decode(%X) failed: %v", encoded, err)
		}
		if diff := cmp.Diff(want, got, cmp.Comparer(bytesEqual)); diff != "" {
			t.Errorf("roundtrip mismatch for %X (-want +got):\n%s", encoded, diff)
		}

		// Canonical: re-encoding the decoded block is byte identical.
		if diff := cmp.Diff(encoded, got.Encode()); diff != "" {
			t.Errorf("re-encode not canonical (-want +got):\n%s", diff)
		}
	}
}

// bytesEqual treats nil and empty slices as equal: the decoder materializes
// empty-but-non-nil values for zero-length content.
func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDecodeAll(t *testing.T) {
	data := berHex(
		"87 03 01AABB",
		"97 01 00",
		"8E 08 0011223344556677",
	)

	blocks, err := DecodeAll(data)
	if err != nil {
		t.Fatalf("DecodeAll failed: %v", err)
	}
	if len(blocks) != 3 {
		t.Fatalf("got %d blocks, want 3", len(blocks))
	}

	tags := []uint64{0x07, 0x17, 0x0E}
	for i, b := range blocks {
		if b.Class != ContextSpecific || b.Constructed || b.Tag != tags[i] {
			t.Errorf("block %d: got (%v, constructed=%v, tag=%#x), want context-specific primitive %#x",
				i, b.Class, b.Constructed, b.Tag, tags[i])
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"Indefinite length", berHex("30 80 05 00 00 00"), ErrIndefiniteLength},
		{"Truncated value", berHex("87 05 0102"), io.ErrUnexpectedEOF},
		{"Truncated header", berHex("87"), io.ErrUnexpectedEOF},
		{"Truncated long tag", berHex("9F"), io.ErrUnexpectedEOF},
		{"Partial child in constructed window", berHex("6F 03 84 05 01"), io.ErrUnexpectedEOF},
		{"Tag overflow", berHex("9F FFFFFFFFFFFFFFFFFFFF 7F 00"), &OverflowError{}},
		{"Length overflow", berHex("04 88 FFFFFFFFFFFFFFFF"), &OverflowError{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(&sliceReader{buf: tt.data})
			if err == nil {
				t.Fatal("expected error, got nil")
			}

			var overflow *OverflowError
			if errors.As(tt.want, &overflow) {
				if !errors.As(err, &overflow) {
					t.Errorf("got %v, want OverflowError", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDecodeAtEOF(t *testing.T) {
	if _, err := Decode(&sliceReader{}); err != io.EOF {
		t.Errorf("empty source: got %v, want io.EOF", err)
	}

	blocks, err := DecodeAll(nil)
	if err != nil || len(blocks) != 0 {
		t.Errorf("DecodeAll(nil) = (%v, %v), want empty and no error", blocks, err)
	}
}

func TestFind(t *testing.T) {
	blocks := []Block{
		NewPrimitive(ContextSpecific, 7, []byte{0x01}),
		NewPrimitive(Application, 7, []byte{0x02}),
		NewConstructed(ContextSpecific, 14),
		NewPrimitive(ContextSpecific, 14, []byte{0x03}),
	}

	got, ok := Find(blocks, ContextSpecific, false, 7)
	if !ok || got.Value[0] != 0x01 {
		t.Errorf("Find(context-specific primitive 7): got %v, ok=%v", got, ok)
	}

	// Same number and class, different form: the constructed block is skipped.
	got, ok = Find(blocks, ContextSpecific, false, 14)
	if !ok || got.Value[0] != 0x03 {
		t.Errorf("Find skipped over constructed form incorrectly: got %v, ok=%v", got, ok)
	}

	if _, ok := Find(blocks, Private, false, 7); ok {
		t.Error("Find matched a class that is not present")
	}
}
