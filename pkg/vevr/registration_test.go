package vevr

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/gregLibert/card-documents/pkg/tlv"
)

func registrationFixture() []byte {
	return tlv.Hex(
		"71 10", // Part A
		"81 06 414231323343", // registration number "AB123C"
		"8A 06 57564E303031",  // VIN "WVN001"
		"72 0C", // Part B
		"83 0A 4D2E20544553542D4FE9", // holder "M. TEST-Oé" (1252)
		"73 06", // Part C
		"96 01 55", // power
		"99 01 05", // seats
	)
}

func TestParseRegistration(t *testing.T) {
	reg, err := ParseRegistration(registrationFixture())
	if err != nil {
		t.Fatalf("ParseRegistration failed: %v", err)
	}

	if diff := cmp.Diff([]byte("AB123C"), reg.A.RegistrationNumber); diff != "" {
		t.Errorf("RegistrationNumber mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]byte("WVN001"), reg.A.VehicleIdentifier); diff != "" {
		t.Errorf("VehicleIdentifier mismatch (-want +got):\n%s", diff)
	}
	if len(reg.C.Power) != 1 || reg.C.Power[0] != 0x55 {
		t.Errorf("Power = %X, want 55", reg.C.Power)
	}
}

func TestParseRegistration_Empty(t *testing.T) {
	if _, err := ParseRegistration(nil); err == nil {
		t.Error("empty registration accepted")
	}
}

func TestDecodeText(t *testing.T) {
	reg, err := ParseRegistration(registrationFixture())
	if err != nil {
		t.Fatalf("ParseRegistration failed: %v", err)
	}

	// 0xE9 is 'é' in Windows-1252.
	if got := DecodeText(reg.B.HolderName); got != "M. TEST-Oé" {
		t.Errorf("DecodeText = %q, want %q", got, "M. TEST-Oé")
	}
}

func TestDescribe(t *testing.T) {
	reg, err := ParseRegistration(registrationFixture())
	if err != nil {
		t.Fatalf("ParseRegistration failed: %v", err)
	}

	out := reg.Describe()
	for _, want := range []string{"VEHICLE REGISTRATION", "RegistrationNumber", "AB123C"} {
		if !strings.Contains(out, want) {
			t.Errorf("Describe() missing %q:\n%s", want, out)
		}
	}
}
