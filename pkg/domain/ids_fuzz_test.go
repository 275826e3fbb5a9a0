//go:build go1.18

package domain

import (
	"testing"
)

// FuzzParsePolicyID tests that parsing never panics on arbitrary input
// and always returns either a valid ID or an error.
func FuzzParsePolicyID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add("'; DROP TABLE policies;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParsePolicyID(input)
		if err != nil {
			return
		}
		if id.IsNil() {
			t.Error("parsed a nil policy ID without error")
		}
		roundTrip, err := ParsePolicyID(id.String())
		if err != nil {
			t.Errorf("valid ID failed round-trip: %v", err)
		}
		if roundTrip != id {
			t.Error("round-trip changed ID value")
		}
	})
}

// FuzzParseAmount checks that accepted amounts never contain separators the
// parser should have rejected.
func FuzzParseAmount(f *testing.F) {
	f.Add("1,000,000")
	f.Add("12.5")
	f.Add("")
	f.Add("-0")

	f.Fuzz(func(t *testing.T, input string) {
		a, err := ParseAmount(input)
		if err != nil {
			return
		}
		again, err := ParseAmount(a.String())
		if err != nil || again != a {
			t.Errorf("amount %d did not round-trip", a)
		}
	})
}
