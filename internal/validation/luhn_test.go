package validation

import "testing"

func TestPassesLuhn(t *testing.T) {
	tests := []struct {
		name   string
		number string
		valid  bool
	}{
		{name: "visa test card", number: "4111111111111111", valid: true},
		{name: "13 digit visa", number: "4222222222222", valid: true},
		{name: "19 digit card", number: "6011000990139424009", valid: true},
		{name: "separators are stripped", number: "4111-1111 1111-1111", valid: true},
		{name: "invalid checksum", number: "4111111111111112", valid: false},
		{name: "checksum ok but too short", number: "79927398713", valid: false},
		{name: "letters", number: "4111a11111111111", valid: false},
		{name: "empty string", number: "", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PassesLuhn(tt.number)
			if got != tt.valid {
				t.Fatalf("PassesLuhn(%q) = %v, want %v", tt.number, got, tt.valid)
			}
		})
	}
}
