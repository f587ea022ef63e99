package phone

import (
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "already canonical", input: "+15551234567", want: "+15551234567"},
		{name: "spaces and dashes", input: "+1 555-123-4567", want: "+15551234567"},
		{name: "parentheses", input: "+1 (555) 123.4567", want: "+15551234567"},
		{name: "double zero prefix", input: "0049 170 1234567", want: "+491701234567"},
		{name: "leading zeros after prefix", input: "+0049 170 1234567", want: "+491701234567"},
		{name: "no international prefix", input: "5551234567", wantErr: true},
		{name: "letters rejected", input: "+1555CALLNOW", wantErr: true},
		{name: "too short", input: "+12345", wantErr: true},
		{name: "too long", input: "+1234567890123456", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "whitespace only", input: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Normalize(%q) = %q, expected error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize(%q) returned error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	first, err := Normalize("+49 (170) 123-4567")
	if err != nil {
		t.Fatal(err)
	}
	second, err := Normalize(first)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("normalization is not idempotent: %q != %q", first, second)
	}
}
