package validation

import "testing"

func TestIsValidDescription(t *testing.T) {
	tests := []struct {
		name        string
		description string
		required    bool
		valid       bool
	}{
		{
			name:        "optional empty",
			description: "",
			required:    false,
			valid:       true,
		},
		{
			name:        "required empty",
			description: "   ",
			required:    true,
			valid:       false,
		},
		{
			name:        "too short",
			description: "abcd",
			valid:       false,
		},
		{
			name:        "minimum length",
			description: "abcde",
			valid:       true,
		},
		{
			name:        "cyrillic counted by runes",
			description: "пополнение",
			required:    true,
			valid:       true,
		},
		{
			name:        "too long",
			description: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
			valid:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidDescription(tt.description, tt.required)
			if got != tt.valid {
				t.Fatalf("IsValidDescription(%q, %v) = %v, want %v", tt.description, tt.required, got, tt.valid)
			}
		})
	}
}

func TestIsValidReference(t *testing.T) {
	tests := []struct {
		ref   string
		valid bool
	}{
		{"AB12CD34EF56", true},
		{"ab12cd34ef56", false},
		{"AB12CD34EF5", false},
		{"AB12CD34EF5-", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsValidReference(tt.ref); got != tt.valid {
			t.Fatalf("IsValidReference(%q) = %v, want %v", tt.ref, got, tt.valid)
		}
	}
}

func TestIsValidQuantity(t *testing.T) {
	if !IsValidQuantity(1, 1, 3) || !IsValidQuantity(3, 1, 3) {
		t.Fatalf("bounds must be inclusive")
	}
	if IsValidQuantity(0, 1, 3) || IsValidQuantity(4, 1, 3) {
		t.Fatalf("out of range quantity accepted")
	}
}
