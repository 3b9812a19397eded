package exif

import "testing"

func TestParseRating(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{"5", 5},
		{"0", 0},
		{"5.0", 5},
		{"3.7", 3},
		{"garbage", DefaultRating},
		{"", DefaultRating},
	}

	for _, tt := range tests {
		if got := parseRating(tt.input); got != tt.expected {
			t.Errorf("parseRating(%q) = %d, expected %d", tt.input, got, tt.expected)
		}
	}
}

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Red", "Red"},
		{"  Red  ", "Red"},
		{"To Print", "To Print"},
		{"a/b", "a-b"},
		{`a\b`, "a-b"},
		{"", DefaultLabel},
		{"   ", DefaultLabel},
		// decomposed "é" becomes the single NFC code point
		{"Café", "Café"},
	}

	for _, tt := range tests {
		if got := NormalizeLabel(tt.input); got != tt.expected {
			t.Errorf("NormalizeLabel(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}
