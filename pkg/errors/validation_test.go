package errors

import (
	"strings"
	"testing"
)

func TestValidateUID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "jei", false},
		{"valid dotted", "mezz.jei", false},
		{"valid with dash", "applied-energistics-2", false},
		{"valid with underscore", "iron_chests", false},

		{"empty", "", true},
		{"too long", strings.Repeat("a", 300), true},
		{"path traversal ..", "foo..bar", true},
		{"slash", "foo/bar", true},
		{"null byte", "foo\x00bar", true},
		{"backslash", "foo\\bar", true},
		{"control char", "foo\x01bar", true},
		{"space", "foo bar", true},
		{"newline", "foo\nbar", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUID(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUID(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeInvalidUID) {
				t.Errorf("ValidateUID(%q) code = %v, want %v", tt.input, GetCode(err), ErrCodeInvalidUID)
			}
		})
	}
}

func TestValidateLocator(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"https", "https://example.com/quickmods/jei.json", false},
		{"http", "http://localhost:8080/a.json", false},
		{"file", "file:///tmp/a.json", false},

		{"empty", "", true},
		{"no scheme", "example.com/a.json", true},
		{"ftp", "ftp://example.com/a.json", true},
		{"no host", "https:///a.json", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLocator(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateLocator(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestIsLocator(t *testing.T) {
	if !IsLocator("https://example.com/a.json") {
		t.Error("IsLocator(url) = false, want true")
	}
	if IsLocator("jei") {
		t.Error("IsLocator(uid) = true, want false")
	}
}
