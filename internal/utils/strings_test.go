package utils

import (
	"strings"
	"testing"
)

func TestSafeTruncate(t *testing.T) {
	tests := []struct {
		name   string
		s      string
		maxLen int
		want   string
	}{
		{"empty string", "", 10, ""},
		{"short string", "hello", 10, "hello"},
		{"exact length", "hello", 5, "hello"},
		{"needs truncation", "hello world", 8, "hello..."},
		{"zero maxLen", "hello", 0, ""},
		{"negative maxLen", "hello", -1, ""},
		{"tiny maxLen keeps one rune", "hello", 2, "h"},
		{"unicode preserved", "héllo wörld", 8, "héllo..."},
		{"multibyte runes", "你好世界你好世界", 6, "你好世..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SafeTruncate(tt.s, tt.maxLen)
			if got != tt.want {
				t.Errorf("SafeTruncate(%q, %d) = %q, want %q", tt.s, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestSanitizeOutput(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "ok", "ok"},
		{"strips ansi color", "\x1b[31mred\x1b[0m", "red"},
		{"keeps newline and tab", "a\n\tb", "a\n\tb"},
		{"drops control chars", "a\x00\x07b", "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeOutput(tt.in); got != tt.want {
				t.Errorf("SanitizeOutput(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeOutputLargeInput(t *testing.T) {
	in := strings.Repeat("\x1b[32mline\x1b[0m\n", 1000)
	want := strings.Repeat("line\n", 1000)
	if got := SanitizeOutput(in); got != want {
		t.Error("SanitizeOutput mangled repeated escape sequences")
	}
}
