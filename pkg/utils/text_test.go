package utils

import "testing"

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"shorter than max", "oi", 10, "oi"},
		{"exactly max", "12345", 5, "12345"},
		{"longer than max", "1234567890", 5, "12..."},
		{"tiny max skips ellipsis", "abcdef", 3, "abc"},
		{"multibyte runes", "ação médica hoje", 6, "açã..."},
		{"empty", "", 5, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truncate(tt.in, tt.max); got != tt.want {
				t.Fatalf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}

func TestSingleLine(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"uma linha", "uma linha"},
		{"duas\nlinhas", "duas linhas"},
		{"  espaços \t e\n\nquebras  ", "espaços e quebras"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := SingleLine(tt.in); got != tt.want {
			t.Fatalf("SingleLine(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
