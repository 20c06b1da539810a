package database

import "testing"

func TestNormalizeStudentName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Jan Novák", "jan novak"},
		{"jan-novak", "jan novak"},
		{"Jiří", "jiri"},
		{"  Marie Čermáková ", "marie cermakova"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := NormalizeStudentName(tt.input); got != tt.expected {
			t.Errorf("NormalizeStudentName(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
