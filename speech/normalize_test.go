package speech

import "testing"

// TestNormalizeText verifies entity decoding, whitespace collapsing and
// trimming.
func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "hello world", "hello world"},
		{"space runs", "hello    world\t\tagain", "hello world again"},
		{"newline runs", "one\n\n\ntwo", "one\ntwo"},
		{"entities", "fish &amp; chips", "fish & chips"},
		{"edges trimmed", "  padded  ", "padded"},
		{"mixed", "  a &lt;b&gt;\n\n c  ", "a <b>\nc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeText(tt.in); got != tt.want {
				t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// TestPrepareForSynthesis verifies flattening and Urdu punctuation mapping.
func TestPrepareForSynthesis(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		language string
		want     string
	}{
		{"newlines flattened", "one\ntwo\nthree", "en", "one two three"},
		{"urdu full stop", "یہ ایک جملہ ہے۔", "ur", "یہ ایک جملہ ہے."},
		{"urdu comma", "ایک، دو", "ur", "ایک, دو"},
		{"urdu punctuation untouched for english", "a۔b", "en", "a۔b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PrepareForSynthesis(tt.in, tt.language); got != tt.want {
				t.Errorf("PrepareForSynthesis(%q, %q) = %q, want %q", tt.in, tt.language, got, tt.want)
			}
		})
	}
}

// TestVisibleLength verifies that only letters and digits are counted.
func TestVisibleLength(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"   \n\t", 0},
		{"...!?", 0},
		{"ab", 2},
		{"a b c", 3},
		{"x1!", 2},
		{"اردو", 4},
	}

	for _, tt := range tests {
		if got := VisibleLength(tt.in); got != tt.want {
			t.Errorf("VisibleLength(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
