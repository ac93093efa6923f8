package input

import "testing"

func TestKeyPress_Is(t *testing.T) {
	tests := []struct {
		name     string
		press    KeyPress
		r        rune
		expected bool
	}{
		{"same rune", Rune('e'), 'e', true},
		{"upper case press", Rune('E'), 'e', true},
		{"upper case query", Rune('w'), 'W', true},
		{"different rune", Rune('a'), 'd', false},
		{"named key", Press(KeySpace), ' ', false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.press.Is(tt.r); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}
