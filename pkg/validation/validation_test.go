package validation

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func TestLineValidator_ValidateLine(t *testing.T) {
	validator := NewLineValidator(64, 0)
	defer validator.Close()

	tests := []struct {
		name        string
		data        []byte
		wantErr     bool
		errContains string
	}{
		{"valid command", []byte(`{"type":"toggle_sleep"}`), false, ""},
		{"too large line", []byte(`{"type":"` + strings.Repeat("x", 80) + `"}`), true, "too large"},
		{"invalid JSON", []byte(`{"type": toggle`), true, "invalid JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateLine(tt.data, "peer")
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateLine() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("expected error to wrap ErrInvalid, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("ValidateLine() error = %v, should contain %q", err, tt.errContains)
			}
		})
	}
}

func TestLineValidator_RateLimitsPerPeer(t *testing.T) {
	validator := NewLineValidator(1024, 2)
	defer validator.Close()

	line := []byte(`{"type":"toggle_sleep"}`)
	for i := 0; i < 2; i++ {
		if err := validator.ValidateLine(line, "a"); err != nil {
			t.Fatalf("line %d should pass: %v", i, err)
		}
	}
	if err := validator.ValidateLine(line, "a"); err == nil {
		t.Error("third line from the same peer should be rate limited")
	}
	if err := validator.ValidateLine(line, "b"); err != nil {
		t.Errorf("other peer should not be limited: %v", err)
	}
}

func TestFieldChecks(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"finite", Finite("x", 1.5), false},
		{"nan", Finite("x", math.NaN()), true},
		{"inf", Finite("x", math.Inf(1)), true},
		{"non-negative zero", NonNegative("radius_m", 0), false},
		{"negative", NonNegative("radius_m", -1), true},
		{"negative nan", NonNegative("radius_m", math.NaN()), true},
		{"positive int", PositiveInt("width", 3), false},
		{"zero int", PositiveInt("width", 0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if (tt.err != nil) != tt.wantErr {
				t.Errorf("error = %v, wantErr %v", tt.err, tt.wantErr)
			}
		})
	}

	if err := Finite("planet_radius_m", math.NaN()); !strings.Contains(err.Error(), "planet_radius_m") {
		t.Errorf("expected error to name the field, got %v", err)
	}
}

func TestClampTimeScale(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{10, 10},
		{-5, 0},
		{1e9, MaxTimeScale},
		{math.NaN(), DefaultTimeScale},
		{math.Inf(-1), 0},
		{math.Inf(1), MaxTimeScale},
	}
	for _, tt := range tests {
		if got := ClampTimeScale(tt.in); got != tt.want {
			t.Errorf("ClampTimeScale(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeLabel(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain", "Reactor A", "Reactor A"},
		{"trimmed", "  Pump  ", "Pump"},
		{"escape sequence", "Pump\x1b[2J", "Pump[2J"},
		{"invalid utf8", "a\xffb", "a?b"},
		{"truncated", strings.Repeat("x", 100), strings.Repeat("x", MaxLabelLen)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeLabel(tt.in); got != tt.want {
				t.Errorf("SanitizeLabel(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(5, time.Minute)
	defer rl.Close()

	for i := 0; i < 5; i++ {
		if !rl.Allow("decode") {
			t.Errorf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("decode") {
		t.Error("6th request should be denied")
	}
	if !rl.Allow("oversized") {
		t.Error("different key should be allowed")
	}
}

func TestRateLimiter_TokenRefill(t *testing.T) {
	rl := NewRateLimiter(2, 100*time.Millisecond)
	defer rl.Close()

	rl.Allow("k")
	rl.Allow("k")
	if rl.Allow("k") {
		t.Error("request should be denied after consuming all tokens")
	}

	time.Sleep(150 * time.Millisecond)

	if !rl.Allow("k") {
		t.Error("request should be allowed after token refill")
	}
}

func TestRateLimiter_CloseIdempotent(t *testing.T) {
	rl := NewRateLimiter(1, time.Second)
	rl.Close()
	rl.Close()
}
