// Package validation provides the shape and range checks shared by snapshot
// decoding, command encoding and the replay server.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Limits for the line protocol.
const (
	DefaultMaxLineSize = 4 << 20 // 4 MiB
	MaxCommandSize     = 4 << 10
	MaxCommandsPerMin  = 600
	MaxLabelLen        = 64

	MinTimeScale     = 0.0
	MaxTimeScale     = 10000.0
	DefaultTimeScale = 1.0
)

// ErrInvalid is wrapped by every error this package returns.
var ErrInvalid = errors.New("invalid value")

// LineValidator checks inbound protocol lines from one or more peers.
type LineValidator struct {
	maxSize     int
	rateLimiter *RateLimiter
}

// NewLineValidator creates a validator enforcing maxSize bytes per line and
// perMinute lines per peer. perMinute <= 0 disables rate limiting.
func NewLineValidator(maxSize, perMinute int) *LineValidator {
	v := &LineValidator{maxSize: maxSize}
	if perMinute > 0 {
		v.rateLimiter = NewRateLimiter(perMinute, time.Minute)
	}
	return v
}

// Close releases resources used by the validator
func (v *LineValidator) Close() {
	if v.rateLimiter != nil {
		v.rateLimiter.Close()
	}
}

// ValidateLine checks size, JSON well-formedness and the peer's rate.
func (v *LineValidator) ValidateLine(data []byte, peer string) error {
	if len(data) > v.maxSize {
		return fmt.Errorf("%w: line too large: %d bytes (max %d)", ErrInvalid, len(data), v.maxSize)
	}
	if !json.Valid(data) {
		return fmt.Errorf("%w: invalid JSON format", ErrInvalid)
	}
	if v.rateLimiter != nil && !v.rateLimiter.Allow(peer) {
		return fmt.Errorf("%w: rate limit exceeded for %s", ErrInvalid, peer)
	}
	return nil
}

// Finite rejects NaN and infinities.
func Finite(field string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: %s is not finite", ErrInvalid, field)
	}
	return nil
}

// NonNegative rejects non-finite and negative values.
func NonNegative(field string, value float64) error {
	if err := Finite(field, value); err != nil {
		return err
	}
	if value < 0 {
		return fmt.Errorf("%w: %s is negative: %g", ErrInvalid, field, value)
	}
	return nil
}

// PositiveInt rejects values below one.
func PositiveInt(field string, value int) error {
	if value < 1 {
		return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalid, field, value)
	}
	return nil
}

// ClampTimeScale limits a requested simulation speed to the range the
// simulation accepts. NaN becomes the default real-time speed.
func ClampTimeScale(value float64) float64 {
	if math.IsNaN(value) {
		return DefaultTimeScale
	}
	return math.Max(MinTimeScale, math.Min(MaxTimeScale, value))
}

// SanitizeLabel makes a server-provided string safe to print on a terminal:
// control characters are dropped, invalid UTF-8 is replaced and the result
// is truncated to MaxLabelLen runes.
func SanitizeLabel(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "?")
	}
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	if utf8.RuneCountInString(s) > MaxLabelLen {
		runes := []rune(s)
		s = string(runes[:MaxLabelLen])
	}
	return s
}
