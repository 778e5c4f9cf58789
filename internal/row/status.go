package row

import (
	"errors"
	"fmt"
	"strings"
)

// Status is the update state of a single row.
type Status string

const (
	// StatusPending covers any glyph outside the closed table (including the
	// empty cell of a freshly provisioned row).
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// ErrInvalidStatus is returned for any status a caller may not write.
var ErrInvalidStatus = errors.New("invalid status")

// Glyphs rendered in the visible status cell.
const (
	GlyphRunning = "⏳"
	GlyphSuccess = "✅"
	GlyphFailed  = "🔴"
)

var statusGlyphs = map[Status]string{
	StatusRunning: GlyphRunning,
	StatusSuccess: GlyphSuccess,
	StatusFailed:  GlyphFailed,
}

// Glyph returns the marker for s. Only running, success and failed are
// writable; anything else reports ok=false.
func (s Status) Glyph() (string, bool) {
	g, ok := statusGlyphs[s]
	return g, ok
}

// Validate reports ErrInvalidStatus unless s is one of the writable states.
func (s Status) Validate() error {
	if _, ok := statusGlyphs[s]; !ok {
		return fmt.Errorf("%w: %q (valid values are running, success, failed)", ErrInvalidStatus, string(s))
	}
	return nil
}

func (s Status) String() string { return string(s) }

// ParseStatus converts user input into a writable Status.
func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(v)))
	if err := s.Validate(); err != nil {
		return "", err
	}
	return s, nil
}

// StatusFromGlyph maps a visible marker back to its Status.
func StatusFromGlyph(glyph string) Status {
	for s, g := range statusGlyphs {
		if g == glyph {
			return s
		}
	}
	return StatusPending
}
