package row

import (
	"errors"
	"fmt"
	"strings"
)

// Mutation lists every field a worker may change on its row.
type Mutation struct {
	Status   Status
	Upgraded Count
	Failed   Count

	// EOL replaces the end-of-life cell when non-nil. A row without the
	// column gains it.
	EOL *string
	// EOLCritical renders the EOL text with markdown emphasis.
	EOLCritical bool
}

// ErrInvalidCell is returned for cell text that cannot live on one table line.
var ErrInvalidCell = errors.New("invalid cell")

// Validate checks the mutation without touching any row.
func (m Mutation) Validate() error {
	if err := m.Status.Validate(); err != nil {
		return err
	}
	if m.EOL != nil && strings.ContainsAny(*m.EOL, "\r\n") {
		return fmt.Errorf("%w: eol %q contains a line break", ErrInvalidCell, *m.EOL)
	}
	return nil
}

// Apply mutates r in place and recomputes Raw.
func (r *Row) Apply(m Mutation) error {
	if err := m.Validate(); err != nil {
		return err
	}
	glyph, _ := m.Status.Glyph()
	r.Glyph = glyph
	r.Status = m.Status
	r.Upgraded = m.Upgraded.String()
	r.Failed = m.Failed.String()
	if m.EOL != nil {
		eol := strings.TrimSpace(*m.EOL)
		if m.EOLCritical {
			eol = Emphasize(eol)
		}
		r.EOL = eol
		r.HasEOL = true
	}
	r.Raw = r.render()
	return nil
}

// Emphasize wraps s in markdown bold unless it already is.
func Emphasize(s string) string {
	if s == "" || (strings.HasPrefix(s, "**") && strings.HasSuffix(s, "**") && len(s) >= 4) {
		return s
	}
	return "**" + s + "**"
}
