// Package document splits an issue body into lines, decodes the tagged ones
// into rows, and rebuilds the body after a mutation. Lines that are not
// rows are carried through untouched.
package document

import (
	"strings"

	"github.com/loykin/swupdate/internal/row"
)

// Line is one line of the original body. Tagged is set only for the first
// line carrying a given address.
type Line struct {
	Text    string
	Tagged  bool
	Address row.Address
}

// Document is a parsed issue body.
type Document struct {
	Lines []Line
	Rows  map[row.Address]*row.Row
	// Order lists addresses in the order they first appear.
	Order []row.Address
}

// Parse never fails: anything that does not decode stays opaque.
func Parse(text string) *Document {
	raw := strings.Split(text, "\n")
	d := &Document{
		Lines: make([]Line, 0, len(raw)),
		Rows:  make(map[row.Address]*row.Row),
	}
	for _, l := range raw {
		line := Line{Text: l}
		if r, ok := row.Decode(l); ok {
			// first occurrence wins, duplicates stay opaque
			if _, dup := d.Rows[r.Address]; !dup {
				rr := r
				d.Rows[r.Address] = &rr
				d.Order = append(d.Order, r.Address)
				line.Tagged = true
				line.Address = r.Address
			}
		}
		d.Lines = append(d.Lines, line)
	}
	return d
}

// Row returns the row at addr.
func (d *Document) Row(addr row.Address) (*row.Row, bool) {
	r, ok := d.Rows[addr]
	return r, ok
}

// Build renders the document, substituting every tagged line with the
// current encoding of its row.
func (d *Document) Build() string {
	out := make([]string, len(d.Lines))
	for i, l := range d.Lines {
		out[i] = l.Text
		if !l.Tagged {
			continue
		}
		// a row that vanished from the map keeps its original text
		if r, ok := d.Rows[l.Address]; ok && r != nil {
			out[i] = row.Encode(*r)
		}
	}
	return strings.Join(out, "\n")
}

// PackageManagers returns the package managers tagged for machine, in
// document order.
func (d *Document) PackageManagers(machine string) []string {
	var out []string
	for _, a := range d.Order {
		if a.Machine == machine {
			out = append(out, a.PackageManager)
		}
	}
	return out
}

// DisplayName returns the visible machine cell of the first row tagged for
// machine.
func (d *Document) DisplayName(machine string) (string, bool) {
	for _, a := range d.Order {
		if a.Machine == machine {
			return d.Rows[a].DisplayName, true
		}
	}
	return "", false
}
