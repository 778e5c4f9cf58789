// Package row converts between one line of the status table and a typed Row.
//
// A tagged line looks like
//
//	| ✅ | Host1 | Ubuntu 24.04 | apt | 5 | 0 | 2029/04/30 (1200 日後) | <!-- update-softwares#host1#apt -->
//
// The visible cells are for humans; the trailing comment is the address.
// The EOL cell is optional, so a tagged line carries six or seven cells.
package row

import (
	"fmt"
	"regexp"
	"strings"
)

// TagPrefix is the marker embedded in every address comment.
const TagPrefix = "update-softwares"

const (
	cellsBase    = 6
	cellsWithEOL = 7
)

var tagRe = regexp.MustCompile(`^(.*) <!-- ` + TagPrefix + `#([^#]+)#(.+?) -->(.*)$`)

// Address uniquely identifies a row inside a document.
type Address struct {
	Machine        string
	PackageManager string
}

func (a Address) String() string { return a.Machine + "#" + a.PackageManager }

// Tag renders the address comment appended to the visible cells.
func (a Address) Tag() string {
	return fmt.Sprintf("<!-- %s#%s#%s -->", TagPrefix, a.Machine, a.PackageManager)
}

// Row is one (machine, package manager) entry of the status table.
type Row struct {
	Address Address

	Glyph       string
	Status      Status
	DisplayName string
	OSLabel     string
	PMLabel     string
	Upgraded    string
	Failed      string
	EOL         string
	HasEOL      bool

	// Raw is the exact text of the visible cells. It is what Encode writes,
	// so an untouched row re-renders byte for byte.
	Raw string

	// trailer is whatever followed the address comment on the line.
	trailer string
}

// New builds a row from its fields and computes Raw.
func New(addr Address, status Status, displayName, osLabel, pmLabel, upgraded, failed string) Row {
	glyph, _ := status.Glyph()
	r := Row{
		Address:     addr,
		Glyph:       glyph,
		Status:      StatusFromGlyph(glyph),
		DisplayName: displayName,
		OSLabel:     osLabel,
		PMLabel:     pmLabel,
		Upgraded:    upgraded,
		Failed:      failed,
	}
	r.Raw = r.render()
	return r
}

// WithEOL returns a copy of r carrying the EOL column.
func (r Row) WithEOL(eol string) Row {
	r.EOL = eol
	r.HasEOL = true
	r.Raw = r.render()
	return r
}

// Decode parses a tagged line. Lines without an address comment or with an
// unexpected number of cells are not rows and report ok=false.
func Decode(line string) (Row, bool) {
	m := tagRe.FindStringSubmatch(line)
	if m == nil {
		return Row{}, false
	}
	markdown, machine, pm, trailer := m[1], m[2], m[3], m[4]

	parts := splitCells(markdown)
	var cells []string
	switch len(parts) {
	case cellsBase + 2, cellsWithEOL + 2:
		cells = parts[1 : len(parts)-1]
	default:
		return Row{}, false
	}
	for i := range cells {
		cells[i] = unescapeCell(strings.TrimSpace(cells[i]))
	}

	r := Row{
		Address:     Address{Machine: machine, PackageManager: pm},
		Glyph:       cells[0],
		Status:      StatusFromGlyph(cells[0]),
		DisplayName: cells[1],
		OSLabel:     cells[2],
		PMLabel:     cells[3],
		Upgraded:    cells[4],
		Failed:      cells[5],
		Raw:         markdown,
		trailer:     trailer,
	}
	if len(cells) == cellsWithEOL {
		r.EOL = cells[6]
		r.HasEOL = true
	}
	return r, true
}

// Encode renders r as a full tagged line.
func Encode(r Row) string {
	raw := r.Raw
	if raw == "" {
		raw = r.render()
	}
	return raw + " " + r.Address.Tag() + r.trailer
}

func (r Row) cells() []string {
	cells := []string{r.Glyph, r.DisplayName, r.OSLabel, r.PMLabel, r.Upgraded, r.Failed}
	if r.HasEOL {
		cells = append(cells, r.EOL)
	}
	for i, c := range cells {
		cells[i] = escapeCell(c)
	}
	return cells
}

// splitCells splits a table line on pipes that are not escaped as \|.
func splitCells(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			if i+1 < len(s) && s[i+1] == '|' {
				i++
			}
		case '|':
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

// escapeCell keeps a literal pipe inside its cell, as markdown tables do.
func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func unescapeCell(s string) string {
	return strings.ReplaceAll(s, `\|`, "|")
}

func (r Row) render() string {
	return "| " + strings.Join(r.cells(), " | ") + " |"
}
