package row

import "strconv"

// Count is an optional non-negative number. The zero value is unknown and
// renders as an empty cell.
type Count struct {
	n     int
	known bool
}

// Unknown returns a Count that renders as an empty cell.
func Unknown() Count { return Count{} }

// Of returns a known Count. Negative values are clamped to zero.
func Of(n int) Count {
	if n < 0 {
		n = 0
	}
	return Count{n: n, known: true}
}

// Value returns the number and whether it is known.
func (c Count) Value() (int, bool) { return c.n, c.known }

func (c Count) String() string {
	if !c.known {
		return ""
	}
	return strconv.Itoa(c.n)
}
