package apt

import (
	"regexp"
	"strings"

	"github.com/loykin/swupdate/internal/report"
)

type Package = report.Package

// Plan is the change set reported by a dist-upgrade simulation.
type Plan struct {
	Upgrade []Package
	Install []Package
	Remove  []Package
	// Unparsed counts Inst, Remv and summary lines that did not match.
	Unparsed int
}

func (p Plan) Empty() bool {
	return len(p.Upgrade) == 0 && len(p.Install) == 0 && len(p.Remove) == 0
}

var (
	instRe    = regexp.MustCompile(`^Inst\s+(\S+)(?:\s+\[([^\]]+)\])?\s+\(([^\s)]+)`)
	remvRe    = regexp.MustCompile(`^Remv\s+(\S+)(?:\s+\[([^\]]+)\])?`)
	summaryRe = regexp.MustCompile(`^\s*(\S+)\s+\(([^\s=>)]+)\s+=>\s+([^\s=>)]+)\)`)
)

const summaryHeader = "The following packages will be upgraded:"

// installed reports whether v names a real installed version.
func installed(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "not installed", "not-installed", "none", "unknown":
		return false
	}
	return true
}

// ParseSimulation reads `apt-get -s -V dist-upgrade` output. Inst lines with
// an installed version are upgrades, the rest installs. When no Inst line is
// present the verbose "will be upgraded" summary is used instead.
func ParseSimulation(out string) Plan {
	var p Plan
	var summary []Package
	inSummary := false

	for _, raw := range strings.Split(out, "\n") {
		line := strings.TrimSpace(raw)
		// summary entries are indented; anything else closes the block
		if inSummary && line != "" && !strings.HasPrefix(raw, " ") {
			inSummary = false
		}
		switch {
		case strings.HasPrefix(line, "Inst "):
			m := instRe.FindStringSubmatch(line)
			if m == nil {
				p.Unparsed++
				continue
			}
			cur := m[2]
			if cur == "" {
				cur = "unknown"
			}
			pkg := Package{Name: m[1], Installed: cur, Candidate: m[3]}
			if installed(cur) {
				p.Upgrade = append(p.Upgrade, pkg)
			} else {
				p.Install = append(p.Install, pkg)
			}
		case strings.HasPrefix(line, "Remv "):
			m := remvRe.FindStringSubmatch(line)
			if m == nil {
				p.Unparsed++
				continue
			}
			cur := m[2]
			if cur == "" {
				cur = "unknown"
			}
			p.Remove = append(p.Remove, Package{Name: m[1], Installed: cur})
		case strings.HasPrefix(line, summaryHeader):
			inSummary = true
		case inSummary:
			if line == "" {
				inSummary = false
				continue
			}
			m := summaryRe.FindStringSubmatch(line)
			if m == nil {
				p.Unparsed++
				continue
			}
			summary = append(summary, Package{Name: m[1], Installed: m[2], Candidate: m[3]})
		}
	}
	if len(p.Upgrade) == 0 && len(p.Install) == 0 && len(summary) > 0 {
		p.Upgrade = summary
	}
	return p
}
