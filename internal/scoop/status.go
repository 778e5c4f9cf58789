package scoop

import (
	"regexp"
	"strings"

	"github.com/loykin/swupdate/internal/report"
)

type App = report.ScoopApp

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*m`)

var columns = []string{"Name", "Installed Version", "Latest Version", "Missing Dependencies", "Info"}

// ParseStatus reads the fixed-width table printed by `scoop status`. Column
// offsets come from the header line; output without a header yields nil.
func ParseStatus(out string) []App {
	clean := ansiRe.ReplaceAllString(out, "")
	lines := strings.Split(strings.TrimSpace(clean), "\n")

	header := -1
	for i, l := range lines {
		if strings.Contains(l, "Name") && strings.Contains(l, "Installed Version") {
			header = i
			break
		}
	}
	if header < 0 {
		return nil
	}
	h := strings.TrimRight(lines[header], "\r")
	pos := make([]int, len(columns))
	for i, c := range columns {
		pos[i] = strings.Index(h, c)
	}

	var apps []App
	// skip the dashes under the header
	for _, l := range lines[min(header+2, len(lines)):] {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) == "" {
			continue
		}
		v := make([]string, len(columns))
		for i := range columns {
			v[i] = field(l, pos, i)
		}
		apps = append(apps, App{Name: v[0], Installed: v[1], Latest: v[2], Missing: v[3], Info: v[4]})
	}
	return apps
}

// field cuts column i out of line. The column ends where the next present
// column starts.
func field(line string, pos []int, i int) string {
	start := pos[i]
	if start < 0 || start >= len(line) {
		return ""
	}
	end := len(line)
	for j := i + 1; j < len(pos); j++ {
		if pos[j] >= 0 {
			end = min(pos[j], len(line))
			break
		}
	}
	if end < start {
		return ""
	}
	return strings.TrimSpace(line[start:end])
}
