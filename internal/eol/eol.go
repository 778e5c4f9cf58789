// Package eol looks up the end-of-life date of the running operating system
// and renders it for the EOL column.
package eol

import (
	"context"
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/loykin/swupdate/internal/command"
)

// Unknown is rendered when the OS or its EOL date is not in the tables.
const Unknown = "不明"

// CriticalWindow is how close to EOL a date starts being flagged.
const CriticalWindow = 90

var tables = map[string]map[string]time.Time{
	"Windows": {
		"10": day(2025, 10, 14),
		"11": day(2031, 10, 14),
	},
	"Ubuntu": {
		"20.04": day(2025, 4, 30),
		"22.04": day(2027, 4, 30),
		"23.04": day(2024, 1, 25),
		"23.10": day(2024, 7, 31),
		"24.04": day(2029, 4, 30),
		"24.10": day(2025, 7, 31),
	},
	"Debian": {
		"10": day(2024, 6, 30),
		"11": day(2026, 8, 31),
		"12": day(2028, 6, 30),
	},
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

// Info is the rendered EOL cell. Critical asks the row codec to emphasize it.
type Info struct {
	OS       string
	Version  string
	Text     string
	Critical bool
}

// Probe detects the running OS.
type Probe struct {
	GOOS      string
	OSRelease string
	Runner    command.Runner
}

// DefaultProbe inspects the host.
func DefaultProbe() Probe {
	return Probe{GOOS: runtime.GOOS, OSRelease: "/etc/os-release", Runner: command.Exec{}}
}

// Detect returns the OS name and version used as table keys.
func (p Probe) Detect(ctx context.Context) (string, string) {
	if p.GOOS == "windows" {
		if p.Runner == nil {
			return "Windows", "Unknown"
		}
		res, err := p.Runner.Run(ctx, "wmic", "os", "get", "Caption,Version", "/value")
		if err != nil {
			return "Windows", "Unknown"
		}
		return ParseWMIC(res.Stdout)
	}
	b, err := os.ReadFile(p.OSRelease)
	if err != nil {
		return "Linux", "Unknown"
	}
	return ParseOSRelease(string(b))
}

// ParseOSRelease reads NAME and VERSION_ID from os-release content.
func ParseOSRelease(content string) (string, string) {
	kv := map[string]string{}
	for _, line := range strings.Split(content, "\n") {
		k, v, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		kv[k] = strings.Trim(v, `"'`)
	}
	name, version := kv["NAME"], kv["VERSION_ID"]
	switch {
	case strings.Contains(name, "Ubuntu"):
		return "Ubuntu", version
	case strings.Contains(name, "Debian"):
		return "Debian", version
	case name == "":
		return "Linux", "Unknown"
	default:
		return name, version
	}
}

// ParseWMIC maps `wmic os get Caption,Version /value` output to a Windows
// major version. Builds from 22000 on are Windows 11.
func ParseWMIC(out string) (string, string) {
	var caption, version string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if v, ok := strings.CutPrefix(line, "Caption="); ok {
			caption = strings.TrimSpace(v)
		} else if v, ok := strings.CutPrefix(line, "Version="); ok {
			version = strings.TrimSpace(v)
		}
	}
	switch {
	case strings.Contains(caption, "Windows 10"):
		return "Windows", "10"
	case strings.Contains(caption, "Windows 11"):
		return "Windows", "11"
	case version != "":
		build := version
		if i := strings.LastIndex(version, "."); i >= 0 {
			build = version[i+1:]
		}
		if n, err := strconv.Atoi(build); err == nil {
			if n >= 22000 {
				return "Windows", "11"
			}
			return "Windows", "10"
		}
	}
	return "Windows", "Unknown"
}

// Date returns the EOL date for an OS and version.
func Date(osName, version string) (time.Time, bool) {
	t, ok := tables[osName][version]
	return t, ok
}

// Format renders an EOL date relative to now. Dates already past or fewer
// than CriticalWindow days away are critical.
func Format(date time.Time, known bool, now time.Time) (string, bool) {
	if !known {
		return Unknown, false
	}
	stamp := date.Format("2006/01/02")
	days := int(math.Floor(date.Sub(now).Hours() / 24))
	if days < 0 {
		return stamp + " (期限切れ)", true
	}
	return fmt.Sprintf("%s (%d 日後)", stamp, days), days < CriticalWindow
}

// Lookup detects the OS and formats its EOL date.
func Lookup(ctx context.Context, p Probe, now time.Time) Info {
	name, version := p.Detect(ctx)
	date, known := Date(name, version)
	text, critical := Format(date, known, now)
	return Info{OS: name, Version: version, Text: text, Critical: critical}
}
