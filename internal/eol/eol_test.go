package eol

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/loykin/swupdate/internal/command"
)

func TestParseWMIC(t *testing.T) {
	cases := []struct {
		out, want string
	}{
		{"Caption=Microsoft Windows 10 Pro\r\nVersion=10.0.19045\r\n", "10"},
		{"Caption=Microsoft Windows 11 Pro\nVersion=10.0.22621\n", "11"},
		{"Caption=Microsoft Windows\nVersion=10.0.22000\n", "11"},
		{"Caption=Microsoft Windows\nVersion=10.0.19044\n", "10"},
		{"Caption=Microsoft Windows\nVersion=abc\n", "Unknown"},
		{"", "Unknown"},
	}
	for _, c := range cases {
		name, v := ParseWMIC(c.out)
		assert.Equal(t, "Windows", name)
		assert.Equal(t, c.want, v, c.out)
	}
}

func TestParseOSRelease(t *testing.T) {
	name, v := ParseOSRelease("NAME=\"Ubuntu\"\nVERSION_ID=\"22.04\"\n")
	assert.Equal(t, "Ubuntu", name)
	assert.Equal(t, "22.04", v)

	name, v = ParseOSRelease("PRETTY_NAME=\"Debian GNU/Linux 12 (bookworm)\"\nNAME=\"Debian GNU/Linux\"\nVERSION_ID=\"12\"\n")
	assert.Equal(t, "Debian", name)
	assert.Equal(t, "12", v)

	name, v = ParseOSRelease("NAME=\"Fedora Linux\"\nVERSION_ID=40\n")
	assert.Equal(t, "Fedora Linux", name)
	assert.Equal(t, "40", v)
}

func TestDate(t *testing.T) {
	d, ok := Date("Ubuntu", "24.04")
	assert.True(t, ok)
	assert.Equal(t, 2029, d.Year())
	_, ok = Date("Ubuntu", "18.04")
	assert.False(t, ok)
	_, ok = Date("Fedora", "40")
	assert.False(t, ok)
}

func TestFormat(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.Local)

	text, crit := Format(time.Time{}, false, now)
	assert.Equal(t, Unknown, text)
	assert.False(t, crit)

	text, crit = Format(day(2024, 6, 30), true, now)
	assert.Equal(t, "2024/06/30 (期限切れ)", text)
	assert.True(t, crit)

	text, crit = Format(day(2025, 3, 1), true, now)
	assert.Equal(t, "2025/03/01 (58 日後)", text)
	assert.True(t, crit)

	text, crit = Format(day(2027, 4, 30), true, now)
	assert.Equal(t, "2027/04/30 (848 日後)", text)
	assert.False(t, crit)
}

func TestLookup_Linux(t *testing.T) {
	p := filepath.Join(t.TempDir(), "os-release")
	if err := os.WriteFile(p, []byte("NAME=\"Ubuntu\"\nVERSION_ID=\"20.04\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	info := Lookup(context.Background(), Probe{GOOS: "linux", OSRelease: p}, time.Date(2025, 6, 1, 0, 0, 0, 0, time.Local))
	assert.Equal(t, "Ubuntu", info.OS)
	assert.Equal(t, "2025/04/30 (期限切れ)", info.Text)
	assert.True(t, info.Critical)
}

func TestLookup_MissingOSRelease(t *testing.T) {
	info := Lookup(context.Background(), Probe{GOOS: "linux", OSRelease: filepath.Join(t.TempDir(), "none")}, time.Now())
	assert.Equal(t, Unknown, info.Text)
	assert.False(t, info.Critical)
}

func TestLookup_Windows(t *testing.T) {
	r := command.Func(func(_ context.Context, name string, _ ...string) (command.Result, error) {
		assert.Equal(t, "wmic", name)
		return command.Result{Stdout: "Caption=Microsoft Windows 11 Home\nVersion=10.0.26100\n"}, nil
	})
	info := Lookup(context.Background(), Probe{GOOS: "windows", Runner: r}, time.Date(2026, 1, 1, 0, 0, 0, 0, time.Local))
	assert.Equal(t, "11", info.Version)
	assert.False(t, info.Critical)

	failing := command.Func(func(context.Context, string, ...string) (command.Result, error) {
		return command.Result{}, errors.New("wmic missing")
	})
	info = Lookup(context.Background(), Probe{GOOS: "windows", Runner: failing}, time.Now())
	assert.Equal(t, Unknown, info.Text)
}
