package scoop

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func line(name, installed, latest, missing, info string) string {
	return fmt.Sprintf("%-8s%-18s%-15s%-21s%s", name, installed, latest, missing, info)
}

func statusOutput(apps ...[]string) string {
	var b strings.Builder
	b.WriteString("Scoop is up to date.\n\n")
	b.WriteString("\x1b[32;1m" + line("Name", "Installed Version", "Latest Version", "Missing Dependencies", "Info") + "\x1b[0m\n")
	b.WriteString(line("----", "-----------------", "--------------", "--------------------", "----") + "\n")
	for _, a := range apps {
		b.WriteString(strings.TrimRight(line(a[0], a[1], a[2], a[3], a[4]), " ") + "\r\n")
	}
	return b.String()
}

func TestParseStatus(t *testing.T) {
	out := statusOutput(
		[]string{"7zip", "23.01", "24.08", "", ""},
		[]string{"git", "2.44.0", "2.46.0", "", "Held package"},
	)
	apps := ParseStatus(out)
	require.Len(t, apps, 2)
	assert.Equal(t, App{Name: "7zip", Installed: "23.01", Latest: "24.08"}, apps[0])
	assert.Equal(t, App{Name: "git", Installed: "2.44.0", Latest: "2.46.0", Info: "Held package"}, apps[1])
}

func TestParseStatus_NoHeader(t *testing.T) {
	assert.Nil(t, ParseStatus("Scoop is up to date.\nEverything is ok!\n"))
	assert.Nil(t, ParseStatus(""))
}

func TestParseStatus_HeaderOnly(t *testing.T) {
	assert.Empty(t, ParseStatus(statusOutput()))
}

func TestRunningApps(t *testing.T) {
	root := t.TempDir()
	for _, app := range []string{"git", "7zip"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, app, "current"), 0o755))
	}
	procs := []Process{
		{PID: 1, Name: "git.exe", Exe: strings.ToUpper(filepath.Join(root, "git", "current", "git.exe"))},
		{PID: 2, Name: "notepad.exe", Exe: "/windows/notepad.exe"},
		{PID: 3, Name: "vlc.exe", Exe: filepath.Join(root, "vlc", "current", "vlc.exe")},
	}

	running := RunningApps(root, []string{"git", "7zip", "vlc"}, procs)
	require.Len(t, running, 1)
	require.Len(t, running["git"], 1)
	assert.Equal(t, int32(1), running["git"][0].PID)
}
