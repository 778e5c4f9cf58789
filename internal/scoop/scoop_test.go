package scoop

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/swupdate/internal/command"
	"github.com/loykin/swupdate/internal/eol"
	"github.com/loykin/swupdate/internal/row"
	"github.com/loykin/swupdate/internal/worker/workertest"
)

const body = "| Status | Computer | OS | PM | Upgraded | Failed | EOL |\n" +
	"| --- | --- | --- | --- | --- | --- | --- |\n" +
	"|  | pc1 | Windows 11 | scoop |  |  |  | <!-- update-softwares#pc1#scoop -->\n"

var addr = row.Address{Machine: "pc1", PackageManager: "scoop"}

type fakeScoop struct {
	mu     sync.Mutex
	status string
	fail   map[string]bool
	calls  []string
}

func (f *fakeScoop) run(_ context.Context, name string, args ...string) (command.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := strings.Join(append([]string{name}, args...), " ")
	f.calls = append(f.calls, cmd)
	if f.fail[cmd] {
		return command.Result{ExitCode: 1}, &command.ExitError{Command: cmd, Code: 1}
	}
	if cmd == "scoop status" {
		return command.Result{Stdout: f.status}, nil
	}
	return command.Result{}, nil
}

func (f *fakeScoop) count(cmd string) int {
	n := 0
	for _, c := range f.calls {
		if c == cmd {
			n++
		}
	}
	return n
}

type fakeProcesses struct {
	procs      []Process
	terminated []int32
}

func (f *fakeProcesses) List(context.Context) ([]Process, error) { return f.procs, nil }

func (f *fakeProcesses) Terminate(_ context.Context, pid int32) error {
	f.terminated = append(f.terminated, pid)
	return nil
}

// scoopRoot lays out apps/<name>/current/<name>.exe for each app.
func scoopRoot(t *testing.T, apps ...string) string {
	t.Helper()
	root := t.TempDir()
	for _, a := range apps {
		dir := filepath.Join(root, "apps", a, "current")
		require.NoError(t, os.MkdirAll(dir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, a+".exe"), nil, 0o644))
	}
	return root
}

func setup(t *testing.T, restart bool) (*Worker, *fakeScoop, *fakeProcesses, string) {
	root := scoopRoot(t, "7zip", "git")
	gitExe := filepath.Join(root, "apps", "git", "current", "git.exe")
	fs := &fakeScoop{
		status: statusOutput(
			[]string{"7zip", "23.01", "24.08", "", ""},
			[]string{"git", "2.44.0", "2.46.0", "", ""},
		),
		fail: map[string]bool{},
	}
	fp := &fakeProcesses{procs: []Process{{PID: 42, Name: "git.exe", Exe: gitExe}}}
	w := &Worker{
		Runner:         command.Func(fs.run),
		Processes:      fp,
		Root:           root,
		RestartRunning: restart,
		Tries:          2,
		Sleep:          func(context.Context, time.Duration) error { return nil },
	}
	return w, fs, fp, gitExe
}

func TestRun_SkipsRunningApps(t *testing.T) {
	w, fs, fp, _ := setup(t, false)
	issue := workertest.NewIssue(body)

	require.NoError(t, w.Run(context.Background(), workertest.Target(issue, addr, eol.Info{Text: eol.Unknown})))

	assert.Equal(t, 1, fs.count("scoop update 7zip"))
	assert.Equal(t, 0, fs.count("scoop update git"))
	assert.Empty(t, fp.terminated)

	require.Len(t, issue.Comments, 1)
	assert.Contains(t, issue.Comments[0], "7zip")

	hist := issue.History(addr)
	require.Len(t, hist, 3)
	assert.Equal(t, row.StatusRunning, hist[0].Status)
	assert.Equal(t, "", hist[0].Upgraded)
	assert.Equal(t, row.StatusRunning, hist[1].Status)
	assert.Equal(t, "1", hist[1].Upgraded)

	r, _ := issue.Row(addr)
	assert.Equal(t, row.StatusSuccess, r.Status)
	assert.Equal(t, "1", r.Upgraded)
	assert.Equal(t, "0", r.Failed)
}

func TestRun_RestartsRunningApps(t *testing.T) {
	w, fs, fp, gitExe := setup(t, true)
	issue := workertest.NewIssue(body)

	require.NoError(t, w.Run(context.Background(), workertest.Target(issue, addr, eol.Info{Text: eol.Unknown})))

	assert.Equal(t, []int32{42}, fp.terminated)
	assert.Equal(t, 1, fs.count("scoop update git"))
	assert.Equal(t, 1, fs.count(`start "" `+gitExe))

	r, _ := issue.Row(addr)
	assert.Equal(t, row.StatusSuccess, r.Status)
	assert.Equal(t, "2", r.Upgraded)
}

func TestRun_AppFailure(t *testing.T) {
	w, fs, _, _ := setup(t, false)
	fs.fail["scoop update 7zip"] = true
	issue := workertest.NewIssue(body)

	require.NoError(t, w.Run(context.Background(), workertest.Target(issue, addr, eol.Info{Text: eol.Unknown})))

	assert.Equal(t, 2, fs.count("scoop update 7zip"))
	r, _ := issue.Row(addr)
	assert.Equal(t, row.StatusFailed, r.Status)
	assert.Equal(t, "0", r.Upgraded)
	assert.Equal(t, "1", r.Failed)
}

func TestRun_BucketUpdateFailureContinues(t *testing.T) {
	w, fs, _, _ := setup(t, false)
	fs.fail["scoop update"] = true
	issue := workertest.NewIssue(body)

	require.NoError(t, w.Run(context.Background(), workertest.Target(issue, addr, eol.Info{Text: eol.Unknown})))
	assert.Equal(t, 2, fs.count("scoop update"))
	r, _ := issue.Row(addr)
	assert.Equal(t, row.StatusSuccess, r.Status)
}

func TestRun_StatusErrorMarksFailed(t *testing.T) {
	w, fs, _, _ := setup(t, false)
	fs.fail["scoop status"] = true
	issue := workertest.NewIssue(body)

	err := w.Run(context.Background(), workertest.Target(issue, addr, eol.Info{Text: eol.Unknown}))
	require.Error(t, err)
	var exit *command.ExitError
	assert.True(t, errors.As(err, &exit))

	r, _ := issue.Row(addr)
	assert.Equal(t, row.StatusFailed, r.Status)
	assert.Equal(t, "", r.Failed)
	assert.Empty(t, issue.Comments)
}

func TestRun_NothingOutdated(t *testing.T) {
	w, fs, _, _ := setup(t, false)
	fs.status = "Scoop is up to date.\nEverything is ok!\n"
	issue := workertest.NewIssue(body)

	require.NoError(t, w.Run(context.Background(), workertest.Target(issue, addr, eol.Info{Text: eol.Unknown})))
	require.Len(t, issue.Comments, 1)
	assert.Contains(t, issue.Comments[0], "No upgrades available.")
	r, _ := issue.Row(addr)
	assert.Equal(t, row.StatusSuccess, r.Status)
	assert.Equal(t, "0", r.Upgraded)
}

func TestWorker_OS(t *testing.T) {
	assert.Equal(t, "windows", (&Worker{}).OS())
}
