package scoop

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Process is a running executable.
type Process struct {
	PID  int32
	Name string
	Exe  string
}

// ProcessTable lists and stops host processes.
type ProcessTable interface {
	List(ctx context.Context) ([]Process, error)
	Terminate(ctx context.Context, pid int32) error
}

// HostProcesses reads the process table through gopsutil.
type HostProcesses struct{}

func (HostProcesses) List(ctx context.Context) ([]Process, error) {
	ps, err := gopsproc.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Process, 0, len(ps))
	for _, p := range ps {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		exe, err := p.ExeWithContext(ctx)
		if err != nil || exe == "" {
			continue
		}
		out = append(out, Process{PID: p.Pid, Name: name, Exe: exe})
	}
	return out, nil
}

func (HostProcesses) Terminate(ctx context.Context, pid int32) error {
	p, err := gopsproc.NewProcessWithContext(ctx, pid)
	if err != nil {
		return err
	}
	return p.TerminateWithContext(ctx)
}

// RunningApps groups processes by the scoop app whose directory holds their
// executable. Apps without an install directory are ignored.
func RunningApps(appsDir string, apps []string, procs []Process) map[string][]Process {
	out := map[string][]Process{}
	for _, app := range apps {
		dir := filepath.Join(appsDir, app)
		if st, err := os.Stat(dir); err != nil || !st.IsDir() {
			continue
		}
		prefix := strings.ToLower(dir + string(filepath.Separator))
		for _, p := range procs {
			if strings.HasPrefix(strings.ToLower(p.Exe), prefix) {
				out[app] = append(out[app], p)
			}
		}
	}
	return out
}
