package backend

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/nextlevelbuilder/jobrunner/internal/jobstore"
)

const maxCapturedOutputBytes = 256 * 1024

// PowerShellBackend runs inline or on-disk PowerShell scripts under a
// context.WithTimeout deadline, via exec.CommandContext with bounded output
// capture.
type PowerShellBackend struct {
	// Interpreter is the host interpreter binary, overridable for tests.
	Interpreter string
}

// NewPowerShellBackend returns a backend invoking the system powershell.exe.
func NewPowerShellBackend() *PowerShellBackend {
	return &PowerShellBackend{Interpreter: "powershell.exe"}
}

func (b *PowerShellBackend) Execute(ctx context.Context, cfg *jobstore.Config, executionID string, deadline time.Time) (*Result, error) {
	if cfg.PowerShell == nil {
		return nil, fmt.Errorf("missing powershell config")
	}
	ps := cfg.PowerShell

	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	scriptPath := ps.ScriptPath
	cleanup := func() {}
	if ps.InlineScript != "" {
		f, err := os.CreateTemp("", "jobrunner-"+executionID+"-*.ps1")
		if err != nil {
			return nil, fmt.Errorf("create temp script: %w", err)
		}
		if _, err := f.WriteString(ps.InlineScript); err != nil {
			f.Close()
			os.Remove(f.Name())
			return nil, fmt.Errorf("write temp script: %w", err)
		}
		f.Close()
		scriptPath = f.Name()
		cleanup = func() { os.Remove(scriptPath) }
	}
	defer cleanup()

	policy := ps.ExecutionPolicy
	if policy == "" {
		policy = "RemoteSigned"
	}

	args := []string{"-ExecutionPolicy", policy, "-File", scriptPath}
	args = append(args, renderParams(ps.Parameters)...)

	cmd := exec.CommandContext(ctx, b.Interpreter, args...)
	if ps.WorkingDirectory != "" {
		cmd.Dir = ps.WorkingDirectory
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &boundedWriter{buf: &stdout, limit: maxCapturedOutputBytes}
	cmd.Stderr = &boundedWriter{buf: &stderr, limit: maxCapturedOutputBytes}

	runErr := cmd.Run()

	output := stdout.String()
	if stderr.Len() > 0 {
		if output != "" {
			output += "\n"
		}
		output += "STDERR:\n" + stderr.String()
	}

	if ctx.Err() == context.DeadlineExceeded {
		return &Result{
			Success:     false,
			Output:      output,
			Error:       "execution exceeded deadline",
			ReturnCode:  TimeoutReturnCode,
			TerminalNow: true,
		}, nil
	}

	returnCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			returnCode = exitErr.ExitCode()
		} else {
			return &Result{Success: false, Output: output, Error: runErr.Error(), ReturnCode: -2, TerminalNow: true}, nil
		}
	}

	return &Result{
		Success:     returnCode == 0,
		Output:      output,
		ReturnCode:  returnCode,
		TerminalNow: true,
	}, nil
}

// renderParams supports the canonical array-of-{name,value} parameter shape
// by emitting `-Name Value` pairs.
func renderParams(params []jobstore.Param) []string {
	var out []string
	for _, p := range params {
		out = append(out, "-"+p.Name, p.Value)
	}
	return out
}

// boundedWriter caps captured output so a chatty script can't grow memory
// unboundedly.
type boundedWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w *boundedWriter) Write(p []byte) (int, error) {
	remaining := w.limit - w.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		w.buf.Write(p[:remaining])
	} else {
		w.buf.Write(p)
	}
	return len(p), nil
}
