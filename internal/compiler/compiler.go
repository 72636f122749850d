// Package compiler drives the actual compiler child process: argument
// vector construction, fd redirection, fork/exec into its own process
// group, an I/O deadline with escalating SIGTERM/SIGKILL, and translation
// of the wait status into distccd's response fields.
//
// The fork/exec and signal-forwarding shape is adapted from the container
// runtime's init-process pattern (spawn into a new process group, forward
// termination signals, translate *exec.ExitError into a status), generalized
// from "run the container's PID 1" to "run one compile job's compiler".
package compiler

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	derrors "github.com/distccd-go/distccd/internal/errors"
)

// Result captures everything a finished compiler invocation reports back to
// the job server.
type Result struct {
	ExitStatus   int
	WasSignalled bool
	Signal       int
	Stdout       []byte
	Stderr       []byte
}

// Spec describes one compile invocation.
type Spec struct {
	// Argv is the full argument vector, Argv[0] is the compiler name/path.
	Argv []string
	// Dir is the job's scoped working directory (the temp tree's root).
	Dir string
	// PATH is used to resolve a bare compiler name via exec.LookPath.
	PATH string
	// AllowAbsolute permits Argv[0] to be an absolute path outside the
	// masquerade directory convention; false unless --enable-tcp-insecure
	// (or the local equivalent) was passed.
	AllowAbsolute bool
	// Timeout bounds total wall-clock time for the child; zero means no
	// deadline.
	Timeout time.Duration
}

// Resolve locates the concrete executable path for spec.Argv[0], applying
// the masquerade-directory precondition: an absolute path is only honoured
// when AllowAbsolute is set and is otherwise rejected with
// ErrMasqueradeRequired, so a malicious client can't force distccd to run
// an arbitrary binary by supplying a full path. A bare name is looked up on
// spec.PATH (or the process's PATH when that is empty).
func Resolve(spec Spec) (string, error) {
	name := spec.Argv[0]
	if filepath.IsAbs(name) {
		if !spec.AllowAbsolute {
			return "", derrors.ErrMasqueradeRequired
		}
		if _, err := os.Stat(name); err != nil {
			return "", derrors.Wrap(err, derrors.CompilerMissing, "compiler.Resolve")
		}
		return name, nil
	}

	path := spec.PATH
	if path == "" {
		path = os.Getenv("PATH")
	}
	resolved, err := exec.LookPath(joinPath(name, path))
	if err != nil {
		return "", derrors.ErrCompilerNotFound
	}
	return resolved, nil
}

// joinPath is a small shim so LookPath consults spec.PATH even though
// exec.LookPath only ever reads the process's own PATH env var.
func joinPath(name, path string) string {
	if path == "" {
		return name
	}
	for _, dir := range strings.Split(path, string(os.PathListSeparator)) {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return name
}

// Run spawns the compiler in its own process group, feeds it no stdin,
// collects stdout/stderr, and enforces spec.Timeout by sending SIGTERM and
// then SIGKILL to the whole process group if the child hangs.
func Run(ctx context.Context, spec Spec, resolvedPath string) (Result, error) {
	cmd := exec.Command(resolvedPath, spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return Result{}, derrors.ErrCompilerNotFound
		}
		return Result{}, derrors.Wrap(err, derrors.IOError, "compiler.Run")
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var timeoutC <-chan time.Time
	if spec.Timeout > 0 {
		timer := time.NewTimer(spec.Timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case <-ctx.Done():
		killGroup(cmd.Process.Pid)
		<-done
		return Result{}, derrors.Wrap(ctx.Err(), derrors.Timeout, "compiler.Run")
	case <-timeoutC:
		syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			killGroup(cmd.Process.Pid)
			<-done
		}
		return Result{}, derrors.ErrCompilerTimedOut
	case err := <-done:
		res := CritiqueStatus(cmd.ProcessState, err)
		res.Stdout = stdout.Bytes()
		res.Stderr = stderr.Bytes()
		return res, nil
	}
}

func killGroup(pid int) {
	syscall.Kill(-pid, syscall.SIGTERM)
	time.Sleep(200 * time.Millisecond)
	syscall.Kill(-pid, syscall.SIGKILL)
}

// CritiqueStatus classifies a finished *exec.Cmd's outcome into a Result,
// distinguishing a normal exit from death-by-signal, matching the original
// server's three-way split between exited-cleanly, killed-by-signal, and
// exec-not-found (127).
func CritiqueStatus(state *os.ProcessState, waitErr error) Result {
	if state == nil {
		return Result{ExitStatus: 127}
	}
	ws, ok := state.Sys().(syscall.WaitStatus)
	if !ok {
		return Result{ExitStatus: state.ExitCode()}
	}
	if ws.Signaled() {
		return Result{WasSignalled: true, Signal: int(ws.Signal()), ExitStatus: 128 + int(ws.Signal())}
	}
	return Result{ExitStatus: ws.ExitStatus()}
}
