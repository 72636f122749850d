// Package pool implements distccd's preforking worker model: a supervisor
// process forks a fixed number of worker children sharing one listening
// socket, reaps and respawns them as they exit, and bounds each worker's
// lifetime by request count OR wall-clock age, whichever is reached last --
// matching dcc_preforking_parent/dcc_create_kids/dcc_preforked_child.
//
// The fork shape (re-exec self into a worker role via os.Executable, hand
// the listening socket down as an inherited fd) is adapted from the
// container runtime's Create/InitContainer re-exec pattern, generalized
// from "start this container's PID 1" to "start one compile worker".
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	derrors "github.com/distccd-go/distccd/internal/errors"
	"github.com/distccd-go/distccd/internal/monitor"
	"github.com/distccd-go/distccd/internal/signals"
)

// WorkerRoleEnv is set to 1 in every re-exec'd worker's environment. The
// worker role itself is selected by the "worker" subcommand; nothing in
// this repository reads this variable.
const WorkerRoleEnv = "DISTCCD_WORKER"

// Limits bounds a single worker's accept loop, mirroring dcc_max_kids /
// child_requests / child_lifetime from prefork.c.
type Limits struct {
	MaxWorkers    int
	MaxRequests   int           // requests served before retiring, e.g. 50
	MaxLifetime   time.Duration // wall-clock age before retiring, e.g. 60s
	ShutdownGrace time.Duration // grace period before SIGKILL on shutdown
}

// HandleConn is called once per accepted connection inside a worker.
type HandleConn func(ctx context.Context, conn net.Conn)

// Supervisor owns the fork/reap loop. It never serves connections itself.
type Supervisor struct {
	limits   Limits
	logger   *slog.Logger
	listener interface {
		Fd() (uintptr, error)
	}
	monitorDir string

	mu      sync.Mutex
	workers map[int]*exec.Cmd
}

func NewSupervisor(limits Limits, logger *slog.Logger, listener interface{ Fd() (uintptr, error) }, monitorDir string) *Supervisor {
	return &Supervisor{
		limits:     limits,
		logger:     logger,
		listener:   listener,
		monitorDir: monitorDir,
		workers:    make(map[int]*exec.Cmd),
	}
}

// Run is the supervisor's main loop: create the initial brood, then block
// reaping SIGCHLD and respawning down to MaxWorkers until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	fd, err := s.listener.Fd()
	if err != nil {
		return err
	}

	if err := s.topUp(fd); err != nil {
		return err
	}

	sigs := signals.NewPipe(syscall.SIGCHLD, syscall.SIGTERM, syscall.SIGINT)
	defer sigs.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil
		case sig := <-sigs.C():
			switch sig {
			case syscall.SIGCHLD:
				s.reapExited()
				if err := s.topUp(fd); err != nil {
					s.logger.Error("failed to respawn worker", slog.Any("err", err))
				}
			case syscall.SIGTERM, syscall.SIGINT:
				s.shutdown()
				return nil
			}
		}
	}
}

// topUp forks additional workers until MaxWorkers are running.
func (s *Supervisor) topUp(listenFd uintptr) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.workers) < s.limits.MaxWorkers {
		cmd, err := s.spawnWorker(listenFd)
		if err != nil {
			return derrors.Wrap(err, derrors.General, "pool.topUp")
		}
		s.workers[cmd.Process.Pid] = cmd
		s.logger.Info("worker started", slog.Int("pid", cmd.Process.Pid))
	}
	return nil
}

func (s *Supervisor) spawnWorker(listenFd uintptr) (*exec.Cmd, error) {
	self, err := os.Executable()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(self, "worker")
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("%s=1", WorkerRoleEnv),
		fmt.Sprintf("DISTCCD_MAX_REQUESTS=%d", s.limits.MaxRequests),
		fmt.Sprintf("DISTCCD_MAX_LIFETIME=%s", s.limits.MaxLifetime),
	)
	cmd.ExtraFiles = []*os.File{os.NewFile(listenFd, "listener")}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd, nil
}

// reapExited collects any worker that has exited without blocking, the Go
// analogue of dcc_reap_kids's waitpid(WNOHANG) loop; dcc_sigchld_handler
// itself does nothing but interrupt the blocking select(), a role the
// self-pipe (internal/signals) already fills here.
func (s *Supervisor) reapExited() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		var ws syscall.WaitStatus
		pid, err := syscall.Wait4(-1, &ws, syscall.WNOHANG, nil)
		if err != nil || pid <= 0 {
			return
		}
		if _, ok := s.workers[pid]; ok {
			delete(s.workers, pid)
			s.logger.Info("worker exited", slog.Int("pid", pid))
		}
	}
}

// shutdown signals every worker's process group with SIGTERM, gives them
// ShutdownGrace to exit on their own (dcc_unmark_pid's caller pattern in
// prefork.c), then SIGKILLs whatever is still alive.
func (s *Supervisor) shutdown() {
	s.mu.Lock()
	pids := make([]int, 0, len(s.workers))
	for pid := range s.workers {
		pids = append(pids, pid)
	}
	s.mu.Unlock()

	for _, pid := range pids {
		syscall.Kill(-pid, syscall.SIGTERM)
	}

	grace := s.limits.ShutdownGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}
	deadline := time.Now().Add(grace)
	for _, pid := range pids {
		for time.Now().Before(deadline) {
			if err := syscall.Kill(pid, 0); err != nil {
				break
			}
			time.Sleep(50 * time.Millisecond)
		}
		syscall.Kill(-pid, syscall.SIGKILL)
	}
}

// Worker is the per-process accept loop that runs inside a forked child. It
// serves connections from ln until it has handled MaxRequests requests or
// exceeded MaxLifetime -- whichever bound is reached *last*, matching
// prefork.c's `for (ireq=0; ireq<requests || now-start<lifetime; ireq++)`.
type Worker struct {
	Limits  Limits
	Handle  HandleConn
	Logger  *slog.Logger
	Monitor *monitor.Writer
}

// Serve runs the accept loop against ln until retirement or ctx cancellation.
func (w *Worker) Serve(ctx context.Context, ln net.Listener) {
	start := time.Now()
	var served int

	for served < w.Limits.MaxRequests || time.Since(start) < w.Limits.MaxLifetime {
		select {
		case <-ctx.Done():
			return
		default:
		}

		type acceptResult struct {
			conn net.Conn
			err  error
		}
		ch := make(chan acceptResult, 1)
		go func() {
			c, err := ln.Accept()
			ch <- acceptResult{c, err}
		}()

		select {
		case <-ctx.Done():
			return
		case res := <-ch:
			if res.err != nil {
				w.Logger.Warn("accept failed", slog.Any("err", res.err))
				continue
			}
			w.Handle(ctx, res.conn)
			served++
			if w.Monitor != nil {
				w.Monitor.Save(monitor.WorkerState{
					PID:       os.Getpid(),
					State:     "idle",
					StartedAt: start,
					Requests:  served,
				})
			}
		}
	}
	w.Logger.Info("worker worn out", slog.Int("requests", served), slog.Duration("age", time.Since(start)))
}
