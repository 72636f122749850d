// Package netsrv implements distccd's listening socket: bind with
// SO_REUSEADDR, an optional TCP_DEFER_ACCEPT, Go's default backlog, and the
// daemon-vs-inetd mode auto-detection that decides whether distccd owns its
// own listening socket at all.
package netsrv

import (
	"context"
	"fmt"
	"net"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	derrors "github.com/distccd-go/distccd/internal/errors"
)

// DefaultBacklog matches dcc_listen_by_addr's listen(fd, 1024). Listen does
// not pass it to listen(2): the backlog is whatever Go's net package uses,
// which is the kernel's somaxconn.
const DefaultBacklog = 1024

// Mode selects how distccd obtains its first connection.
type Mode int

const (
	// ModeDaemon means distccd owns a listening socket and Accepts in a loop.
	ModeDaemon Mode = iota
	// ModeInetd means a super-server already connected fd 0/1 to the peer.
	ModeInetd
)

// DetectMode implements distccd's is_a_socket/tty heuristic: a socket on
// fd 0 means inetd/xinetd handed us a live connection; a
// controlling terminal (or anything else) means run as our own daemon.
func DetectMode() Mode {
	if isSocket(os.Stdin) && !term.IsTerminal(int(os.Stdin.Fd())) {
		return ModeInetd
	}
	return ModeDaemon
}

func isSocket(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeSocket != 0
}

// Options configures Listen.
type Options struct {
	Addr           string // host only (joined with Port), "" binds all interfaces
	Port           int
	DeferAccept    bool
	DeferAcceptSec int
}

// Listener wraps a *net.TCPListener with distccd's socket-option policy.
type Listener struct {
	tcp *net.TCPListener
}

// Listen binds and configures the listening socket per opts, validating the
// port range exactly like dcc_socket_listen (EXIT_BAD_ARGUMENTS outside
// [1,65535]).
func Listen(opts Options) (*Listener, error) {
	if opts.Port < 0 || opts.Port > 65535 {
		return nil, derrors.New(derrors.BadArguments, "netsrv.Listen", fmt.Sprintf("port %d out of range", opts.Port))
	}

	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
				if sockErr == nil && opts.DeferAccept {
					timeout := opts.DeferAcceptSec
					if timeout <= 0 {
						timeout = 1
					}
					sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_DEFER_ACCEPT, timeout)
				}
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	ln, err := lc.Listen(context.Background(), "tcp", fmt.Sprintf("%s:%d", opts.Addr, opts.Port))
	if err != nil {
		return nil, derrors.Wrap(err, derrors.BindFailed, "netsrv.Listen")
	}
	tcp, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return nil, derrors.New(derrors.BindFailed, "netsrv.Listen", "listener is not TCP")
	}
	return &Listener{tcp: tcp}, nil
}

// Fd recovers an inheritable file descriptor backing the listener, for the
// worker pool to hand down to preforked workers across exec. This goes
// through (*net.TCPListener).File rather than a reflection-based fd
// extractor: only File's dup clears FD_CLOEXEC, which a fd crossing
// exec.Cmd.ExtraFiles requires.
func (l *Listener) Fd() (uintptr, error) {
	file, err := l.tcp.File()
	if err != nil {
		return 0, derrors.Wrap(err, derrors.IOError, "netsrv.Listener.Fd")
	}
	return file.Fd(), nil
}

// Accept blocks for the next connection.
func (l *Listener) Accept() (net.Conn, error) {
	conn, err := l.tcp.Accept()
	if err != nil {
		return nil, derrors.Wrap(err, derrors.IOError, "netsrv.Listener.Accept")
	}
	return conn, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.tcp.Addr() }

// Close closes the listening socket.
func (l *Listener) Close() error { return l.tcp.Close() }
