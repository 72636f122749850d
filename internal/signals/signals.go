// Package signals implements the self-pipe pattern distccd uses to make
// SIGCHLD/SIGTERM handling safe: the actual OS signal handler only writes a
// byte to a pipe, and all real work (reaping children, shutting workers
// down) happens on the read side in ordinary, non-async-signal-safe Go
// code.
package signals

import (
	"os"
	"os/signal"
)

// Pipe delivers OS signals to a buffered channel without requiring any
// signal-handling code to be async-signal-safe itself; Go's runtime already
// performs the self-pipe trick internally for os/signal, so this type just
// gives distccd a named, reusable wrapper with an explicit Stop method.
type Pipe struct {
	ch   chan os.Signal
	sigs []os.Signal
}

// NewPipe registers interest in the given signals and returns a Pipe ready
// to be ranged over.
func NewPipe(sigs ...os.Signal) *Pipe {
	ch := make(chan os.Signal, 16)
	signal.Notify(ch, sigs...)
	return &Pipe{ch: ch, sigs: sigs}
}

// C returns the channel signals arrive on.
func (p *Pipe) C() <-chan os.Signal { return p.ch }

// Stop unregisters the pipe so the channel will receive no further signals.
func (p *Pipe) Stop() {
	signal.Stop(p.ch)
}
