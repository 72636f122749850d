package errors

// Sentinels for conditions that are checked with Is() rather than
// constructed fresh at the call site. Grouped by the phase of the job
// state machine they tend to arise in.

var (
	// ErrBadMagic is returned when a peer's DIST header is missing or malformed.
	ErrBadMagic = New(ProtocolError, "r_request_header", "missing distcc magic")
	// ErrUnsupportedVersion is returned when a peer requests a protocol
	// version newer than this server understands.
	ErrUnsupportedVersion = New(ProtocolError, "r_request_header", "unsupported protocol version")
	// ErrTokenMismatch is returned when an expected token doesn't match what
	// was read off the wire.
	ErrTokenMismatch = New(ProtocolError, "r_token", "token mismatch")
	// ErrPathTraversal is returned when a client-supplied name escapes the
	// job's scoped working directory.
	ErrPathTraversal = New(ProtocolError, "r_many_files", "path escapes job directory")
)

var (
	// ErrNoMatch is returned when no allow-list entry matches a peer.
	ErrNoMatch = New(AccessDenied, "check_address", "no matching allow-list entry")
	// ErrUnsupportedFamily is returned for a peer address family the access
	// filter does not understand.
	ErrUnsupportedFamily = New(AccessDenied, "check_address", "unsupported address family")
)

var (
	// ErrAuthRejected is returned when the auth layer's final status byte is 'n'.
	ErrAuthRejected = New(AccessDenied, "auth", "principal not authorized")
	// ErrBadHandshake is returned when the handshake byte doesn't match.
	ErrBadHandshake = New(ProtocolError, "auth_handshake", "bad handshake byte")
	// ErrMissingContextFlags is returned when a negotiated security context
	// lacks one of the required mutual/replay/sequence flags.
	ErrMissingContextFlags = New(AccessDenied, "auth", "security context missing required flags")
)

var (
	// ErrPoolExhausted is returned when the worker pool has no free slot.
	ErrPoolExhausted = New(Busy, "pool", "no free worker slots")
	// ErrWorkerWornOut is not itself an error condition a caller acts on; it
	// marks the reason a worker exited its accept loop voluntarily.
	ErrWorkerWornOut = New(General, "pool", "worker exceeded request or lifetime bound")
)

var (
	// ErrCompilerNotFound is returned when exec.LookPath fails for the
	// requested compiler.
	ErrCompilerNotFound = New(CompilerMissing, "compiler", "compiler not found in PATH")
	// ErrMasqueradeRequired is returned when an absolute compiler path was
	// requested but the masquerade-directory precondition was not met.
	ErrMasqueradeRequired = New(AccessDenied, "compiler", "absolute compiler path rejected without insecure flag")
	// ErrCompilerTimedOut is returned when the compiler child exceeded its
	// I/O deadline and had to be signalled.
	ErrCompilerTimedOut = New(Timeout, "compiler", "compiler exceeded i/o deadline")
)

var (
	// ErrTempDirExists is returned if a job temp directory name collides.
	ErrTempDirExists = New(IOError, "tempdir", "job temp directory already exists")
)
