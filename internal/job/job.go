// Package job implements one connection's state machine: reading a
// request off the wire, dispatching it to the compiler, and writing the
// response back, exactly in the order the distcc protocol prescribes.
package job

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/distccd-go/distccd/internal/compiler"
	derrors "github.com/distccd-go/distccd/internal/errors"
	"github.com/distccd-go/distccd/internal/frame"
	"github.com/distccd-go/distccd/internal/tempdir"
)

// compilerMissingMessage is the SERR text distccd reports when the
// requested compiler can't be resolved or exec'd, matching the historical
// "compiler not found" diagnostic rather than a Go error's own wording.
const compilerMissingMessage = "compiler not found"

// State names a stage of the per-connection job state machine.
type State int

const (
	Accepted State = iota
	Authenticated
	ReqHeader
	ReqArgv
	ReqCwd
	ReqFiles
	Compiling
	RespHeader
	RespStatus
	RespStderr
	RespStdout
	RespObject
	RespDeps
	Done
)

func (s State) String() string {
	names := [...]string{
		"accepted", "authenticated", "req_header", "req_argv", "req_cwd",
		"req_files", "compiling", "resp_header", "resp_status", "resp_stderr",
		"resp_stdout", "resp_object", "resp_deps", "done",
	}
	if int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// ProtocolVersion is the distcc wire protocol revision negotiated for a job.
type ProtocolVersion int

const (
	Version1 ProtocolVersion = 1
	Version2 ProtocolVersion = 2
	Version3 ProtocolVersion = 3
)

// Request is everything a client sends for one compile.
type Request struct {
	Version ProtocolVersion
	Argv    []string
	Cwd     string
	Files   []string // paths materialized under the job's temp tree
}

// Response is everything distccd sends back for one compile.
type Response struct {
	ExitStatus   int
	WasSignalled bool
	Signal       int
	Stderr       []byte
	Stdout       []byte
	ObjectPath   string
	DepsPath     string // protocol 3 only, empty if the compiler produced none
}

// Config bundles the knobs a Job needs that don't belong on the wire.
type Config struct {
	PATH          string
	AllowAbsolute bool
	TempBase      string
}

// Job owns one connection's lifecycle from ACCEPTED to DONE.
type Job struct {
	cfg    Config
	logger *slog.Logger
	state  State
	tree   *tempdir.Tree
}

func New(cfg Config, logger *slog.Logger) *Job {
	return &Job{cfg: cfg, logger: logger, state: Accepted}
}

func (j *Job) State() State { return j.state }

func (j *Job) setState(s State) {
	j.state = s
	if j.logger != nil {
		j.logger.Debug("job state transition", slog.String("state", s.String()))
	}
}

// Serve drives one full request/response cycle over rw, from REQ_HEADER
// through DONE. The caller is expected to have already completed any
// authentication handshake and set state to Authenticated.
func (j *Job) Serve(ctx context.Context, rw io.ReadWriter) (Response, error) {
	if j.state != Accepted && j.state != Authenticated {
		return Response{}, derrors.New(derrors.ProtocolError, "job.Serve", "called out of order")
	}
	j.setState(ReqHeader)

	tree, err := tempdir.New(j.cfg.TempBase)
	if err != nil {
		return Response{}, err
	}
	j.tree = tree
	defer tree.Cleanup()

	r := bufio.NewReader(rw)

	req, err := j.readRequest(r)
	if err != nil {
		return Response{}, err
	}

	j.setState(Compiling)

	resolved, err := compiler.Resolve(compiler.Spec{
		Argv:          req.Argv,
		PATH:          j.cfg.PATH,
		AllowAbsolute: j.cfg.AllowAbsolute,
	})
	if err != nil {
		if derrors.IsKind(err, derrors.CompilerMissing) {
			return j.serveCompilerMissing(rw, req.Version)
		}
		return Response{}, err
	}

	result, err := compiler.Run(ctx, compiler.Spec{
		Argv: req.Argv,
		Dir:  tree.Root(),
		PATH: j.cfg.PATH,
	}, resolved)
	if err != nil {
		if derrors.IsKind(err, derrors.CompilerMissing) {
			return j.serveCompilerMissing(rw, req.Version)
		}
		return Response{}, err
	}

	resp := Response{
		ExitStatus:   result.ExitStatus,
		WasSignalled: result.WasSignalled,
		Signal:       result.Signal,
		Stdout:       result.Stdout,
		Stderr:       result.Stderr,
	}
	j.resolveOutputs(&resp, req, tree)

	if err := j.writeResponse(rw, req.Version, resp); err != nil {
		return resp, err
	}
	return resp, nil
}

// serveCompilerMissing reports a CompilerMissing failure through the normal
// response frames (STAT=127, SERR populated) instead of dropping the
// connection: distccd treats exec-not-found as a failure inside the compile,
// not a protocol failure, so the client still gets a complete, well-formed
// response.
func (j *Job) serveCompilerMissing(rw io.ReadWriter, vers ProtocolVersion) (Response, error) {
	resp := Response{
		ExitStatus: 127,
		Stderr:     []byte(compilerMissingMessage),
	}
	if err := j.writeResponse(rw, vers, resp); err != nil {
		return resp, err
	}
	return resp, nil
}

// resolveOutputs determines the compiled object's (and, for protocol 3, its
// dependency file's) path in the job's temp tree, mirroring dcc_scan_args:
// the result is only trusted when the compile succeeded and the file it
// points at actually exists, so a crashed or argv-less compile still falls
// through to an empty DOTO/DOTI frame rather than an I/O error.
func (j *Job) resolveOutputs(resp *Response, req Request, tree *tempdir.Tree) {
	if resp.WasSignalled || resp.ExitStatus != 0 {
		return
	}
	objRel := scanObjectPath(req.Argv)
	if objRel == "" {
		return
	}
	objPath := filepath.Join(tree.Root(), objRel)
	if _, err := os.Stat(objPath); err != nil {
		return
	}
	resp.ObjectPath = objPath

	if req.Version != Version3 {
		return
	}
	depsRel := scanDepsPath(req.Argv, objRel)
	if depsRel == "" {
		return
	}
	depsPath := filepath.Join(tree.Root(), depsRel)
	if _, err := os.Stat(depsPath); err != nil {
		return
	}
	resp.DepsPath = depsPath
}

func (j *Job) readRequest(r *bufio.Reader) (Request, error) {
	vers, err := frame.ReadInt(r, "DIST")
	if err != nil {
		return Request{}, derrors.Wrap(err, derrors.ProtocolError, "r_request_header")
	}
	if vers > uint32(Version3) {
		return Request{}, derrors.ErrUnsupportedVersion
	}
	req := Request{Version: ProtocolVersion(vers)}

	j.setState(ReqArgv)
	argc, err := frame.ReadInt(r, "ARGC")
	if err != nil {
		return Request{}, derrors.Wrap(err, derrors.ProtocolError, "r_argv")
	}
	req.Argv = make([]string, 0, argc)
	for i := uint32(0); i < argc; i++ {
		arg, err := frame.ReadString(r, "ARGV")
		if err != nil {
			return Request{}, derrors.Wrap(err, derrors.ProtocolError, "r_argv")
		}
		req.Argv = append(req.Argv, string(arg))
	}
	if len(req.Argv) == 0 {
		return Request{}, derrors.New(derrors.ProtocolError, "r_argv", "empty argument vector")
	}

	j.setState(ReqCwd)
	cwd, err := frame.ReadString(r, "CDIR")
	if err != nil {
		return Request{}, derrors.Wrap(err, derrors.ProtocolError, "r_cwd")
	}
	req.Cwd = string(cwd)

	j.setState(ReqFiles)
	files, err := j.readFiles(r)
	if err != nil {
		return Request{}, err
	}
	req.Files = files

	return req, nil
}

// readFiles implements dcc_r_many_files: NFIL count, then NAME followed by
// either FILE (inline payload) or LINK (symlink target) per entry.
func (j *Job) readFiles(r *bufio.Reader) ([]string, error) {
	n, err := frame.ReadInt(r, "NFIL")
	if err != nil {
		return nil, derrors.Wrap(err, derrors.ProtocolError, "r_many_files")
	}

	paths := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		name, err := frame.ReadString(r, "NAME")
		if err != nil {
			return nil, derrors.Wrap(err, derrors.ProtocolError, "r_many_files")
		}
		resolved, err := j.tree.Resolve(string(name))
		if err != nil {
			return nil, err
		}

		tok, length, err := frame.ReadSomeInt(r)
		if err != nil {
			return nil, derrors.Wrap(err, derrors.ProtocolError, "r_many_files")
		}

		switch tok {
		case "FILE":
			if err := writeFilePayload(r, resolved, length); err != nil {
				return nil, err
			}
			j.tree.Register(resolved)
		case "LINK":
			buf := make([]byte, length)
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, derrors.Wrap(err, derrors.ProtocolError, "r_many_files")
			}
			target := string(buf)
			if len(target) > 0 && target[0] == '/' {
				resolvedTarget, err := j.tree.Resolve(target)
				if err != nil {
					return nil, err
				}
				target = resolvedTarget
			}
			if err := tempdir.MkAncestorDirs(resolved); err != nil {
				return nil, derrors.Wrap(err, derrors.IOError, "r_many_files")
			}
			if err := symlinkCompat(target, resolved); err != nil {
				return nil, derrors.Wrap(err, derrors.IOError, "r_many_files")
			}
			j.tree.Register(resolved)
		default:
			return nil, derrors.New(derrors.ProtocolError, "r_many_files", fmt.Sprintf("expected FILE or LINK, got %q", tok))
		}
		paths = append(paths, resolved)
	}
	return paths, nil
}

func (j *Job) writeResponse(w io.Writer, vers ProtocolVersion, resp Response) error {
	j.setState(RespHeader)
	if err := frame.WriteInt(w, "DONE", uint32(vers)); err != nil {
		return derrors.Wrap(err, derrors.IOError, "x_result_header")
	}

	j.setState(RespStatus)
	packed := packWaitStatus(resp)
	if err := frame.WriteInt(w, "STAT", packed); err != nil {
		return derrors.Wrap(err, derrors.IOError, "x_cc_status")
	}

	j.setState(RespStderr)
	if err := frame.WriteString(w, "SERR", resp.Stderr); err != nil {
		return derrors.Wrap(err, derrors.IOError, "x_stderr")
	}

	j.setState(RespStdout)
	if err := frame.WriteString(w, "SOUT", resp.Stdout); err != nil {
		return derrors.Wrap(err, derrors.IOError, "x_stdout")
	}

	j.setState(RespObject)
	if resp.ObjectPath != "" {
		data, err := readFileCompat(resp.ObjectPath)
		if err != nil {
			return derrors.Wrap(err, derrors.IOError, "x_file_object")
		}
		if err := frame.WriteString(w, "DOTO", data); err != nil {
			return derrors.Wrap(err, derrors.IOError, "x_file_object")
		}
	} else {
		if err := frame.WriteString(w, "DOTO", nil); err != nil {
			return derrors.Wrap(err, derrors.IOError, "x_file_object")
		}
	}

	if vers == Version3 {
		j.setState(RespDeps)
		var data []byte
		if resp.DepsPath != "" {
			d, err := readFileCompat(resp.DepsPath)
			if err == nil {
				data = d
			}
		}
		if err := frame.WriteString(w, "DOTI", data); err != nil {
			return derrors.Wrap(err, derrors.IOError, "x_file_deps")
		}
	}

	j.setState(Done)
	return nil
}

// packWaitStatus reproduces the wire's STAT encoding: a normal exit is sent
// as its raw exit code, death by signal is sent as the signal number
// shifted into the high byte. Response itself exposes WasSignalled and
// Signal as distinct typed fields so Go callers never need to unpack it.
func packWaitStatus(resp Response) uint32 {
	if resp.WasSignalled {
		return uint32(resp.Signal&0xff) << 8
	}
	return uint32(resp.ExitStatus & 0xff)
}
