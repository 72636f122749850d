// Package tempdir manages the per-connection scratch directory a job runs
// in: distccd_<pid>_<random>, created under TMPDIR, with every path it
// hands out registered for cleanup on both normal completion and abrupt
// exit.
package tempdir

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/xid"

	derrors "github.com/distccd-go/distccd/internal/errors"
)

// Tree is one job's scoped temp directory plus its cleanup list. The zero
// value is not usable; construct with New.
type Tree struct {
	root string

	mu      sync.Mutex
	cleanup []string
}

// New creates a fresh job temp directory under base (typically $TMPDIR, or
// os.TempDir() if unset), named "distccd_<pid>_<xid>" -- xid supplies the
// random component instead of the original's PRNG-derived suffix, as a
// lock-free unique-ID generator.
func New(base string) (*Tree, error) {
	if base == "" {
		base = os.TempDir()
	}
	name := fmt.Sprintf("distccd_%d_%s", os.Getpid(), xid.New().String())
	root := filepath.Join(base, name)
	if err := os.Mkdir(root, 0700); err != nil {
		if os.IsExist(err) {
			return nil, derrors.ErrTempDirExists
		}
		return nil, derrors.Wrap(err, derrors.IOError, "tempdir.New")
	}
	return &Tree{root: root}, nil
}

// Root returns the absolute path of the job's scratch directory.
func (t *Tree) Root() string { return t.root }

// Resolve prepends the tree's root to a client-supplied absolute path,
// mirroring prepend_dir_to_name, and rejects any path containing a ".."
// component so a malicious peer cannot escape the scoped directory --
// closing the FIXME left open in the original C (prepend_dir_to_name never
// validated this).
func (t *Tree) Resolve(name string) (string, error) {
	if !strings.HasPrefix(name, "/") {
		return "", derrors.New(derrors.ProtocolError, "tempdir.Resolve", fmt.Sprintf("name %q is not absolute", name))
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", derrors.ErrPathTraversal
		}
	}
	return filepath.Join(t.root, name), nil
}

// Register records a path for cleanup when the job finishes or the process
// dies, equivalent to dcc_add_cleanup.
func (t *Tree) Register(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cleanup = append(t.cleanup, path)
}

// Cleanup removes every registered path and then the tree's root. It is
// idempotent: calling it twice, or calling it after some paths are already
// gone, is not an error.
func (t *Tree) Cleanup() {
	t.mu.Lock()
	paths := t.cleanup
	t.cleanup = nil
	t.mu.Unlock()

	for _, p := range paths {
		os.Remove(p)
	}
	os.RemoveAll(t.root)
}

// MkAncestorDirs creates any missing parent directories for path within the
// tree, mirroring dcc_mk_tmp_ancestor_dirs (needed before symlink() can
// create a LINK entry whose NAME nests several levels deep).
func MkAncestorDirs(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "/" {
		return nil
	}
	return os.MkdirAll(dir, 0700)
}
