package job

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/distccd-go/distccd/internal/frame"
	"github.com/distccd-go/distccd/internal/tempdir"
)

type pipeRW struct {
	in  *bytes.Buffer
	out *bytes.Buffer
}

func (p *pipeRW) Read(b []byte) (int, error)  { return p.in.Read(b) }
func (p *pipeRW) Write(b []byte) (int, error) { return p.out.Write(b) }

func writeRequest(t *testing.T, buf *bytes.Buffer, version uint32, argv []string, cwd string) {
	t.Helper()
	if err := frame.WriteInt(buf, "DIST", version); err != nil {
		t.Fatal(err)
	}
	if err := frame.WriteInt(buf, "ARGC", uint32(len(argv))); err != nil {
		t.Fatal(err)
	}
	for _, a := range argv {
		if err := frame.WriteString(buf, "ARGV", []byte(a)); err != nil {
			t.Fatal(err)
		}
	}
	if err := frame.WriteString(buf, "CDIR", []byte(cwd)); err != nil {
		t.Fatal(err)
	}
	if err := frame.WriteInt(buf, "NFIL", 0); err != nil {
		t.Fatal(err)
	}
}

func TestServeEndToEndSuccess(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "cc")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\necho compiled 1>&2\necho -n \"$2\" > \"${3#-o}\"\nexit 0\n"), 0755); err != nil {
		t.Fatal(err)
	}

	var req bytes.Buffer
	writeRequest(t, &req, 1, []string{bin, "-c", "foo.c", "-ofoo.o"}, "/tmp")

	rw := &pipeRW{in: &req, out: &bytes.Buffer{}}
	j := New(Config{AllowAbsolute: true, TempBase: t.TempDir()}, nil)
	j.setState(Authenticated)

	if _, err := j.Serve(context.Background(), rw); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if j.State() != Done {
		t.Errorf("final state = %s, want done", j.State())
	}

	r := bufio.NewReader(rw.out)
	if _, err := frame.ReadInt(r, "DONE"); err != nil {
		t.Fatalf("DONE: %v", err)
	}
	stat, err := frame.ReadInt(r, "STAT")
	if err != nil {
		t.Fatalf("STAT: %v", err)
	}
	if stat != 0 {
		t.Errorf("STAT = %d, want 0", stat)
	}
	if _, err := frame.ReadString(r, "SERR"); err != nil {
		t.Fatalf("SERR: %v", err)
	}
	if _, err := frame.ReadString(r, "SOUT"); err != nil {
		t.Fatalf("SOUT: %v", err)
	}
	obj, err := frame.ReadString(r, "DOTO")
	if err != nil {
		t.Fatalf("DOTO: %v", err)
	}
	if string(obj) != "foo.c" {
		t.Errorf("DOTO payload = %q, want %q", obj, "foo.c")
	}
}

func TestServeCompilerMissingReportsStatus(t *testing.T) {
	var req bytes.Buffer
	writeRequest(t, &req, 1, []string{"no-such-compiler-binary", "-c", "foo.c"}, "/tmp")

	rw := &pipeRW{in: &req, out: &bytes.Buffer{}}
	j := New(Config{PATH: t.TempDir(), TempBase: t.TempDir()}, nil)
	j.setState(Authenticated)

	resp, err := j.Serve(context.Background(), rw)
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if resp.ExitStatus != 127 {
		t.Errorf("ExitStatus = %d, want 127", resp.ExitStatus)
	}
	if string(resp.Stderr) != compilerMissingMessage {
		t.Errorf("Stderr = %q, want %q", resp.Stderr, compilerMissingMessage)
	}

	r := bufio.NewReader(rw.out)
	if _, err := frame.ReadInt(r, "DONE"); err != nil {
		t.Fatalf("DONE: %v", err)
	}
	stat, err := frame.ReadInt(r, "STAT")
	if err != nil {
		t.Fatalf("STAT: %v", err)
	}
	if stat != 127 {
		t.Errorf("STAT = %d, want 127", stat)
	}
	serr, err := frame.ReadString(r, "SERR")
	if err != nil {
		t.Fatalf("SERR: %v", err)
	}
	if string(serr) != compilerMissingMessage {
		t.Errorf("SERR = %q, want %q", serr, compilerMissingMessage)
	}
	if _, err := frame.ReadString(r, "SOUT"); err != nil {
		t.Fatalf("SOUT: %v", err)
	}
	doto, err := frame.ReadString(r, "DOTO")
	if err != nil {
		t.Fatalf("DOTO: %v", err)
	}
	if len(doto) != 0 {
		t.Errorf("DOTO payload = %q, want empty", doto)
	}
}

func TestReadFilesCreatesNestedAncestorDirs(t *testing.T) {
	j := New(Config{TempBase: t.TempDir()}, nil)
	j.setState(Authenticated)

	tree, err := tempdir.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer tree.Cleanup()
	j.tree = tree

	var files bytes.Buffer
	if err := frame.WriteInt(&files, "NFIL", 1); err != nil {
		t.Fatal(err)
	}
	if err := frame.WriteString(&files, "NAME", []byte("/a/b/c.c")); err != nil {
		t.Fatal(err)
	}
	if err := frame.WriteString(&files, "FILE", []byte("int main(){}")); err != nil {
		t.Fatal(err)
	}

	r := bufio.NewReader(&files)
	paths, err := j.readFiles(r)
	if err != nil {
		t.Fatalf("readFiles: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("got %d paths, want 1", len(paths))
	}
	data, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatalf("reading materialized file: %v", err)
	}
	if string(data) != "int main(){}" {
		t.Errorf("file contents = %q", data)
	}
}

func TestServeRejectsUnsupportedVersion(t *testing.T) {
	var req bytes.Buffer
	writeRequest(t, &req, 99, []string{"/bin/true"}, "/tmp")

	rw := &pipeRW{in: &req, out: &bytes.Buffer{}}
	j := New(Config{TempBase: t.TempDir()}, nil)
	j.setState(Authenticated)

	if _, err := j.Serve(context.Background(), rw); err == nil {
		t.Fatal("expected protocol error for unsupported version")
	}
}

func TestServeRejectsEmptyArgv(t *testing.T) {
	var req bytes.Buffer
	if err := frame.WriteInt(&req, "DIST", 1); err != nil {
		t.Fatal(err)
	}
	if err := frame.WriteInt(&req, "ARGC", 0); err != nil {
		t.Fatal(err)
	}

	rw := &pipeRW{in: &req, out: &bytes.Buffer{}}
	j := New(Config{TempBase: t.TempDir()}, nil)
	j.setState(Authenticated)

	if _, err := j.Serve(context.Background(), rw); err == nil {
		t.Fatal("expected error for empty argv")
	}
}
