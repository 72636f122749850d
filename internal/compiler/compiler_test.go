package compiler

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestResolveRejectsAbsoluteByDefault(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("posix-specific")
	}
	_, err := Resolve(Spec{Argv: []string{"/usr/bin/cc"}, AllowAbsolute: false})
	if err == nil {
		t.Fatal("expected masquerade-required error")
	}
}

func TestResolveAllowsAbsoluteWhenPermitted(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "cc")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\nexit 0\n"), 0755); err != nil {
		t.Fatal(err)
	}
	got, err := Resolve(Spec{Argv: []string{bin}, AllowAbsolute: true})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != bin {
		t.Errorf("got %s, want %s", got, bin)
	}
}

func TestResolveLooksUpOnPATH(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "mycc")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\nexit 0\n"), 0755); err != nil {
		t.Fatal(err)
	}
	got, err := Resolve(Spec{Argv: []string{"mycc"}, PATH: dir})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != bin {
		t.Errorf("got %s, want %s", got, bin)
	}
}

func TestRunCapturesExitStatus(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "cc")
	script := "#!/bin/sh\necho out-line\necho err-line 1>&2\nexit 3\n"
	if err := os.WriteFile(bin, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}

	res, err := Run(context.Background(), Spec{Argv: []string{bin}, Dir: dir}, bin)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitStatus != 3 {
		t.Errorf("ExitStatus = %d, want 3", res.ExitStatus)
	}
	if res.WasSignalled {
		t.Error("WasSignalled = true, want false")
	}
}

func TestRunReportsSignalDeath(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "cc")
	script := "#!/bin/sh\nkill -TERM $$\n"
	if err := os.WriteFile(bin, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}

	res, err := Run(context.Background(), Spec{Argv: []string{bin}, Dir: dir}, bin)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.WasSignalled {
		t.Error("WasSignalled = false, want true")
	}
}
