package auth

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/jcmturner/gokrb5/v8/gssapi"
)

type fakeNegotiator struct {
	ctx *SecurityContext
	err error
}

func (f *fakeNegotiator) Accept(r io.Reader, w io.Writer) (*SecurityContext, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	return f.ctx, true, nil
}

func pipePair() (*bufio.ReadWriter, *bytes.Buffer, *bytes.Buffer) {
	in := &bytes.Buffer{}
	out := &bytes.Buffer{}
	rw := bufio.NewReadWriter(bufio.NewReader(in), bufio.NewWriter(out))
	return rw, in, out
}

func TestAuthenticateAcceptsFullFlagsAndAllowedPrincipal(t *testing.T) {
	rw, in, out := pipePair()
	in.WriteByte('*') // client echoes the handshake byte

	neg := &fakeNegotiator{ctx: &SecurityContext{
		Principal: "builder@EXAMPLE.COM",
		Flags:     gssapi.ContextFlagMutual | gssapi.ContextFlagReplay | gssapi.ContextFlagSequence,
	}}
	list := NewPrincipalList([]string{"builder"}, false)

	ctx, err := Authenticate(rw, neg, list)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if ctx.Principal != "builder@EXAMPLE.COM" {
		t.Errorf("Principal = %q", ctx.Principal)
	}
	if last := out.Bytes(); len(last) == 0 || last[len(last)-1] != 'y' {
		t.Errorf("expected trailing 'y' status byte, got %v", last)
	}
}

func TestAuthenticateRejectsMissingFlags(t *testing.T) {
	rw, in, out := pipePair()
	in.WriteByte('*')

	neg := &fakeNegotiator{ctx: &SecurityContext{
		Principal: "builder",
		Flags:     gssapi.ContextFlagMutual, // replay/sequence missing
	}}

	_, err := Authenticate(rw, neg, nil)
	if err == nil {
		t.Fatal("expected rejection for missing flags")
	}
	if last := out.Bytes(); len(last) == 0 || last[len(last)-1] != 'n' {
		t.Errorf("expected trailing 'n' status byte, got %v", last)
	}
}

func TestAuthenticateRejectsBadHandshake(t *testing.T) {
	rw, in, _ := pipePair()
	in.WriteByte('x')

	_, err := Authenticate(rw, &fakeNegotiator{}, nil)
	if err == nil {
		t.Fatal("expected bad handshake error")
	}
}

func TestPrincipalListBlacklist(t *testing.T) {
	list := NewPrincipalList([]string{"carol", "alice"}, true)
	if err := list.Check("alice@EXAMPLE.COM"); err == nil {
		t.Error("expected alice to be denied")
	}
	if err := list.Check("bob"); err != nil {
		t.Errorf("expected bob to be allowed, got %v", err)
	}
}

func TestPrincipalListWhitelist(t *testing.T) {
	list := NewPrincipalList([]string{"carol", "alice"}, false)
	if err := list.Check("alice"); err != nil {
		t.Errorf("expected alice to be allowed, got %v", err)
	}
	if err := list.Check("bob"); err == nil {
		t.Error("expected bob to be denied")
	}
}

func TestLoadPrincipalListSkipsBlankAndCommentLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "whitelist")
	content := "# allowed builders\nalice\n\nbob\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	list, err := LoadPrincipalList(path, false)
	if err != nil {
		t.Fatalf("LoadPrincipalList: %v", err)
	}
	if list.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", list.Len())
	}
	if err := list.Check("alice"); err != nil {
		t.Errorf("expected alice to be allowed, got %v", err)
	}
	if err := list.Check("carol"); err == nil {
		t.Error("expected carol to be denied")
	}
}

func TestLoadPrincipalListMissingFile(t *testing.T) {
	if _, err := LoadPrincipalList(filepath.Join(t.TempDir(), "missing"), false); err == nil {
		t.Fatal("expected error for missing file")
	}
}
