// Package auth implements distccd's optional GSS-API-style mutual
// authentication layer: a one-byte handshake, a security-context token
// exchange requiring mutual authentication plus replay and sequence
// detection, principal extraction, and a sorted black/white-list check.
//
// The context-flag vocabulary is taken from gokrb5's gssapi subpackage
// (github.com/jcmturner/gokrb5/v8/gssapi) rather than hand-rolled
// constants.
package auth

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/jcmturner/gokrb5/v8/gssapi"

	derrors "github.com/distccd-go/distccd/internal/errors"
)

// handshakeByte is the single byte exchanged before context negotiation
// begins, matching HANDSHAKE in auth_distccd.c.
const handshakeByte = '*'

// RequiredFlags are the three context properties distccd insists on before
// it will trust a negotiated identity: mutual authentication (the server
// proves its identity to the client, not just vice versa), replay
// detection, and sequence detection.
var RequiredFlags = gssapi.ContextFlagMutual | gssapi.ContextFlagReplay | gssapi.ContextFlagSequence

// SecurityContext is the result of a completed context negotiation: the
// peer's authenticated principal name and the flags the underlying
// mechanism actually granted.
type SecurityContext struct {
	Principal string
	Flags     gssapi.ContextFlag
}

// Negotiator abstracts the GSS-API security-context accept loop so auth can
// be tested without a live Kerberos realm. This repository defines only the
// interface and ships no concrete Negotiator; distccd's own protocol only
// cares about the three-part contract below.
type Negotiator interface {
	// Accept consumes the client's next token from r, and either returns a
	// completed SecurityContext, or writes a continuation token to w and
	// reports done=false to be called again.
	Accept(r io.Reader, w io.Writer) (ctx *SecurityContext, done bool, err error)
}

// PrincipalList is a sorted black- or white-list of GSS principal names,
// checked via binary search exactly like dcc_gssapi_bin_search.
type PrincipalList struct {
	names  []string
	isDeny bool
}

// NewPrincipalList builds a sorted list from unsorted input. isDeny selects
// blacklist semantics (listed principals are rejected) versus whitelist
// semantics (only listed principals are accepted).
func NewPrincipalList(names []string, isDeny bool) *PrincipalList {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	return &PrincipalList{names: sorted, isDeny: isDeny}
}

// LoadPrincipalList reads one principal name per line from path, skipping
// blank lines and "#"-prefixed comments, matching dcc_gssapi_load_list's
// file format for --gssapi-whitelist/--gssapi-blacklist.
func LoadPrincipalList(path string, isDeny bool) (*PrincipalList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, derrors.Wrap(err, derrors.IOError, "auth.LoadPrincipalList")
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, derrors.Wrap(err, derrors.IOError, "auth.LoadPrincipalList")
	}
	return NewPrincipalList(names, isDeny), nil
}

// normalize strips a "@REALM" suffix, matching dcc_gssapi_check_list's
// name-comparison behaviour.
func normalize(principal string) string {
	if i := strings.IndexByte(principal, '@'); i >= 0 {
		return principal[:i]
	}
	return principal
}

// Len reports the number of principals in the list.
func (l *PrincipalList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.names)
}

// Check reports whether principal is permitted under this list's policy.
func (l *PrincipalList) Check(principal string) error {
	if l == nil || len(l.names) == 0 {
		return nil
	}
	name := normalize(principal)
	idx := sort.SearchStrings(l.names, name)
	found := idx < len(l.names) && l.names[idx] == name
	if l.isDeny {
		if found {
			return derrors.ErrAuthRejected
		}
		return nil
	}
	if found {
		return nil
	}
	return derrors.ErrAuthRejected
}

// Handshake performs the one-byte exchange that precedes context
// negotiation: distccd writes '*', the client must echo it back.
func Handshake(rw io.ReadWriter) error {
	if _, err := rw.Write([]byte{handshakeByte}); err != nil {
		return derrors.Wrap(err, derrors.IOError, "auth.Handshake")
	}
	buf := make([]byte, 1)
	if _, err := io.ReadFull(rw, buf); err != nil {
		return derrors.Wrap(err, derrors.IOError, "auth.Handshake")
	}
	if buf[0] != handshakeByte {
		return derrors.ErrBadHandshake
	}
	return nil
}

// Authenticate drives the negotiation loop to completion, verifies the
// resulting context carries every flag in RequiredFlags, checks the
// principal against list, and writes the single 'y'/'n' status byte back
// to the client, mirroring dcc_gssapi_accept_secure_context and
// dcc_gssapi_notify_client.
func Authenticate(rw *bufio.ReadWriter, neg Negotiator, list *PrincipalList) (*SecurityContext, error) {
	if err := Handshake(rw); err != nil {
		notify(rw, false)
		return nil, err
	}

	var ctx *SecurityContext
	for {
		c, done, err := neg.Accept(rw, rw)
		if err != nil {
			notify(rw, false)
			return nil, derrors.Wrap(err, derrors.AccessDenied, "auth.Authenticate")
		}
		if done {
			ctx = c
			break
		}
		if err := rw.Flush(); err != nil {
			return nil, derrors.Wrap(err, derrors.IOError, "auth.Authenticate")
		}
	}

	if ctx.Flags&RequiredFlags != RequiredFlags {
		notify(rw, false)
		return nil, derrors.ErrMissingContextFlags
	}

	if err := list.Check(ctx.Principal); err != nil {
		notify(rw, false)
		return nil, err
	}

	notify(rw, true)
	if err := rw.Flush(); err != nil {
		return nil, derrors.Wrap(err, derrors.IOError, "auth.Authenticate")
	}
	return ctx, nil
}

func notify(w io.Writer, ok bool) {
	status := byte('n')
	if ok {
		status = 'y'
	}
	fmt.Fprintf(w, "%c", status)
	if f, ok := w.(interface{ Flush() error }); ok {
		f.Flush()
	}
}
