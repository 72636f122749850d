package netsrv

import (
	"testing"
)

func TestListenRejectsOutOfRangePort(t *testing.T) {
	if _, err := Listen(Options{Port: -1}); err == nil {
		t.Fatal("expected error for negative port")
	}
	if _, err := Listen(Options{Port: 70000}); err == nil {
		t.Fatal("expected error for port > 65535")
	}
}

func TestListenBindsEphemeralPort(t *testing.T) {
	ln, err := Listen(Options{Addr: "127.0.0.1", Port: 0})
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	if ln.Addr() == nil {
		t.Fatal("expected non-nil bound address")
	}
}
