package frame

import (
	"bufio"
	"bytes"
	"testing"
)

func TestWriteReadIntRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		token string
		value uint32
	}{
		{"zero", "ARGC", 0},
		{"small", "NFIL", 3},
		{"max", "TLEN", 0xffffffff},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteInt(&buf, tt.token, tt.value); err != nil {
				t.Fatalf("WriteInt: %v", err)
			}
			if buf.Len() != unitLen {
				t.Fatalf("wrote %d bytes, want %d", buf.Len(), unitLen)
			}
			got, err := ReadInt(bufio.NewReader(&buf), tt.token)
			if err != nil {
				t.Fatalf("ReadInt: %v", err)
			}
			if got != tt.value {
				t.Errorf("got %d, want %d", got, tt.value)
			}
		})
	}
}

func TestReadIntTokenMismatch(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteInt(&buf, "DIST", 1); err != nil {
		t.Fatal(err)
	}
	_, err := ReadInt(bufio.NewReader(&buf), "ARGC")
	if err == nil {
		t.Fatal("expected a mismatch error")
	}
	var mismatch *MismatchError
	if !errorsAs(err, &mismatch) {
		t.Fatalf("got %T, want *MismatchError", err)
	}
}

func errorsAs(err error, target **MismatchError) bool {
	if m, ok := err.(*MismatchError); ok {
		*target = m
		return true
	}
	return false
}

func TestWriteReadStringRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("/usr/bin/gcc")
	if err := WriteString(&buf, "ARGV", payload); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	got, err := ReadString(bufio.NewReader(&buf), "ARGV")
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("got %q, want %q", got, payload)
	}
}

func TestReadSomeIntDispatchesOnToken(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteInt(&buf, "LINK", 10); err != nil {
		t.Fatal(err)
	}
	tok, val, err := ReadSomeInt(bufio.NewReader(&buf))
	if err != nil {
		t.Fatalf("ReadSomeInt: %v", err)
	}
	if tok != "LINK" || val != 10 {
		t.Errorf("got (%s, %d), want (LINK, 10)", tok, val)
	}
}
