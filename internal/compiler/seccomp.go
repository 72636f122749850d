package compiler

import (
	"fmt"
	"syscall"
	"unsafe"
)

// Seccomp filter constants, lifted from linux/seccomp-bpf.h. Only what's
// needed to build a deny-list filter is reproduced here.
const (
	seccompSetModeFilter = 2
	retKillProcess       = 0x80000000
	retAllow             = 0x7fff0000
	retErrno             = 0x00050000

	prSetNoNewPrivs = 38
	prSetSeccomp    = 22

	bpfLD  = 0x00
	bpfJMP = 0x05
	bpfRet = 0x06
	bpfW   = 0x00
	bpfABS = 0x20
	bpfJEQ = 0x10
	bpfK   = 0x00

	offsetNR = 0

	auditArchX8664 = 0xc000003e
)

type sockFilter struct {
	Code uint16
	Jt   uint8
	Jf   uint8
	K    uint32
}

type sockFprog struct {
	Len    uint16
	Filter *sockFilter
}

// denylistSyscalls blocks operations a compiler invocation has no
// legitimate reason to perform: ptrace, creating or connecting sockets,
// kernel module loading/unloading, reboot, and mount/umount2. This is an
// optional hardening layer, not a sandbox -- any syscall absent from this
// table is not restricted.
var denylistSyscalls = map[string]int64{
	"ptrace":       101,
	"socket":       41,
	"connect":      42,
	"init_module":  175,
	"delete_module": 176,
	"reboot":       169,
	"mount":        165,
	"umount2":      166,
}

// ApplyDenylist installs a seccomp-bpf filter in the *calling* thread that
// kills the process if it attempts any syscall in denylistSyscalls. It must
// be called after fork, immediately before exec, from the child side of a
// SysProcAttr-less raw fork -- the exec.Cmd path used by Run does not call
// it, and no command in this repository calls it; it is exposed for
// callers that build their own child bootstrap.
func ApplyDenylist() error {
	instrs := []sockFilter{
		{bpfLD | bpfW | bpfABS, 0, 0, offsetNR},
	}
	for _, nr := range denylistSyscalls {
		instrs = append(instrs, sockFilter{bpfJMP | bpfJEQ | bpfK, 0, 1, uint32(nr)})
		instrs = append(instrs, sockFilter{bpfRet | bpfK, 0, 0, retKillProcess})
	}
	instrs = append(instrs, sockFilter{bpfRet | bpfK, 0, 0, retAllow})

	prog := sockFprog{
		Len:    uint16(len(instrs)),
		Filter: &instrs[0],
	}

	if _, _, errno := syscall.Syscall(syscall.SYS_PRCTL, prSetNoNewPrivs, 1, 0); errno != 0 {
		return fmt.Errorf("seccomp: PR_SET_NO_NEW_PRIVS: %w", errno)
	}
	if _, _, errno := syscall.Syscall(syscall.SYS_PRCTL, prSetSeccomp, seccompSetModeFilter, uintptr(unsafe.Pointer(&prog))); errno != 0 {
		return fmt.Errorf("seccomp: PR_SET_SECCOMP: %w", errno)
	}
	return nil
}
