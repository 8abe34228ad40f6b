// Package rawsys provides the Go-side raw, direct-to-kernel syscall gate:
// the prctl that arms or disarms syscall user dispatch, the
// rt_tgsigqueueinfo behind thread signalling, and the getpid/gettid
// lookups. The syscalls the SIGSYS handler performs on a trapped thread's
// behalf go through the engine package's own C gate instead.
//
// Every call here bypasses glibc/libc entirely and goes straight through
// golang.org/x/sys/unix's raw trap wrappers. That matters for exactly one
// reason: once a thread has PR_SET_SYSCALL_USER_DISPATCH armed, a normal
// libc call (which might itself issue a disallowed syscall, e.g. to take
// an internal lock) can recurse back into SIGSYS delivery. The
// thread-control primitives in this package are written to make
// only the syscalls they mean to make, nothing incidental.
package rawsys

import (
	"golang.org/x/sys/unix"
)

// Six evaluates a 6-argument raw syscall and returns its result the way the
// kernel does: a single signed return value, negative errno range folded
// into err when negative. It is the Go-side counterpart of the raw gate
// the engine's C core uses to complete a trapped syscall
// (sysfail_continue_syscall in engine/dispatch.c); sigproto uses it to
// issue rt_tgsigqueueinfo.
func Six(trap, a1, a2, a3, a4, a5, a6 uintptr) (ret uintptr, err error) {
	r1, _, errno := unix.RawSyscall6(trap, a1, a2, a3, a4, a5, a6)
	if errno != 0 {
		return r1, errno
	}
	return r1, nil
}

// Three evaluates a 3-argument raw syscall.
func Three(trap, a1, a2, a3 uintptr) (ret uintptr, err error) {
	r1, _, errno := unix.RawSyscall(trap, a1, a2, a3)
	if errno != 0 {
		return r1, errno
	}
	return r1, nil
}

// PR_SET_SYSCALL_USER_DISPATCH is not exposed by x/sys/unix; its value is
// fixed by the Linux UAPI (include/uapi/linux/prctl.h) and stable across
// kernel versions since its introduction in 5.11.
const prSetSyscallUserDispatch = 59

// PrctlSyscallUserDispatch arms or disarms syscall user dispatch for the
// calling thread via prctl(PR_SET_SYSCALL_USER_DISPATCH, mode, offset, len,
// selector). mode is PR_SYS_DISPATCH_ON or PR_SYS_DISPATCH_OFF; rangeStart
// and rangeLen describe the allowed (non-trapped) address range — the
// injector's own self-text — and selectorAddr points at the calling
// thread's toggle byte (0 when disarming, since the kernel ignores it in
// that mode).
func PrctlSyscallUserDispatch(mode, rangeStart, rangeLen, selectorAddr uintptr) error {
	_, _, errno := unix.RawSyscall6(unix.SYS_PRCTL, prSetSyscallUserDispatch, mode, rangeStart, rangeLen, selectorAddr, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// Getpid issues a raw getpid(), returning the process id (the thread
// group id) without a libc round trip.
func Getpid() int {
	r, _, _ := unix.RawSyscall(unix.SYS_GETPID, 0, 0, 0)
	return int(r)
}

// Gettid issues a raw gettid().
func Gettid() int {
	r, _, _ := unix.RawSyscall(unix.SYS_GETTID, 0, 0, 0)
	return int(r)
}

// Tgkill sends signal sig to thread tid in thread group tgid via the raw
// tgkill() syscall, without involving libc's pthread_kill bookkeeping.
// No package in this module calls it.
func Tgkill(tgid, tid, sig int) error {
	_, err := Three(unix.SYS_TGKILL, uintptr(tgid), uintptr(tid), uintptr(sig))
	return err
}
