// Package sigproto implements the realtime-signal plumbing the engine uses
// to rendezvous with individual threads: installing the three control
// signals (SIG_ENABLE, SIG_DISABLE, SIG_REARM) and SIGSYS itself, and
// delivering a pointer-sized payload to a specific thread via
// rt_tgsigqueueinfo so the handler on the receiving end can recover which
// ThreadState it's being asked to act on.
//
// The handlers themselves live in the engine package's C core, which
// installs them with its own sigaction call (sysfail_install_handlers in
// engine/dispatch.c); Install here only takes a handler address as an
// opaque value. Go code itself never runs as the body of a signal handler
// here, since the Go runtime's
// own signal machinery cannot safely be re-entered from a raw, kernel-
// delivered frame.
package sigproto

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"sysfail-go/rawsys"
)

// The three realtime control signals used to coordinate per-thread
// enable/disable/rearm, chosen per the runtime surface contract: any of
// the process's free SIGRTMIN+4..6 slots, left unreserved by the
// standard library's signal-initialization code.
const (
	SigEnable  = unix.SIGRTMIN + 4
	SigDisable = unix.SIGRTMIN + 5
	SigRearm   = unix.SIGRTMIN + 6
)

// Handler is the C function pointer type of an installed handler, passed
// through as an opaque uintptr holding a C function's address. sigproto never calls it
// directly; it only hands it to sigaction(2).
type Handler uintptr

// Install installs handler for signal sig with SA_SIGINFO|SA_NODEFER,
// matching the original engine's enable_handler: an empty mask (the
// handler manages its own re-entrancy via the thread's toggle byte, not
// via signal blocking) and no SA_RESTART, since a restarted syscall would
// defeat the whole point of trapping it.
func Install(sig int, handler Handler) error {
	act := unix.Sigaction{
		Handler: uintptr(handler),
		Flags:   unix.SA_SIGINFO | unix.SA_NODEFER,
	}
	if err := unix.Sigemptyset(&act.Mask); err != nil {
		return fmt.Errorf("sigproto: sigemptyset: %w", err)
	}
	var old unix.Sigaction
	if err := sigactionRaw(sig, &act, &old); err != nil {
		return fmt.Errorf("sigproto: sigaction(%d): %w", sig, err)
	}
	return nil
}

// sigactionRaw wraps unix.Sigaction's sigaction syscall; split out so
// tests can stub it without touching process-wide signal disposition.
func sigactionRaw(sig int, act, old *unix.Sigaction) error {
	return unix.Sigaction(sig, act, old)
}

// rtSiginfo mirrors the kernel's siginfo_t layout for the SI_QUEUE variant
// delivered by rt_tgsigqueueinfo on x86-64: si_signo, si_errno, si_code,
// four bytes of padding to bring the union onto an 8-byte boundary, then
// the _rt member (pid_t, uid_t, union sigval). The kernel reads exactly
// this shape back out of the pointer we hand it; golang.org/x/sys/unix's
// Siginfo type keeps the union opaque, so this package lays it out by
// hand instead.
type rtSiginfo struct {
	signo   int32
	errno   int32
	code    int32
	_       int32
	pid     int32
	uid     uint32
	sigval  uintptr
	_pad    [96]byte // pad out to the kernel's full 128-byte siginfo_t
}

// Send delivers sig to thread tid in the calling process via a raw
// rt_tgsigqueueinfo, carrying payload as the signal's sival_ptr. If the
// kernel reports ESRCH (the thread has already exited), onESRCH is
// invoked with payload instead of the call being treated as an error —
// callers use this to release any rendezvous semaphore a dying thread can
// no longer signal itself, avoiding a deadlock.
func Send(tid int, sig int, payload uintptr, onESRCH func(uintptr)) error {
	pid := rawsys.Getpid()
	info := rtSiginfo{
		signo:  int32(sig),
		code:   unix.SI_QUEUE,
		pid:    int32(pid),
		uid:    uint32(unix.Getuid()),
		sigval: payload,
	}

	_, err := rawsys.Six(unix.SYS_RT_TGSIGQUEUEINFO, uintptr(pid), uintptr(tid), uintptr(sig), uintptr(unsafe.Pointer(&info)), 0, 0)
	if err != nil {
		if err == unix.ESRCH {
			if onESRCH != nil {
				onESRCH(payload)
			}
			return nil
		}
		return fmt.Errorf("sigproto: rt_tgsigqueueinfo(tid=%d, sig=%d): %w", tid, sig, err)
	}
	return nil
}
