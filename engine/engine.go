// Package engine is the cgo boundary between the Go-managed Session and
// the C core that actually runs inside a SIGSYS signal handler.
//
// Go code cannot safely be re-entered from a raw kernel-delivered signal
// frame — the Go scheduler's own signal machinery assumes it owns signal
// delivery, and the handler here must run with none of Go's guarantees
// available (no goroutine to resume onto, no safe point to call back
// into the runtime from). So the handler, the per-syscall outcome
// lookup, and the register-restoring resume path are written in C and
// assembly, compiled in by cgo, and the compiled plan is mirrored into
// C-owned memory once up front rather than read through a Go pointer on
// every trap.
package engine

/*
#cgo CFLAGS: -std=c11 -Wall
#include "dispatch.h"
#include <stdlib.h>
#include <string.h>
*/
import "C"

import (
	"fmt"
	"unsafe"

	"sysfail-go/plan"
	"sysfail-go/procmap"
	"sysfail-go/rawsys"
)

// compiledPlan keeps the C allocations backing a sysfail_plan_t alive
// from the Go side so they can be freed when the plan is replaced or the
// Session shuts down. The C core never frees this memory itself.
type compiledPlan struct {
	cPlan     *C.sysfail_plan_t
	cOutcomes []C.sysfail_outcome_t
}

// SetPlan compiles ap into C-owned memory and installs it as the
// process-wide active plan the SIGSYS handler consults. selfText is the
// injector's own executable range, used as the syscall-user-dispatch
// allow range for every thread subsequently armed.
//
// SetPlan does not free a previously installed plan; its owner releases
// it with Free. Callers must ensure no thread is currently armed when
// swapping plans, since the handler reads this table on every trap
// without synchronization beyond the atomic pointer swap in dispatch.c.
func SetPlan(ap *plan.ActivePlan, selfText procmap.AddrRange) (*compiledPlan, error) {
	n := len(ap.Outcomes)

	// The outcome table must live in C-owned memory: dispatch.c holds a
	// long-lived pointer into it from signal-handler context, and cgo
	// forbids C code from retaining a Go pointer past the call that
	// handed it over.
	outcomesSize := unsafe.Sizeof(C.sysfail_outcome_t{}) * uintptr(n)
	outcomesBuf := C.malloc(C.size_t(outcomesSize))
	if outcomesBuf == nil {
		return nil, fmt.Errorf("engine: out of memory allocating outcome table")
	}
	C.memset(outcomesBuf, 0, C.size_t(outcomesSize))
	cOutcomes := unsafe.Slice((*C.sysfail_outcome_t)(outcomesBuf), n)

	for i, ao := range ap.Outcomes {
		if ao == nil {
			continue
		}
		cOutcomes[i] = marshalOutcome(*ao)
	}

	cPlan := (*C.sysfail_plan_t)(C.malloc(C.size_t(unsafe.Sizeof(C.sysfail_plan_t{}))))
	if cPlan == nil {
		C.free(outcomesBuf)
		return nil, fmt.Errorf("engine: out of memory allocating plan")
	}
	cPlan.outcomes = (*C.sysfail_outcome_t)(outcomesBuf)
	cPlan.n_syscalls = C.uint32_t(n)
	cPlan.self_text_start = C.uint64_t(selfText.Start)
	cPlan.self_text_len = C.uint64_t(selfText.Length)

	C.sysfail_set_plan(cPlan)

	return &compiledPlan{cPlan: cPlan, cOutcomes: cOutcomes}, nil
}

// marshalOutcome copies a single ActiveOutcome's cumulative-weight table
// into freshly C.malloc'd memory.
func marshalOutcome(ao plan.ActiveOutcome) C.sysfail_outcome_t {
	var out C.sysfail_outcome_t
	out.fail_p = C.double(ao.Fail.P)
	out.fail_after_bias = C.double(ao.Fail.AfterBias)
	out.delay_p = C.double(ao.Delay.P)
	out.delay_after_bias = C.double(ao.Delay.AfterBias)
	out.max_delay_usec = C.uint64_t(ao.MaxDelay)
	out.total_weight = C.double(ao.TotalWeight)
	out.n_errnos = C.uint32_t(len(ao.ByCumulative))

	// EligibleFn is a raw C function pointer smuggled through plan as a
	// uintptr (see plan.Outcome's doc comment on why that package stays
	// cgo-free); it is never a Go pointer, so converting it back here is
	// safe. A zero value leaves out.eligible NULL, which fail_maybe in
	// dispatch.c treats as "always eligible".
	if ao.EligibleFn != 0 {
		out.eligible = C.sysfail_eligible_fn(unsafe.Pointer(ao.EligibleFn))
		out.eligible_ctx = ao.EligibleCtx
	}

	if len(ao.ByCumulative) > 0 {
		size := unsafe.Sizeof(C.sysfail_weighted_errno_t{}) * uintptr(len(ao.ByCumulative))
		buf := C.malloc(C.size_t(size))
		entries := unsafe.Slice((*C.sysfail_weighted_errno_t)(buf), len(ao.ByCumulative))
		for i, we := range ao.ByCumulative {
			entries[i].cumulative_weight = C.double(we.CumulativeWeight)
			entries[i].errno_value = C.int(we.Errno)
		}
		out.errnos = (*C.sysfail_weighted_errno_t)(buf)
	}
	return out
}

// Free releases every C allocation backing a compiled plan, including
// each outcome's error-weight table. The plan must already have been
// replaced or the Session torn down (no thread may still be armed).
func (cp *compiledPlan) Free() {
	if cp == nil || cp.cPlan == nil {
		return
	}
	for i := range cp.cOutcomes {
		if cp.cOutcomes[i].errnos != nil {
			C.free(unsafe.Pointer(cp.cOutcomes[i].errnos))
		}
	}
	C.free(unsafe.Pointer(cp.cPlan.outcomes))
	C.free(unsafe.Pointer(cp.cPlan))
	cp.cPlan = nil
}

// InstallHandlers installs SIGSYS and the three control-signal handlers
// for the calling process. It must be called exactly once per Session,
// before any thread is armed.
func InstallHandlers(sigEnable, sigDisable, sigRearm int) error {
	ret := C.sysfail_install_handlers(C.int(sigEnable), C.int(sigDisable), C.int(sigRearm))
	if ret != 0 {
		return fmt.Errorf("engine: failed to install signal handlers")
	}
	return nil
}

// EnableLocal arms syscall user dispatch for the calling thread directly
// (no signal round trip), for use when a thread enables sysfail for
// itself. selectorAddr is the address of that thread's ThreadState
// toggle byte.
func EnableLocal(selfText procmap.AddrRange, selectorAddr uintptr) error {
	const prSysDispatchOn = 1
	return rawsys.PrctlSyscallUserDispatch(prSysDispatchOn, selfText.Start, selfText.Length, selectorAddr)
}

// DisableLocal disarms syscall user dispatch for the calling thread.
func DisableLocal() error {
	const prSysDispatchOff = 0
	return rawsys.PrctlSyscallUserDispatch(prSysDispatchOff, 0, 0, 0)
}
