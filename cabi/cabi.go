// Command cabi is the foreign-ABI wrapper: built with
// `go build -buildmode=c-shared`, it produces libsysfail*.so, exposing
// the bit-exact plain-data plan description as a C entry point and
// translating it into this module's native plan.Plan before delegating
// to the root Session type.
//
// Package main is required here by -buildmode=c-shared, not by any
// intent to run this as a standalone program; main itself is never
// called.
package main

/*
#include <stdlib.h>
#include "abi.h"
*/
import "C"

import (
	"sync"
	"time"
	"unsafe"

	sysfail "sysfail-go"
	"sysfail-go/plan"
)

// handles keeps every live Session reachable from a small integer token
// rather than handing C code an actual Go pointer: cgo forbids C from
// retaining a Go pointer past the call that handed it over, and the
// opaque handle returned to a foreign caller must stay valid indefinitely.
var (
	handlesMu sync.Mutex
	handles   = map[uintptr]*sysfail.Session{}
	nextToken uintptr = 1
)

func registerSession(s *sysfail.Session) uintptr {
	handlesMu.Lock()
	defer handlesMu.Unlock()
	tok := nextToken
	nextToken++
	handles[tok] = s
	return tok
}

func lookupSession(tok uintptr) *sysfail.Session {
	handlesMu.Lock()
	defer handlesMu.Unlock()
	return handles[tok]
}

func forgetSession(tok uintptr) {
	handlesMu.Lock()
	defer handlesMu.Unlock()
	delete(handles, tok)
}

// translatePlan walks the singly-linked list of outcome nodes described
// in the plain-data plan into a plan.Plan. The plan's selector and its
// context become a Go closure that calls back through abi_helpers.c's
// sysfail_call_selector shim; each node's eligibility predicate is
// carried through as a raw C function pointer (see translateOutcome).
func translatePlan(cp *C.sysfail_plain_plan_t) plan.Plan {
	p := plan.Plan{Outcomes: make(map[int]plan.Outcome)}

	if cp.selector != nil {
		selector := cp.selector
		ctx := cp.selector_ctx
		p.ThreadEligible = func(tid int) bool {
			return C.sysfail_call_selector(selector, ctx, C.int(tid)) != 0
		}
	}

	switch cp.discovery_kind {
	case C.SYSFAIL_DISCOVERY_PERIODIC_POLL:
		interval := time.Duration(cp.discovery.interval_usec) * time.Microsecond
		p.ThreadDiscovery = plan.PeriodicPollDiscovery{Interval: interval}
	default:
		p.ThreadDiscovery = plan.NoDiscovery{}
	}

	for node := cp.outcomes; node != nil; node = node.next {
		p.Outcomes[int(node.syscall_nr)] = translateOutcome(node)
	}

	return p
}

func translateOutcome(node *C.sysfail_outcome_node_t) plan.Outcome {
	n := int(node.n_errnos)
	weights := make(map[int]float64, n)
	if n > 0 {
		entries := unsafe.Slice((*C.sysfail_weight_entry_t)(unsafe.Pointer(&node.errnos[0])), n)
		for _, e := range entries {
			weights[int(e.errno_value)] = float64(e.weight)
		}
	}

	outcome := plan.Outcome{
		Fail:         plan.Probability{P: float64(node.fail_p), AfterBias: float64(node.fail_after_bias)},
		Delay:        plan.Probability{P: float64(node.delay_p), AfterBias: float64(node.delay_after_bias)},
		MaxDelay:     time.Duration(node.max_delay_usec) * time.Microsecond,
		ErrorWeights: weights,
	}

	if node.eligible != nil {
		// Pass the predicate through as the raw C function pointer and
		// context it already is, rather than wrapping it in a Go
		// closure: the engine's SIGSYS handler evaluates this directly
		// from signal-handler context, where no Go closure could ever
		// be invoked. sysfail_call_eligible (abi_helpers.c) exists for
		// the rare case a Go caller wants to probe a foreign predicate
		// outside the handler; the live dispatch
		// path calls node.eligible itself, through engine/dispatch.c.
		outcome.EligibleFn = uintptr(unsafe.Pointer(node.eligible))
		outcome.EligibleCtx = node.eligible_ctx
	}

	return outcome
}

// sysfail_session_new is the sole entry point a foreign caller needs: it
// translates plan, starts a Session in shared-library self-text mode, and
// returns an opaque handle wired to the exported functions below. A null
// plan, or a translation/Session-construction failure, returns a null
// handle.
//
//export sysfail_session_new
func sysfail_session_new(cp *C.sysfail_plain_plan_t) *C.sysfail_session_handle_t {
	if cp == nil {
		return nil
	}
	p := translatePlan(cp)
	s, err := sysfail.NewSession(p, sysfail.Shared)
	if err != nil {
		return nil
	}
	tok := registerSession(s)
	return C.sysfail_new_handle(unsafe.Pointer(tok))
}

//export sysfailGoStop
func sysfailGoStop(data unsafe.Pointer) {
	tok := uintptr(data)
	if s := lookupSession(tok); s != nil {
		s.Close()
		forgetSession(tok)
	}
}

//export sysfailGoAddThisThread
func sysfailGoAddThisThread(data unsafe.Pointer) {
	if s := lookupSession(uintptr(data)); s != nil {
		s.Add()
	}
}

//export sysfailGoRemoveThisThread
func sysfailGoRemoveThisThread(data unsafe.Pointer) {
	if s := lookupSession(uintptr(data)); s != nil {
		s.Remove()
	}
}

//export sysfailGoAddThread
func sysfailGoAddThread(data unsafe.Pointer, tid C.int) {
	if s := lookupSession(uintptr(data)); s != nil {
		s.AddThread(int(tid))
	}
}

//export sysfailGoRemoveThread
func sysfailGoRemoveThread(data unsafe.Pointer, tid C.int) {
	if s := lookupSession(uintptr(data)); s != nil {
		s.RemoveThread(int(tid))
	}
}

//export sysfailGoDiscoverThreads
func sysfailGoDiscoverThreads(data unsafe.Pointer) {
	if s := lookupSession(uintptr(data)); s != nil {
		s.DiscoverThreads()
	}
}

func main() {}
