// Package thdstate implements the per-thread toggle table the SIGSYS
// handler consults to decide whether a trapped thread is currently under
// dispatch.
//
// The toggle byte itself (ALLOW/BLOCK) must live at a stable address the
// kernel can be pointed at directly via PR_SET_SYSCALL_USER_DISPATCH's
// selector argument — a Go-managed object is not good enough, since the
// garbage collector is free to move it and the kernel holds no reference
// the GC would see. Each ThreadState's toggle and its coordination
// semaphore are therefore allocated with C.malloc and never touched by
// the Go allocator, mirroring the teacher's ThdSt exactly: one entry per
// known thread, looked up by tid, mutated under a per-entry lock rather
// than a single table-wide one.
package thdstate

/*
#include <stdlib.h>
#include <string.h>
#include <semaphore.h>

// Mirrors the C struct the engine package's SIGSYS handler reads directly
// (engine/dispatch.h declares the same layout): a
// one-byte dispatch toggle followed by an unnamed POSIX semaphore used to
// rendezvous enable/disable requests with the handler (sem_post is
// async-signal-safe, unlike any pthread mutex or condition variable, so
// it is the only synchronization primitive the handler side may touch).
// Kept in a C-malloc'd block so its address never changes for the
// lifetime of the thread entry.
typedef struct {
    char toggle;
    sem_t sig_coord;
} sysfail_thdstate_t;

static sysfail_thdstate_t *sysfail_thdstate_new(void) {
    sysfail_thdstate_t *t = (sysfail_thdstate_t *)malloc(sizeof(sysfail_thdstate_t));
    if (t != NULL) {
        t->toggle = 0;
        sem_init(&t->sig_coord, 0, 1);
    }
    return t;
}

static void sysfail_thdstate_free(sysfail_thdstate_t *t) {
    sem_destroy(&t->sig_coord);
    free(t);
}

static void sysfail_thdstate_set_toggle(sysfail_thdstate_t *t, char v) {
    t->toggle = v;
}

static char sysfail_thdstate_get_toggle(sysfail_thdstate_t *t) {
    return t->toggle;
}

static int sysfail_thdstate_sem_wait(sysfail_thdstate_t *t) {
    return sem_wait(&t->sig_coord);
}

static int sysfail_thdstate_sem_post(sysfail_thdstate_t *t) {
    return sem_post(&t->sig_coord);
}
*/
import "C"

import (
	"sync"
	"unsafe"
)

// Toggle values matching Linux's SYSCALL_DISPATCH_FILTER_* constants, the
// byte the kernel reads at the selector address on every syscall entry
// from a thread with dispatch armed.
const (
	ToggleAllow byte = 0 // SYSCALL_DISPATCH_FILTER_ALLOW
	ToggleBlock byte = 1 // SYSCALL_DISPATCH_FILTER_BLOCK
)

// ThreadState is one thread's dispatch toggle and handler-coordination
// semaphore, allocated in C memory for address stability. Callers must
// call Close when the entry is removed from the table to avoid leaking
// the backing allocation.
type ThreadState struct {
	mu  sync.Mutex
	ptr *C.sysfail_thdstate_t
}

func newThreadState() *ThreadState {
	ptr := C.sysfail_thdstate_new()
	ts := &ThreadState{ptr: ptr}
	ts.SetToggle(ToggleAllow)
	return ts
}

// Close releases the backing C allocation. The ThreadState must not be
// used afterward.
func (t *ThreadState) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ptr != nil {
		C.sysfail_thdstate_free(t.ptr)
		t.ptr = nil
	}
}

// SelectorAddr returns the address of the toggle byte, suitable for
// passing as the selector argument to PR_SET_SYSCALL_USER_DISPATCH.
func (t *ThreadState) SelectorAddr() uintptr {
	return uintptr(unsafe.Pointer(&t.ptr.toggle))
}

// SetToggle sets the dispatch toggle to v (ToggleAllow or ToggleBlock).
func (t *ThreadState) SetToggle(v byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	C.sysfail_thdstate_set_toggle(t.ptr, C.char(v))
}

// Toggle reads the current dispatch toggle value.
func (t *ThreadState) Toggle() byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return byte(C.sysfail_thdstate_get_toggle(t.ptr))
}

// WithLock runs fn while holding this entry's exclusive lock, matching
// the teacher's per-entry (rather than table-wide) locking discipline:
// one thread's enable/disable rendezvous never blocks another's.
func (t *ThreadState) WithLock(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn()
}

// AcquireCoord blocks on the entry's rendezvous semaphore, the Go-side
// half of the enable/disable handshake: the requesting goroutine acquires
// it before sending SIG_ENABLE/SIG_DISABLE, and the signal handler
// releases it (via sem_post, async-signal-safe) once it has acted on the
// toggle. Acquiring from Go is safe; only the release side is ever called
// from within a signal handler.
func (t *ThreadState) AcquireCoord() error {
	if _, err := C.sysfail_thdstate_sem_wait(t.ptr); err != nil {
		return err
	}
	return nil
}

// ReleaseCoord posts the rendezvous semaphore. Used by Go code on the
// ESRCH fallback path (a thread died before its handler could post for
// it); the handler's own C-side post uses the same underlying sem_t but
// through the engine package's C handlers, not through this binding.
func (t *ThreadState) ReleaseCoord() error {
	if _, err := C.sysfail_thdstate_sem_post(t.ptr); err != nil {
		return err
	}
	return nil
}

// Table is a concurrent tid -> *ThreadState map. There is no Go-ecosystem
// equivalent of the fine-grained concurrent_hash_map the teacher's C++
// neighbor used, so this uses sync.Map for the table itself combined with
// each entry's own lock for anything finer than insert/delete.
type Table struct {
	m sync.Map // tid (int) -> *ThreadState
}

// GetOrCreate returns the existing entry for tid, or allocates and
// inserts a new one.
func (tb *Table) GetOrCreate(tid int) *ThreadState {
	if v, ok := tb.m.Load(tid); ok {
		return v.(*ThreadState)
	}
	ts := newThreadState()
	actual, loaded := tb.m.LoadOrStore(tid, ts)
	if loaded {
		ts.Close()
		return actual.(*ThreadState)
	}
	return ts
}

// Get returns the entry for tid if present.
func (tb *Table) Get(tid int) (*ThreadState, bool) {
	v, ok := tb.m.Load(tid)
	if !ok {
		return nil, false
	}
	return v.(*ThreadState), true
}

// Remove deletes and closes the entry for tid, if present.
func (tb *Table) Remove(tid int) {
	v, ok := tb.m.LoadAndDelete(tid)
	if !ok {
		return
	}
	v.(*ThreadState).Close()
}

// Range calls fn for every (tid, *ThreadState) pair currently in the
// table. fn must not mutate the table.
func (tb *Table) Range(fn func(tid int, ts *ThreadState) bool) {
	tb.m.Range(func(k, v any) bool {
		return fn(k.(int), v.(*ThreadState))
	})
}

// CloseAll removes and closes every entry, used by Session teardown.
func (tb *Table) CloseAll() {
	tb.m.Range(func(k, v any) bool {
		v.(*ThreadState).Close()
		tb.m.Delete(k)
		return true
	})
}
