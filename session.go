// Package sysfail injects syscall failures into a running process for
// fault-tolerance testing: an application describes a Plan — which
// syscalls to affect, with what probability of failure or delay, and
// which of its threads are in scope — and starts a Session. While the
// Session is live, every matching syscall issued by an armed thread from
// code outside the injector's own executable text (see Mode) passes
// through a SIGSYS-based interception engine that can delay it, replace
// its result with a chosen errno, or both.
//
// Only one Session may be active in a process at a time; a second
// attempt returns ErrAlreadyActive. Thread scope can grow either through
// explicit Add/Remove calls or through the Plan's configured thread-
// discovery strategy (see the plan package's ThreadDiscovery).
package sysfail

import (
	"fmt"
	"sync"

	"sysfail-go/engine"
	"sysfail-go/plan"
	"sysfail-go/procmap"
	"sysfail-go/rawsys"
	"sysfail-go/sigproto"
	"sysfail-go/synclog"
	"sysfail-go/sysfailerr"
	"sysfail-go/thdmon"
	"sysfail-go/thdstate"
)

// Mode selects how the Session identifies its own executable text, the
// one address range syscall user dispatch must allow through untrapped.
type Mode int

const (
	// Embedded treats the whole statically linked binary — including
	// application code — as self-text, via /proc/self/exe's realpath.
	// This is the primary mode for a Go program linking this package
	// directly; the tradeoff is that application code sharing the
	// binary is, by construction, exempt from interception exactly like
	// the injector's own code.
	Embedded Mode = iota
	// Shared treats only a libsysfail*.so mapping as self-text, matching
	// the original library's separate-.so deployment. Use this when the
	// cabi package is built with -buildmode=c-shared and loaded into an
	// arbitrary host process.
	Shared
)

var (
	globalMu      sync.Mutex
	globalSession *Session
)

// Session owns one process's interception state: the compiled plan, the
// thread table, the thread-discovery monitor, and the signal plumbing.
// Only one Session may be live in a process at a time (PR_SET_SYSCALL_
// USER_DISPATCH is process-wide signal disposition plus per-thread
// state, and the SIGSYS handler consults a single active plan).
type Session struct {
	mu       sync.RWMutex
	plan     *plan.ActivePlan
	compiled interface{ Free() }
	selfText procmap.AddrRange
	threads  thdstate.Table
	monitor  *thdmon.Monitor
	closed   bool
}

// NewSession validates p, compiles it, identifies self-text according to
// mode, installs the engine's signal handlers, and starts thread
// discovery. Only one Session may exist per process.
func NewSession(p plan.Plan, mode Mode) (*Session, error) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalSession != nil {
		return nil, sysfailerr.ErrAlreadyActive
	}

	ap, err := plan.Compile(p)
	if err != nil {
		return nil, err
	}

	selfText, err := resolveSelfText(mode)
	if err != nil {
		return nil, sysfailerr.Wrap(err, sysfailerr.MapNotFound, "NewSession")
	}

	compiled, err := engine.SetPlan(ap, selfText)
	if err != nil {
		return nil, sysfailerr.Wrap(err, sysfailerr.Internal, "NewSession")
	}

	if err := engine.InstallHandlers(sigproto.SigEnable, sigproto.SigDisable, sigproto.SigRearm); err != nil {
		compiled.Free()
		return nil, sysfailerr.Wrap(err, sysfailerr.SignalInstallFailed, "NewSession")
	}

	s := &Session{plan: ap, compiled: compiled, selfText: selfText}

	strategy, err := monitorStrategy(ap.ThreadDiscovery)
	if err != nil {
		compiled.Free()
		return nil, err
	}

	monitor, err := thdmon.New(strategy, func(tid int, state thdmon.State) {
		s.trackThread(tid, state)
	})
	if err != nil {
		compiled.Free()
		return nil, sysfailerr.Wrap(err, sysfailerr.MonitorStartFailed, "NewSession")
	}
	s.monitor = monitor

	globalSession = s
	synclog.Info("sysfail session started", "self_text_start", fmt.Sprintf("%#x", selfText.Start))
	return s, nil
}

func resolveSelfText(mode Mode) (procmap.AddrRange, error) {
	m, err := procmap.ReadMaps(rawsys.Getpid())
	if err != nil {
		return procmap.AddrRange{}, err
	}

	switch mode {
	case Shared:
		return m.SelfText(procmap.SharedSelf())
	default:
		exe, err := resolveExePath()
		if err != nil {
			return procmap.AddrRange{}, err
		}
		return m.SelfText(procmap.EmbeddedSelf(exe))
	}
}

func monitorStrategy(td plan.ThreadDiscovery) (thdmon.Strategy, error) {
	switch s := td.(type) {
	case plan.NoDiscovery, nil:
		return thdmon.NoPoll{}, nil
	case plan.PeriodicPollDiscovery:
		return thdmon.PeriodicPoll{Interval: s.Interval}, nil
	default:
		return nil, sysfailerr.New(sysfailerr.InvalidArgument, "NewSession", "unknown thread discovery strategy")
	}
}

// trackThread mirrors the original ActiveSession::thd_track switch:
// newly discovered threads are brought under dispatch if the plan's
// thread-eligibility predicate accepts them; threads that vanished are
// disabled (releasing their ThreadState).
func (s *Session) trackThread(tid int, state thdmon.State) {
	switch state {
	case thdmon.Existing, thdmon.Spawned:
		if err := s.enableRemote(tid); err != nil {
			synclog.Warn("failed to enable discovered thread", "tid", tid, "error", err)
		}
	case thdmon.Terminated:
		s.disableRemote(tid)
	}
}

// Add brings the calling goroutine's OS thread under dispatch directly,
// without a signal round trip (the original's parameterless thd_enable).
// Callers running on a goroutine that is not locked to its OS thread via
// runtime.LockOSThread should not use this; a later goroutine migration
// would silently leave behind an armed thread no one disables.
func (s *Session) Add() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return sysfailerr.ErrNoActiveSession
	}
	tid := rawsys.Gettid()
	if !s.plan.ThreadEligible(tid) {
		return nil
	}
	ts := s.threads.GetOrCreate(tid)
	if err := engine.EnableLocal(s.selfText, ts.SelectorAddr()); err != nil {
		s.threads.Remove(tid)
		return sysfailerr.Wrap(err, sysfailerr.KernelRefusedDispatch, "Session.Add")
	}
	ts.SetToggle(thdstate.ToggleBlock)
	return nil
}

// Remove disarms the calling thread directly.
func (s *Session) Remove() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return sysfailerr.ErrNoActiveSession
	}
	tid := rawsys.Gettid()
	if _, ok := s.threads.Get(tid); !ok {
		return nil
	}
	if err := engine.DisableLocal(); err != nil {
		return sysfailerr.Wrap(err, sysfailerr.KernelRefusedDispatch, "Session.Remove")
	}
	s.threads.Remove(tid)
	return nil
}

// AddThread arms dispatch remotely for tid via the SIG_ENABLE rendezvous
// protocol, for use when the calling goroutine is not the target thread
// (the original's thd_enable(pid_t)).
func (s *Session) AddThread(tid int) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return sysfailerr.ErrNoActiveSession
	}
	return s.enableRemote(tid)
}

// RemoveThread disarms dispatch remotely for tid (the original's
// thd_disable(pid_t)).
func (s *Session) RemoveThread(tid int) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return sysfailerr.ErrNoActiveSession
	}
	s.disableRemote(tid)
	return nil
}

func (s *Session) enableRemote(tid int) error {
	if !s.plan.ThreadEligible(tid) {
		return nil
	}
	ts := s.threads.GetOrCreate(tid)
	if err := ts.AcquireCoord(); err != nil {
		return sysfailerr.Wrap(err, sysfailerr.Internal, "Session.enableRemote")
	}

	err := sigproto.Send(tid, sigproto.SigEnable, ts.SelectorAddr(), func(uintptr) {
		ts.ReleaseCoord()
	})
	if err != nil {
		return sysfailerr.Wrap(err, sysfailerr.SignalInstallFailed, "Session.enableRemote")
	}

	// Block until the handler (or the ESRCH fallback above) releases the
	// rendezvous semaphore, then leave it in a reusable state for the
	// next enable/disable cycle, matching the original's acquire-then-
	// immediately-release idiom.
	if err := ts.AcquireCoord(); err != nil {
		return sysfailerr.Wrap(err, sysfailerr.Internal, "Session.enableRemote")
	}
	ts.ReleaseCoord()
	return nil
}

func (s *Session) disableRemote(tid int) {
	ts, ok := s.threads.Get(tid)
	if !ok {
		return
	}
	if err := ts.AcquireCoord(); err != nil {
		synclog.Warn("disableRemote: acquire failed", "tid", tid, "error", err)
	}

	sigproto.Send(tid, sigproto.SigDisable, ts.SelectorAddr(), func(uintptr) {
		ts.ReleaseCoord()
	})

	ts.AcquireCoord()
	ts.ReleaseCoord()
	s.threads.Remove(tid)
}

// DiscoverThreads forces an immediate rescan of the process's threads
// outside the monitor's regular polling cadence.
func (s *Session) DiscoverThreads() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed || s.monitor == nil {
		return sysfailerr.ErrNoActiveSession
	}
	s.monitor.Rescan()
	return nil
}

// Close disables every tracked thread, stops the monitor, and releases
// the process-global Session slot. A Session must be closed before a new
// one can be created.
func (s *Session) Close() error {
	globalMu.Lock()
	defer globalMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	if s.monitor != nil {
		s.monitor.Close()
	}

	var tids []int
	s.threads.Range(func(tid int, _ *thdstate.ThreadState) bool {
		tids = append(tids, tid)
		return true
	})
	for _, tid := range tids {
		s.disableRemoteLocked(tid)
	}
	s.threads.CloseAll()

	if s.compiled != nil {
		s.compiled.Free()
	}

	s.closed = true
	if globalSession == s {
		globalSession = nil
	}
	synclog.Info("sysfail session closed")
	return nil
}

// disableRemoteLocked is disableRemote's body, split out because Close
// already holds s.mu for writing (disableRemote is written for the
// RLock-held Add/Remove call sites).
func (s *Session) disableRemoteLocked(tid int) {
	ts, ok := s.threads.Get(tid)
	if !ok {
		return
	}
	ts.AcquireCoord()
	sigproto.Send(tid, sigproto.SigDisable, ts.SelectorAddr(), func(uintptr) {
		ts.ReleaseCoord()
	})
	ts.AcquireCoord()
	ts.ReleaseCoord()
}
