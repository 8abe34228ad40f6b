// Package plan defines the probabilistic failure-injection description a
// caller attaches to a Session: which syscalls are affected, how often
// and with which errno, whether the effect lands before or after the
// real kernel call, and which threads and invocations are eligible.
package plan

import (
	"math"
	"time"
	"unsafe"

	"sysfail-go/sysfailerr"
)

// Probability describes the chance an effect fires (P) and, if it does,
// how its firing mass is split between applying before the kernel call
// (1-AfterBias) and applying after it returns (AfterBias). Both fields
// must lie in [0,1].
type Probability struct {
	P         float64
	AfterBias float64
}

func (p Probability) validate(op string) error {
	if p.P < 0 || p.P > 1 || math.IsNaN(p.P) {
		return sysfailerr.WrapDetail(sysfailerr.ErrInvalidProbability, sysfailerr.InvalidArgument, op, "p must be in [0,1]")
	}
	if p.AfterBias < 0 || p.AfterBias > 1 || math.IsNaN(p.AfterBias) {
		return sysfailerr.WrapDetail(sysfailerr.ErrInvalidProbability, sysfailerr.InvalidArgument, op, "after_bias must be in [0,1]")
	}
	return nil
}

// Registers is the subset of the trapped thread's register frame an
// eligibility predicate may inspect: the syscall number and its six
// arguments, matching the x86-64 syscall ABI (rax and rdi..r9).
type Registers struct {
	Nr                                 int64
	Arg1, Arg2, Arg3, Arg4, Arg5, Arg6 uint64
}

// Predicate decides whether a specific invocation (identified by its
// register frame) is eligible for the Outcome it belongs to. A nil
// Predicate means "always eligible".
type Predicate func(Registers) bool

// Outcome describes the failure behavior attached to one syscall number.
type Outcome struct {
	Fail         Probability
	Delay        Probability
	MaxDelay     time.Duration
	ErrorWeights map[int]float64 // errno -> positive weight
	Eligible     Predicate

	// EligibleFn and EligibleCtx carry a C-callable eligibility predicate
	// (a plain function pointer plus an opaque context, matching the
	// shape cabi's foreign ABI already exposes as sysfail_eligible_fn),
	// evaluated directly from the SIGSYS handler for every trapped
	// invocation of this syscall. EligibleFn is stored as a uintptr
	// rather than a typed cgo function-pointer so this package stays
	// cgo-free; engine's marshaling code converts it back to
	// C.sysfail_eligible_fn. A zero EligibleFn means "no native
	// predicate", not "reject everything".
	//
	// Eligible (the Go closure above) cannot be substituted for this:
	// the signal handler runs with no Go runtime available to call back
	// into (see engine's package doc), so only a predicate that is
	// already a raw C function pointer — as cabi's callers supply — can
	// be enforced on the live dispatch path. Eligible remains available
	// for callers who only need to reason about eligibility outside
	// signal context; the live dispatcher never evaluates it.
	EligibleFn  uintptr
	EligibleCtx unsafe.Pointer
}

// Validate enforces the invariants: both embedded Probabilities are in
// range; ErrorWeights entries are positive and finite; if Fail.P > 0 the
// weight map is non-empty; if Delay.P > 0 then MaxDelay > 0.
func (o Outcome) Validate() error {
	const op = "Outcome.Validate"
	if err := o.Fail.validate(op); err != nil {
		return err
	}
	if err := o.Delay.validate(op); err != nil {
		return err
	}
	if o.Fail.P > 0 && len(o.ErrorWeights) == 0 {
		return sysfailerr.WrapDetail(sysfailerr.ErrEmptyErrorWeights, sysfailerr.InvalidArgument, op, "fail.p > 0 requires at least one error weight")
	}
	for errno, weight := range o.ErrorWeights {
		if weight <= 0 || math.IsNaN(weight) || math.IsInf(weight, 0) {
			return sysfailerr.WrapDetail(sysfailerr.ErrNonPositiveWeight, sysfailerr.InvalidArgument, op, "errno "+itoa(errno)+" has non-positive or non-finite weight")
		}
	}
	if o.Delay.P > 0 && o.MaxDelay <= 0 {
		return sysfailerr.WrapDetail(sysfailerr.ErrZeroMaxDelay, sysfailerr.InvalidArgument, op, "delay.p > 0 requires a positive max_delay")
	}
	return nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// ThreadDiscovery selects how the Session finds threads to bring under
// dispatch beyond the ones explicitly added. It mirrors thdmon.Strategy
// one level up, at the plan-authoring layer.
type ThreadDiscovery interface {
	isThreadDiscovery()
}

// NoDiscovery disables automatic thread discovery; threads must be added
// explicitly via Session.Add.
type NoDiscovery struct{}

func (NoDiscovery) isThreadDiscovery() {}

// PeriodicPollDiscovery rescans the process's threads every Interval.
type PeriodicPollDiscovery struct {
	Interval time.Duration
}

func (PeriodicPollDiscovery) isThreadDiscovery() {}

// Plan is an immutable mapping from syscall number to Outcome, a
// thread-eligibility predicate, and a thread-discovery strategy.
type Plan struct {
	Outcomes        map[int]Outcome
	ThreadEligible  func(tid int) bool
	ThreadDiscovery ThreadDiscovery
}

// Validate checks every Outcome in the plan and fills in sensible
// defaults (ThreadEligible defaulting to "all threads eligible",
// ThreadDiscovery defaulting to NoDiscovery) if unset.
func (p *Plan) Validate() error {
	for nr, o := range p.Outcomes {
		if err := o.Validate(); err != nil {
			return sysfailerr.WrapDetail(err, sysfailerr.InvalidArgument, "Plan.Validate", "syscall "+itoa(nr))
		}
	}
	if p.ThreadEligible == nil {
		p.ThreadEligible = func(int) bool { return true }
	}
	if p.ThreadDiscovery == nil {
		p.ThreadDiscovery = NoDiscovery{}
	}
	return nil
}
