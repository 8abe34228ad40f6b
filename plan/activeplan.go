package plan

import (
	"sort"
	"unsafe"

	"sysfail-go/sysfailerr"
)

// WeightedErrno is one entry of an ActiveOutcome's cumulative-weight
// table: CumulativeWeight is the running sum of this and every prior
// entry's weight, so selection is a single lower-bound search over the
// sorted array.
type WeightedErrno struct {
	CumulativeWeight float64
	Errno            int
}

// ActiveOutcome is the build-time-compiled form of an Outcome: the error
// distribution is flattened into a sorted cumulative-weight array, and a
// missing eligibility predicate is normalized to "always eligible" so Go
// callers of Eligible never have to nil-check it. The SIGSYS handler does
// not call Eligible; it evaluates EligibleFn.
type ActiveOutcome struct {
	Fail         Probability
	Delay        Probability
	MaxDelay     int64 // microseconds
	TotalWeight  float64
	ByCumulative []WeightedErrno
	Eligible     Predicate

	// EligibleFn/EligibleCtx carry the C-callable predicate through
	// unchanged from Outcome; see Outcome's doc comment.
	EligibleFn  uintptr
	EligibleCtx unsafe.Pointer
}

// newActiveOutcome compiles o into its dense run-time form.
func newActiveOutcome(o Outcome) ActiveOutcome {
	entries := make([]WeightedErrno, 0, len(o.ErrorWeights))
	var running float64
	// Sort by errno first so compilation is deterministic across runs for
	// the same Outcome, then accumulate.
	errnos := make([]int, 0, len(o.ErrorWeights))
	for errno := range o.ErrorWeights {
		errnos = append(errnos, errno)
	}
	sort.Ints(errnos)
	for _, errno := range errnos {
		running += o.ErrorWeights[errno]
		entries = append(entries, WeightedErrno{CumulativeWeight: running, Errno: errno})
	}

	eligible := o.Eligible
	if eligible == nil {
		eligible = func(Registers) bool { return true }
	}

	return ActiveOutcome{
		Fail:         o.Fail,
		Delay:        o.Delay,
		MaxDelay:     o.MaxDelay.Microseconds(),
		TotalWeight:  running,
		ByCumulative: entries,
		Eligible:     eligible,
		EligibleFn:   o.EligibleFn,
		EligibleCtx:  o.EligibleCtx,
	}
}

// SelectErrno returns the errno whose cumulative-weight bucket contains
// point, where point is expected to be drawn uniformly from
// [0, TotalWeight). Selection is a lower-bound (first entry whose
// CumulativeWeight is >= point) binary search over the sorted array, the
// same algorithm the original error-weight map used under the hood.
func (a ActiveOutcome) SelectErrno(point float64) int {
	if len(a.ByCumulative) == 0 {
		return 0
	}
	idx := sort.Search(len(a.ByCumulative), func(i int) bool {
		return a.ByCumulative[i].CumulativeWeight >= point
	})
	if idx >= len(a.ByCumulative) {
		idx = len(a.ByCumulative) - 1
	}
	return a.ByCumulative[idx].Errno
}

// ActivePlan is the compiled form of a Plan: a dense, syscall-number-
// indexed lookup table of ActiveOutcomes plus the plan's thread
// eligibility predicate and discovery strategy, carried through
// unchanged since neither needs per-syscall compilation.
//
// Outcomes is indexed directly by syscall number up to a small fixed
// ceiling (the highest x86-64 syscall number currently defined, rounded
// up generously); this trades a little memory for an O(1) syscall-number
// lookup on every trapped syscall, in place of a map probe.
type ActivePlan struct {
	Outcomes        []*ActiveOutcome // index == syscall number; nil == not in plan
	ThreadEligible  func(tid int) bool
	ThreadDiscovery ThreadDiscovery
}

// maxSyscallNumber generously bounds the x86-64 syscall table; Linux's
// highest assigned number as of recent kernels is in the 450s, and new
// syscalls are added at the end, so this leaves comfortable headroom.
const maxSyscallNumber = 1024

// Compile validates p and builds its ActivePlan.
func Compile(p Plan) (*ActivePlan, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	outcomes := make([]*ActiveOutcome, maxSyscallNumber)
	for nr, o := range p.Outcomes {
		if nr < 0 || nr >= maxSyscallNumber {
			return nil, sysfailerr.New(sysfailerr.InvalidArgument, "plan.Compile", "syscall number out of supported range: "+itoa(nr))
		}
		ao := newActiveOutcome(o)
		outcomes[nr] = &ao
	}

	return &ActivePlan{
		Outcomes:        outcomes,
		ThreadEligible:  p.ThreadEligible,
		ThreadDiscovery: p.ThreadDiscovery,
	}, nil
}

// Lookup returns the ActiveOutcome for syscall nr, or nil if the plan
// does not mention it (in which case the caller must pass the syscall
// through untouched).
func (a *ActivePlan) Lookup(nr int64) *ActiveOutcome {
	if nr < 0 || int(nr) >= len(a.Outcomes) {
		return nil
	}
	return a.Outcomes[nr]
}
