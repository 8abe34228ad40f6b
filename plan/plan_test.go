package plan

import (
	"errors"
	"testing"
	"time"
	"unsafe"

	"sysfail-go/sysfailerr"
)

func TestOutcomeValidateRejectsOutOfRangeProbability(t *testing.T) {
	o := Outcome{Fail: Probability{P: 1.5}}
	err := o.Validate()
	if !sysfailerr.IsKind(err, sysfailerr.InvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestOutcomeValidateRejectsEmptyWeightsWithFailProbability(t *testing.T) {
	o := Outcome{Fail: Probability{P: 0.5}}
	if err := o.Validate(); !errors.Is(err, sysfailerr.ErrEmptyErrorWeights) {
		t.Fatalf("expected ErrEmptyErrorWeights, got %v", err)
	}
}

func TestOutcomeValidateRejectsNonPositiveWeight(t *testing.T) {
	o := Outcome{Fail: Probability{P: 0.5}, ErrorWeights: map[int]float64{5: 0}}
	if err := o.Validate(); !errors.Is(err, sysfailerr.ErrNonPositiveWeight) {
		t.Fatalf("expected ErrNonPositiveWeight, got %v", err)
	}
}

func TestOutcomeValidateRejectsZeroMaxDelayWithDelayProbability(t *testing.T) {
	o := Outcome{Delay: Probability{P: 0.5}, MaxDelay: 0}
	if err := o.Validate(); !errors.Is(err, sysfailerr.ErrZeroMaxDelay) {
		t.Fatalf("expected ErrZeroMaxDelay, got %v", err)
	}
}

func TestOutcomeValidateAcceptsWellFormedOutcome(t *testing.T) {
	o := Outcome{
		Fail:         Probability{P: 1, AfterBias: 0},
		ErrorWeights: map[int]float64{5: 1},
	}
	if err := o.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPlanValidateDefaultsThreadEligibleAndDiscovery(t *testing.T) {
	p := Plan{Outcomes: map[int]Outcome{}}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if p.ThreadEligible == nil || !p.ThreadEligible(123) {
		t.Errorf("expected default ThreadEligible to accept all tids")
	}
	if _, ok := p.ThreadDiscovery.(NoDiscovery); !ok {
		t.Errorf("expected default ThreadDiscovery to be NoDiscovery, got %T", p.ThreadDiscovery)
	}
}

func TestCompileProducesLookupBySyscallNumber(t *testing.T) {
	ap, err := Compile(Plan{
		Outcomes: map[int]Outcome{
			0: {Fail: Probability{P: 1}, ErrorWeights: map[int]float64{5: 1}}, // read
		},
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if ap.Lookup(0) == nil {
		t.Fatalf("expected syscall 0 to have an ActiveOutcome")
	}
	if ap.Lookup(1) != nil {
		t.Errorf("expected syscall 1 to have no ActiveOutcome")
	}
}

func TestCompileRejectsOutOfRangeSyscall(t *testing.T) {
	_, err := Compile(Plan{
		Outcomes: map[int]Outcome{
			100000: {},
		},
	})
	if !sysfailerr.IsKind(err, sysfailerr.InvalidArgument) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestActiveOutcomeSelectErrnoLowerBound(t *testing.T) {
	o := Outcome{
		Fail: Probability{P: 1},
		ErrorWeights: map[int]float64{
			1: 1, // cumulative: 1
			2: 3, // cumulative: 4
			3: 6, // cumulative: 10
		},
	}
	ao := newActiveOutcome(o)
	if ao.TotalWeight != 10 {
		t.Fatalf("TotalWeight = %v, want 10", ao.TotalWeight)
	}

	cases := []struct {
		point float64
		want  int
	}{
		{0.5, 1},
		{1.0, 1},
		{1.5, 2},
		{4.0, 2},
		{4.5, 3},
		{10.0, 3},
	}
	for _, c := range cases {
		if got := ao.SelectErrno(c.point); got != c.want {
			t.Errorf("SelectErrno(%v) = %d, want %d", c.point, got, c.want)
		}
	}
}

func TestActiveOutcomeEligibleDefaultsToAlwaysTrue(t *testing.T) {
	ao := newActiveOutcome(Outcome{})
	if !ao.Eligible(Registers{}) {
		t.Errorf("expected default Eligible predicate to return true")
	}
}

func TestNewActiveOutcomeCarriesEligibleFnThrough(t *testing.T) {
	var marker byte
	o := Outcome{EligibleFn: 0xdeadbeef, EligibleCtx: unsafe.Pointer(&marker)}
	ao := newActiveOutcome(o)
	if ao.EligibleFn != 0xdeadbeef {
		t.Errorf("EligibleFn = %#x, want 0xdeadbeef", ao.EligibleFn)
	}
	if ao.EligibleCtx != unsafe.Pointer(&marker) {
		t.Errorf("EligibleCtx = %v, want %v", ao.EligibleCtx, unsafe.Pointer(&marker))
	}
}

func TestActiveOutcomeMaxDelayConvertsToMicroseconds(t *testing.T) {
	o := Outcome{Delay: Probability{P: 1}, MaxDelay: 250 * time.Millisecond}
	ao := newActiveOutcome(o)
	if ao.MaxDelay != 250000 {
		t.Errorf("MaxDelay = %d, want 250000", ao.MaxDelay)
	}
}
