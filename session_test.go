package sysfail

import (
	"testing"
	"time"

	"sysfail-go/plan"
	"sysfail-go/thdmon"
)

func TestMonitorStrategyDefaultsToNoPoll(t *testing.T) {
	s, err := monitorStrategy(nil)
	if err != nil {
		t.Fatalf("monitorStrategy(nil): %v", err)
	}
	if _, ok := s.(thdmon.NoPoll); !ok {
		t.Errorf("monitorStrategy(nil) = %T, want thdmon.NoPoll", s)
	}
}

func TestMonitorStrategyTranslatesPeriodicPoll(t *testing.T) {
	s, err := monitorStrategy(plan.PeriodicPollDiscovery{Interval: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("monitorStrategy: %v", err)
	}
	pp, ok := s.(thdmon.PeriodicPoll)
	if !ok {
		t.Fatalf("monitorStrategy = %T, want thdmon.PeriodicPoll", s)
	}
	if pp.Interval != 5*time.Millisecond {
		t.Errorf("Interval = %v, want 5ms", pp.Interval)
	}
}

func TestMonitorStrategyRejectsUnknownDiscovery(t *testing.T) {
	type bogus struct{ plan.ThreadDiscovery }
	if _, err := monitorStrategy(bogus{}); err == nil {
		t.Error("expected error for unknown ThreadDiscovery implementation")
	}
}

func TestResolveExePathReturnsNonEmptyPath(t *testing.T) {
	exe, err := resolveExePath()
	if err != nil {
		t.Fatalf("resolveExePath: %v", err)
	}
	if exe == "" {
		t.Error("resolveExePath returned empty string")
	}
}

func TestNewSessionRejectsSecondSession(t *testing.T) {
	p := plan.Plan{}
	s1, err := NewSession(p, Embedded)
	if err != nil {
		t.Fatalf("NewSession (first): %v", err)
	}
	defer s1.Close()

	_, err = NewSession(p, Embedded)
	if err == nil {
		t.Fatal("expected second NewSession to fail with ErrAlreadyActive")
	}
}

func TestSessionCloseReleasesGlobalSlot(t *testing.T) {
	p := plan.Plan{}
	s1, err := NewSession(p, Embedded)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := NewSession(p, Embedded)
	if err != nil {
		t.Fatalf("NewSession after Close: %v", err)
	}
	defer s2.Close()
}

func TestSessionAddRemoveLocalThread(t *testing.T) {
	p := plan.Plan{}
	s, err := NewSession(p, Embedded)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()

	if err := s.Add(); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
}

func TestSessionOperationsAfterCloseReturnErrNoActiveSession(t *testing.T) {
	p := plan.Plan{}
	s, err := NewSession(p, Embedded)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := s.Add(); err == nil {
		t.Error("expected Add after Close to fail")
	}
	if err := s.DiscoverThreads(); err == nil {
		t.Error("expected DiscoverThreads after Close to fail")
	}
}
