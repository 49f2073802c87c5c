// Copyright 2025 Certen Protocol
package consensusadapter

import "testing"

func TestReputationTrackerFlagsLowPerformingAfterThreshold(t *testing.T) {
	r := NewReputationTracker(16, 3)
	v := mkAddr(1)

	if r.IsLowPerforming(v) {
		t.Fatalf("a validator never observed to fail must not be low-performing")
	}
	r.RecordFailure(v)
	r.RecordFailure(v)
	if r.IsLowPerforming(v) {
		t.Fatalf("below-threshold failure count must not flag low-performing")
	}
	r.RecordFailure(v)
	if !r.IsLowPerforming(v) {
		t.Fatalf("expected validator to be flagged low-performing at the threshold")
	}
}

func TestReputationTrackerRecordSuccessResetsCount(t *testing.T) {
	r := NewReputationTracker(16, 2)
	v := mkAddr(2)

	r.RecordFailure(v)
	r.RecordFailure(v)
	if !r.IsLowPerforming(v) {
		t.Fatalf("expected low-performing at threshold 2")
	}
	r.RecordSuccess(v)
	if r.IsLowPerforming(v) {
		t.Fatalf("RecordSuccess must reset the failure count")
	}
}

func TestReputationTrackerDefaultsAppliedForNonPositiveArgs(t *testing.T) {
	r := NewReputationTracker(0, 0)
	v := mkAddr(3)
	for i := 0; i < defaultLowPerformingFailures-1; i++ {
		r.RecordFailure(v)
	}
	if r.IsLowPerforming(v) {
		t.Fatalf("must not flag below the default threshold")
	}
	r.RecordFailure(v)
	if !r.IsLowPerforming(v) {
		t.Fatalf("must flag at the default threshold")
	}
}

func TestReputationTrackerTracksValidatorsIndependently(t *testing.T) {
	r := NewReputationTracker(16, 1)
	a, b := mkAddr(4), mkAddr(5)

	r.RecordFailure(a)
	if !r.IsLowPerforming(a) {
		t.Fatalf("expected a to be low-performing")
	}
	if r.IsLowPerforming(b) {
		t.Fatalf("b must be unaffected by a's failures")
	}
}
