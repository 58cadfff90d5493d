package state

import (
	"testing"

	"github.com/pytrain/pytrain/internal/tmcc"
	"github.com/pytrain/pytrain/internal/tmcc/catalog"
	"github.com/pytrain/pytrain/internal/tmcc/request"
)

func mustRequest(t *testing.T, cat *catalog.Catalog, name string, scope tmcc.Scope, address, data int) *request.CommandRequest {
	t.Helper()
	req, err := request.New(cat, name, scope, address, data)
	if err != nil {
		t.Fatalf("New(%s): %v", name, err)
	}
	return req
}

// TestAbsoluteSpeedDerivesRPM is spec §8 scenario 2: setting absolute
// speed 92 must derive rpm 4.
func TestAbsoluteSpeedDerivesRPM(t *testing.T) {
	cat := catalog.NewDefault()
	e := NewEngineState(tmcc.ScopeEngine, 23)
	req := mustRequest(t, cat, "ABSOLUTE_SPEED", tmcc.ScopeEngine, 23, 92)
	e.Update(req)

	speed, _, _ := e.Snapshot()
	if speed != 92 {
		t.Errorf("Speed = %d, want 92", speed)
	}
	_, rpm, _ := e.Fields()
	if rpm != 4 {
		t.Errorf("RPM = %d, want 4", rpm)
	}
}

func TestRelativeSpeedClampsToRange(t *testing.T) {
	cat := catalog.NewDefault()
	e := NewEngineState(tmcc.ScopeEngine, 1)
	req := mustRequest(t, cat, "ABSOLUTE_SPEED", tmcc.ScopeEngine, 1, 2)
	e.Update(req)
	// offset-5 encoding: data=0 means delta=-5
	rel := mustRequest(t, cat, "RELATIVE_SPEED", tmcc.ScopeEngine, 1, 0)
	e.Update(rel)

	speed, _, _ := e.Snapshot()
	if speed != 0 {
		t.Errorf("Speed = %d, want 0 (clamped)", speed)
	}
}

func TestStopImmediateZeroesSpeedAndRPM(t *testing.T) {
	cat := catalog.NewDefault()
	e := NewEngineState(tmcc.ScopeEngine, 1)
	e.Update(mustRequest(t, cat, "ABSOLUTE_SPEED", tmcc.ScopeEngine, 1, 150))
	e.Update(mustRequest(t, cat, "STOP_IMMEDIATE", tmcc.ScopeEngine, 1, 0))

	speed, _, _ := e.Snapshot()
	_, rpm, _ := e.Fields()
	if speed != 0 || rpm != 0 {
		t.Errorf("after STOP_IMMEDIATE: speed=%d rpm=%d, want 0/0", speed, rpm)
	}
}

func TestToggleDirection(t *testing.T) {
	cat := catalog.NewDefault()
	e := NewEngineState(tmcc.ScopeEngine, 1)
	e.Update(mustRequest(t, cat, "FORWARD_DIRECTION", tmcc.ScopeEngine, 1, 0))
	dir, _, _ := e.Fields()
	if dir != DirectionForward {
		t.Fatalf("Direction = %v, want Forward", dir)
	}
	e.Update(mustRequest(t, cat, "TOGGLE_DIRECTION", tmcc.ScopeEngine, 1, 0))
	dir, _, _ = e.Fields()
	if dir != DirectionReverse {
		t.Errorf("Direction = %v, want Reverse after toggle", dir)
	}
}

func TestHaltZeroesSpeedAndRPM(t *testing.T) {
	cat := catalog.NewDefault()
	e := NewEngineState(tmcc.ScopeEngine, 1)
	e.Update(mustRequest(t, cat, "ABSOLUTE_SPEED", tmcc.ScopeEngine, 1, 80))
	e.Halt()

	speed, _, _ := e.Snapshot()
	_, rpm, _ := e.Fields()
	if speed != 0 || rpm != 0 {
		t.Errorf("after Halt: speed=%d rpm=%d, want 0/0", speed, rpm)
	}
}

func TestApplyFieldsBulkUpdate(t *testing.T) {
	e := NewEngineState(tmcc.ScopeEngine, 1)
	e.ApplyFields(map[string]any{
		"speed":     92,
		"momentum":  3,
		"road_name": "SANTA FE",
		"rpm_labor": []int{4, 12},
	})
	speed, momentum, labor := e.Snapshot()
	if speed != 92 || momentum != 3 || labor != 12 {
		t.Errorf("Snapshot = %d/%d/%d, want 92/3/12", speed, momentum, labor)
	}
	_, rpm, roadName := e.Fields()
	if rpm != 4 || roadName != "SANTA FE" {
		t.Errorf("rpm=%d roadName=%q, want 4/SANTA FE", rpm, roadName)
	}
}

func TestVersionBumpsOnEveryUpdate(t *testing.T) {
	cat := catalog.NewDefault()
	e := NewEngineState(tmcc.ScopeEngine, 1)
	before := e.Version()
	e.Update(mustRequest(t, cat, "RING_BELL", tmcc.ScopeEngine, 1, 0))
	if e.Version() != before+1 {
		t.Errorf("Version = %d, want %d", e.Version(), before+1)
	}
	if e.LastCommand() != "RING_BELL" {
		t.Errorf("LastCommand = %q, want RING_BELL", e.LastCommand())
	}
}

// TestRPMBucketMonotonic is the spec §8 universal property: RPM bucket
// is non-decreasing as speed increases.
func TestRPMBucketMonotonic(t *testing.T) {
	prev := rpmBucket(0)
	for speed := 1; speed <= 199; speed++ {
		got := rpmBucket(speed)
		if got < prev {
			t.Fatalf("rpmBucket(%d) = %d < rpmBucket(%d) = %d, not monotonic", speed, got, speed-1, prev)
		}
		if got < 0 || got > 7 {
			t.Fatalf("rpmBucket(%d) = %d out of [0,7]", speed, got)
		}
		prev = got
	}
}
