package sequence

import (
	"testing"
	"time"

	"github.com/pytrain/pytrain/internal/state"
	"github.com/pytrain/pytrain/internal/tmcc"
	"github.com/pytrain/pytrain/internal/tmcc/catalog"
	"github.com/pytrain/pytrain/internal/tmcc/request"
)

// constantStepPolicy ramps in exactly one step, every time, so tests
// can assert on wire output without waiting out the default policy's
// momentum-scaled delays.
type constantStepPolicy struct{}

func (constantStepPolicy) Step(int) int             { return 199 }
func (constantStepPolicy) Delay(int) time.Duration { return 10 * time.Millisecond }

func TestRampedSpeedEmitsSpeedThenRPM(t *testing.T) {
	cat := catalog.NewDefault()
	store := state.New(nil)
	store.Apply(mustSeqRequest(t, cat, "ABSOLUTE_SPEED", tmcc.ScopeEngine, 9, 0))

	sink := newRecordingSink()
	buf := newTestBuffer(sink)
	stop := runTestBuffer(buf)
	defer stop()

	if _, err := RampedSpeed(cat, buf, store, tmcc.ScopeEngine, 9, 92, constantStepPolicy{}); err != nil {
		t.Fatalf("RampedSpeed: %v", err)
	}

	var frames [][]byte
	for i := 0; i < 2; i++ {
		select {
		case f := <-sink.written:
			frames = append(frames, f)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for ramp primitive %d", i)
		}
	}

	speedReq, _, err := request.Parse(cat, frames[0])
	if err != nil {
		t.Fatalf("Parse speed frame: %v", err)
	}
	if speedReq.Name() != "ABSOLUTE_SPEED" || speedReq.Data != 92 {
		t.Errorf("first frame = {%s data=%d}, want {ABSOLUTE_SPEED data=92}", speedReq.Name(), speedReq.Data)
	}
	rpmReq, _, err := request.Parse(cat, frames[1])
	if err != nil {
		t.Fatalf("Parse rpm frame: %v", err)
	}
	if rpmReq.Name() != "DIESEL_RPM" || rpmReq.Data != 4 {
		t.Errorf("second frame = {%s data=%d}, want {DIESEL_RPM data=4}", rpmReq.Name(), rpmReq.Data)
	}
}

func TestRampedSpeedMissingEngineErrors(t *testing.T) {
	cat := catalog.NewDefault()
	store := state.New(nil)
	sink := newRecordingSink()
	buf := newTestBuffer(sink)
	stop := runTestBuffer(buf)
	defer stop()

	if _, err := RampedSpeed(cat, buf, store, tmcc.ScopeEngine, 77, 50, nil); err == nil {
		t.Error("expected error for an engine never observed by the store")
	}
}

func TestBandForCoversEntireSpeedRange(t *testing.T) {
	cases := []struct {
		speed int
		want  speedBand
	}{
		{0, bandStop}, {1, bandRestricted}, {29, bandRestricted}, {30, bandSlow},
		{59, bandSlow}, {60, bandMedium}, {89, bandMedium}, {90, bandLimited},
		{119, bandLimited}, {120, bandNormal}, {159, bandNormal}, {160, bandHighball}, {199, bandHighball},
	}
	for _, c := range cases {
		if got := bandFor(c.speed); got != c.want {
			t.Errorf("bandFor(%d) = %d, want %d", c.speed, got, c.want)
		}
	}
}

func TestRampedSpeedDialogBracketsRampWithDialog(t *testing.T) {
	cat := catalog.NewDefault()
	store := state.New(nil)
	store.Apply(mustSeqRequest(t, cat, "ABSOLUTE_SPEED", tmcc.ScopeEngine, 9, 0))

	sink := newRecordingSink()
	buf := newTestBuffer(sink)
	stop := runTestBuffer(buf)
	defer stop()

	if _, err := RampedSpeedDialog(cat, buf, store, tmcc.ScopeEngine, 9, 92, constantStepPolicy{}); err != nil {
		t.Fatalf("RampedSpeedDialog: %v", err)
	}

	var frames [][]byte
	for i := 0; i < 4; i++ {
		select {
		case f := <-sink.written:
			frames = append(frames, f)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for dialog primitive %d", i)
		}
	}

	first, consumed, err := request.ParseMultiByte(frames[0], 0xF8)
	if err != nil {
		t.Fatalf("ParseMultiByte(tower): %v", err)
	}
	if consumed != len(frames[0]) || first.Family != request.MBCDialog {
		t.Errorf("leading dialog frame not a tower MBCDialog command: %+v", first)
	}

	last := frames[len(frames)-1]
	trailing, _, err := request.ParseMultiByte(last, 0xF8)
	if err != nil {
		t.Fatalf("ParseMultiByte(engineer): %v", err)
	}
	if trailing.Family != request.MBCDialog {
		t.Errorf("trailing dialog frame not MBCDialog: %+v", trailing)
	}
}

func mustSeqRequest(t *testing.T, cat *catalog.Catalog, name string, scope tmcc.Scope, address, data int) *request.CommandRequest {
	t.Helper()
	req, err := request.New(cat, name, scope, address, data)
	if err != nil {
		t.Fatalf("request.New(%s): %v", name, err)
	}
	return req
}
