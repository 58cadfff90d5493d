package sync

import (
	"context"
	"sync"
	"testing"

	"github.com/pytrain/pytrain/internal/pdi"
	"github.com/pytrain/pytrain/internal/pdi/devicestore"
	"github.com/pytrain/pytrain/internal/state"
	"github.com/pytrain/pytrain/internal/tmcc"
)

type frameCollector struct {
	mu     sync.Mutex
	frames [][]byte
}

func (f *frameCollector) send(frame []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
}

func (f *frameCollector) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

func TestStartSetsSynchronizingAndFansOutInitialQueries(t *testing.T) {
	store := state.New(nil)
	coll := &frameCollector{}
	s := New(store, devicestore.New(), coll.send)

	s.Start(context.Background())

	if store.Sync().Get() != state.SyncSynchronizing {
		t.Fatalf("Sync().Get() = %v, want SYNCHRONIZING", store.Sync().Get())
	}
	// 1 BASE query + 5 primary-scope BASE_MEMORY queries + 2 D4 COUNTs.
	if got, want := coll.count(), 1+len(primaryScopes)+len(d4Scopes); got != want {
		t.Errorf("sent %d frames from Start, want %d", got, want)
	}
}

// TestSynchronizationReachesSyncComplete is spec §8 scenario 6: once
// every primary scope's BASE_MEMORY walk and every D4 scope's
// enumeration is satisfied, the system transitions to SYNCHRONIZED.
func TestSynchronizationReachesSyncComplete(t *testing.T) {
	store := state.New(nil)
	coll := &frameCollector{}
	s := New(store, devicestore.New(), coll.send)
	ctx := context.Background()

	s.Start(ctx)

	// Each primary scope's BASE_MEMORY walk terminates on the first
	// short (not-full-length) record.
	for _, scope := range primaryScopes {
		s.HandleBaseMemory(ctx, &pdi.BaseMemoryResponse{Scope: scope, TmccID: 1, Record: nil})
	}
	if store.Sync().Get() == state.SyncSynchronized {
		t.Fatal("should not be synchronized before the D4 scopes finish")
	}

	// Each D4 scope terminates immediately on a zero COUNT.
	for _, scope := range d4Scopes {
		s.HandleD4(ctx, &pdi.D4Request{Scope: scope, Action: pdi.D4Count, Count: 0})
	}

	if store.Sync().Get() != state.SyncSynchronized {
		t.Fatalf("Sync().Get() = %v, want SYNCHRONIZED", store.Sync().Get())
	}
}

func TestBaseMemoryFullLengthRecordRequestsNextAddress(t *testing.T) {
	store := state.New(nil)
	coll := &frameCollector{}
	s := New(store, devicestore.New(), coll.send)
	ctx := context.Background()
	s.Start(ctx)

	before := coll.count()
	full := make([]byte, pdi.RecordLenEngine)
	s.HandleBaseMemory(ctx, &pdi.BaseMemoryResponse{Scope: tmcc.ScopeEngine, TmccID: 1, Record: full})

	if coll.count() != before+1 {
		t.Errorf("sent %d new frames after a full-length record, want 1 (request for tmcc_id=2)", coll.count()-before)
	}
	if _, ok := store.Engine(1); !ok {
		t.Error("expected engine 1 to be hydrated by the BASE_MEMORY response")
	}
}

func TestD4CountNonZeroRequestsFirstRec(t *testing.T) {
	store := state.New(nil)
	coll := &frameCollector{}
	s := New(store, devicestore.New(), coll.send)
	ctx := context.Background()
	s.Start(ctx)

	before := coll.count()
	s.HandleD4(ctx, &pdi.D4Request{Scope: tmcc.ScopeEngine, Action: pdi.D4Count, Count: 3})
	if coll.count() != before+1 {
		t.Errorf("sent %d new frames after non-zero COUNT, want 1 (FIRST_REC)", coll.count()-before)
	}
}

func TestD4NextRecSentinelMarksDone(t *testing.T) {
	store := state.New(nil)
	coll := &frameCollector{}
	s := New(store, devicestore.New(), coll.send)
	ctx := context.Background()
	s.Start(ctx)

	s.HandleD4(ctx, &pdi.D4Request{Scope: tmcc.ScopeEngine, Action: pdi.D4Count, Count: 1})
	s.HandleD4(ctx, &pdi.D4Request{Scope: tmcc.ScopeEngine, Action: pdi.D4FirstRec, RecNum: 1})
	before := coll.count()
	s.HandleD4(ctx, &pdi.D4Request{Scope: tmcc.ScopeEngine, Action: pdi.D4NextRec, RecNum: lastRecordMarker})
	if coll.count() != before {
		t.Errorf("sent %d new frames after the NEXT_REC sentinel, want 0", coll.count()-before)
	}
}

func TestHandleLCSConfigRegistersDeviceAndSendsFollowUps(t *testing.T) {
	devices := devicestore.New()
	coll := &frameCollector{}
	s := New(state.New(nil), devices, coll.send)

	dev := devicestore.Device{Type: pdi.LCSASC2, TmccID: 5, Mode: int(pdi.ASC2ModeAccessory), BaseAddr: 1}
	s.HandleLCSConfig(dev)

	got, ok := devices.Get(pdi.LCSASC2, 5)
	if !ok || got.TmccID != 5 {
		t.Fatalf("device not registered: %+v ok=%v", got, ok)
	}
	// ASC2 accessory mode at base address 1 implies queries for tmcc_ids 1..8.
	if got := coll.count(); got != 8 {
		t.Errorf("sent %d follow-up queries, want 8", got)
	}
}

// TestHydrateRequestsBaseMemoryForNewAddress is the wiring spec §4.6
// describes: a Store observing a never-before-seen address calls back
// into the synchronizer, which issues a BASE_MEMORY query for it.
func TestHydrateRequestsBaseMemoryForNewAddress(t *testing.T) {
	coll := &frameCollector{}
	s := New(state.New(nil), devicestore.New(), coll.send)

	before := coll.count()
	s.Hydrate(state.HydrationRequest{Scope: tmcc.ScopeSwitch, Address: 9})
	if coll.count() != before+1 {
		t.Errorf("sent %d frames from Hydrate, want 1", coll.count()-before)
	}
}
