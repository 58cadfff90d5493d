// Package sync drives the startup Synchronizer (spec §4.7): it walks the
// Base 3's record tables across every primary scope, enumerates four-
// digit D4 records, registers LCS devices as their CONFIG responses
// arrive, and transitions the system's SyncState to synchronized once
// every outstanding expectation has been satisfied.
package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pytrain/pytrain/internal/log"
	"github.com/pytrain/pytrain/internal/metrics"
	"github.com/pytrain/pytrain/internal/pdi"
	"github.com/pytrain/pytrain/internal/pdi/devicestore"
	"github.com/pytrain/pytrain/internal/pytrainerr"
	"github.com/pytrain/pytrain/internal/state"
	"github.com/pytrain/pytrain/internal/telemetry"
	"github.com/pytrain/pytrain/internal/tmcc"
)

// syncTracer spans the startup walk so a stalled BASE_MEMORY/D4
// enumeration shows up as a long-running span rather than silence.
var syncTracer = telemetry.Tracer("pytrain/sync")

// primaryScopes is the BASE_MEMORY enumeration order (spec §4.7 step 1).
var primaryScopes = []tmcc.Scope{tmcc.ScopeEngine, tmcc.ScopeTrain, tmcc.ScopeSwitch, tmcc.ScopeRoute, tmcc.ScopeAcc}

// d4Scopes is the set of scopes enumerated via D4 COUNT/FIRST_REC/
// NEXT_REC, in addition to their native-address BASE_MEMORY walk.
var d4Scopes = []tmcc.Scope{tmcc.ScopeEngine, tmcc.ScopeTrain}

// maxNativeTmccID is where the BASE_MEMORY native-address walk stops
// (spec §4.7 step 2: "stop at tmcc_id=99").
const maxNativeTmccID = 99

// lastRecordMarker is the D4 NEXT_REC sentinel meaning "enumeration
// exhausted" (spec §4.7 step 3).
const lastRecordMarker = 0xFFFF

// key identifies one outstanding expectation: a specific reply the
// synchronizer is waiting on (spec §4.7 step 5).
type key struct {
	TmccID     int
	PdiCommand byte
	Action     byte
	Scope      tmcc.Scope
}

func (k key) String() string {
	return fmt.Sprintf("tmcc=%d cmd=0x%02X action=0x%02X scope=%s", k.TmccID, k.PdiCommand, k.Action, k.Scope)
}

type expectation struct {
	sentAt  time.Time
	retries int
}

// Sender enqueues a raw outbound frame (typically the comm buffer's
// Enqueue, called with zero delay).
type Sender func(frame []byte)

// Synchronizer drives initial hydration of store and devices by walking
// the Base 3's record tables (spec §4.7).
type Synchronizer struct {
	store   *state.Store
	devices *devicestore.Store
	send    Sender

	retryLimit   int
	retryWindow  time.Duration

	mu          sync.Mutex
	outstanding map[key]*expectation
	baseDone    map[tmcc.Scope]bool
	d4Done      map[tmcc.Scope]bool

	sf singleflight.Group
}

// New builds a Synchronizer that sends outbound requests through send and
// hydrates store/devices as responses arrive.
func New(store *state.Store, devices *devicestore.Store, send Sender) *Synchronizer {
	return &Synchronizer{
		store:       store,
		devices:     devices,
		send:        send,
		retryLimit:  3,
		retryWindow: 2 * time.Second,
		outstanding: make(map[key]*expectation),
		baseDone:    make(map[tmcc.Scope]bool),
		d4Done:      make(map[tmcc.Scope]bool),
	}
}

// Start emits the initial fan-out: a BASE query, the first BASE_MEMORY
// query per primary scope, and a D4 COUNT for engines and trains (spec
// §4.7 steps 1 and 3). It sets SyncState to synchronizing before sending
// anything.
func (s *Synchronizer) Start(ctx context.Context) {
	ctx, span := syncTracer.Start(ctx, "sync.start")
	defer span.End()

	s.store.Sync().Set(state.SyncSynchronizing)
	log.WithContext(ctx).Info().Str(log.FieldComponent, "synchronizer").Msg("synchronization started")

	s.send((&pdi.BaseMemoryRequest{Scope: tmcc.ScopeBase, TmccID: 0}).Encode())

	for _, scope := range primaryScopes {
		s.requestBaseMemory(scope, 1)
	}
	for _, scope := range d4Scopes {
		s.requestD4Count(scope)
	}
}

// Hydrate issues a BASE_MEMORY query for a single (scope, address)
// observed for the first time outside the startup walk — e.g. a switch
// address named in a ROUTE_FIRE replay the initial enumeration hadn't
// reached yet. Intended as the Store's onHydrate callback (spec §4.6).
func (s *Synchronizer) Hydrate(req state.HydrationRequest) {
	s.requestBaseMemory(req.Scope, req.Address)
}

func (s *Synchronizer) track(k key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outstanding[k] = &expectation{sentAt: time.Now()}
	metrics.SyncRecordsPendingGauge.Set(float64(len(s.outstanding)))
}

func (s *Synchronizer) untrack(k key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.outstanding[k]
	delete(s.outstanding, k)
	metrics.SyncRecordsPendingGauge.Set(float64(len(s.outstanding)))
	return existed
}

func (s *Synchronizer) requestBaseMemory(scope tmcc.Scope, tmccID int) {
	k := key{TmccID: tmccID, PdiCommand: 'B', Scope: scope}
	s.sf.Do(k.String(), func() (any, error) {
		s.track(k)
		s.send((&pdi.BaseMemoryRequest{Scope: scope, TmccID: tmccID}).Encode())
		return nil, nil
	})
}

func (s *Synchronizer) requestD4Count(scope tmcc.Scope) {
	k := key{PdiCommand: 'C', Scope: scope}
	req := &pdi.D4Request{Scope: scope, Action: pdi.D4Count}
	frame, err := req.Encode()
	if err != nil {
		log.Logger().Warn().Err(err).Str(log.FieldScope, scope.String()).Msg("synchronizer: d4 count encode failed")
		return
	}
	s.track(k)
	s.send(frame)
}

func (s *Synchronizer) requestD4FirstRec(scope tmcc.Scope) {
	k := key{PdiCommand: 'F', Scope: scope}
	req := &pdi.D4Request{Scope: scope, Action: pdi.D4FirstRec}
	frame, err := req.Encode()
	if err != nil {
		return
	}
	s.track(k)
	s.send(frame)
}

func (s *Synchronizer) requestD4NextRec(scope tmcc.Scope, recNum int) {
	k := key{TmccID: recNum, PdiCommand: 'N', Scope: scope}
	req := &pdi.D4Request{Scope: scope, Action: pdi.D4NextRec, RecNum: recNum}
	frame, err := req.Encode()
	if err != nil {
		return
	}
	s.track(k)
	s.send(frame)
}

// HandleBaseMemory processes one decoded BASE_MEMORY response, hydrating
// the store and, if the record was full-length, requesting the next
// tmcc_id (spec §4.7 step 2).
func (s *Synchronizer) HandleBaseMemory(ctx context.Context, resp *pdi.BaseMemoryResponse) {
	k := key{TmccID: resp.TmccID, PdiCommand: 'B', Scope: resp.Scope}
	s.untrack(k)

	var fields map[string]any
	if resp.Scope == tmcc.ScopeEngine || resp.Scope == tmcc.ScopeTrain {
		f, err := pdi.ApplyEngineFields(resp.Record)
		if err != nil {
			log.WithContext(ctx).Debug().Err(err).Msg("synchronizer: engine field decode failed")
		} else {
			fields = f
		}
	}
	s.store.ApplyBaseMemory(resp.Scope, resp.TmccID, fields)

	fullLength := len(resp.Record) >= pdi.RecordLen(resp.Scope)
	if fullLength && resp.TmccID < maxNativeTmccID {
		s.requestBaseMemory(resp.Scope, resp.TmccID+1)
	} else {
		s.markBaseDone(resp.Scope)
	}
	s.checkComplete(ctx)
}

func (s *Synchronizer) markBaseDone(scope tmcc.Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.baseDone[scope] = true
}

// HandleD4 processes one decoded D4 response: COUNT triggers FIRST_REC
// when non-zero; FIRST_REC/NEXT_REC continue enumerating until the
// record-number sentinel is reached (spec §4.7 step 3).
func (s *Synchronizer) HandleD4(ctx context.Context, resp *pdi.D4Request) {
	switch resp.Action {
	case pdi.D4Count:
		s.untrack(key{PdiCommand: 'C', Scope: resp.Scope})
		if resp.Count > 0 {
			s.requestD4FirstRec(resp.Scope)
		} else {
			s.markD4Done(resp.Scope)
		}
	case pdi.D4FirstRec:
		s.untrack(key{PdiCommand: 'F', Scope: resp.Scope})
		s.continueD4(resp.Scope, resp.RecNum)
	case pdi.D4NextRec:
		s.untrack(key{TmccID: resp.RecNum, PdiCommand: 'N', Scope: resp.Scope})
		s.continueD4(resp.Scope, resp.RecNum)
	}
	s.checkComplete(ctx)
}

func (s *Synchronizer) continueD4(scope tmcc.Scope, recNum int) {
	if recNum == lastRecordMarker {
		s.markD4Done(scope)
		return
	}
	s.requestD4NextRec(scope, recNum)
}

func (s *Synchronizer) markD4Done(scope tmcc.Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d4Done[scope] = true
}

// HandleLCSConfig registers a discovered LCS device and issues the
// follow-up queries its CONFIG response implies (spec §4.7 step 4).
func (s *Synchronizer) HandleLCSConfig(dev devicestore.Device) {
	followUps := s.devices.Register(dev)
	for _, tmccID := range followUps {
		req := &pdi.LCSRequest{Device: dev.Type, Action: pdi.LCSGet, TmccID: tmccID, Mode: dev.Mode}
		frame, err := req.Encode()
		if err != nil {
			continue
		}
		s.send(frame)
	}
}

// allDone reports whether every scope has finished both its BASE_MEMORY
// walk and (where applicable) its D4 enumeration.
func (s *Synchronizer) allDone() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.outstanding) != 0 {
		return false
	}
	for _, scope := range primaryScopes {
		if !s.baseDone[scope] {
			return false
		}
	}
	for _, scope := range d4Scopes {
		if !s.d4Done[scope] {
			return false
		}
	}
	return true
}

func (s *Synchronizer) checkComplete(ctx context.Context) {
	if !s.allDone() {
		return
	}
	s.store.Sync().Set(state.SyncSynchronized)
	log.WithContext(ctx).Info().Str(log.FieldComponent, "synchronizer").Msg("synchronization complete")
}

// RunRetrySweep periodically re-sends (up to retryLimit times) any
// expectation that has gone unanswered past retryWindow, then drops it
// and logs a Timeout, per spec §7: missing records stay absent from the
// store rather than blocking startup forever.
func (s *Synchronizer) RunRetrySweep(ctx context.Context) {
	ticker := time.NewTicker(s.retryWindow)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Synchronizer) sweepOnce(ctx context.Context) {
	s.mu.Lock()
	overdue := make([]key, 0)
	for k, e := range s.outstanding {
		if time.Since(e.sentAt) >= s.retryWindow {
			overdue = append(overdue, k)
		}
	}
	s.mu.Unlock()

	for _, k := range overdue {
		s.mu.Lock()
		e := s.outstanding[k]
		if e == nil {
			s.mu.Unlock()
			continue
		}
		e.retries++
		if e.retries > s.retryLimit {
			delete(s.outstanding, k)
			metrics.SyncRecordsPendingGauge.Set(float64(len(s.outstanding)))
			s.mu.Unlock()
			log.WithContext(ctx).Warn().
				Err(&pytrainerr.TimeoutError{Key: k.String(), Retries: e.retries}).
				Msg("synchronizer: giving up on record, continuing without it")
			continue
		}
		e.sentAt = time.Now()
		s.mu.Unlock()

		s.resend(k)
	}
	s.checkComplete(ctx)
}

// resend replays the request for an overdue key.
func (s *Synchronizer) resend(k key) {
	switch k.PdiCommand {
	case 'B':
		s.send((&pdi.BaseMemoryRequest{Scope: k.Scope, TmccID: k.TmccID}).Encode())
	case 'C':
		if req := (&pdi.D4Request{Scope: k.Scope, Action: pdi.D4Count}); true {
			if frame, err := req.Encode(); err == nil {
				s.send(frame)
			}
		}
	case 'F':
		if frame, err := (&pdi.D4Request{Scope: k.Scope, Action: pdi.D4FirstRec}).Encode(); err == nil {
			s.send(frame)
		}
	case 'N':
		if frame, err := (&pdi.D4Request{Scope: k.Scope, Action: pdi.D4NextRec, RecNum: k.TmccID}).Encode(); err == nil {
			s.send(frame)
		}
	}
}
