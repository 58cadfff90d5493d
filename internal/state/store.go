package state

import (
	"sync"
	"time"

	"github.com/pytrain/pytrain/internal/tmcc"
	"github.com/pytrain/pytrain/internal/tmcc/request"
)

// HydrationRequest is what the Store asks its owner to enqueue when a
// (scope, address) is observed for the first time and needs its fields
// pulled from the Base 3 (spec §4.6). The caller (usually the
// synchronizer or the control-plane wiring) turns this into a
// BASE_MEMORY or D4 QUERY PDI frame.
type HydrationRequest struct {
	Scope   tmcc.Scope
	Address int
}

// Store is the map of scope -> address -> state (spec §4.6). Safe for
// concurrent use; all mutation is expected to happen from the dispatcher
// task, per the single-writer discipline in spec §5.
type Store struct {
	mu sync.RWMutex

	engines    map[int]*EngineState // ENGINE scope
	trains     map[int]*EngineState // TRAIN scope
	switches   map[int]*SwitchState
	accessories map[int]*AccessoryState
	routes     map[int]*RouteState
	irda       map[int]*IrdaState
	sync       *SyncState

	onHydrate func(HydrationRequest)

	// filterSeen suppresses a second observation of a filtered command
	// within filterWindow of the first, when both Base and serial
	// listeners are attached (spec §4.6).
	filterSeen   map[string]time.Time
	filterWindow time.Duration
	bothListeners bool
}

// New constructs an empty Store. onHydrate, if non-nil, is called the
// first time a (scope, address) is observed, so the caller can enqueue a
// BASE_MEMORY/D4 QUERY to hydrate it.
func New(onHydrate func(HydrationRequest)) *Store {
	return &Store{
		engines:      make(map[int]*EngineState),
		trains:       make(map[int]*EngineState),
		switches:     make(map[int]*SwitchState),
		accessories:  make(map[int]*AccessoryState),
		routes:       make(map[int]*RouteState),
		irda:         make(map[int]*IrdaState),
		sync:         NewSyncState(),
		onHydrate:    onHydrate,
		filterSeen:   make(map[string]time.Time),
		filterWindow: 2 * time.Second,
	}
}

// SetBothListenersAttached toggles whether filtered commands are
// suppressed on their second observation (spec §4.6): this only applies
// when a server has both the Base-3 TCP listener and the serial listener
// attached.
func (s *Store) SetBothListenersAttached(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bothListeners = v
}

// Sync returns the store's single SyncState.
func (s *Store) Sync() *SyncState { return s.sync }

// Apply applies req to the store per the update rules in spec §4.6:
// HALT/SYSTEM_HALT fan out to every engine/train; a broadcast address
// applies to every state in that scope; otherwise the single addressed
// state (lazily constructed) is updated.
func (s *Store) Apply(req *request.CommandRequest) {
	if req.IsFiltered() && s.shouldSuppress(req) {
		return
	}

	switch {
	case req.IsHalt():
		s.haltAll()
		return
	case req.IsSystemHalt():
		s.haltAll()
		return
	case req.Scope == tmcc.ScopeSync:
		s.sync.Update(req)
		return
	}

	if req.IsBroadcast() {
		s.applyBroadcast(req)
		return
	}

	st := s.stateFor(req.Scope, req.Address)
	if st != nil {
		st.Update(req)
	}
	if req.Scope == tmcc.ScopeRoute {
		// route component replay: subsequent SWITCH commands extend the
		// most recently fired route's switch list; left to the control
		// plane, which has the ordering context this store does not.
		_ = st
	}
}

func (s *Store) shouldSuppress(req *request.CommandRequest) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.bothListeners {
		return false
	}
	key := fingerprint(req)
	if last, ok := s.filterSeen[key]; ok && time.Since(last) < s.filterWindow {
		return true
	}
	s.filterSeen[key] = time.Now()
	return false
}

func fingerprint(req *request.CommandRequest) string {
	return req.Name() + "|" + req.Scope.String()
}

func (s *Store) haltAll() {
	s.mu.RLock()
	engines := make([]*EngineState, 0, len(s.engines)+len(s.trains))
	for _, e := range s.engines {
		engines = append(engines, e)
	}
	for _, t := range s.trains {
		engines = append(engines, t)
	}
	s.mu.RUnlock()

	for _, e := range engines {
		e.Halt()
	}
}

func (s *Store) applyBroadcast(req *request.CommandRequest) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch req.Scope {
	case tmcc.ScopeEngine:
		for _, e := range s.engines {
			e.Update(req)
		}
	case tmcc.ScopeTrain:
		for _, t := range s.trains {
			t.Update(req)
		}
	case tmcc.ScopeSwitch:
		for _, sw := range s.switches {
			sw.Update(req)
		}
	case tmcc.ScopeAcc:
		for _, a := range s.accessories {
			a.Update(req)
		}
	case tmcc.ScopeRoute:
		for _, r := range s.routes {
			r.Update(req)
		}
	}
}

// stateFor returns (lazily constructing if absent) the State for
// (scope, address), triggering a hydration request on first observation.
func (s *Store) stateFor(scope tmcc.Scope, address int) State {
	switch scope {
	case tmcc.ScopeEngine:
		return s.engineFor(s.engines, scope, address)
	case tmcc.ScopeTrain:
		return s.engineFor(s.trains, scope, address)
	case tmcc.ScopeSwitch:
		s.mu.Lock()
		defer s.mu.Unlock()
		st, existed := s.switches[address]
		if !existed {
			st = NewSwitchState(address)
			s.switches[address] = st
			s.hydrate(scope, address)
		}
		return st
	case tmcc.ScopeAcc:
		s.mu.Lock()
		defer s.mu.Unlock()
		st, existed := s.accessories[address]
		if !existed {
			st = NewAccessoryState(address)
			s.accessories[address] = st
			s.hydrate(scope, address)
		}
		return st
	case tmcc.ScopeRoute:
		s.mu.Lock()
		defer s.mu.Unlock()
		st, existed := s.routes[address]
		if !existed {
			st = NewRouteState(address)
			s.routes[address] = st
			s.hydrate(scope, address)
		}
		return st
	case tmcc.ScopeIrda:
		s.mu.Lock()
		defer s.mu.Unlock()
		st, existed := s.irda[address]
		if !existed {
			st = NewIrdaState(address)
			s.irda[address] = st
		}
		return st
	default:
		return nil
	}
}

func (s *Store) engineFor(m map[int]*EngineState, scope tmcc.Scope, address int) *EngineState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, existed := m[address]
	if !existed {
		st = NewEngineState(scope, address)
		m[address] = st
		s.hydrate(scope, address)
	}
	return st
}

// hydrate invokes onHydrate; callers must hold s.mu.
func (s *Store) hydrate(scope tmcc.Scope, address int) {
	if s.onHydrate != nil {
		s.onHydrate(HydrationRequest{Scope: scope, Address: address})
	}
}

// Engine returns the engine state for address, if present.
func (s *Store) Engine(address int) (*EngineState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.engines[address]
	return e, ok
}

// Train returns the train state for address, if present.
func (s *Store) Train(address int) (*EngineState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trains[address]
	return t, ok
}

// Switch returns the switch state for address, if present.
func (s *Store) Switch(address int) (*SwitchState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sw, ok := s.switches[address]
	return sw, ok
}

// Accessory returns the accessory state for address, if present.
func (s *Store) Accessory(address int) (*AccessoryState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accessories[address]
	return a, ok
}

// Route returns the route state for address, if present.
func (s *Store) Route(address int) (*RouteState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.routes[address]
	return r, ok
}

// AllEngines returns every engine currently in the store, for tests and
// admin surfaces.
func (s *Store) AllEngines() map[int]*EngineState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]*EngineState, len(s.engines))
	for k, v := range s.engines {
		out[k] = v
	}
	return out
}

// AllTrains mirrors AllEngines for TRAIN scope.
func (s *Store) AllTrains() map[int]*EngineState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]*EngineState, len(s.trains))
	for k, v := range s.trains {
		out[k] = v
	}
	return out
}

// AllSwitches mirrors AllEngines for SWITCH scope.
func (s *Store) AllSwitches() map[int]*SwitchState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]*SwitchState, len(s.switches))
	for k, v := range s.switches {
		out[k] = v
	}
	return out
}

// AllAccessories mirrors AllEngines for ACC scope.
func (s *Store) AllAccessories() map[int]*AccessoryState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]*AccessoryState, len(s.accessories))
	for k, v := range s.accessories {
		out[k] = v
	}
	return out
}

// AllRoutes mirrors AllEngines for ROUTE scope.
func (s *Store) AllRoutes() map[int]*RouteState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]*RouteState, len(s.routes))
	for k, v := range s.routes {
		out[k] = v
	}
	return out
}

// ApplyBaseMemory bulk-applies a decoded BASE_MEMORY/D4 record's fields to
// the (scope, tmccID) state, lazily creating it if this is the first
// observation (spec §4.6, §4.7). Only ENGINE/TRAIN have a declared field
// schema rich enough to bulk-apply (internal/pdi.ApplyEngineFields);
// other scopes simply have their record's existence reflected in the
// store, per the "statically declared, sparse schema" design note
// (spec §9) — unused byte ranges in switch/route/acc records are left
// unparsed rather than guessed at.
func (s *Store) ApplyBaseMemory(scope tmcc.Scope, tmccID int, fields map[string]any) {
	st := s.stateFor(scope, tmccID)
	if e, ok := st.(*EngineState); ok && fields != nil {
		e.ApplyFields(fields)
	}
}
