package state

import "github.com/pytrain/pytrain/internal/tmcc/request"

// SyncPhase is the system's overall readiness (spec §3).
type SyncPhase int

const (
	SyncUnknown SyncPhase = iota
	SyncSynchronizing
	SyncSynchronized
)

func (p SyncPhase) String() string {
	switch p {
	case SyncSynchronizing:
		return "SYNCHRONIZING"
	case SyncSynchronized:
		return "SYNCHRONIZED"
	default:
		return "UNKNOWN"
	}
}

// SyncState is the single pseudo-device record representing system
// readiness (spec §3).
type SyncState struct {
	Base
	Phase SyncPhase
}

// NewSyncState constructs a SyncState in SyncUnknown.
func NewSyncState() *SyncState {
	return &SyncState{Base: newBase()}
}

func (s *SyncState) Update(req *request.CommandRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch req.Name() {
	case "SYNC_BEGIN", "SYNCHRONIZING":
		s.Phase = SyncSynchronizing
	case "SYNC_COMPLETE", "SYNCHRONIZED":
		s.Phase = SyncSynchronized
	}
	s.bump(req)
}

// Set directly transitions the phase (used by the Synchronizer, which
// doesn't always have a CommandRequest in hand).
func (s *SyncState) Set(phase SyncPhase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Phase = phase
	s.bump(nil)
}

// Get returns the current phase under lock, for admin/observability
// surfaces that read concurrently with the dispatcher task.
func (s *SyncState) Get() SyncPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Phase
}
