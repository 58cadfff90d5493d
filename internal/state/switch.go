package state

import "github.com/pytrain/pytrain/internal/tmcc/request"

// SwitchPosition is a turnout's current lie.
type SwitchPosition int

const (
	PositionUnknown SwitchPosition = iota
	PositionThru
	PositionOut
)

// SwitchState is the per-(SWITCH, address) record (spec §3).
type SwitchState struct {
	Base

	Address    int
	Position   SwitchPosition
	RoadName   string
	RoadNumber string
}

// NewSwitchState constructs a SwitchState.
func NewSwitchState(address int) *SwitchState {
	return &SwitchState{Base: newBase(), Address: address}
}

// Update applies req. THRU/OUT are mutually exclusive (spec §3):
// receiving one clears the other. SET_ADDRESS records intent without
// changing position.
func (s *SwitchState) Update(req *request.CommandRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch req.Name() {
	case "SWITCH_THRU":
		s.Position = PositionThru
	case "SWITCH_OUT":
		s.Position = PositionOut
	case "SWITCH_SET_ADDRESS":
		// intent only; position unchanged
	}
	s.bump(req)
}

// IsThru and IsOut expose the exclusivity invariant the property tests
// check directly (spec §8).
func (s *SwitchState) IsThru() bool { s.mu.Lock(); defer s.mu.Unlock(); return s.Position == PositionThru }
func (s *SwitchState) IsOut() bool  { s.mu.Lock(); defer s.mu.Unlock(); return s.Position == PositionOut }
