package state

import "github.com/pytrain/pytrain/internal/tmcc/request"

// RouteSwitch is one (switch_id, thru|out) entry the route's component
// list replays when the Base 3 emits the subsequent switch commands
// (spec §4.6).
type RouteSwitch struct {
	SwitchID int
	Thru     bool
}

// RouteState is the per-(ROUTE, address) record (spec §3). A route is a
// transient, edge-triggered event: Active is true only momentarily.
type RouteState struct {
	Base

	Address   int
	Active    bool
	Switches  []RouteSwitch
}

// NewRouteState constructs a RouteState.
func NewRouteState(address int) *RouteState {
	return &RouteState{Base: newBase(), Address: address}
}

func (r *RouteState) Update(req *request.CommandRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req.Name() == "ROUTE_FIRE" {
		r.Active = true
	}
	r.bump(req)
}

// RecordSwitch appends a switch observed as part of this route firing,
// per the Base 3's subsequent-switch-command replay (spec §4.6).
func (r *RouteState) RecordSwitch(switchID int, thru bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Switches = append(r.Switches, RouteSwitch{SwitchID: switchID, Thru: thru})
	r.bump(nil)
}

// Fields returns the active flag and switch count under a single lock,
// for admin surfaces.
func (r *RouteState) Fields() (active bool, switchCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Active, len(r.Switches)
}
