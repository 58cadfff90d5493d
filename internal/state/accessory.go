package state

import "github.com/pytrain/pytrain/internal/tmcc/request"

// AccessoryState is the per-(ACC, address) record (spec §3). AUX1_*
// toggles the aux1 sub-state, AUX2_* toggles aux2, and the *_OPT_ONE
// commands additionally flip the composite aux_state flag.
type AccessoryState struct {
	Base

	Address     int
	Aux1Latched bool
	Aux2Latched bool
	AuxState    bool // composite on/off derived from *_OPT_ONE
	NumericKey  int
	DeviceCode  int
}

// NewAccessoryState constructs an AccessoryState.
func NewAccessoryState(address int) *AccessoryState {
	return &AccessoryState{Base: newBase(), Address: address}
}

func (a *AccessoryState) Update(req *request.CommandRequest) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch req.Name() {
	case "AUX1_OPT_ONE":
		a.Aux1Latched = !a.Aux1Latched
		a.AuxState = !a.AuxState
	case "AUX1_OPT_TWO":
		a.Aux1Latched = !a.Aux1Latched
	case "AUX2_OPT_ONE":
		a.Aux2Latched = !a.Aux2Latched
		a.AuxState = !a.AuxState
	case "AUX2_OPT_TWO":
		a.Aux2Latched = !a.Aux2Latched
	case "ACC_NUMERIC":
		a.NumericKey = req.Data
	}
	a.bump(req)
}

// Fields returns the latched/aux state under a single lock, for admin
// surfaces.
func (a *AccessoryState) Fields() (aux1, aux2, auxState bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Aux1Latched, a.Aux2Latched, a.AuxState
}
