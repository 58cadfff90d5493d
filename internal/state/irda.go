package state

import "github.com/pytrain/pytrain/internal/tmcc/request"

// IrdaState is the per-(IRDA, address) record: the last train-detection
// event seen by a sensor track, and the condition variable track-block
// logic waits on (spec §3/§4.6).
type IrdaState struct {
	Base

	Address        int
	LastEngineID   int
	LastDirection  Direction
}

// NewIrdaState constructs an IrdaState.
func NewIrdaState(address int) *IrdaState {
	return &IrdaState{Base: newBase(), Address: address}
}

// Observe records a detection event and wakes block-logic watchers.
func (i *IrdaState) Observe(engineID int, dir Direction) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.LastEngineID = engineID
	i.LastDirection = dir
	i.bump(nil)
}

func (i *IrdaState) Update(req *request.CommandRequest) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.bump(req)
}
