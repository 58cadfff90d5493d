package state

import "github.com/pytrain/pytrain/internal/tmcc/request"

// BlockIndex is a stable integer index into a BlockArena. Links between
// blocks are indices, not owning pointers, per the arena design note
// (spec §9) — this sidesteps the cyclic prev/next references the
// original source represented with live object references.
type BlockIndex int

// NoBlock is the zero-value sentinel meaning "no linked block".
const NoBlock BlockIndex = -1

// BlockState is the per-(BLOCK, address) record (spec §3).
type BlockState struct {
	Base

	Address int

	Occupied      bool
	Entered       bool
	Slowed        bool
	Stopped       bool
	LeftToRight   bool
	MotivePower   int // engine/train address currently occupying, 0 if none
	SensorTrackID int
	GoverningSwitch int

	Prev, Next BlockIndex
}

// NewBlockState constructs a BlockState with no linked neighbors.
func NewBlockState(address int) *BlockState {
	return &BlockState{Base: newBase(), Address: address, Prev: NoBlock, Next: NoBlock}
}

func (b *BlockState) Update(req *request.CommandRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bump(req)
}

// BlockArena owns every BlockState by stable index.
type BlockArena struct {
	blocks []*BlockState
}

// Add appends s to the arena and returns its stable index.
func (a *BlockArena) Add(s *BlockState) BlockIndex {
	a.blocks = append(a.blocks, s)
	return BlockIndex(len(a.blocks) - 1)
}

// Get returns the block at idx, or nil if idx is out of range.
func (a *BlockArena) Get(idx BlockIndex) *BlockState {
	if idx < 0 || int(idx) >= len(a.blocks) {
		return nil
	}
	return a.blocks[idx]
}

// Link sets from's Next and to's Prev to point at each other.
func (a *BlockArena) Link(from, to BlockIndex) {
	if f := a.Get(from); f != nil {
		f.mu.Lock()
		f.Next = to
		f.mu.Unlock()
	}
	if t := a.Get(to); t != nil {
		t.mu.Lock()
		t.Prev = from
		t.mu.Unlock()
	}
}
