package state

import (
	"github.com/pytrain/pytrain/internal/tmcc"
	"github.com/pytrain/pytrain/internal/tmcc/request"
)

// Direction is an engine or train's direction of travel.
type Direction int

const (
	DirectionUnknown Direction = iota
	DirectionForward
	DirectionReverse
)

// ConsistMember is one entry in a train's ordered consist list (spec
// §3): head->tail order, each referencing a live engine address.
type ConsistMember struct {
	EngineAddress int
	HeadMiddleTail int // 0=single, 1=head, 2=middle, 3=tail
	Reversed       bool
}

// EngineState is the per-(ENGINE|TRAIN, address) record (spec §3).
type EngineState struct {
	Base

	Scope   tmcc.Scope
	Address int

	Speed       int
	TargetSpeed int
	Direction   Direction
	Momentum    int
	TrainBrake  int
	RPM         int
	EngineLabor int
	SmokeLevel  int
	MaxSpeed    int
	SpeedLimit  int
	RoadName    string
	RoadNumber  string

	ConsistComponents []ConsistMember
}

// NewEngineState constructs an EngineState with labor defaulted to 12,
// the spec's documented default (spec §3).
func NewEngineState(scope tmcc.Scope, address int) *EngineState {
	return &EngineState{Base: newBase(), Scope: scope, Address: address, EngineLabor: 12}
}

// rpmBucket maps a 0-199 absolute-speed value onto one of 8 RPM buckets
// (0 = stopped, 1-7 = running), matching the (rpm, labor) byte's 3-bit
// RPM field (spec §3/§4.6). The 1-199 range is partitioned into 7 equal
// bands via a ceiling division, so e.g. speed 92 (in the fourth band,
// 86-113) derives rpm 4.
func rpmBucket(speed int) int {
	if speed <= 0 {
		return 0
	}
	bucket := (speed*7 + 198) / 199
	if bucket > 7 {
		bucket = 7
	}
	return bucket
}

// Update applies req to the engine/train state (spec §4.6). Commands
// that don't mutate any field (bell, horn, sound triggers) still bump
// the version so watchers fire.
func (e *EngineState) Update(req *request.CommandRequest) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch req.Name() {
	case "ABSOLUTE_SPEED":
		e.Speed = req.Data
		e.TargetSpeed = req.Data
		e.RPM = rpmBucket(req.Data)
	case "RELATIVE_SPEED":
		delta := req.Data - 5 // offset-5 encoding: 0..10 represents -5..+5
		e.Speed = clamp(e.Speed+delta, 0, 199)
		e.TargetSpeed = e.Speed
		e.RPM = rpmBucket(e.Speed)
	case "STOP_IMMEDIATE", "RESET":
		e.Speed, e.TargetSpeed, e.RPM = 0, 0, 0
	case "FORWARD_DIRECTION":
		e.Direction = DirectionForward
	case "REVERSE_DIRECTION":
		e.Direction = DirectionReverse
	case "TOGGLE_DIRECTION":
		if e.Direction == DirectionForward {
			e.Direction = DirectionReverse
		} else {
			e.Direction = DirectionForward
		}
	case "MOMENTUM":
		e.Momentum = req.Data
	case "TRAIN_BRAKE":
		e.TrainBrake = req.Data
	case "ENGINE_LABOR":
		e.EngineLabor = clamp(req.Data, 0, 31)
	case "DIESEL_RPM":
		e.RPM = clamp(req.Data, 0, 7)
	case "SMOKE_OFF":
		e.SmokeLevel = 0
	case "SMOKE_LOW":
		e.SmokeLevel = 1
	case "SMOKE_MEDIUM":
		e.SmokeLevel = 2
	case "SMOKE_HIGH", "SMOKE_ON":
		e.SmokeLevel = 3
	}

	e.bump(req)
}

// ApplyFields bulk-updates fields decoded from a BASE_MEMORY or D4 QUERY
// response, per spec §4.6.
func (e *EngineState) ApplyFields(fields map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v, ok := fields["speed"].(int); ok {
		e.Speed = v
	}
	if v, ok := fields["momentum"].(int); ok {
		e.Momentum = v
	}
	if v, ok := fields["road_name"].(string); ok {
		e.RoadName = v
	}
	if v, ok := fields["rpm_labor"].([]int); ok && len(v) == 2 {
		e.RPM, e.EngineLabor = v[0], v[1]
	}
	e.bump(nil)
}

// Halt zeroes speed and RPM, matching HALT/SYSTEM_HALT fan-out (spec
// §4.6).
func (e *EngineState) Halt() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Speed, e.TargetSpeed, e.RPM = 0, 0, 0
	e.bump(nil)
}

// Snapshot returns the fields the sequence engine needs to derive a ramp
// (current speed, momentum, engine labor) under a single lock, so a
// caller never observes a torn read across a concurrent Update.
func (e *EngineState) Snapshot() (speed, momentum, labor int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Speed, e.Momentum, e.EngineLabor
}

// Fields returns every display field under a single lock, for admin
// surfaces that dump the full record rather than just the ramp inputs
// Snapshot exposes.
func (e *EngineState) Fields() (direction Direction, rpm int, roadName string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Direction, e.RPM, e.RoadName
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
