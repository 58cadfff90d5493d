package sequence

import (
	"fmt"
	"time"

	"github.com/pytrain/pytrain/internal/commbuffer"
	"github.com/pytrain/pytrain/internal/state"
	"github.com/pytrain/pytrain/internal/tmcc"
	"github.com/pytrain/pytrain/internal/tmcc/catalog"
	"github.com/pytrain/pytrain/internal/tmcc/request"
)

func engineOrTrain(store *state.Store, scope tmcc.Scope, address int) (*state.EngineState, bool) {
	if scope == tmcc.ScopeTrain {
		return store.Train(address)
	}
	return store.Engine(address)
}

func prefixFor(scope tmcc.Scope) byte {
	if scope == tmcc.ScopeTrain {
		return 0xF9
	}
	return 0xF8
}

// rampPrimitives builds the ABSOLUTE_SPEED+DIESEL_RPM primitive pairs for
// one ramp from current to target, returning them plus the cumulative
// delay of the final pair (so callers can append trailing steps after
// the ramp completes).
func rampPrimitives(cat *catalog.Catalog, scope tmcc.Scope, address, current, target, momentum int, policy RampPolicy, start time.Duration) ([]primitive, time.Duration, error) {
	if policy == nil {
		policy = DefaultRampPolicy{}
	}
	steps := rampSteps(current, target, momentum, policy)
	interval := policy.Delay(momentum)

	var prims []primitive
	cumulative := start
	for _, speed := range steps {
		speedBytes, err := cmdBytes(cat, "ABSOLUTE_SPEED", scope, address, speed)
		if err != nil {
			return nil, 0, err
		}
		rpmBytes, err := cmdBytes(cat, "DIESEL_RPM", scope, address, rpmBucket(speed))
		if err != nil {
			return nil, 0, err
		}
		prims = append(prims, primitive{bytes: speedBytes, delay: cumulative}, primitive{bytes: rpmBytes, delay: cumulative})
		cumulative += interval
	}
	return prims, cumulative, nil
}

// RampedSpeed reads the engine/train's current speed and momentum from
// store and emits a ramp of ABSOLUTE_SPEED commands converging on target,
// each step paired with a DIESEL_RPM command derived from the new speed
// (spec §4.8). The ramp's step size and inter-step delay come from policy
// (nil selects DefaultRampPolicy). Every step moves by the same
// policy.Step(momentum) except a shorter final one; the step does not
// shrink as the speed nears target, so the ramp is linear, not geometric.
func RampedSpeed(cat *catalog.Catalog, buf *commbuffer.Buffer, store *state.Store, scope tmcc.Scope, address, target int, policy RampPolicy) (*Sequence, error) {
	eng, ok := engineOrTrain(store, scope, address)
	if !ok {
		return nil, fmt.Errorf("ramped speed: no state for %s %d", scope, address)
	}
	current, momentum, _ := eng.Snapshot()

	prims, _, err := rampPrimitives(cat, scope, address, current, target, momentum, policy, 0)
	if err != nil {
		return nil, err
	}
	return schedule(buf, prims)
}

// speedBand names the official railroad-speed band a 0-199 absolute
// speed value falls in, used to key RampedSpeedDialog's leading/trailing
// chatter (spec §4.8).
type speedBand int

const (
	bandStop speedBand = iota
	bandRestricted
	bandSlow
	bandMedium
	bandLimited
	bandNormal
	bandHighball
)

func bandFor(speed int) speedBand {
	switch {
	case speed == 0:
		return bandStop
	case speed < 30:
		return bandRestricted
	case speed < 60:
		return bandSlow
	case speed < 90:
		return bandMedium
	case speed < 120:
		return bandLimited
	case speed < 160:
		return bandNormal
	default:
		return bandHighball
	}
}

// dialogOrdinals maps each speed band to the tower (leading) and
// engineer (trailing) dialog ordinals played around the ramp, within the
// MBCDialog family (spec §4.1 item 3).
var dialogOrdinals = map[speedBand]struct{ tower, engineer int }{
	bandStop:       {0, 1},
	bandRestricted: {2, 3},
	bandSlow:       {4, 5},
	bandMedium:     {6, 7},
	bandLimited:    {8, 9},
	bandNormal:     {10, 11},
	bandHighball:   {12, 13},
}

func dialogBytes(scope tmcc.Scope, address, ordinal, data int) ([]byte, error) {
	mbc := &request.MultiByteRequest{Scope: scope, Address: address, Family: request.MBCDialog, Ordinal: ordinal, Data: data}
	return mbc.AsBytes(prefixFor(scope))
}

// RampedSpeedDialog is RampedSpeed with a leading tower-dialog parameter
// command and a trailing engineer-dialog parameter command keyed to
// target's speed band (spec §4.8).
func RampedSpeedDialog(cat *catalog.Catalog, buf *commbuffer.Buffer, store *state.Store, scope tmcc.Scope, address, target int, policy RampPolicy) (*Sequence, error) {
	eng, ok := engineOrTrain(store, scope, address)
	if !ok {
		return nil, fmt.Errorf("ramped speed dialog: no state for %s %d", scope, address)
	}
	current, momentum, _ := eng.Snapshot()
	ordinals := dialogOrdinals[bandFor(target)]

	towerBytes, err := dialogBytes(scope, address, ordinals.tower, 0)
	if err != nil {
		return nil, err
	}

	if policy == nil {
		policy = DefaultRampPolicy{}
	}
	leadIn := policy.Delay(momentum)

	prims := []primitive{{bytes: towerBytes, delay: 0}}
	ramp, cumulative, err := rampPrimitives(cat, scope, address, current, target, momentum, policy, leadIn)
	if err != nil {
		return nil, err
	}
	prims = append(prims, ramp...)

	engineerBytes, err := dialogBytes(scope, address, ordinals.engineer, 0)
	if err != nil {
		return nil, err
	}
	prims = append(prims, primitive{bytes: engineerBytes, delay: cumulative})

	return schedule(buf, prims)
}
