package sequence

import (
	"fmt"

	"github.com/pytrain/pytrain/internal/commbuffer"
	"github.com/pytrain/pytrain/internal/state"
	"github.com/pytrain/pytrain/internal/tmcc"
	"github.com/pytrain/pytrain/internal/tmcc/catalog"
)

// laborStep reads the engine/train's current labor from store, clamps
// current+delta to [0,31], and schedules the resulting ENGINE_LABOR
// command (spec §4.8 LaborEffectUp/Down).
func laborStep(cat *catalog.Catalog, buf *commbuffer.Buffer, store *state.Store, scope tmcc.Scope, address, delta int) (*Sequence, error) {
	eng, ok := engineOrTrain(store, scope, address)
	if !ok {
		return nil, fmt.Errorf("labor effect: no state for %s %d", scope, address)
	}
	_, _, labor := eng.Snapshot()
	next := clampInt(labor+delta, 0, 31)

	b, err := cmdBytes(cat, "ENGINE_LABOR", scope, address, next)
	if err != nil {
		return nil, err
	}
	return schedule(buf, []primitive{{bytes: b}})
}

// LaborEffectUp raises engine labor by one, clamped to 31.
func LaborEffectUp(cat *catalog.Catalog, buf *commbuffer.Buffer, store *state.Store, scope tmcc.Scope, address int) (*Sequence, error) {
	return laborStep(cat, buf, store, scope, address, 1)
}

// LaborEffectDown lowers engine labor by one, clamped to 0.
func LaborEffectDown(cat *catalog.Catalog, buf *commbuffer.Buffer, store *state.Store, scope tmcc.Scope, address int) (*Sequence, error) {
	return laborStep(cat, buf, store, scope, address, -1)
}
