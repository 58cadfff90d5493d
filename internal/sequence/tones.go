package sequence

import (
	"time"

	"github.com/pytrain/pytrain/internal/commbuffer"
	"github.com/pytrain/pytrain/internal/tmcc"
	"github.com/pytrain/pytrain/internal/tmcc/catalog"
)

// toneRepeatInterval spaces repeated one-shot triggers in a Cycle*
// sequence.
const toneRepeatInterval = 400 * time.Millisecond

// SetHornTone sends a single QUILLING_HORN command at the given
// intensity (0-15): the quilling horn's own data field doubles as its
// tone slider, so setting the tone and triggering it are the same wire
// command (spec §4.8).
func SetHornTone(cat *catalog.Catalog, buf *commbuffer.Buffer, address, intensity int) (*Sequence, error) {
	b, err := cmdBytes(cat, "QUILLING_HORN", tmcc.ScopeEngine, address, intensity)
	if err != nil {
		return nil, err
	}
	return schedule(buf, []primitive{{bytes: b}})
}

// CycleHornTone repeats SetHornTone's trigger count times, spaced
// toneRepeatInterval apart.
func CycleHornTone(cat *catalog.Catalog, buf *commbuffer.Buffer, address, intensity, count int) (*Sequence, error) {
	var prims []primitive
	cumulative := time.Duration(0)
	for i := 0; i < count; i++ {
		b, err := cmdBytes(cat, "QUILLING_HORN", tmcc.ScopeEngine, address, intensity)
		if err != nil {
			return nil, err
		}
		prims = append(prims, primitive{bytes: b, delay: cumulative})
		cumulative += toneRepeatInterval
	}
	return schedule(buf, prims)
}

// SetBellTone sets the bell slider to position (2-5, spec §3) via
// NUMERIC, then fires one RING_BELL ding.
func SetBellTone(cat *catalog.Catalog, buf *commbuffer.Buffer, address, position int) (*Sequence, error) {
	sliderBytes, err := cmdBytes(cat, "NUMERIC", tmcc.ScopeEngine, address, clampInt(position, 0, 9))
	if err != nil {
		return nil, err
	}
	ding, err := cmdBytes(cat, "RING_BELL", tmcc.ScopeEngine, address, 0)
	if err != nil {
		return nil, err
	}
	return schedule(buf, []primitive{
		{bytes: sliderBytes, delay: 0},
		{bytes: ding, delay: 50 * time.Millisecond},
	})
}

// CycleBellTone repeats SetBellTone's slider-then-ding pair count times.
func CycleBellTone(cat *catalog.Catalog, buf *commbuffer.Buffer, address, position, count int) (*Sequence, error) {
	sliderBytes, err := cmdBytes(cat, "NUMERIC", tmcc.ScopeEngine, address, clampInt(position, 0, 9))
	if err != nil {
		return nil, err
	}
	ding, err := cmdBytes(cat, "RING_BELL", tmcc.ScopeEngine, address, 0)
	if err != nil {
		return nil, err
	}

	var prims []primitive
	cumulative := time.Duration(0)
	for i := 0; i < count; i++ {
		prims = append(prims,
			primitive{bytes: sliderBytes, delay: cumulative},
			primitive{bytes: ding, delay: cumulative + 50*time.Millisecond},
		)
		cumulative += toneRepeatInterval
	}
	return schedule(buf, prims)
}
