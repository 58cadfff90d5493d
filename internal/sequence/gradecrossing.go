package sequence

import (
	"time"

	"github.com/pytrain/pytrain/internal/commbuffer"
	"github.com/pytrain/pytrain/internal/tmcc"
	"github.com/pytrain/pytrain/internal/tmcc/catalog"
)

// gradeCrossingBlastInterval is the ~1.1s spacing between successive
// quilling-horn blasts (spec §4.8 / §8 scenario 3).
const gradeCrossingBlastInterval = 1100 * time.Millisecond

// gradeCrossingPattern is the fixed intensity sequence for a grade
// crossing warning: 5 full blasts, a pause, 4 mid blasts, a pause, 6
// full blasts, a pause, 6 full blasts then 3 low blasts (spec §4.8). A
// pause widens the gap to the next blast without emitting a zero-
// intensity command.
var gradeCrossingPattern = []int{
	15, 15, 15, 15, 15,
	8, 8, 8, 8,
	15, 15, 15, 15, 15, 15,
	15, 15, 15, 15, 15, 15, 4, 4, 4,
}

// gradeCrossingPauseAfter marks the indices (into gradeCrossingPattern)
// after which an extra blast-interval gap is inserted.
var gradeCrossingPauseAfter = map[int]bool{4: true, 8: true, 14: true}

// GradeCrossing emits engine address's grade-crossing quilling-horn
// warning pattern, each blast ~1.1s apart (spec §4.8, §8 scenario 3).
func GradeCrossing(cat *catalog.Catalog, buf *commbuffer.Buffer, address int) (*Sequence, error) {
	var prims []primitive
	cumulative := time.Duration(0)
	for i, intensity := range gradeCrossingPattern {
		b, err := cmdBytes(cat, "QUILLING_HORN", tmcc.ScopeEngine, address, intensity)
		if err != nil {
			return nil, err
		}
		prims = append(prims, primitive{bytes: b, delay: cumulative})
		cumulative += gradeCrossingBlastInterval
		if gradeCrossingPauseAfter[i] {
			cumulative += gradeCrossingBlastInterval
		}
	}
	return schedule(buf, prims)
}
