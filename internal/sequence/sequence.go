// Package sequence implements composite commands (spec §4.8): ordered
// lists of primitive CommandRequests, each carrying a delay relative to
// the sequence's start, scheduled through a commbuffer.Buffer in one
// shot. A Sequence is cancellable: Cancel() removes every not-yet-sent
// entry still sitting in the comm buffer's queue.
package sequence

import (
	"time"

	"github.com/pytrain/pytrain/internal/commbuffer"
	"github.com/pytrain/pytrain/internal/metrics"
	"github.com/pytrain/pytrain/internal/tmcc"
	"github.com/pytrain/pytrain/internal/tmcc/catalog"
	"github.com/pytrain/pytrain/internal/tmcc/request"
)

// primitive is one scheduled entry: already-serialized wire bytes and
// its delay from the sequence's start.
type primitive struct {
	bytes []byte
	delay time.Duration
}

// Sequence is the handle returned once a composite command's primitives
// have been scheduled.
type Sequence struct {
	tokens []*commbuffer.CancelToken
}

// Cancel removes every primitive of this sequence that the comm buffer
// has not yet transmitted. Safe to call more than once.
func (s *Sequence) Cancel() {
	for _, t := range s.tokens {
		t.Cancel()
	}
}

// schedule enqueues each primitive on buf at its relative delay,
// returning a cancellable handle.
func schedule(buf *commbuffer.Buffer, prims []primitive) (*Sequence, error) {
	seq := &Sequence{tokens: make([]*commbuffer.CancelToken, 0, len(prims))}
	for _, p := range prims {
		seq.tokens = append(seq.tokens, buf.Enqueue(p.bytes, p.delay))
	}
	metrics.SequencesActiveGauge.Inc()
	return seq, nil
}

// cmdBytes builds a CommandRequest for name/scope/address/data and
// serializes it, the common path every sequence step goes through.
func cmdBytes(cat *catalog.Catalog, name string, scope tmcc.Scope, address, data int) ([]byte, error) {
	req, err := request.New(cat, name, scope, address, data)
	if err != nil {
		return nil, err
	}
	return req.AsBytes()
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
