package dispatch

import (
	"context"
	"errors"
	"strings"

	"github.com/pytrain/pytrain/internal/log"
	"github.com/pytrain/pytrain/internal/metrics"
	"github.com/pytrain/pytrain/internal/pdi"
	"github.com/pytrain/pytrain/internal/pytrainerr"
	"github.com/pytrain/pytrain/internal/tmcc/catalog"
	"github.com/pytrain/pytrain/internal/tmcc/request"
)

// deque bound: two upstream sources (serial, TCP) feed this one channel;
// sized per spec §4.5.
const queueDepth = 2048

// Source labels where a chunk of bytes was read from, for metrics and the
// decoder's dispatch rules.
type Source int

const (
	SourceSerial Source = iota
	SourceTCP
)

func (s Source) String() string {
	if s == SourceSerial {
		return "serial"
	}
	return "tcp"
}

type chunk struct {
	source Source
	data   []byte
}

// Listener drains two byte sources (serial echo stream, TCP/PDI stream)
// into one bounded queue and frames them into CommandRequests, handing
// each to a Dispatcher.
type Listener struct {
	cat *catalog.Catalog
	d   *Dispatcher

	in   chan chunk
	buf  map[Source][]byte
	done chan struct{}

	// onPDI, if set, receives every non-TMCC PDI packet (BASE_MEMORY/D4/
	// LCS) decoded off the TCP stream — the synchronizer and device store
	// are the typical subscribers, since these packets have no
	// CommandRequest representation to fan out through the Dispatcher.
	onPDI func(*pdi.Packet)
}

// NewListener builds a Listener that parses frames using cat and submits
// them to d.
func NewListener(cat *catalog.Catalog, d *Dispatcher) *Listener {
	return &Listener{
		cat:  cat,
		d:    d,
		in:   make(chan chunk, queueDepth),
		buf:  map[Source][]byte{SourceSerial: {}, SourceTCP: {}},
		done: make(chan struct{}),
	}
}

// OnPDI registers a callback invoked for every decoded PDI packet that
// isn't a TMCC_RX/TMCC4_RX wrapper (those are re-dispatched as ordinary
// CommandRequests instead). Must be called before Run.
func (l *Listener) OnPDI(fn func(*pdi.Packet)) { l.onPDI = fn }

// Feed appends data to the listener's source-tagged queue. It drops the
// chunk (with a log line) if the queue is saturated, rather than
// blocking the reader thread indefinitely.
func (l *Listener) Feed(source Source, data []byte) {
	select {
	case l.in <- chunk{source: source, data: data}:
	default:
		log.Logger().Warn().Str(log.FieldSink, source.String()).Msg("listener queue full, dropping chunk")
		metrics.IncDiscard("queue_overflow")
	}
}

// Run consumes fed chunks, accumulates per-source buffers, and frames
// complete CommandRequests out of them until ctx is canceled.
func (l *Listener) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.done:
			return
		case c := <-l.in:
			l.buf[c.source] = append(l.buf[c.source], c.data...)
			l.drain(ctx, c.source)
		}
	}
}

// Stop signals Run to exit.
func (l *Listener) Stop() { close(l.done) }

// drain consumes as many complete frames as are available in the named
// source's buffer, submitting each to the dispatcher.
func (l *Listener) drain(ctx context.Context, source Source) {
	for {
		buf := l.buf[source]
		if len(buf) == 0 {
			return
		}

		var consumed int
		var req *request.CommandRequest
		var err error

		if source == SourceTCP && buf[0] == pdi.SOP {
			consumed, req, err = l.drainPDI(buf)
		} else {
			req, consumed, err = request.Parse(l.cat, buf)
		}

		if err != nil {
			if isIncomplete(err) {
				return // too few bytes buffered yet; wait for more
			}
			// Re-sync on the next recognizable prefix, per spec §4.5.
			metrics.IncDiscard(discardKind(err))
			log.WithContext(ctx).Debug().Err(err).Str(log.FieldSink, source.String()).Msg("discarding malformed frame")
			skip := resync(buf)
			if skip == 0 {
				return // nothing recognizable yet; wait for more bytes
			}
			l.buf[source] = buf[skip:]
			continue
		}
		if consumed == 0 {
			return // incomplete frame; wait for more bytes
		}

		l.buf[source] = buf[consumed:]
		if req != nil {
			metrics.FramesDecodedTotal.WithLabelValues(source.String()).Inc()
			l.d.Submit(req)
		}
	}
}

// drainPDI consumes one complete PDI frame from buf (if any), decodes its
// checksum, and for TMCC_RX/TMCC4_RX wrappers re-dispatches the inner
// TMCC bytes through the ordinary codec (spec §4.5).
func (l *Listener) drainPDI(buf []byte) (int, *request.CommandRequest, error) {
	end := pdi.ScanFrame(buf)
	if end < 0 {
		return 0, nil, nil
	}
	pkt, err := pdi.Decode(buf[:end])
	if err != nil {
		return end, nil, err
	}
	if inner, ok := pdi.InnerTMCC(pkt); ok {
		req, _, perr := request.Parse(l.cat, inner)
		if perr != nil {
			return end, nil, perr
		}
		return end, req, nil
	}
	// A non-TMCC PDI packet (BASE_MEMORY/D4/LCS); these have no
	// CommandRequest representation, so they're handed to onPDI instead of
	// the CommandRequest fan-out.
	if l.onPDI != nil {
		l.onPDI(pkt)
	}
	return end, nil, nil
}

// resync scans buf for the next byte that could start a frame, returning
// how many leading bytes to discard (0 if none is found yet).
func resync(buf []byte) int {
	for i := 1; i < len(buf); i++ {
		switch buf[i] {
		case 0xFE, 0xF8, 0xF9, 0xFA, 0xF0, pdi.SOP:
			return i
		}
	}
	return 0
}

// isIncomplete reports whether err reflects a buffer that simply doesn't
// have all of a frame's bytes yet, as opposed to a genuinely malformed
// one. The caller should wait for more bytes rather than discard+resync.
func isIncomplete(err error) bool {
	var fe *pytrainerr.FrameError
	if !errors.As(err, &fe) {
		return false
	}
	return strings.Contains(fe.Reason, "short") || strings.Contains(fe.Reason, "too short")
}

func discardKind(err error) string {
	switch {
	case errors.Is(err, pytrainerr.ErrInvalidFrame):
		return "invalid_frame"
	case errors.Is(err, pytrainerr.ErrUnknownOpcode):
		return "unknown_opcode"
	default:
		return "unknown"
	}
}
