// Package serialport implements the USB-serial link to the Base 3's
// proprietary TMCC echo stream (spec §5.2): 8N1 at a configurable baud,
// a reader that polls for up to 256 bytes at a time, and a raw writer
// with no flow control.
package serialport

import (
	"context"
	"errors"
	"io"
	"time"

	"go.bug.st/serial"

	"github.com/pytrain/pytrain/internal/dispatch"
	"github.com/pytrain/pytrain/internal/log"
	"github.com/pytrain/pytrain/internal/metrics"
	"github.com/pytrain/pytrain/internal/pytrainerr"
)

// readChunkSize is the maximum bytes pulled per read syscall (spec §5.2).
const readChunkSize = 256

// pollInterval is how long the reader sleeps between reads when the port
// has nothing buffered (spec §5.2).
const pollInterval = 50 * time.Millisecond

// readTimeout bounds a single blocking Read call so the reader loop can
// notice ctx cancellation promptly.
const readTimeout = 200 * time.Millisecond

// Port is the USB-serial link: a commbuffer.Sink for outbound writes and
// a reader loop that feeds a dispatch.Listener.
type Port struct {
	name string
	baud int
	port serial.Port
}

// Open opens name at baud, 8 data bits, no parity, one stop bit.
func Open(name string, baud int) (*Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, pytrainerr.NewFrameError("serial open failed: "+err.Error(), nil)
	}
	if err := p.SetReadTimeout(readTimeout); err != nil {
		_ = p.Close()
		return nil, err
	}
	return &Port{name: name, baud: baud, port: p}, nil
}

// Name satisfies commbuffer.Sink.
func (p *Port) Name() string { return "serial" }

// Write satisfies commbuffer.Sink: raw bytes, no flow control (spec §5.2).
func (p *Port) Write(ctx context.Context, frame []byte) error {
	_, err := p.port.Write(frame)
	return err
}

// Close releases the underlying OS handle.
func (p *Port) Close() error { return p.port.Close() }

// Run reads from the port in readChunkSize bursts, feeding every
// nonempty read into l as SourceSerial, until ctx is canceled or the
// port reports a broken link (spec §6: unplug -> mark link down,
// reconnect loop owned by the caller).
func (p *Port) Run(ctx context.Context, l *dispatch.Listener) error {
	buf := make([]byte, readChunkSize)
	logger := log.WithContext(ctx).With().Str(log.FieldSink, "serial").Logger()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := p.port.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return pytrainerr.ErrBrokenLink
			}
			logger.Warn().Err(err).Msg("serial read error")
			return pytrainerr.ErrBrokenLink
		}
		if n == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pollInterval):
			}
			continue
		}

		chunk := make([]byte, n)
		copy(chunk, buf[:n])
		l.Feed(dispatch.SourceSerial, chunk)
		metrics.SerialBytesReadTotal.Add(float64(n))
	}
}
