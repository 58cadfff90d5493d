// Package commbuffer implements the single process-wide outbound queue
// (spec §4.4): scheduled delivery to every configured sink (serial, the
// Base 3 TCP connection, and — on a server — each subscribed client),
// each throttled to a minimum per-sink send interval, with keep-alive.
package commbuffer

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pytrain/pytrain/internal/log"
	"github.com/pytrain/pytrain/internal/metrics"
)

// Sink is anything the comm buffer can write a finished frame to.
type Sink interface {
	Name() string
	Write(ctx context.Context, frame []byte) error
}

type entry struct {
	frame   []byte
	sendAt  time.Time
	canceled *bool
}

// Buffer is the process-wide outbound command queue. One instance per
// process; every sink gets its own throttle, and a single Run goroutine
// writes each frame to the sinks one after another.
type Buffer struct {
	mu    sync.Mutex
	queue []*entry

	sinks    []Sink
	limiters map[string]*rate.Limiter

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup

	idleWindow    time.Duration
	keepAliveFreq time.Duration
	lastSend      time.Time
}

// New builds a Buffer that throttles each sink to minInterval between
// sends and emits a keep-alive frame every keepAliveFreq once idle past
// idleWindow.
func New(sinks []Sink, minInterval map[string]time.Duration, idleWindow, keepAliveFreq time.Duration) *Buffer {
	limiters := make(map[string]*rate.Limiter, len(sinks))
	for _, s := range sinks {
		interval := minInterval[s.Name()]
		if interval <= 0 {
			interval = 50 * time.Millisecond
		}
		limiters[s.Name()] = rate.NewLimiter(rate.Every(interval), 1)
	}
	return &Buffer{
		sinks:         sinks,
		limiters:      limiters,
		wake:          make(chan struct{}, 1),
		done:          make(chan struct{}),
		idleWindow:    idleWindow,
		keepAliveFreq: keepAliveFreq,
		lastSend:      time.Now(),
	}
}

// Enqueue appends frame to the queue, to be sent no earlier than delay
// from now.
func (b *Buffer) Enqueue(frame []byte, delay time.Duration) *CancelToken {
	canceled := new(bool)
	b.mu.Lock()
	b.queue = append(b.queue, &entry{frame: frame, sendAt: time.Now().Add(delay), canceled: canceled})
	metrics.CommBufferQueueDepth.WithLabelValues("all").Set(float64(len(b.queue)))
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
	return &CancelToken{flag: canceled}
}

// CancelToken lets a caller (the sequence engine) remove a not-yet-sent
// entry from the queue.
type CancelToken struct{ flag *bool }

// Cancel marks the associated entry so the drainer skips it.
func (c *CancelToken) Cancel() { *c.flag = true }

// Run drains the queue, sleeping until each entry's scheduled time, then
// transmits to every sink (respecting that sink's throttle), until ctx is
// canceled. It is meant to be the single comm-buffer writer task per
// spec §5, with one throttle bucket maintained per sink.
func (b *Buffer) Run(ctx context.Context) {
	b.wg.Add(1)
	defer b.wg.Done()

	ticker := time.NewTicker(b.keepAliveFreq)
	defer ticker.Stop()

	for {
		next := b.pop()
		if next == nil {
			select {
			case <-ctx.Done():
				return
			case <-b.done:
				return
			case <-b.wake:
				continue
			case <-ticker.C:
				b.maybeKeepAlive(ctx)
				continue
			}
		}

		if wait := time.Until(next.sendAt); wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-b.done:
				return
			case <-time.After(wait):
			}
		}
		if *next.canceled {
			continue
		}
		b.send(ctx, next.frame)
	}
}

// Stop signals Run to exit and waits for it to return.
func (b *Buffer) Stop() {
	close(b.done)
	b.wg.Wait()
}

func (b *Buffer) pop() *entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.queue) > 0 {
		e := b.queue[0]
		b.queue = b.queue[1:]
		metrics.CommBufferQueueDepth.WithLabelValues("all").Set(float64(len(b.queue)))
		if *e.canceled {
			continue
		}
		return e
	}
	return nil
}

func (b *Buffer) send(ctx context.Context, frame []byte) {
	logger := log.WithContext(ctx)
	for _, s := range b.sinks {
		if lim := b.limiters[s.Name()]; lim != nil {
			_ = lim.Wait(ctx)
		}
		if err := s.Write(ctx, frame); err != nil {
			logger.Warn().Err(err).Str(log.FieldSink, s.Name()).Msg("sink write failed")
			continue
		}
		metrics.CommBufferSentTotal.WithLabelValues(s.Name()).Inc()
	}
	b.mu.Lock()
	b.lastSend = time.Now()
	b.mu.Unlock()
}

// maybeKeepAlive emits a PING frame to every sink once the buffer has
// been idle past idleWindow (spec §4.4).
func (b *Buffer) maybeKeepAlive(ctx context.Context) {
	b.mu.Lock()
	idle := time.Since(b.lastSend)
	b.mu.Unlock()
	if idle < b.idleWindow {
		return
	}
	b.send(ctx, PingFrame())
}

// PingFrame returns the sync-admin KEEP_ALIVE frame used as a keep-alive
// proof of life.
func PingFrame() []byte {
	return []byte{0xF0, 0x07, 0x00}
}
