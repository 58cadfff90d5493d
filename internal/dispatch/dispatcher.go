// Package dispatch implements the command Listener and Dispatcher (spec
// §4.5): a byte-stream demultiplexer that frames incoming TMCC/PDI bytes
// into CommandRequests, and a single-threaded publish/subscribe fan-out
// keyed by (scope, address), by scope, or "any".
package dispatch

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pytrain/pytrain/internal/log"
	"github.com/pytrain/pytrain/internal/metrics"
	"github.com/pytrain/pytrain/internal/telemetry"
	"github.com/pytrain/pytrain/internal/tmcc"
	"github.com/pytrain/pytrain/internal/tmcc/request"
)

// dispatchTracer spans each delivered CommandRequest's synchronous
// fan-out across its addressed/scoped/any subscriber tiers.
var dispatchTracer = telemetry.Tracer("pytrain/dispatch")

// Handler observes a single dispatched CommandRequest. Handlers that
// block should offload to their own goroutine: the dispatcher invokes
// every handler synchronously and in registration order (spec §4.5).
type Handler func(ctx context.Context, req *request.CommandRequest)

// topicKey identifies one of the dispatcher's three subscription tiers:
// a specific (scope, address), an entire scope, or "any".
type topicKey struct {
	scope   tmcc.Scope
	address int
	any     bool
}

// Subscription is the handle a subscriber owns; dropping it (calling
// Unsubscribe) removes the registered handler, replacing the teacher's
// weak-reference "keep-alive" idiom with an explicit handle (spec §9).
type Subscription struct {
	d   *Dispatcher
	key topicKey
	id  uint64
}

// Unsubscribe removes this subscription's handler. Safe to call more
// than once.
func (s *Subscription) Unsubscribe() {
	s.d.unsubscribe(s.key, s.id)
}

type entry struct {
	id      uint64
	handler Handler
}

// Dispatcher is the process-wide publish/subscribe fan-out. Create one
// per process; pass it by reference to every collaborator that needs to
// observe or be notified of CommandRequests.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[topicKey][]entry
	nextID   uint64

	queue chan *request.CommandRequest
	done  chan struct{}
	wg    sync.WaitGroup
}

// New constructs a Dispatcher with the given inbound queue depth.
func New(queueDepth int) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[topicKey][]entry),
		queue:    make(chan *request.CommandRequest, queueDepth),
		done:     make(chan struct{}),
	}
}

// SubscribeAddress registers handler for one (scope, address) topic.
func (d *Dispatcher) SubscribeAddress(scope tmcc.Scope, address int, h Handler) *Subscription {
	return d.subscribe(topicKey{scope: scope, address: address}, h)
}

// SubscribeScope registers handler for every CommandRequest in scope.
func (d *Dispatcher) SubscribeScope(scope tmcc.Scope, h Handler) *Subscription {
	return d.subscribe(topicKey{scope: scope, address: -1}, h)
}

// SubscribeAny registers handler for every CommandRequest dispatched,
// regardless of scope or address (e.g. the state store, a client
// forwarder).
func (d *Dispatcher) SubscribeAny(h Handler) *Subscription {
	return d.subscribe(topicKey{any: true}, h)
}

func (d *Dispatcher) subscribe(key topicKey, h Handler) *Subscription {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	id := d.nextID
	d.handlers[key] = append(d.handlers[key], entry{id: id, handler: h})
	return &Subscription{d: d, key: key, id: id}
}

func (d *Dispatcher) unsubscribe(key topicKey, id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	list := d.handlers[key]
	out := list[:0]
	for _, e := range list {
		if e.id != id {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		delete(d.handlers, key)
	} else {
		d.handlers[key] = out
	}
}

// Submit enqueues req for dispatch. It blocks if the inbound queue is
// full; callers on a hot read path should use a buffered queue depth
// sized for their burst profile.
func (d *Dispatcher) Submit(req *request.CommandRequest) {
	metrics.DispatchQueueDepth.Set(float64(len(d.queue)))
	d.queue <- req
}

// Run drains the inbound queue and invokes subscriber callbacks
// synchronously until ctx is canceled. It is meant to run as the single
// dispatcher task described in spec §5.
func (d *Dispatcher) Run(ctx context.Context) {
	d.wg.Add(1)
	defer d.wg.Done()
	logger := log.WithContext(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.done:
			return
		case req := <-d.queue:
			metrics.DispatchQueueDepth.Set(float64(len(d.queue)))
			d.deliver(ctx, req)
			if req.IsBroadcast() {
				logger.Debug().Str(log.FieldScope, req.Scope.String()).Msg("broadcast dispatched")
			}
		}
	}
}

// Stop signals Run to exit and waits for it to return.
func (d *Dispatcher) Stop() {
	close(d.done)
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, req *request.CommandRequest) {
	ctx, span := dispatchTracer.Start(ctx, "dispatch.deliver",
		trace.WithAttributes(
			attribute.String(log.FieldScope, req.Scope.String()),
			attribute.Int(log.FieldAddress, req.Address),
			attribute.String(log.FieldCommand, req.Name()),
		),
	)
	defer span.End()

	d.mu.RLock()
	addressed := append([]entry(nil), d.handlers[topicKey{scope: req.Scope, address: req.Address}]...)
	scoped := append([]entry(nil), d.handlers[topicKey{scope: req.Scope, address: -1}]...)
	any := append([]entry(nil), d.handlers[topicKey{any: true}]...)
	d.mu.RUnlock()

	for _, e := range addressed {
		e.handler(ctx, req)
	}
	for _, e := range scoped {
		e.handler(ctx, req)
	}
	for _, e := range any {
		e.handler(ctx, req)
	}
}
