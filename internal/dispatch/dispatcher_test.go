package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/pytrain/pytrain/internal/tmcc"
	"github.com/pytrain/pytrain/internal/tmcc/catalog"
	"github.com/pytrain/pytrain/internal/tmcc/request"
)

func testRequest(t *testing.T) *request.CommandRequest {
	t.Helper()
	cat := catalog.NewDefault()
	req, err := request.New(cat, "ABSOLUTE_SPEED", tmcc.ScopeEngine, 5, 40)
	if err != nil {
		t.Fatalf("request.New: %v", err)
	}
	return req
}

func runDispatcher(t *testing.T, d *Dispatcher) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		<-done
	}
}

// TestDeliveryOrderAddressedScopedAny is the spec §4.5 invariant: a
// dispatched request reaches its addressed subscriber, then its scoped
// subscriber, then any "any" subscriber, in that tier order.
func TestDeliveryOrderAddressedScopedAny(t *testing.T) {
	d := New(4)
	stop := runDispatcher(t, d)
	defer stop()

	var order []string
	got := make(chan struct{}, 3)
	record := func(label string) Handler {
		return func(ctx context.Context, req *request.CommandRequest) {
			order = append(order, label)
			got <- struct{}{}
		}
	}
	d.SubscribeAddress(tmcc.ScopeEngine, 5, record("addressed"))
	d.SubscribeScope(tmcc.ScopeEngine, record("scoped"))
	d.SubscribeAny(record("any"))

	d.Submit(testRequest(t))

	for i := 0; i < 3; i++ {
		select {
		case <-got:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for handler %d", i)
		}
	}
	want := []string{"addressed", "scoped", "any"}
	for i, w := range want {
		if order[i] != w {
			t.Errorf("order[%d] = %s, want %s (full order: %v)", i, order[i], w, order)
		}
	}
}

func TestUnsubscribeRemovesHandler(t *testing.T) {
	d := New(4)
	stop := runDispatcher(t, d)
	defer stop()

	calls := make(chan struct{}, 4)
	sub := d.SubscribeAddress(tmcc.ScopeEngine, 5, func(ctx context.Context, req *request.CommandRequest) {
		calls <- struct{}{}
	})

	d.Submit(testRequest(t))
	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never fired before Unsubscribe")
	}

	sub.Unsubscribe()
	sub.Unsubscribe() // must be safe to call twice

	d.Submit(testRequest(t))
	select {
	case <-calls:
		t.Fatal("handler fired after Unsubscribe")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSubscribeScopeSeesEveryAddressInScope(t *testing.T) {
	d := New(4)
	stop := runDispatcher(t, d)
	defer stop()

	seen := make(chan int, 2)
	d.SubscribeScope(tmcc.ScopeEngine, func(ctx context.Context, req *request.CommandRequest) {
		seen <- req.Address
	})

	cat := catalog.NewDefault()
	req1, err := request.New(cat, "ABSOLUTE_SPEED", tmcc.ScopeEngine, 5, 10)
	if err != nil {
		t.Fatal(err)
	}
	req2, err := request.New(cat, "ABSOLUTE_SPEED", tmcc.ScopeEngine, 6, 10)
	if err != nil {
		t.Fatal(err)
	}
	d.Submit(req1)
	d.Submit(req2)

	addrs := map[int]bool{}
	for i := 0; i < 2; i++ {
		select {
		case a := <-seen:
			addrs[a] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for scoped delivery")
		}
	}
	if !addrs[5] || !addrs[6] {
		t.Errorf("addrs = %v, want both 5 and 6", addrs)
	}
}

func TestStopTerminatesRun(t *testing.T) {
	d := New(1)
	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	d.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}
