package sequence

import (
	"context"
	"time"

	"github.com/pytrain/pytrain/internal/commbuffer"
)

// recordingSink captures every frame written to it, in order, for tests
// that need to inspect a scheduled sequence's wire output.
type recordingSink struct {
	written chan []byte
}

func newRecordingSink() *recordingSink {
	return &recordingSink{written: make(chan []byte, 256)}
}

func (r *recordingSink) Name() string { return "test" }

func (r *recordingSink) Write(ctx context.Context, frame []byte) error {
	r.written <- append([]byte(nil), frame...)
	return nil
}

func newTestBuffer(sink *recordingSink) *commbuffer.Buffer {
	return commbuffer.New([]commbuffer.Sink{sink}, nil, time.Hour, time.Hour)
}

// runTestBuffer starts buf.Run and returns a stop func.
func runTestBuffer(buf *commbuffer.Buffer) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		buf.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		<-done
	}
}
