package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestIncDiscardDefaultsEmptyKindToUnknown(t *testing.T) {
	before := testutil.ToFloat64(FramesDiscardedTotal.WithLabelValues("unknown"))

	IncDiscard("")

	after := testutil.ToFloat64(FramesDiscardedTotal.WithLabelValues("unknown"))
	if after != before+1 {
		t.Errorf("unknown-kind counter = %v, want %v", after, before+1)
	}
}

func TestIncDiscardUsesGivenKind(t *testing.T) {
	before := testutil.ToFloat64(FramesDiscardedTotal.WithLabelValues("InvalidFrame"))

	IncDiscard("InvalidFrame")

	after := testutil.ToFloat64(FramesDiscardedTotal.WithLabelValues("InvalidFrame"))
	if after != before+1 {
		t.Errorf("InvalidFrame counter = %v, want %v", after, before+1)
	}
}
