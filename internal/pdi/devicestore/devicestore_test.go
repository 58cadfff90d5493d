package devicestore

import (
	"testing"

	"github.com/pytrain/pytrain/internal/pdi"
)

// TestRegisterComputesASC2FollowUpQueries is spec §4.7's worked example:
// an ASC2 in mode 0 at base address 5 needs follow-up queries 5..12.
func TestRegisterComputesASC2FollowUpQueries(t *testing.T) {
	s := New()
	queries := s.Register(Device{Type: pdi.LCSASC2, TmccID: 1, Mode: int(pdi.ASC2ModeAccessory), BaseAddr: 5})

	want := []int{5, 6, 7, 8, 9, 10, 11, 12}
	if len(queries) != len(want) {
		t.Fatalf("queries = %v, want %v", queries, want)
	}
	for i := range want {
		if queries[i] != want[i] {
			t.Errorf("queries[%d] = %d, want %d", i, queries[i], want[i])
		}
	}
}

func TestRegisterNonASC2HasNoFollowUp(t *testing.T) {
	s := New()
	if got := s.Register(Device{Type: pdi.LCSBPC2, TmccID: 1}); got != nil {
		t.Errorf("BPC2 follow-up queries = %v, want nil", got)
	}
}

func TestGetAndAll(t *testing.T) {
	s := New()
	s.Register(Device{Type: pdi.LCSIRDA, TmccID: 9, Mode: 0, BaseAddr: 9})

	d, ok := s.Get(pdi.LCSIRDA, 9)
	if !ok {
		t.Fatal("Get(LCSIRDA, 9) not found")
	}
	if d.BaseAddr != 9 {
		t.Errorf("BaseAddr = %d, want 9", d.BaseAddr)
	}

	if _, ok := s.Get(pdi.LCSIRDA, 10); ok {
		t.Error("Get(LCSIRDA, 10) should not be found")
	}

	s.Register(Device{Type: pdi.LCSIRDA, TmccID: 10, Mode: 0, BaseAddr: 10})
	all := s.All(pdi.LCSIRDA)
	if len(all) != 2 {
		t.Errorf("All(LCSIRDA) = %d devices, want 2", len(all))
	}
}

// TestRegisterOverwritesSameTmccID covers re-announcement of a device
// already in the store (the Base 3 may re-send CONFIG at any time).
func TestRegisterOverwritesSameTmccID(t *testing.T) {
	s := New()
	s.Register(Device{Type: pdi.LCSSTM2, TmccID: 3, Mode: 0, BaseAddr: 3})
	s.Register(Device{Type: pdi.LCSSTM2, TmccID: 3, Mode: 1, BaseAddr: 99})

	d, ok := s.Get(pdi.LCSSTM2, 3)
	if !ok {
		t.Fatal("Get after re-register not found")
	}
	if d.Mode != 1 || d.BaseAddr != 99 {
		t.Errorf("device = %+v, want Mode=1 BaseAddr=99", d)
	}
	if len(s.All(pdi.LCSSTM2)) != 1 {
		t.Errorf("All(LCSSTM2) = %d, want 1 (overwrite, not append)", len(s.All(pdi.LCSSTM2)))
	}
}
