package state

import (
	"testing"

	"github.com/pytrain/pytrain/internal/tmcc"
	"github.com/pytrain/pytrain/internal/tmcc/catalog"
)

func TestAux1OptOneTogglesLatchAndAuxState(t *testing.T) {
	cat := catalog.NewDefault()
	a := NewAccessoryState(3)

	a.Update(mustRequest(t, cat, "AUX1_OPT_ONE", tmcc.ScopeAcc, 3, 0))
	aux1, aux2, auxState := a.Fields()
	if !aux1 || aux2 || !auxState {
		t.Fatalf("after first AUX1_OPT_ONE: aux1=%v aux2=%v auxState=%v", aux1, aux2, auxState)
	}

	a.Update(mustRequest(t, cat, "AUX1_OPT_ONE", tmcc.ScopeAcc, 3, 0))
	aux1, _, auxState = a.Fields()
	if aux1 || auxState {
		t.Fatalf("after second AUX1_OPT_ONE: aux1=%v auxState=%v, want both false", aux1, auxState)
	}
}

func TestAux1OptTwoTogglesLatchOnly(t *testing.T) {
	cat := catalog.NewDefault()
	a := NewAccessoryState(3)
	a.Update(mustRequest(t, cat, "AUX1_OPT_TWO", tmcc.ScopeAcc, 3, 0))
	aux1, _, auxState := a.Fields()
	if !aux1 || auxState {
		t.Errorf("AUX1_OPT_TWO: aux1=%v auxState=%v, want true/false", aux1, auxState)
	}
}

func TestAccNumericStoresKey(t *testing.T) {
	cat := catalog.NewDefault()
	a := NewAccessoryState(3)
	a.Update(mustRequest(t, cat, "ACC_NUMERIC", tmcc.ScopeAcc, 3, 7))
	if a.NumericKey != 7 {
		t.Errorf("NumericKey = %d, want 7", a.NumericKey)
	}
}
