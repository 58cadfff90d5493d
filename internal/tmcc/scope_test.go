package tmcc

import "testing"

func TestAddressRange(t *testing.T) {
	cases := []struct {
		scope    Scope
		min, max int
	}{
		{ScopeEngine, 1, 9999},
		{ScopeTrain, 1, 9999},
		{ScopeSwitch, 1, 99},
		{ScopeAcc, 1, 99},
		{ScopeRoute, 1, 99},
		{ScopeIrda, 1, 99},
		{ScopeBase, 0, 0},
	}
	for _, c := range cases {
		min, max := c.scope.AddressRange()
		if min != c.min || max != c.max {
			t.Errorf("%s.AddressRange() = (%d,%d), want (%d,%d)", c.scope, min, max, c.min, c.max)
		}
	}
}

func TestIsFourDigit(t *testing.T) {
	if ScopeEngine.IsFourDigit(99) {
		t.Error("99 should be native, not four-digit")
	}
	if !ScopeEngine.IsFourDigit(100) {
		t.Error("100 should be four-digit")
	}
	if ScopeSwitch.IsFourDigit(100) {
		t.Error("SWITCH never uses four-digit encoding")
	}
}

func TestValidate(t *testing.T) {
	if err := ScopeEngine.Validate(5000); err != nil {
		t.Errorf("5000 should be valid for ENGINE: %v", err)
	}
	if err := ScopeEngine.Validate(10000); err == nil {
		t.Error("10000 should be out of range for ENGINE")
	}
	if err := ScopeSwitch.Validate(100); err == nil {
		t.Error("100 should be out of range for SWITCH")
	}
}
