// Package tmcc holds the types shared by the command catalog, the request
// codec, the PDI codec, and the component-state store: the Scope
// enumeration and its address ranges.
package tmcc

import "fmt"

// Scope identifies a device class namespace in which addresses are unique.
type Scope int

const (
	ScopeUnknown Scope = iota
	ScopeEngine
	ScopeTrain
	ScopeSwitch
	ScopeRoute
	ScopeAcc
	ScopeIrda
	ScopeBase
	ScopeSync
	ScopeBlock
	ScopeASC2
	ScopeBPC2
	ScopeAMC2
	ScopeSTM2
)

func (s Scope) String() string {
	switch s {
	case ScopeEngine:
		return "ENGINE"
	case ScopeTrain:
		return "TRAIN"
	case ScopeSwitch:
		return "SWITCH"
	case ScopeRoute:
		return "ROUTE"
	case ScopeAcc:
		return "ACC"
	case ScopeIrda:
		return "IRDA"
	case ScopeBase:
		return "BASE"
	case ScopeSync:
		return "SYNC"
	case ScopeBlock:
		return "BLOCK"
	case ScopeASC2:
		return "ASC2"
	case ScopeBPC2:
		return "BPC2"
	case ScopeAMC2:
		return "AMC2"
	case ScopeSTM2:
		return "STM2"
	default:
		return "UNKNOWN"
	}
}

// BroadcastAddress is the reserved address that, per spec §4.6, causes a
// command to be applied to every state currently held in that scope.
const BroadcastAddress = 99

// AddressRange returns the minimum and maximum legal address for the scope,
// per spec §3. BASE returns (0, 0); SYNC returns (99, 99), its single
// pseudo-device address.
func (s Scope) AddressRange() (min, max int) {
	switch s {
	case ScopeEngine, ScopeTrain:
		return 1, 9999
	case ScopeSwitch, ScopeAcc, ScopeRoute, ScopeIrda:
		return 1, 99
	case ScopeBase:
		return 0, 0
	case ScopeSync:
		return 99, 99
	default:
		return 0, 99
	}
}

// IsFourDigit reports whether addr requires the four-ASCII-digit wire
// encoding (engines/trains 100 and above).
func (s Scope) IsFourDigit(addr int) bool {
	return (s == ScopeEngine || s == ScopeTrain) && addr >= 100
}

// Validate checks addr against the scope's declared address range.
func (s Scope) Validate(addr int) error {
	min, max := s.AddressRange()
	if addr < min || addr > max {
		return fmt.Errorf("%w: scope=%s address=%d not in [%d,%d]", errOutOfRange, s, addr, min, max)
	}
	return nil
}
