package catalog

import (
	"github.com/pytrain/pytrain/internal/tmcc"
)

const (
	prefixTMCC1 byte = 0xFE
	prefixEng2  byte = 0xF8
	prefixTrn2  byte = 0xF9
	prefixRte2  byte = 0xFA
	prefixSync  byte = 0xF0

	// engAddrMask/engAddrShift pack a 7-bit engine/train address into the
	// top bits of the 16-bit opcode word, per spec §4.2.
	engAddrShift uint   = 9
	engAddrMask  uint16 = 0x7F << engAddrShift // bits 9-15

	swAddrShift uint   = 7
	swAddrMask  uint16 = 0x7F << swAddrShift // bits 7-13

	rteAddrShift uint   = 9
	rteAddrMask  uint16 = 0x1F << rteAddrShift // bits 9-13, 5-bit address
)

// NewDefault builds the process-wide command catalog. It is deterministic
// and side-effect free; callers typically build it once at process start
// and share the *Catalog by reference.
func NewDefault() *Catalog {
	c := newCatalog()

	registerGlobal(c)
	registerEngineTrain(c)
	registerSwitch(c)
	registerAccessory(c)
	registerRoute(c)
	registerSync(c)
	registerAliases(c)
	registerEffects(c)

	return c
}

// registerGlobal adds the two non-addressable, scope-independent halt
// commands. Both are recognized by exact 16-bit word match against the
// 0xFE prefix, ahead of any scoped family, per spec §4.2's decode order.
func registerGlobal(c *Catalog) {
	c.register(&Def{
		Name:        "HALT",
		Family:      FamilyTMCC1,
		Scope:       tmcc.ScopeBase,
		Prefix:      prefixTMCC1,
		Addressable: false,
		FixedBits:   0xFFFF,
		DataMin:     0, DataMax: 0,
	})
	c.register(&Def{
		Name:        "SYSTEM_HALT",
		Family:      FamilyTMCC1,
		Scope:       tmcc.ScopeBase,
		Prefix:      prefixTMCC1,
		Addressable: false,
		FixedBits:   0xFFFE,
		DataMin:     0, DataMax: 0,
	})
}

// registerEngineTrain registers the engine/train core command family. Each
// name gets one canonical definition (the TMCC2/Legacy engine form, prefix
// 0xF8) plus decode-only variants for the TMCC1 prefix (0xFE, scope
// ENGINE; the decoder re-tags TRAIN via the 0xC800 modifier bit, see
// parseTMCC1 in internal/tmcc/request) and the TMCC2 train prefix (0xF9, scope TRAIN). The
// 9 low bits of the opcode word are partitioned as: 0-199 is
// ABSOLUTE_SPEED's data field directly; 200 and up are discrete or
// small-ranged commands, each occupying its own non-overlapping sub-range.
func registerEngineTrain(c *Catalog) {
	type spec struct {
		name              string
		fixed             uint16
		dataMask          uint16
		min, max          int
		dmap              map[int]int
	}
	specs := []spec{
		{"ABSOLUTE_SPEED", 0x000, 0x0FF, 0, 199, nil},
		{"STOP_IMMEDIATE", 200, 0, 0, 0, nil},
		{"FORWARD_DIRECTION", 201, 0, 0, 0, nil},
		{"REVERSE_DIRECTION", 202, 0, 0, 0, nil},
		{"TOGGLE_DIRECTION", 203, 0, 0, 0, nil},
		{"RING_BELL", 204, 0, 0, 0, nil},
		{"BLOW_HORN_ONE", 205, 0, 0, 0, nil},
		{"AUX1_OPTION_ONE", 291, 0, 0, 0, nil},
		{"AUX1_OPTION_TWO", 292, 0, 0, 0, nil},
		{"AUX2_OPTION_ONE", 293, 0, 0, 0, nil},
		{"AUX2_OPTION_TWO", 294, 0, 0, 0, nil},
		{"COUPLER_FRONT", 295, 0, 0, 0, nil},
		{"COUPLER_REAR", 296, 0, 0, 0, nil},
		{"SMOKE_OFF", 305, 0, 0, 0, nil},
		{"SMOKE_LOW", 306, 0, 0, 0, nil},
		{"SMOKE_MEDIUM", 307, 0, 0, 0, nil},
		{"SMOKE_HIGH", 308, 0, 0, 0, nil},
		{"SMOKE_ON", 309, 0, 0, 0, nil},
		{"QUILLING_HORN", 0, 0x01FF, 206, 221, rangedMap(206, 0, 15)},
		{"NUMERIC", 0, 0x01FF, 222, 231, rangedMap(222, 0, 9)},
		{"MOMENTUM", 0, 0x01FF, 232, 239, rangedMap(232, 0, 7)},
		{"TRAIN_BRAKE", 0, 0x01FF, 240, 247, rangedMap(240, 0, 7)},
		{"ENGINE_LABOR", 0, 0x01FF, 248, 279, rangedMap(248, 0, 31)},
		// RELATIVE_SPEED is stored/transmitted as an offset-5 value
		// (0..10 representing -5..+5) to fit the unsigned field scheme.
		{"RELATIVE_SPEED", 0, 0x01FF, 280, 290, rangedMap(280, 0, 10)},
		{"DIESEL_RPM", 0, 0x01FF, 297, 304, rangedMap(297, 0, 7)},
	}

	build := func(s spec, prefix byte, scope tmcc.Scope) *Def {
		return &Def{
			Name: s.name, Family: familyFor(prefix), Scope: scope, Prefix: prefix,
			Addressable: true, AddrMask: engAddrMask, AddrShift: engAddrShift,
			FixedBits: s.fixed, DataMask: s.dataMask, DataMin: s.min, DataMax: s.max, DMap: s.dmap,
		}
	}

	for _, s := range specs {
		c.register(build(s, prefixEng2, tmcc.ScopeEngine))
		c.registerVariant(build(s, prefixTMCC1, tmcc.ScopeEngine))
		c.registerVariant(build(s, prefixTrn2, tmcc.ScopeTrain))
	}
}

// rangedMap builds a DMap where semantic value v (min..max) encodes to
// base+(v-min), giving each ranged command a private, non-overlapping
// sub-range of the word's low 9 bits.
func rangedMap(base, min, max int) map[int]int {
	m := make(map[int]int, max-min+1)
	for v := min; v <= max; v++ {
		m[v] = base + (v - min)
	}
	return m
}

func familyFor(prefix byte) Family {
	if prefix == prefixTMCC1 {
		return FamilyTMCC1
	}
	return FamilyTMCC2
}

func registerSwitch(c *Catalog) {
	base := func(name string, fixed uint16) *Def {
		return &Def{
			Name: name, Family: FamilyTMCC1, Scope: tmcc.ScopeSwitch, Prefix: prefixTMCC1,
			Addressable: true, AddrMask: swAddrMask, AddrShift: swAddrShift,
			FixedBits: fixed, DataMin: 0, DataMax: 0,
		}
	}
	c.register(base("SWITCH_THRU", 1))
	c.register(base("SWITCH_OUT", 2))
	c.register(base("SWITCH_SET_ADDRESS", 3))
}

func registerAccessory(c *Catalog) {
	base := func(name string, fixed uint16, dataMask uint16, min, max int, dmap map[int]int) *Def {
		return &Def{
			Name: name, Family: FamilyTMCC1, Scope: tmcc.ScopeAcc, Prefix: prefixTMCC1,
			Addressable: true, AddrMask: swAddrMask, AddrShift: swAddrShift,
			FixedBits: fixed, DataMask: dataMask, DataMin: min, DataMax: max, DMap: dmap,
		}
	}
	c.register(base("AUX1_OPT_ONE", 1, 0, 0, 0, nil))
	c.register(base("AUX1_OPT_TWO", 2, 0, 0, 0, nil))
	c.register(base("AUX2_OPT_ONE", 3, 0, 0, 0, nil))
	c.register(base("AUX2_OPT_TWO", 4, 0, 0, 0, nil))
	c.register(base("ACC_NUMERIC", 0, 0x7F, 10, 19, rangedMap(10, 0, 9)))
}

// registerRoute registers ROUTE_FIRE once per wire prefix that can carry
// it (TMCC1 and the TMCC2/Legacy route prefix); both decode to the same
// semantic command name since the decoder's family bucket is keyed by
// prefix, not name.
func registerRoute(c *Catalog) {
	build := func(prefix byte) *Def {
		return &Def{
			Name: "ROUTE_FIRE", Family: familyFor(prefix), Scope: tmcc.ScopeRoute, Prefix: prefix,
			Addressable: true, AddrMask: rteAddrMask, AddrShift: rteAddrShift,
			FixedBits: 1, DataMin: 0, DataMax: 0,
		}
	}
	c.register(build(prefixTMCC1))
	c.registerVariant(build(prefixRte2))
}

// registerSync adds the internal sync/admin pseudo-commands. These ride a
// dedicated 0xF0 prefix (distinct from TMCC1/TMCC2), each a fixed 3-byte
// frame: 0xF0, sub-opcode, reserved. Variants that carry an additional
// control-plane payload (REGISTER, DISCONNECT, KEEP_ALIVE, RESYNC) are
// decoded here only as far as the fixed 3-byte header; internal/control
// parses the trailing payload bytes per spec §6.
func registerSync(c *Catalog) {
	sub := func(name string, opcode byte) *Def {
		return &Def{
			Name: name, Family: FamilyTMCC1, Scope: tmcc.ScopeSync, Prefix: prefixSync,
			Addressable: false, FixedBits: uint16(opcode) << 8,
			DataMin: 0, DataMax: 0xFF, DataMask: 0x00FF,
		}
	}
	c.register(sub("SYNCHRONIZING", 0x01))
	c.register(sub("SYNCHRONIZED", 0x02))
	c.register(sub("SHUTDOWN", 0x03))
	c.register(sub("REBOOT", 0x04))
	c.register(sub("UPDATE", 0x05))
	c.register(sub("RESYNC", 0x06))
	c.register(sub("KEEP_ALIVE", 0x07))
	c.register(sub("REGISTER", 0x08))
	c.register(sub("DISCONNECT", 0x09))
	c.register(sub("SYNC_BEGIN", 0x0A))
	c.register(sub("SYNC_COMPLETE", 0x0B))
}

// registerAliases wires the short semantic synonyms spec §4.1 describes:
// a name that decodes to another catalog entry's bytes with a specific
// data value.
func registerAliases(c *Catalog) {
	addAlias(c, "RESET", "NUMERIC", 0)
	addAlias(c, "STOP", "ABSOLUTE_SPEED", 0)
	addAlias(c, "STARTUP", "NUMERIC", 2)
	addAlias(c, "SHUTDOWN_SOUND", "NUMERIC", 5)
}

func addAlias(c *Catalog, name, target string, data int) {
	d, ok := c.byName[target]
	if !ok {
		panic("catalog: alias target missing: " + target)
	}
	cp := *d
	cp.Name = name
	cp.Alias = target
	cp.AliasData = data
	c.byName[name] = &cp
}

// registerEffects wires the ResultsIn/CausedBy/DisabledBy side-effect
// tables used by internal/state to drive RESET/STOP_IMMEDIATE's coupled
// speed+RPM zeroing and switch-position exclusivity, per spec §3/§9.
func registerEffects(c *Catalog) {
	c.addEffect("RESET", "ABSOLUTE_SPEED", "DIESEL_RPM")
	c.addEffect("STOP_IMMEDIATE", "ABSOLUTE_SPEED", "DIESEL_RPM")
	c.addEffect("HALT", "ABSOLUTE_SPEED", "DIESEL_RPM")
	c.addEffect("SYSTEM_HALT", "ABSOLUTE_SPEED", "DIESEL_RPM")
	c.addEffect("ABSOLUTE_SPEED", "DIESEL_RPM")

	c.addDisable("SWITCH_OUT", "SWITCH_THRU")
	c.addDisable("SWITCH_THRU", "SWITCH_OUT")
}
