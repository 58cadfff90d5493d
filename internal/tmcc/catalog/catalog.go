// Package catalog holds the static, process-wide command definitions: one
// entry per named TMCC1/TMCC2/PDI operation, carrying its bit layout,
// address/data bounds, alias target, and side-effect metadata. Nothing in
// this package is mutated after NewDefault() returns; it is safe for
// concurrent read access from every goroutine in the process.
package catalog

import (
	"fmt"
	"time"

	"github.com/pytrain/pytrain/internal/tmcc"
)

// Family groups command definitions by the wire protocol that carries them.
type Family int

const (
	FamilyTMCC1 Family = iota
	FamilyTMCC2
	FamilyMultiByte
	FamilyPDI
	FamilySequence
)

// Def is one catalog entry: a named operation's bit layout and metadata.
//
// The wire word for addressable 3-byte commands is built as:
//
//	word = FixedBits | ((addr << AddrShift) & AddrMask) | dataField
//
// where dataField is DMap[data] if DMap is non-nil, else
// (data << DataShift) & DataMask. Decoding recovers addr and dataField from
// the masks, then confirms identity via
//
//	word &^ AddrMask &^ DataMask == FixedBits
//
// FixedBits must never set a bit that AddrMask or DataMask also covers —
// NewDefault()'s registration helper panics if two entries in the same
// family/prefix collide under this rule.
type Def struct {
	Name   string
	Family Family
	Scope  tmcc.Scope
	Prefix byte // leading wire byte: 0xFE, 0xF8, 0xF9, 0xFA, 0xF0 (sync)

	Addressable bool
	AddrMask    uint16
	AddrShift   uint

	FixedBits uint16
	DataMask  uint16
	DataShift uint
	DataMin   int
	DataMax   int
	DMap      map[int]int // optional explicit value -> field encoding

	Filtered     bool // suppressed when both Base and serial listeners are live
	Alias        string
	AliasData    int
	Aux1Prefixed bool
	Interval     time.Duration // repeat-throttle hint; zero means "no hint"
}

func (d *Def) matchMask() uint16 { return d.AddrMask | d.DataMask }

// encodeData returns the packed data field for value, or an error if value
// is outside the entry's declared bounds.
func (d *Def) encodeData(value int) (uint16, error) {
	if d.DMap != nil {
		enc, ok := d.DMap[value]
		if !ok {
			return 0, fmt.Errorf("%s: value %d not in data map", d.Name, value)
		}
		return uint16(enc) & d.DataMask, nil
	}
	if value < d.DataMin || value > d.DataMax {
		return 0, fmt.Errorf("%s: value %d not in [%d,%d]", d.Name, value, d.DataMin, d.DataMax)
	}
	return (uint16(value) << d.DataShift) & d.DataMask, nil
}

// decodeData returns the semantic data value for a raw field extracted
// from a wire word.
func (d *Def) decodeData(field uint16) (int, bool) {
	if d.DMap != nil {
		for k, v := range d.DMap {
			if uint16(v)&d.DataMask == field {
				return k, true
			}
		}
		return 0, false
	}
	value := int(field >> d.DataShift)
	if value < d.DataMin || value > d.DataMax {
		return 0, false
	}
	return value, true
}

// EncodeData is encodeData for callers outside the package (the request
// codec).
func (d *Def) EncodeData(value int) (uint16, error) { return d.encodeData(value) }

// DecodeData is decodeData for callers outside the package (the request
// codec).
func (d *Def) DecodeData(field uint16) (int, bool) { return d.decodeData(field) }

// Catalog is the process-wide, read-only command-definition table.
type Catalog struct {
	byName map[string]*Def
	// byPrefix buckets addressable 3-byte defs by wire prefix byte, for
	// the decoder's "try each family in turn" sweep.
	byPrefix map[byte][]*Def
	// results/caused/disabled implement the §9 design-note query surface.
	results  map[string][]string
	caused   map[string][]string
	disabled map[string][]string
}

func newCatalog() *Catalog {
	return &Catalog{
		byName:   map[string]*Def{},
		byPrefix: map[byte][]*Def{},
		results:  map[string][]string{},
		caused:   map[string][]string{},
		disabled: map[string][]string{},
	}
}

// register adds d as the canonical definition for its name (used for
// encoding and validation) and as a decode candidate under its prefix.
// Use registerVariant instead when a name already has a canonical
// definition under a different wire prefix (e.g. ROUTE_FIRE on both the
// TMCC1 and TMCC2/Legacy route prefixes).
func (c *Catalog) register(d *Def) {
	if _, exists := c.byName[d.Name]; exists {
		panic("catalog: duplicate command name " + d.Name)
	}
	c.byName[d.Name] = d
	c.registerVariant(d)
}

// registerVariant adds d as an additional decode candidate under its
// prefix without claiming the canonical byName slot for d.Name.
func (c *Catalog) registerVariant(d *Def) {
	if d.FixedBits&d.matchMask() != 0 {
		panic("catalog: " + d.Name + " FixedBits overlaps AddrMask/DataMask")
	}
	for _, other := range c.byPrefix[d.Prefix] {
		if other.Scope != d.Scope {
			continue
		}
		mm := d.matchMask() & other.matchMask()
		if d.FixedBits&mm == other.FixedBits&mm {
			// Overlapping identity space under the shared mask bits; since
			// masks can differ in width this is a conservative check, not
			// a precise collision proof, but catches the entries that
			// matter: two defs with identical (FixedBits, DataMask) pairs,
			// unless both carry DMaps with no encoded value in common.
			if d.FixedBits == other.FixedBits && d.DataMask == other.DataMask && d.Name != other.Name {
				overlap := d.DMap == nil || other.DMap == nil
				for _, v := range d.DMap {
					for _, w := range other.DMap {
						overlap = overlap || v == w
					}
				}
				if overlap {
					panic("catalog: " + d.Name + " collides with " + other.Name)
				}
			}
		}
	}
	c.byPrefix[d.Prefix] = append(c.byPrefix[d.Prefix], d)
}

// Lookup returns the definition for name.
func (c *Catalog) Lookup(name string) (*Def, bool) {
	d, ok := c.byName[name]
	return d, ok
}

// MustLookup is Lookup but panics on a missing name; used for wiring
// internal references to catalog entries that must exist by construction.
func (c *Catalog) MustLookup(name string) *Def {
	d, ok := c.byName[name]
	if !ok {
		panic("catalog: unknown command " + name)
	}
	return d
}

// Variant returns the definition for name carried under the wire prefix
// appropriate for scope (e.g. the TMCC2 train-prefixed form of
// ABSOLUTE_SPEED when scope is ScopeTrain), falling back to the canonical
// byName entry if no scope-specific variant was registered.
func (c *Catalog) Variant(name string, scope tmcc.Scope) (*Def, bool) {
	// Check the canonical entry first: when it already matches scope
	// (the common case — most names have exactly one scope-matching
	// registration) this is both deterministic and avoids an iteration
	// order that Go intentionally randomizes across map reads.
	if d, ok := c.byName[name]; ok && d.Scope == scope {
		return d, true
	}
	for _, defs := range c.byPrefix {
		for _, d := range defs {
			if d.Name == name && d.Scope == scope {
				return d, true
			}
		}
	}
	d, ok := c.byName[name]
	return d, ok
}

// Candidates returns the addressable defs registered under prefix, in
// registration order, for the decoder's family sweep.
func (c *Catalog) Candidates(prefix byte) []*Def {
	return c.byPrefix[prefix]
}

// Resolve follows an alias chain to its terminal (command, data) pair. If
// name is not an alias, it returns (name, 0, false).
func (c *Catalog) Resolve(name string) (target string, data int, isAlias bool) {
	d, ok := c.byName[name]
	if !ok || d.Alias == "" {
		return name, 0, false
	}
	return d.Alias, d.AliasData, true
}

// ResultsIn returns the set of command names whose application to a state
// is a documented consequence of observing cmd (e.g. RESET results in
// ABSOLUTE_SPEED and DIESEL_RPM both going to zero).
func (c *Catalog) ResultsIn(cmd string) []string { return c.results[cmd] }

// CausedBy is the inverse of ResultsIn.
func (c *Catalog) CausedBy(cmd string) []string { return c.caused[cmd] }

// DisabledBy returns the set of command names that, upon observation,
// clear/disable cmd's effect (e.g. SWITCH_OUT disables SWITCH_THRU).
func (c *Catalog) DisabledBy(cmd string) []string { return c.disabled[cmd] }

func (c *Catalog) addEffect(cause string, results ...string) {
	c.results[cause] = append(c.results[cause], results...)
	for _, r := range results {
		c.caused[r] = append(c.caused[r], cause)
	}
}

func (c *Catalog) addDisable(disabler, disabled string) {
	c.disabled[disabled] = append(c.disabled[disabled], disabler)
}
