package request

import (
	"fmt"

	"github.com/pytrain/pytrain/internal/pytrainerr"
	"github.com/pytrain/pytrain/internal/tmcc"
	"github.com/pytrain/pytrain/internal/tmcc/catalog"
)

const trainModifierMask uint16 = 0xC800

// New builds and validates a CommandRequest for name, resolving aliases
// and picking the wire variant appropriate for scope. Outbound requests
// with invalid fields are never constructed (spec §7 OutOfRange policy).
func New(cat *catalog.Catalog, name string, scope tmcc.Scope, address, data int) (*CommandRequest, error) {
	aliasOf := ""
	target, aliasData, isAlias := cat.Resolve(name)
	if isAlias {
		aliasOf = name
		name = target
		data = aliasData
	}

	def, ok := cat.Variant(name, scope)
	if !ok {
		return nil, fmt.Errorf("%w: unknown command %s", pytrainerr.ErrUnknownOpcode, name)
	}

	if def.Addressable {
		if err := scope.Validate(address); err != nil {
			return nil, err
		}
	} else if address != 0 {
		return nil, &pytrainerr.RangeError{Field: "address", Value: address, Min: 0, Max: 0}
	}

	if _, err := def.EncodeData(data); err != nil {
		return nil, fmt.Errorf("%w: %s", pytrainerr.ErrOutOfRange, err)
	}

	return &CommandRequest{Command: def, Address: address, Data: data, Scope: scope, AliasOf: aliasOf}, nil
}

// AsBytes serializes r to its wire form: a 3-byte frame, extended to
// 3+4 bytes when the scope/address requires the four-digit ASCII suffix.
func (r *CommandRequest) AsBytes() ([]byte, error) {
	def := r.Command
	word := def.FixedBits

	fourDigit := def.Addressable && r.Scope.IsFourDigit(r.Address)
	addr := r.Address
	if fourDigit {
		addr = 0 // address bits are zeroed; the ASCII suffix carries it
	}
	if def.Addressable {
		word |= (uint16(addr) << def.AddrShift) & def.AddrMask
	}

	dataField, err := def.EncodeData(r.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", pytrainerr.ErrOutOfRange, err)
	}
	word |= dataField

	out := []byte{def.Prefix, byte(word >> 8), byte(word)}
	if fourDigit {
		out = append(out, fourDigitASCII(r.Address)...)
	}
	return out, nil
}

func fourDigitASCII(addr int) []byte {
	return []byte{
		byte('0' + (addr/1000)%10),
		byte('0' + (addr/100)%10),
		byte('0' + (addr/10)%10),
		byte('0' + addr%10),
	}
}

// Parse decodes a single frame's leading bytes into a CommandRequest,
// returning the number of bytes consumed. Dispatch is on the first byte
// per spec §4.2: 0xFE is TMCC1, 0xF8/0xF9/0xFA are TMCC2/Legacy, 0xF0 is
// the internal sync/admin family.
func Parse(cat *catalog.Catalog, buf []byte) (*CommandRequest, int, error) {
	if len(buf) < 3 {
		return nil, 0, pytrainerr.NewFrameError("short frame", buf)
	}
	prefix := buf[0]
	word := uint16(buf[1])<<8 | uint16(buf[2])

	switch prefix {
	case 0xFE:
		return parseTMCC1(cat, buf, word)
	case 0xF8, 0xF9, 0xFA:
		return parseTMCC2(cat, buf, prefix, word)
	case 0xF0:
		return parseSync(cat, buf, word)
	default:
		return nil, 0, fmt.Errorf("%w: prefix 0x%02X", pytrainerr.ErrUnknownOpcode, prefix)
	}
}

// parseTMCC1 tries, in order, the exact-match globals, then ROUTE, SWITCH,
// ACC, ENGINE/TRAIN families, per spec §4.2's decode order.
func parseTMCC1(cat *catalog.Catalog, buf []byte, word uint16) (*CommandRequest, int, error) {
	if word == 0xFFFF {
		def := cat.MustLookup("HALT")
		return &CommandRequest{Command: def, Scope: tmcc.ScopeBase}, 3, nil
	}
	if word == 0xFFFE {
		def := cat.MustLookup("SYSTEM_HALT")
		return &CommandRequest{Command: def, Scope: tmcc.ScopeBase}, 3, nil
	}

	order := []tmcc.Scope{tmcc.ScopeRoute, tmcc.ScopeSwitch, tmcc.ScopeAcc}
	for _, scope := range order {
		if req := matchScope(cat, 0xFE, scope, word); req != nil {
			return req, 3, nil
		}
	}

	// The TMCC1 train modifier reuses the engine family's FixedBits space
	// with the 0xC800 bit pattern overlaid, rather than registering a
	// second, duplicate catalog entry per command: mask it off, match
	// against the ENGINE-scoped entries under this prefix, then re-tag
	// the decoded request's scope to TRAIN (spec §3, §4.2).
	effWord := word
	retagTrain := false
	if word&trainModifierMask == trainModifierMask {
		retagTrain = true
		effWord = word &^ trainModifierMask
	}
	if req := matchScope(cat, 0xFE, tmcc.ScopeEngine, effWord); req != nil {
		if retagTrain {
			req.Scope = tmcc.ScopeTrain
		}
		return req, 3, nil
	}

	return nil, 0, pytrainerr.NewFrameError("unrecognized TMCC1 opcode", buf[:3])
}

func parseTMCC2(cat *catalog.Catalog, buf []byte, prefix byte, word uint16) (*CommandRequest, int, error) {
	scope := tmcc.ScopeEngine
	if prefix == 0xF9 {
		scope = tmcc.ScopeTrain
	} else if prefix == 0xFA {
		scope = tmcc.ScopeRoute
	}

	req := matchScope(cat, prefix, scope, word)
	if req == nil {
		return nil, 0, pytrainerr.NewFrameError("unrecognized TMCC2 opcode", buf[:3])
	}

	consumed := 3
	canCarryFourDigit := scope == tmcc.ScopeEngine || scope == tmcc.ScopeTrain
	if req.Command.Addressable && canCarryFourDigit && req.Address == 0 && len(buf) >= 7 && isASCIIDigits(buf[3:7]) {
		// Zero-address 3-byte word followed by a 4-digit ASCII suffix is
		// the four-digit carrier form; only trust the suffix when present.
		req.Address = asciiToInt(buf[3:7])
		consumed = 7
	}
	return req, consumed, nil
}

func parseSync(cat *catalog.Catalog, buf []byte, word uint16) (*CommandRequest, int, error) {
	opcode := byte(word >> 8)
	for _, d := range cat.Candidates(0xF0) {
		if byte(d.FixedBits>>8) == opcode {
			data := int(word & 0x00FF)
			return &CommandRequest{Command: d, Scope: tmcc.ScopeSync, Data: data}, 3, nil
		}
	}
	return nil, 0, fmt.Errorf("%w: sync opcode 0x%02X", pytrainerr.ErrUnknownOpcode, opcode)
}

func matchScope(cat *catalog.Catalog, prefix byte, scope tmcc.Scope, word uint16) *CommandRequest {
	for _, d := range cat.Candidates(prefix) {
		if d.Scope != scope || !d.Addressable {
			continue
		}
		addr := int((word & d.AddrMask) >> d.AddrShift)
		dataField := word &^ d.AddrMask &^ d.DataMask
		if dataField != d.FixedBits {
			continue
		}
		raw := word & d.DataMask
		data, ok := d.DecodeData(raw)
		if !ok {
			continue
		}
		return &CommandRequest{Command: d, Address: addr, Data: data, Scope: scope}
	}
	return nil
}

func isASCIIDigits(b []byte) bool {
	for _, c := range b {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func asciiToInt(b []byte) int {
	n := 0
	for _, c := range b {
		n = n*10 + int(c-'0')
	}
	return n
}
