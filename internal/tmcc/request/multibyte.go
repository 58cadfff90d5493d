package request

import (
	"fmt"

	"github.com/pytrain/pytrain/internal/pytrainerr"
	"github.com/pytrain/pytrain/internal/tmcc"
)

// MBCFamily identifies which TMCC2 multi-byte parameter family a command
// belongs to (spec §4.1 item 3).
type MBCFamily int

const (
	MBCDialog MBCFamily = iota
	MBCEffect
	MBCLighting
	MBCMasking
	MBCR4LC
)

const mbcMarker byte = 0xFB

// paramByte packs a family selector into the top 3 bits and an in-family
// ordinal into the low 5 bits of a single byte. §4.1 describes the
// parameter index as 16 bits; MultiByteRequest allows 32 ordinals (0-31)
// per family, dialog included, and rejects larger ones (see DESIGN.md),
// so it narrows the index to one byte
// rather than spending a second 3-byte word on headroom nothing uses.
func paramByte(family MBCFamily, ordinal int) (byte, error) {
	if ordinal < 0 || ordinal > 0x1F {
		return 0, fmt.Errorf("mbc ordinal %d out of range", ordinal)
	}
	return byte(family)<<5 | byte(ordinal), nil
}

func unpackParamByte(b byte) (MBCFamily, int) {
	return MBCFamily(b >> 5), int(b & 0x1F)
}

// MultiByteRequest is a single TMCC2 multi-byte parameter command:
// engine/train-addressed, identified by family + in-family ordinal, with
// one byte of data.
type MultiByteRequest struct {
	Scope   tmcc.Scope
	Address int
	Family  MBCFamily
	Ordinal int
	Data    int
}

// AsBytes serializes r as three 0xFB-separated 3-byte words: address,
// family/ordinal, data. Each word's third byte is the 1's complement of
// its second, per spec §4.2's per-word checksum rule.
func (r *MultiByteRequest) AsBytes(prefix byte) ([]byte, error) {
	if r.Address < 0 || r.Address > 0x7F {
		return nil, &pytrainerr.RangeError{Field: "address", Value: r.Address, Min: 0, Max: 0x7F}
	}
	pb, err := paramByte(r.Family, r.Ordinal)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", pytrainerr.ErrOutOfRange, err)
	}
	if r.Data < 0 || r.Data > 0xFF {
		return nil, &pytrainerr.RangeError{Field: "data", Value: r.Data, Min: 0, Max: 0xFF}
	}

	out := make([]byte, 0, 11)
	out = append(out, mbcWord(prefix, byte(r.Address))...)
	out = append(out, mbcMarker)
	out = append(out, mbcWord(prefix, pb)...)
	out = append(out, mbcMarker)
	out = append(out, mbcWord(prefix, byte(r.Data))...)
	return out, nil
}

func mbcWord(prefix, b byte) []byte {
	return []byte{prefix, b, ^b}
}

// ParseMultiByte decodes a multi-byte parameter frame starting at buf[0]
// (which must be one of 0xF8/0xF9/0xFA) and returns the bytes consumed.
// A checksum mismatch on any of the three words, or a missing marker
// between them, fails with InvalidFrame per spec §4.2.
func ParseMultiByte(buf []byte, prefix byte) (*MultiByteRequest, int, error) {
	if len(buf) < 11 {
		return nil, 0, pytrainerr.NewFrameError("multibyte frame too short", buf)
	}
	if buf[0] != prefix || buf[4] != prefix || buf[8] != prefix {
		return nil, 0, pytrainerr.NewFrameError("multibyte word prefix mismatch", buf[:11])
	}
	if buf[3] != mbcMarker || buf[7] != mbcMarker {
		return nil, 0, pytrainerr.NewFrameError("missing multibyte marker", buf[:11])
	}
	addrByte, err := checkedWord(buf[0:3])
	if err != nil {
		return nil, 0, err
	}
	pb, err := checkedWord(buf[4:7])
	if err != nil {
		return nil, 0, err
	}
	dataByte, err := checkedWord(buf[8:11])
	if err != nil {
		return nil, 0, err
	}

	scope := tmcc.ScopeEngine
	if prefix == 0xF9 {
		scope = tmcc.ScopeTrain
	}
	family, ordinal := unpackParamByte(pb)
	return &MultiByteRequest{
		Scope: scope, Address: int(addrByte),
		Family: family, Ordinal: ordinal, Data: int(dataByte),
	}, 11, nil
}

func checkedWord(w []byte) (byte, error) {
	if w[2] != ^w[1] {
		return 0, pytrainerr.NewFrameError("multibyte checksum mismatch", w)
	}
	return w[1], nil
}

// DCDSRequest is a variable-length DCDS (engine EEPROM / diagnostic)
// command: a command index, a 16-bit command value, and N data words.
type DCDSRequest struct {
	Scope       tmcc.Scope
	CommandIdx  int
	CommandWord int
	DataWords   []int
}

// AsBytes serializes r as N+5 0xFB-separated 3-byte words: command index,
// word count, command LSB, command MSB, N data words, and a trailing
// checksum word (spec §4.2). The checksum is the 1's complement mod 256
// of the sum of every preceding word's data byte.
func (r *DCDSRequest) AsBytes(prefix byte) ([]byte, error) {
	if len(r.DataWords) > 0xFF {
		return nil, &pytrainerr.RangeError{Field: "dataWords", Value: len(r.DataWords), Min: 0, Max: 0xFF}
	}
	fields := []byte{
		byte(r.CommandIdx),
		byte(len(r.DataWords)),
		byte(r.CommandWord & 0xFF),
		byte(r.CommandWord >> 8),
	}
	for _, w := range r.DataWords {
		if w < 0 || w > 0xFF {
			return nil, &pytrainerr.RangeError{Field: "dataWord", Value: w, Min: 0, Max: 0xFF}
		}
		fields = append(fields, byte(w))
	}

	var sum byte
	for _, f := range fields {
		sum += f
	}
	chk := ^sum

	out := make([]byte, 0, (len(fields)+1)*4)
	for _, f := range fields {
		out = append(out, mbcWord(prefix, f)...)
		out = append(out, mbcMarker)
	}
	out = append(out, mbcWord(prefix, chk)...)
	return out, nil
}

// ParseDCDS decodes a variable-length DCDS frame starting at buf[0],
// returning the bytes consumed.
func ParseDCDS(buf []byte, prefix byte) (*DCDSRequest, int, error) {
	idx, cursor, err := nextDCDSWord(buf, 0, prefix, true)
	if err != nil {
		return nil, 0, err
	}
	count, cursor2, err := nextDCDSWord(buf, cursor, prefix, true)
	if err != nil {
		return nil, 0, err
	}
	lsb, cursor3, err := nextDCDSWord(buf, cursor2, prefix, true)
	if err != nil {
		return nil, 0, err
	}
	msb, cursor4, err := nextDCDSWord(buf, cursor3, prefix, true)
	if err != nil {
		return nil, 0, err
	}

	data := make([]int, 0, count)
	cursor5 := cursor4
	for i := 0; i < int(count); i++ {
		var v byte
		var c int
		v, c, err = nextDCDSWord(buf, cursor5, prefix, true)
		if err != nil {
			return nil, 0, err
		}
		data = append(data, int(v))
		cursor5 = c
	}

	chk, end, err := nextDCDSWord(buf, cursor5, prefix, false)
	if err != nil {
		return nil, 0, err
	}

	fields := append([]byte{idx, count, lsb, msb}, byteSlice(data)...)
	var sum byte
	for _, f := range fields {
		sum += f
	}
	if chk != ^sum {
		return nil, 0, pytrainerr.NewFrameError("dcds checksum mismatch", buf[:end])
	}

	scope := tmcc.ScopeEngine
	if prefix == 0xF9 {
		scope = tmcc.ScopeTrain
	}
	return &DCDSRequest{
		Scope: scope, CommandIdx: int(idx), CommandWord: int(msb)<<8 | int(lsb), DataWords: data,
	}, end, nil
}

// nextDCDSWord reads one 3-byte word at offset in buf, validating its
// checksum and, unless last, the trailing 0xFB separator.
func nextDCDSWord(buf []byte, offset int, prefix byte, hasMarker bool) (byte, int, error) {
	need := offset + 3
	if hasMarker {
		need++
	}
	if len(buf) < need {
		return 0, 0, pytrainerr.NewFrameError("dcds frame too short", buf)
	}
	if buf[offset] != prefix {
		return 0, 0, pytrainerr.NewFrameError("dcds word prefix mismatch", buf[offset:need])
	}
	v, err := checkedWord(buf[offset : offset+3])
	if err != nil {
		return 0, 0, err
	}
	if hasMarker && buf[offset+3] != mbcMarker {
		return 0, 0, pytrainerr.NewFrameError("missing dcds marker", buf[offset:need])
	}
	return v, need, nil
}

func byteSlice(ints []int) []byte {
	out := make([]byte, len(ints))
	for i, v := range ints {
		out[i] = byte(v)
	}
	return out
}
