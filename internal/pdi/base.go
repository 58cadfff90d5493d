package pdi

import (
	"github.com/pytrain/pytrain/internal/pytrainerr"
	"github.com/pytrain/pytrain/internal/tmcc"
)

const cmdBaseMemory byte = 0xD0

// BASE_MEMORY record lengths, in bytes, per scope (spec §4.3).
const (
	RecordLenEngine = 192
	RecordLenTrain  = 192
	RecordLenSwitch = 64
	RecordLenRoute  = 128
	RecordLenAcc    = 192
)

// RecordLen returns the fixed BASE_MEMORY record size for scope, or 0 if
// scope has no BASE_MEMORY record type.
func RecordLen(scope tmcc.Scope) int {
	switch scope {
	case tmcc.ScopeEngine, tmcc.ScopeTrain:
		return RecordLenEngine
	case tmcc.ScopeSwitch:
		return RecordLenSwitch
	case tmcc.ScopeRoute:
		return RecordLenRoute
	case tmcc.ScopeAcc:
		return RecordLenAcc
	default:
		return 0
	}
}

// Engine/train BASE_MEMORY field offsets (spec §4.3).
var (
	FieldSpeed    = Field{Name: "speed", Offset: 0x07, Length: 1, Kind: KindLEUint}
	FieldRPMLabor = Field{Name: "rpm_labor", Offset: 0x0C, Length: 1, Kind: KindPackedBits, BitWidths: []int{3, 5}}
	FieldMomentum = Field{Name: "momentum", Offset: 0x18, Length: 1, Kind: KindLEUint}
	FieldRoadName = Field{Name: "road_name", Offset: 0x1F, Length: 31, Kind: KindASCII}
)

// EngineFields is the statically declared schema for engine/train
// BASE_MEMORY records: every field the store knows how to bulk-apply from
// a hydration response.
var EngineFields = []Field{FieldSpeed, FieldRPMLabor, FieldMomentum, FieldRoadName}

// FieldSwitchName, FieldRouteName and FieldAccName are intentionally sparse: only
// the fields the store's update contract actually consumes are declared,
// per the "statically declared schema" design note (spec §9) — unused
// byte ranges in the record are left unparsed rather than guessed at.
var (
	FieldSwitchName = Field{Name: "name", Offset: 0x00, Length: 31, Kind: KindASCII}
	FieldRouteName  = Field{Name: "name", Offset: 0x00, Length: 31, Kind: KindASCII}
	FieldAccName    = Field{Name: "name", Offset: 0x00, Length: 31, Kind: KindASCII}
)

// ApplyEngineFields decodes every declared engine/train field out of a
// full-length record, returning a name->value map for the state store to
// bulk-apply.
func ApplyEngineFields(record []byte) (map[string]any, error) {
	out := make(map[string]any, len(EngineFields))
	for _, f := range EngineFields {
		v, err := f.Get(record)
		if err != nil {
			return nil, err
		}
		out[f.Name] = v
	}
	return out, nil
}

// BaseMemoryRequest is a BASE_MEMORY query for a single scope/tmcc_id
// record.
type BaseMemoryRequest struct {
	Scope  tmcc.Scope
	TmccID int
}

// Encode builds the PDI frame for a BASE_MEMORY query: command byte |
// scope byte | tmcc_id (2 bytes BE).
func (r *BaseMemoryRequest) Encode() []byte {
	return Encode(cmdBaseMemory, []byte{byte(r.Scope), byte(r.TmccID >> 8), byte(r.TmccID)})
}

// BaseMemoryResponse is a decoded BASE_MEMORY reply: the record bytes for
// one scope/tmcc_id, whose length the Synchronizer compares against
// RecordLen(Scope) to decide whether to continue enumerating (spec §4.7).
type BaseMemoryResponse struct {
	Scope  tmcc.Scope
	TmccID int
	Record []byte
}

// DecodeBaseMemory interprets pkt as a BASE_MEMORY response.
func DecodeBaseMemory(pkt *Packet) (*BaseMemoryResponse, error) {
	if pkt.Command != cmdBaseMemory {
		return nil, pytrainerr.NewFrameError("not a BASE_MEMORY packet", pkt.Payload)
	}
	if len(pkt.Payload) < 3 {
		return nil, pytrainerr.NewFrameError("short BASE_MEMORY payload", pkt.Payload)
	}
	return &BaseMemoryResponse{
		Scope:  tmcc.Scope(pkt.Payload[0]),
		TmccID: int(pkt.Payload[1])<<8 | int(pkt.Payload[2]),
		Record: pkt.Payload[3:],
	}, nil
}
