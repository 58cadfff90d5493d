// Package control implements the client/server control plane (spec §6):
// TCP framing for REGISTER/DISCONNECT/KEEP_ALIVE/RESYNC, a server that
// accepts client connections and forwards state changes to each, and a
// client that maintains a single reconnecting connection to a server.
package control

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/pytrain/pytrain/internal/pytrainerr"
)

// Sync sub-opcodes, mirroring internal/tmcc/catalog/defs.go's registerSync
// table (the catalog only decodes these as far as the fixed 3-byte
// header; this package owns the trailing control-plane payload).
const (
	opSynchronizing byte = 0x01
	opSynchronized  byte = 0x02
	opShutdown      byte = 0x03
	opReboot        byte = 0x04
	opUpdate        byte = 0x05
	opResync        byte = 0x06
	opKeepAlive     byte = 0x07
	opRegister      byte = 0x08
	opDisconnect    byte = 0x09
	opSyncBegin     byte = 0x0A
	opSyncComplete  byte = 0x0B
)

const syncPrefix byte = 0xF0

// Version is this build's (major, minor, patch) control-plane version,
// embedded in REGISTER.
var Version = [3]byte{1, 0, 0}

// Register is the REGISTER payload: port(2 BE) + uuid(16) + version(3)
// (spec §6).
type Register struct {
	Port    int
	ID      uuid.UUID
	Version [3]byte
}

// Disconnect is the DISCONNECT payload: port(2 BE) + uuid(16) (spec §6).
type Disconnect struct {
	Port int
	ID   uuid.UUID
}

// AddrPayload is the "<ip>:<port>" ASCII payload KEEP_ALIVE and RESYNC
// carry (spec §6: "others may embed \"<ip>:<port>\" ASCII"). Framed with
// a leading one-byte length since, unlike REGISTER/DISCONNECT, spec.md
// does not pin a fixed size for it (see DESIGN.md Open Questions).
type AddrPayload struct {
	Addr string
}

// header is the fixed 3-byte sync-admin frame every control message
// starts with: prefix, opcode, reserved.
func header(opcode byte) []byte {
	return []byte{syncPrefix, opcode, 0x00}
}

// EncodeRegister builds the full wire frame for a REGISTER message.
func EncodeRegister(r Register) []byte {
	out := header(opRegister)
	out = append(out, byte(r.Port>>8), byte(r.Port))
	out = append(out, r.ID[:]...)
	out = append(out, r.Version[:]...)
	return out
}

// EncodeDisconnect builds the full wire frame for a DISCONNECT message.
func EncodeDisconnect(d Disconnect) []byte {
	out := header(opDisconnect)
	out = append(out, byte(d.Port>>8), byte(d.Port))
	out = append(out, d.ID[:]...)
	return out
}

// EncodeKeepAlive builds the full wire frame for a KEEP_ALIVE message.
func EncodeKeepAlive(addr string) []byte {
	return encodeAddrFrame(opKeepAlive, addr)
}

// EncodeResync builds the full wire frame for a RESYNC message.
func EncodeResync(addr string) []byte {
	return encodeAddrFrame(opResync, addr)
}

func encodeAddrFrame(opcode byte, addr string) []byte {
	out := header(opcode)
	out = append(out, byte(len(addr)))
	out = append(out, []byte(addr)...)
	return out
}

// registerPayloadLen is the byte count following the 3-byte header for a
// REGISTER frame: port(2) + uuid(16) + version(3).
const registerPayloadLen = 2 + 16 + 3

// disconnectPayloadLen is the byte count following the 3-byte header for
// a DISCONNECT frame: port(2) + uuid(16).
const disconnectPayloadLen = 2 + 16

// PayloadLen reports how many bytes follow the fixed 3-byte sync header
// for opcode, or -1 if the frame carries a length-prefixed payload whose
// size isn't known until the length byte itself is read.
func PayloadLen(opcode byte) int {
	switch opcode {
	case opRegister:
		return registerPayloadLen
	case opDisconnect:
		return disconnectPayloadLen
	case opKeepAlive, opResync:
		return -1
	default:
		return 0
	}
}

// DecodeRegister parses a REGISTER payload (excluding the 3-byte header).
func DecodeRegister(payload []byte) (Register, error) {
	if len(payload) != registerPayloadLen {
		return Register{}, pytrainerr.NewFrameError("short REGISTER payload", payload)
	}
	id, err := uuid.FromBytes(payload[2:18])
	if err != nil {
		return Register{}, fmt.Errorf("%w: %s", pytrainerr.ErrInvalidFrame, err)
	}
	var version [3]byte
	copy(version[:], payload[18:21])
	return Register{
		Port:    int(binary.BigEndian.Uint16(payload[0:2])),
		ID:      id,
		Version: version,
	}, nil
}

// DecodeDisconnect parses a DISCONNECT payload (excluding the header).
func DecodeDisconnect(payload []byte) (Disconnect, error) {
	if len(payload) != disconnectPayloadLen {
		return Disconnect{}, pytrainerr.NewFrameError("short DISCONNECT payload", payload)
	}
	id, err := uuid.FromBytes(payload[2:18])
	if err != nil {
		return Disconnect{}, fmt.Errorf("%w: %s", pytrainerr.ErrInvalidFrame, err)
	}
	return Disconnect{Port: int(binary.BigEndian.Uint16(payload[0:2])), ID: id}, nil
}

// DecodeAddrPayload parses a length-prefixed KEEP_ALIVE/RESYNC payload
// (excluding the header, including the length byte itself).
func DecodeAddrPayload(payload []byte) (AddrPayload, error) {
	if len(payload) < 1 {
		return AddrPayload{}, pytrainerr.NewFrameError("short address payload", payload)
	}
	n := int(payload[0])
	if len(payload) < 1+n {
		return AddrPayload{}, pytrainerr.NewFrameError("short address payload", payload)
	}
	return AddrPayload{Addr: string(payload[1 : 1+n])}, nil
}
