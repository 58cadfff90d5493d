package pdi

import "github.com/pytrain/pytrain/internal/pytrainerr"

// LCSDeviceType enumerates the Legacy Control System peripheral families
// (spec §4.1 item 4 / §4.7).
type LCSDeviceType byte

const (
	LCSASC2 LCSDeviceType = iota
	LCSBPC2
	LCSSTM2
	LCSAMC2
	LCSIRDA
	LCSBlock
)

// lcsCommandByte assigns each device family its own PDI command byte, in
// a range distinct from the reserved framing bytes (SOP/STF/EOP) and the
// BASE_MEMORY/D4/TMCC-transport command bytes.
var lcsCommandByte = map[LCSDeviceType]byte{
	LCSASC2:  0xE0,
	LCSBPC2:  0xE1,
	LCSSTM2:  0xE2,
	LCSAMC2:  0xE3,
	LCSIRDA:  0xE4,
	LCSBlock: 0xE5,
}

// LCSAction is the per-device action enumeration shared across all six
// device families: GET reads current config/state, SET writes it, RX is
// an unsolicited device-originated report (spec §4.3).
type LCSAction byte

const (
	LCSGet LCSAction = iota + 1
	LCSSet
	LCSRx
)

// ASC2Mode selects how an ASC2 board's 8 controlled outputs map to
// tmcc_ids: mode 0 is 8 independent accessories, mode 2 is 4 switches
// (spec §4.3).
type ASC2Mode int

const (
	ASC2ModeAccessory ASC2Mode = 0
	ASC2ModeSwitch    ASC2Mode = 2
)

// LCSRequest is one command against an LCS peripheral.
type LCSRequest struct {
	Device  LCSDeviceType
	Action  LCSAction
	TmccID  int
	Mode    int
	BaseAddr int
	Data    []byte
}

// Encode builds the PDI frame for r: command byte | action | tmcc_id (2
// bytes BE) | mode | data.
func (r *LCSRequest) Encode() ([]byte, error) {
	cmd, ok := lcsCommandByte[r.Device]
	if !ok {
		return nil, pytrainerr.NewFrameError("unknown LCS device type", nil)
	}
	payload := []byte{byte(r.Action), byte(r.TmccID >> 8), byte(r.TmccID), byte(r.Mode)}
	payload = append(payload, r.Data...)
	return Encode(cmd, payload), nil
}

// DecodeLCS interprets pkt as an LCS device command.
func DecodeLCS(pkt *Packet) (*LCSRequest, error) {
	var device LCSDeviceType
	found := false
	for d, b := range lcsCommandByte {
		if b == pkt.Command {
			device, found = d, true
			break
		}
	}
	if !found {
		return nil, pytrainerr.NewFrameError("not an LCS packet", pkt.Payload)
	}
	if len(pkt.Payload) < 4 {
		return nil, pytrainerr.NewFrameError("short LCS payload", pkt.Payload)
	}
	return &LCSRequest{
		Device: device, Action: LCSAction(pkt.Payload[0]),
		TmccID: int(pkt.Payload[1])<<8 | int(pkt.Payload[2]),
		Mode:   int(pkt.Payload[3]),
		Data:   pkt.Payload[4:],
	}, nil
}

// ASC2FollowUpQueries computes the individual tmcc_id queries a CONFIG
// response for an ASC2 board in the given mode requires, per spec §4.7's
// worked example (mode 0, base 5 -> tmcc_ids 5..12).
func ASC2FollowUpQueries(mode ASC2Mode, baseAddr int) []int {
	switch mode {
	case ASC2ModeAccessory:
		ids := make([]int, 0, 8)
		for i := 0; i < 8; i++ {
			ids = append(ids, baseAddr+i)
		}
		return ids
	case ASC2ModeSwitch:
		ids := make([]int, 0, 4)
		for i := 0; i < 4; i++ {
			ids = append(ids, baseAddr+i)
		}
		return ids
	default:
		// Out-of-range ASC2 modes are skipped, not treated as fatal
		// (spec §9 open question (a)) — confirm with real hardware
		// before loosening this.
		return nil
	}
}
