package pdi

import "github.com/pytrain/pytrain/internal/pytrainerr"

// TMCC transport command bytes: TX/RX carry the plain 3-byte TMCC form,
// TMCC4_TX/TMCC4_RX carry the 7-byte four-digit-address form (spec §4.3).
const (
	// cmdTMCCRx matches the literal command byte in the worked TMCC_RX
	// example (spec §8 scenario 4: "D1 26 FE 40 3F ...").
	cmdTMCCTx  byte = 0x25
	cmdTMCCRx  byte = 0x26
	cmdTMCC4Tx byte = 0x27
	cmdTMCC4Rx byte = 0x28
)

// EncodeTMCCTx wraps a 3-byte TMCC frame in a PDI TMCC_TX packet for
// transmission to the Base 3.
func EncodeTMCCTx(tmcc3 []byte) ([]byte, error) {
	if len(tmcc3) != 3 {
		return nil, pytrainerr.NewFrameError("TMCC_TX payload must be 3 bytes", tmcc3)
	}
	return Encode(cmdTMCCTx, tmcc3), nil
}

// EncodeTMCC4Tx wraps a 7-byte four-digit-address TMCC frame in a PDI
// TMCC4_TX packet.
func EncodeTMCC4Tx(tmcc7 []byte) ([]byte, error) {
	if len(tmcc7) != 7 {
		return nil, pytrainerr.NewFrameError("TMCC4_TX payload must be 7 bytes", tmcc7)
	}
	return Encode(cmdTMCC4Tx, tmcc7), nil
}

// SplitTMCCWindows breaks a (possibly multi-word) outbound TMCC byte
// sequence into individually wrappable 3-byte or 7-byte windows, per
// spec §4.3's "each is individually wrapped" rule.
func SplitTMCCWindows(tmccBytes []byte, fourDigit bool) [][]byte {
	window := 3
	if fourDigit {
		window = 7
	}
	var out [][]byte
	for i := 0; i+window <= len(tmccBytes); i += window {
		out = append(out, tmccBytes[i:i+window])
	}
	return out
}

// InnerTMCC reports whether pkt is a TMCC_RX/TMCC4_RX wrapper and returns
// the encapsulated TMCC bytes for re-dispatch through the ordinary TMCC
// codec (spec §4.5: "re-dispatch the inner TMCC for TMCC_RX/TMCC4_RX").
func InnerTMCC(pkt *Packet) ([]byte, bool) {
	switch pkt.Command {
	case cmdTMCCRx, cmdTMCC4Rx:
		return pkt.Payload, true
	default:
		return nil, false
	}
}

// IsTMCCWrapper reports whether command is one of the four TMCC
// transport wrapper command bytes.
func IsTMCCWrapper(command byte) bool {
	switch command {
	case cmdTMCCTx, cmdTMCCRx, cmdTMCC4Tx, cmdTMCC4Rx:
		return true
	default:
		return false
	}
}
