package pdi

import (
	"bytes"
	"testing"
)

func TestTMCCTxRoundTrip(t *testing.T) {
	tmcc3 := []byte{0xF8, 0x16, 0x1D}
	frame, err := EncodeTMCCTx(tmcc3)
	if err != nil {
		t.Fatalf("EncodeTMCCTx: %v", err)
	}
	pkt, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !IsTMCCWrapper(pkt.Command) {
		t.Fatalf("command %#x not recognized as a TMCC wrapper", pkt.Command)
	}
	if !bytes.Equal(pkt.Payload, tmcc3) {
		t.Errorf("Payload = % X, want % X", pkt.Payload, tmcc3)
	}
}

func TestTMCC4TxRejectsWrongLength(t *testing.T) {
	if _, err := EncodeTMCC4Tx([]byte{0x01, 0x02, 0x03}); err == nil {
		t.Error("EncodeTMCC4Tx should reject a non-7-byte payload")
	}
	if _, err := EncodeTMCCTx([]byte{0x01, 0x02}); err == nil {
		t.Error("EncodeTMCCTx should reject a non-3-byte payload")
	}
}

func TestSplitTMCCWindows(t *testing.T) {
	in := append(append([]byte{0xF8, 0x16, 0x1D}, []byte{0xF8, 0x16, 0x1E}...))
	got := SplitTMCCWindows(in, false)
	if len(got) != 2 {
		t.Fatalf("got %d windows, want 2", len(got))
	}
	if !bytes.Equal(got[0], []byte{0xF8, 0x16, 0x1D}) || !bytes.Equal(got[1], []byte{0xF8, 0x16, 0x1E}) {
		t.Errorf("windows = %v", got)
	}
}

// TestInnerTMCCRedispatch is spec §8 scenario 4: a switch command
// arriving wrapped in a PDI TMCC_RX frame must be recoverable for
// re-dispatch through the ordinary TMCC codec.
func TestInnerTMCCRedispatch(t *testing.T) {
	tmcc3 := []byte{0xFE, 0x02, 0x82} // SWITCH_OUT, address 5
	frame := Encode(cmdTMCCRx, tmcc3)

	pkt, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	inner, ok := InnerTMCC(pkt)
	if !ok {
		t.Fatal("expected TMCC_RX payload to be recognized as inner TMCC")
	}
	if !bytes.Equal(inner, tmcc3) {
		t.Errorf("inner TMCC = % X, want % X", inner, tmcc3)
	}
}
