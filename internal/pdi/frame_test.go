package pdi

import (
	"bytes"
	"testing"
)

// TestStuffDestuffRoundTrip is the spec §8 universal property: for any
// byte string S, destuff(stuff(S)) == S, and the stuffed form contains
// no bare SOP/EOP.
func TestStuffDestuffRoundTrip(t *testing.T) {
	samples := [][]byte{
		{},
		{0x01, 0x02, 0x03},
		{SOP},
		{EOP},
		{STF},
		{SOP, STF, EOP, SOP, EOP},
		bytes.Repeat([]byte{0xD1, 0xD2, 0xDF}, 20),
	}
	for _, s := range samples {
		stuffed := Stuff(s)
		for i := 0; i < len(stuffed); i++ {
			if stuffed[i] == STF {
				i++ // skip escaped byte
				continue
			}
			if stuffed[i] == SOP || stuffed[i] == EOP {
				t.Fatalf("Stuff(% X) left a bare reserved byte at %d: % X", s, i, stuffed)
			}
		}
		got := Destuff(stuffed)
		if !bytes.Equal(got, s) {
			t.Errorf("Destuff(Stuff(% X)) = % X, want % X", s, got, s)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		{0x01},
		{0xD1, 0xD2, 0xDF, 0x00, 0xFF},
		bytes.Repeat([]byte{0x42}, 64),
	}
	for _, p := range payloads {
		frame := Encode(0x10, p)
		if frame[0] != SOP || frame[len(frame)-1] != EOP {
			t.Fatalf("Encode(%v) missing SOP/EOP: % X", p, frame)
		}
		pkt, err := Decode(frame)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if pkt.Command != 0x10 {
			t.Errorf("Command = %#x, want 0x10", pkt.Command)
		}
		if !bytes.Equal(pkt.Payload, p) {
			t.Errorf("Payload = % X, want % X", pkt.Payload, p)
		}
	}
}

// TestChecksumTamperFailsParse is the spec §8 universal property:
// tampering with any byte of a PDI frame between SOP and EOP causes
// parse to fail with InvalidFrame.
func TestChecksumTamperFailsParse(t *testing.T) {
	frame := Encode(0x10, []byte{0x01, 0x02, 0x03})
	for i := 1; i < len(frame)-1; i++ {
		tampered := append([]byte(nil), frame...)
		tampered[i] ^= 0xFF
		if _, err := Decode(tampered); err == nil {
			t.Errorf("tampering byte %d (% X) should fail to decode", i, tampered)
		}
	}
}

func TestDecodeRejectsMalformedFrames(t *testing.T) {
	cases := map[string][]byte{
		"too short":     {SOP, 0x01, EOP},
		"missing SOP":   {0x00, 0x01, 0x02, EOP},
		"missing EOP":   {SOP, 0x01, 0x02, 0x00},
		"empty payload": {SOP, EOP},
	}
	for name, frame := range cases {
		if _, err := Decode(frame); err == nil {
			t.Errorf("%s: expected decode error for % X", name, frame)
		}
	}
}

func TestScanFrameRespectsStuffing(t *testing.T) {
	frame := Encode(0x10, []byte{SOP, EOP, STF})
	// Surround the frame with garbage before and after it, to confirm
	// ScanFrame finds the real EOP rather than a stuffed one.
	buf := append([]byte{0xAA, 0xBB}, frame...)
	buf = append(buf, 0xCC)

	end := ScanFrame(buf)
	if end != len(frame)+2 {
		t.Fatalf("ScanFrame found end=%d, want %d", end, len(frame)+2)
	}
	pkt, err := Decode(buf[2:end])
	if err != nil {
		t.Fatalf("Decode scanned frame: %v", err)
	}
	if !bytes.Equal(pkt.Payload, []byte{SOP, EOP, STF}) {
		t.Errorf("Payload = % X", pkt.Payload)
	}
}

func TestScanFrameIncomplete(t *testing.T) {
	if end := ScanFrame([]byte{SOP, 0x01, 0x02}); end != -1 {
		t.Errorf("incomplete frame should return -1, got %d", end)
	}
	if end := ScanFrame([]byte{0x01, 0x02}); end != -1 {
		t.Errorf("no SOP at all should return -1, got %d", end)
	}
}
