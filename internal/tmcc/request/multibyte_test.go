package request

import (
	"testing"

	"github.com/pytrain/pytrain/internal/tmcc"
)

func TestMultiByteRoundTrip(t *testing.T) {
	for _, family := range []MBCFamily{MBCDialog, MBCEffect, MBCLighting, MBCMasking, MBCR4LC} {
		for _, ordinal := range []int{0, 1, 15, 31} {
			for _, data := range []int{0, 1, 128, 255} {
				req := &MultiByteRequest{Scope: tmcc.ScopeEngine, Address: 22, Family: family, Ordinal: ordinal, Data: data}
				bytes, err := req.AsBytes(0xF8)
				if err != nil {
					t.Fatalf("AsBytes(family=%d, ordinal=%d, data=%d): %v", family, ordinal, data, err)
				}
				if len(bytes) != 11 {
					t.Fatalf("expected 11-byte frame, got %d", len(bytes))
				}
				got, consumed, err := ParseMultiByte(bytes, 0xF8)
				if err != nil {
					t.Fatalf("ParseMultiByte: %v", err)
				}
				if consumed != 11 {
					t.Errorf("consumed %d, want 11", consumed)
				}
				if got.Family != family || got.Ordinal != ordinal || got.Data != data || got.Address != 22 {
					t.Errorf("got %+v, want {Family:%d Ordinal:%d Data:%d Address:22}", got, family, ordinal, data)
				}
			}
		}
	}
}

func TestMultiByteChecksumTamper(t *testing.T) {
	req := &MultiByteRequest{Scope: tmcc.ScopeEngine, Address: 22, Family: MBCDialog, Ordinal: 3, Data: 7}
	bytes, err := req.AsBytes(0xF8)
	if err != nil {
		t.Fatalf("AsBytes: %v", err)
	}
	for i := range bytes {
		tampered := append([]byte(nil), bytes...)
		tampered[i] ^= 0xFF
		if _, _, err := ParseMultiByte(tampered, 0xF8); err == nil {
			t.Errorf("tampering byte %d should fail to parse, bytes=% X", i, tampered)
		}
	}
}

func TestMultiByteMissingMarker(t *testing.T) {
	req := &MultiByteRequest{Scope: tmcc.ScopeEngine, Address: 22, Family: MBCEffect, Ordinal: 1, Data: 9}
	bytes, err := req.AsBytes(0xF8)
	if err != nil {
		t.Fatalf("AsBytes: %v", err)
	}
	bytes[3] = 0x00 // clobber the first 0xFB marker
	if _, _, err := ParseMultiByte(bytes, 0xF8); err == nil {
		t.Error("missing marker should fail to parse")
	}
}

func TestDCDSRoundTrip(t *testing.T) {
	req := &DCDSRequest{Scope: tmcc.ScopeEngine, CommandIdx: 5, CommandWord: 0x1234, DataWords: []int{1, 2, 3, 255}}
	bytes, err := req.AsBytes(0xF8)
	if err != nil {
		t.Fatalf("AsBytes: %v", err)
	}
	got, consumed, err := ParseDCDS(bytes, 0xF8)
	if err != nil {
		t.Fatalf("ParseDCDS: %v", err)
	}
	if consumed != len(bytes) {
		t.Errorf("consumed %d, want %d", consumed, len(bytes))
	}
	if got.CommandIdx != 5 || got.CommandWord != 0x1234 || len(got.DataWords) != 4 {
		t.Fatalf("got %+v", got)
	}
	for i, w := range []int{1, 2, 3, 255} {
		if got.DataWords[i] != w {
			t.Errorf("DataWords[%d] = %d, want %d", i, got.DataWords[i], w)
		}
	}
}

func TestDCDSChecksumTamper(t *testing.T) {
	req := &DCDSRequest{Scope: tmcc.ScopeEngine, CommandIdx: 1, CommandWord: 2, DataWords: []int{9}}
	bytes, err := req.AsBytes(0xF8)
	if err != nil {
		t.Fatalf("AsBytes: %v", err)
	}
	last := len(bytes) - 1
	bytes[last] ^= 0xFF
	if _, _, err := ParseDCDS(bytes, 0xF8); err == nil {
		t.Error("tampered DCDS checksum should fail to parse")
	}
}
