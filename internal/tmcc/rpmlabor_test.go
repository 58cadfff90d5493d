package tmcc

import "testing"

// TestRPMLaborRoundTrip is the spec §8 universal property: for all
// (rpm in 0..7, labor in 0..31), decode(encode(rpm, labor)) == (rpm, labor).
func TestRPMLaborRoundTrip(t *testing.T) {
	for rpm := 0; rpm <= 7; rpm++ {
		for labor := 0; labor <= 31; labor++ {
			b := EncodeRPMLabor(rpm, labor)
			gotRPM, gotLabor := DecodeRPMLabor(b)
			if gotRPM != rpm || gotLabor != labor {
				t.Errorf("EncodeRPMLabor(%d,%d)=%#02x DecodeRPMLabor=(%d,%d), want (%d,%d)",
					rpm, labor, b, gotRPM, gotLabor, rpm, labor)
			}
		}
	}
}
