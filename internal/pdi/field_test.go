package pdi

import "testing"

func TestFieldLEUintRoundTrip(t *testing.T) {
	f := Field{Name: "speed", Offset: 0x07, Length: 1, Kind: KindLEUint}
	record := make([]byte, 32)
	out, err := f.Set(record, 92)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := f.Get(out)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.(int) != 92 {
		t.Errorf("got %v, want 92", got)
	}
}

func TestFieldASCIIRoundTrip(t *testing.T) {
	f := Field{Name: "road_name", Offset: 0x1F, Length: 31, Kind: KindASCII}
	record := make([]byte, 64)
	for i := range record {
		record[i] = 0xFF
	}
	out, err := f.Set(record, "SANTA FE")
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := f.Get(out)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.(string) != "SANTA FE" {
		t.Errorf("got %q, want %q", got, "SANTA FE")
	}
}

func TestFieldPackedBitsRoundTrip(t *testing.T) {
	f := Field{Name: "rpm_labor", Offset: 0x0C, Length: 1, Kind: KindPackedBits, BitWidths: []int{3, 5}}
	record := make([]byte, 32)
	for rpm := 0; rpm <= 7; rpm++ {
		for labor := 0; labor <= 31; labor++ {
			out, err := f.Set(record, []int{rpm, labor})
			if err != nil {
				t.Fatalf("Set(%d,%d): %v", rpm, labor, err)
			}
			got, err := f.Get(out)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			vals := got.([]int)
			if vals[0] != rpm || vals[1] != labor {
				t.Fatalf("Set/Get(%d,%d) = %v, want [%d %d]", rpm, labor, vals, rpm, labor)
			}
		}
	}
}

func TestFieldOutOfBounds(t *testing.T) {
	f := Field{Name: "x", Offset: 30, Length: 4, Kind: KindLEUint}
	record := make([]byte, 32)
	if _, err := f.Get(record); err == nil {
		t.Error("Get past record end should fail")
	}
	if _, err := f.Set(record, 1); err == nil {
		t.Error("Set past record end should fail")
	}
}

func TestApplyEngineFields(t *testing.T) {
	record := make([]byte, RecordLenEngine)
	record, err := FieldSpeed.Set(record, 92)
	if err != nil {
		t.Fatal(err)
	}
	record, err = FieldRPMLabor.Set(record, []int{4, 12})
	if err != nil {
		t.Fatal(err)
	}
	record, err = FieldMomentum.Set(record, 3)
	if err != nil {
		t.Fatal(err)
	}
	record, err = FieldRoadName.Set(record, "PENNSYLVANIA")
	if err != nil {
		t.Fatal(err)
	}

	fields, err := ApplyEngineFields(record)
	if err != nil {
		t.Fatalf("ApplyEngineFields: %v", err)
	}
	if fields["speed"].(int) != 92 {
		t.Errorf("speed = %v, want 92", fields["speed"])
	}
	if fields["momentum"].(int) != 3 {
		t.Errorf("momentum = %v, want 3", fields["momentum"])
	}
	if fields["road_name"].(string) != "PENNSYLVANIA" {
		t.Errorf("road_name = %v, want PENNSYLVANIA", fields["road_name"])
	}
	rpmLabor := fields["rpm_labor"].([]int)
	if rpmLabor[0] != 4 || rpmLabor[1] != 12 {
		t.Errorf("rpm_labor = %v, want [4 12]", rpmLabor)
	}
}
