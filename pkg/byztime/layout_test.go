package byztime

import "testing"

func TestLayoutConstants(t *testing.T) {
	if RegionSize != 4096 {
		t.Errorf("RegionSize = %d, want 4096", RegionSize)
	}

	if NumEntries != 62 {
		t.Errorf("NumEntries = %d, want 62", NumEntries)
	}

	if headerSize != 128 {
		t.Errorf("headerSize = %d, want 128", headerSize)
	}

	if got := headerSize + NumEntries*entrySize; got != RegionSize {
		t.Errorf("headerSize + NumEntries*entrySize = %d, want %d", got, RegionSize)
	}
}

func TestEntryOffsetsStayWithinRegion(t *testing.T) {
	for i := int32(0); i < NumEntries; i++ {
		base := entryOffset(i)
		if base < offEntries || base+entrySize > RegionSize {
			t.Fatalf("entryOffset(%d) = %d, out of region bounds", i, base)
		}
	}
}

func TestMagicRoundTrip(t *testing.T) {
	region := make([]byte, RegionSize)

	if readMagic(region) == Magic {
		t.Fatal("zeroed region should not already match Magic")
	}

	writeMagicRelease(region)

	if readMagic(region) != Magic {
		t.Fatal("magic did not round-trip")
	}
}

func TestEraRoundTrip(t *testing.T) {
	region := make([]byte, RegionSize)

	want := Era{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	writeEraRelease(region, want)

	if got := readEra(region); got != want {
		t.Errorf("era round trip: got %v, want %v", got, want)
	}
}
