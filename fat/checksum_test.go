package fat

import (
	"encoding/binary"
	"testing"
	"unicode"

	"github.com/google/go-cmp/cmp"
)

func TestExFATChecksum(t *testing.T) {
	for _, tt := range []struct {
		sum  uint32
		b    byte
		want uint32
	}{
		{0, 0, 0},
		{0, 1, 1},
		{1, 0, 0x80000000},
		{2, 5, 6},
		{0x80000001, 0xFF, 0xC00000FF},
	} {
		if got := ExFATChecksum(tt.sum, tt.b); got != tt.want {
			t.Errorf("ExFATChecksum(%#x, %#x) = %#x, want %#x", tt.sum, tt.b, got, tt.want)
		}
	}
}

func testBootRegion() [][]byte {
	sectors := make([][]byte, bootRegionChecksummed)
	for i := range sectors {
		sectors[i] = make([]byte, sectorSize)
		for j := range sectors[i] {
			sectors[i][j] = byte(i*7 + j)
		}
	}
	return sectors
}

func TestBootChecksumSkipsMutableFields(t *testing.T) {
	sectors := testBootRegion()
	want := BootChecksum(sectors)

	sectors[0][volumeFlagsOffset] ^= 0xFF
	sectors[0][volumeFlagsOffset+1] ^= 0x01
	sectors[0][percentInUseOffset] = 42
	if got := BootChecksum(sectors); got != want {
		t.Errorf("checksum changed with volume flags and percent in use: %#x, want %#x", got, want)
	}

	// The same offsets in later sectors are covered.
	sectors[1][volumeFlagsOffset] ^= 0xFF
	if got := BootChecksum(sectors); got == want {
		t.Errorf("checksum unchanged after modifying sector 1")
	}

	sectors = testBootRegion()
	sectors[0][volumeFlagsOffset-1] ^= 0xFF
	if got := BootChecksum(sectors); got == want {
		t.Errorf("checksum unchanged after modifying byte %d", volumeFlagsOffset-1)
	}
}

func TestBootChecksumReference(t *testing.T) {
	sectors := testBootRegion()
	// Straight transcription of the exFAT boot checksum definition.
	var want uint32
	for s, sector := range sectors {
		for i, b := range sector {
			if s == 0 && (i == 106 || i == 107 || i == 112) {
				continue
			}
			if want&1 != 0 {
				want = 0x80000000 + want>>1 + uint32(b)
			} else {
				want = want>>1 + uint32(b)
			}
		}
	}
	if got := BootChecksum(sectors); got != want {
		t.Errorf("BootChecksum = %#x, want %#x", got, want)
	}
}

// decodeUpcase expands a compressed up-case table the way OS drivers
// load it.
func decodeUpcase(t *testing.T, table []byte) []uint16 {
	t.Helper()
	if len(table)%2 != 0 {
		t.Fatalf("up-case table has odd length %d", len(table))
	}
	m := make([]uint16, 0, 0x10000)
	for i := 0; i < len(table); i += 2 {
		v := binary.LittleEndian.Uint16(table[i:])
		if idx := len(m); v == upcaseRunMarker && idx != upcaseRunMarker {
			i += 2
			run := int(binary.LittleEndian.Uint16(table[i:]))
			for j := 0; j < run; j++ {
				m = append(m, uint16(len(m)))
			}
			continue
		}
		m = append(m, v)
	}
	return m
}

func TestUpcaseTableRoundTrip(t *testing.T) {
	table, sum := UpcaseTable()
	m := decodeUpcase(t, table)
	if got, want := len(m), 0x10000; got != want {
		t.Fatalf("decoded table has %d entries, want %d", got, want)
	}
	for ch := range m {
		want := uint16(ch)
		if u := unicode.ToUpper(rune(ch)); u <= 0xFFFF {
			want = uint16(u)
		}
		if m[ch] != want {
			t.Fatalf("table maps U+%04X to U+%04X, want U+%04X", ch, m[ch], want)
		}
	}
	if want := tableChecksum(table); sum != want {
		t.Errorf("UpcaseTable checksum = %#x, recomputed %#x", sum, want)
	}
	if cluster := uint32(sectorSize) << 8; uint32(len(table)) > cluster {
		t.Errorf("up-case table of %d bytes exceeds a %d byte cluster", len(table), cluster)
	}
}

func TestUpcaseTableMappings(t *testing.T) {
	table, _ := UpcaseTable()
	m := decodeUpcase(t, table)
	got := map[rune]rune{}
	for _, r := range []rune{'a', 'z', 'A', 0xE9, 0xFF, 0x3C9, 0x430, 0xFF41, 0xFFFF} {
		got[r] = rune(m[r])
	}
	want := map[rune]rune{
		'a':    'A',
		'z':    'Z',
		'A':    'A',
		0xE9:   0xC9,   // é
		0xFF:   0x178,  // ÿ
		0x3C9:  0x3A9,  // ω
		0x430:  0x410,  // а
		0xFF41: 0xFF21, // fullwidth a
		0xFFFF: 0xFFFF,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("up-case mappings: diff (-want +got):\n%s", diff)
	}
}
