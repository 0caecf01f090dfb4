package fat

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/gokrazy/fatfmt/blockdev"
)

func formatted(t *testing.T, sectors uint32, family Family) (*blockdev.Memory, Volume) {
	t.Helper()
	dev := blockdev.NewMemory(sectors)
	if _, err := Format(dev, Options{Family: family}); err != nil {
		t.Fatal(err)
	}
	v, err := Probe(dev, 1)
	if err != nil {
		t.Fatal(err)
	}
	return dev, v
}

func TestLabelRoundTrip(t *testing.T) {
	for _, tt := range []struct {
		sectors uint32
		family  Family
		labels  []string
	}{
		{0x100000, FAT16, []string{"ABCDEFGHIJK", "boot", "GOKRAZY 1"}},
		{0x100000, FAT32, []string{"ABCDEFGHIJK", "perm", "x-y_z!#$%&'"}},
		{0x100000, ExFAT, []string{"ABCDEFGHIJK", "Grüße 🙂", "日本語ラベル", "a.b/c:d"}},
	} {
		tt := tt
		t.Run(tt.family.String(), func(t *testing.T) {
			t.Parallel()
			dev, v := formatted(t, tt.sectors, tt.family)
			for _, label := range tt.labels {
				if err := v.SetLabel(label); err != nil {
					t.Fatalf("SetLabel(%q): %v", label, err)
				}
				// Read back through a fresh probe, too.
				v2, err := Probe(dev, 1)
				if err != nil {
					t.Fatal(err)
				}
				for _, v := range []Volume{v, v2} {
					got, err := v.Label()
					if err != nil {
						t.Fatal(err)
					}
					if got != label {
						t.Errorf("Label() = %q, want %q", got, label)
					}
				}
			}
		})
	}
}

func TestFormatWithLabel(t *testing.T) {
	for _, tt := range []struct {
		sectors uint32
		family  Family
		label   string
	}{
		{0x100000, FAT16, "GOKRAZY"},
		{0x100000, FAT32, "perm"},
		{0x100000, ExFAT, "Daten"},
	} {
		dev := blockdev.NewMemory(tt.sectors)
		if _, err := Format(dev, Options{Family: tt.family, Label: tt.label}); err != nil {
			t.Fatal(err)
		}
		v, err := Probe(dev, 1)
		if err != nil {
			t.Fatal(err)
		}
		got, err := v.Label()
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.label {
			t.Errorf("%v: Label() = %q, want %q", tt.family, got, tt.label)
		}
	}
}

func TestFATBootSectorLabel(t *testing.T) {
	for _, tt := range []struct {
		family  Family
		offsets []uint32 // boot sectors, relative to the partition
		label   int      // label field offset
	}{
		{FAT16, []uint32{0}, fat16LabelOffset},
		{FAT32, []uint32{0, fat32BackupBootSector}, fat32LabelOffset},
	} {
		dev, v := formatted(t, 0x100000, tt.family)
		if err := v.SetLabel("Boot"); err != nil {
			t.Fatal(err)
		}
		for _, off := range tt.offsets {
			boot := readSector(t, dev, v.PartitionStart()+off)
			if got, want := string(boot[tt.label:tt.label+11]), "Boot       "; got != want {
				t.Errorf("%v: boot sector %d label = %q, want %q", tt.family, off, got, want)
			}
		}
	}
}

func TestFATLabelOverwrite(t *testing.T) {
	timeNow = func() time.Time { return time.Date(2023, 6, 1, 12, 30, 10, 0, time.UTC) }
	defer func() { timeNow = time.Now }()

	dev, v := formatted(t, 0x100000, FAT16)
	root := v.(*FATVolume).RootDirStartSector()
	for _, label := range []string{"ONE", "TWO"} {
		if err := v.SetLabel(label); err != nil {
			t.Fatal(err)
		}
	}
	buf := readSector(t, dev, root)
	if got, want := string(buf[:11]), "TWO        "; got != want {
		t.Errorf("first root entry = %q, want %q", got, want)
	}
	if got := buf[11]; got != attrVolumeID {
		t.Errorf("first root entry attributes = %#x, want %#x", got, attrVolumeID)
	}
	if got, want := binary.LittleEndian.Uint16(buf[24:]), uint16(43<<9|6<<5|1); got != want {
		t.Errorf("write date = %#x, want %#x", got, want)
	}
	if got, want := binary.LittleEndian.Uint16(buf[22:]), uint16(12<<11|30<<5|5); got != want {
		t.Errorf("write time = %#x, want %#x", got, want)
	}
	if got := buf[dirEntrySize]; got != entryEnd {
		t.Errorf("second root entry starts with %#x, want end of directory", got)
	}
}

func TestFATLabelReusesDeletedEntry(t *testing.T) {
	dev, v := formatted(t, 0x100000, FAT16)
	root := v.(*FATVolume).RootDirStartSector()
	buf := make([]byte, sectorSize)
	buf[0] = entryDeleted
	copy(buf[dirEntrySize:], "README  TXT")
	buf[dirEntrySize+11] = 0x20 // archive
	if err := dev.WriteSector(root, buf); err != nil {
		t.Fatal(err)
	}
	if err := v.SetLabel("DATA"); err != nil {
		t.Fatal(err)
	}
	buf = readSector(t, dev, root)
	if got, want := string(buf[:11]), "DATA       "; got != want {
		t.Errorf("deleted entry replaced by %q, want %q", got, want)
	}
	if got, want := string(buf[dirEntrySize:dirEntrySize+11]), "README  TXT"; got != want {
		t.Errorf("file entry overwritten: %q", got)
	}
}

func TestFATRootDirFull(t *testing.T) {
	dev, v := formatted(t, 0x100000, FAT16)
	root := v.(*FATVolume).RootDirStartSector()
	buf := make([]byte, sectorSize)
	for off := 0; off < sectorSize; off += dirEntrySize {
		copy(buf[off:], "FILE    TXT")
		buf[off+11] = 0x20
	}
	for i := uint32(0); i < fat16RootDirSectors; i++ {
		if err := dev.WriteSector(root+i, buf); err != nil {
			t.Fatal(err)
		}
	}
	if err := v.SetLabel("FULL"); !errors.Is(err, ErrRootDirFull) {
		t.Errorf("SetLabel on a full root directory = %v, want ErrRootDirFull", err)
	}
	if _, err := v.Label(); !errors.Is(err, ErrLabelNotFound) {
		t.Errorf("Label() = %v, want ErrLabelNotFound", err)
	}
}

func TestExFATLabelOverwrite(t *testing.T) {
	dev, v := formatted(t, 0x100000, ExFAT)
	root := v.(*ExFATVolume).RootDirStartSector()
	for _, label := range []string{"first", "second"} {
		if err := v.SetLabel(label); err != nil {
			t.Fatal(err)
		}
	}
	buf := readSector(t, dev, root)
	// The unused label entry Format writes is taken over.
	if got := buf[0]; got != exfatEntryLabel {
		t.Errorf("first root entry type = %#x, want %#x", got, exfatEntryLabel)
	}
	if got := buf[1]; got != 6 {
		t.Errorf("character count = %d, want 6", got)
	}
	if got := buf[3*dirEntrySize]; got != entryEnd {
		t.Errorf("entry after the up-case table = %#x, want end of directory", got)
	}
}

func TestInvalidLabels(t *testing.T) {
	for _, tt := range []struct {
		family Family
		labels []string
	}{
		{FAT16, []string{"", "TWELVE CHARS", " LEADING", "A*B", "A.B", `A\B`, "GRÜN", "TAB\t"}},
		{FAT32, []string{"", "a+b", "a|b", "a?"}},
		{ExFAT, []string{"", "twelve chars", "bell\a"}},
	} {
		_, v := formatted(t, 0x100000, tt.family)
		for _, label := range tt.labels {
			if err := v.SetLabel(label); !errors.Is(err, ErrInvalidLabel) {
				t.Errorf("%v: SetLabel(%q) = %v, want ErrInvalidLabel", tt.family, label, err)
			}
		}
		if _, err := v.Label(); !errors.Is(err, ErrLabelNotFound) {
			t.Errorf("%v: Label() after invalid labels = %v, want ErrLabelNotFound", tt.family, err)
		}
	}
}
