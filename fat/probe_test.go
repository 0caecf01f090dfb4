package fat

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"testing"

	"github.com/gokrazy/fatfmt/blockdev"
	"github.com/gokrazy/fatfmt/gpt"
	"github.com/gokrazy/fatfmt/mbr"
)

func TestProbeErrors(t *testing.T) {
	empty := blockdev.NewMemory(0x100000)
	dev, _ := formatted(t, 0x100000, FAT16)
	for _, tt := range []struct {
		name      string
		dev       blockdev.Device
		partition int
		want      error
	}{
		{"empty device", empty, 1, ErrNotAFilesystem},
		{"empty raw device", empty, 0, ErrNotAFilesystem},
		{"MBR as volume", dev, 0, ErrNotAFilesystem},
		{"empty slot", dev, 2, ErrNoPartition},
		{"slot 5", dev, 5, ErrNoPartition},
		{"negative", dev, -1, ErrNoPartition},
		{
			"read failure",
			&blockdev.Faulty{
				Device:   dev,
				FailRead: func(uint32) error { return errors.New("injected failure") },
			},
			1,
			blockdev.ErrReadFailed,
		},
	} {
		if _, err := Probe(tt.dev, tt.partition); !errors.Is(err, tt.want) {
			t.Errorf("%s: Probe(%d) = %v, want %v", tt.name, tt.partition, err, tt.want)
		}
	}
}

// writeGPT turns the partition table of dev into a protective MBR and a
// GPT with one partition starting at firstLBA as entry n.
func writeGPT(t *testing.T, dev blockdev.Device, n int, firstLBA uint64) {
	t.Helper()
	s := &mbr.Sector{Signature: mbr.Signature}
	s.Partitions[0] = mbr.PartitionEntry{
		Type:            mbr.TypeGPTProtective,
		RelativeSectors: 1,
		TotalSectors:    dev.SectorCount() - 1,
	}
	if err := mbr.Write(dev, s); err != nil {
		t.Fatal(err)
	}

	entries := make([]gpt.PartitionEntry, 4)
	entries[n-1] = gpt.PartitionEntry{
		TypeGUID: [16]byte{0xA2, 0xA0, 0xD0, 0xEB, 0xE5, 0xB9, 0x33, 0x44, 0x87, 0xC0, 0x68, 0xB6, 0xB7, 0x26, 0x99, 0xC7},
		GUID:     [16]byte{15: byte(n)},
		FirstLBA: firstLBA,
		LastLBA:  uint64(dev.SectorCount()) - 34,
	}
	var raw bytes.Buffer
	binary.Write(&raw, binary.LittleEndian, entries)
	buf := make([]byte, sectorSize)
	copy(buf, raw.Bytes())
	if err := dev.WriteSector(2, buf); err != nil {
		t.Fatal(err)
	}

	h := gpt.Header{
		Revision:            0x00010000,
		HeaderSize:          92,
		CurrentLBA:          1,
		FirstUsableLBA:      34,
		PartitionEntryLBA:   2,
		NumPartitionEntries: uint32(len(entries)),
		PartitionEntrySize:  128,
	}
	copy(h.Signature[:], gpt.HeaderSignature)
	var hdr bytes.Buffer
	binary.Write(&hdr, binary.LittleEndian, &h)
	h.HeaderCRC32 = crc32.ChecksumIEEE(hdr.Bytes())
	hdr.Reset()
	binary.Write(&hdr, binary.LittleEndian, &h)
	buf = make([]byte, sectorSize)
	copy(buf, hdr.Bytes())
	if err := dev.WriteSector(1, buf); err != nil {
		t.Fatal(err)
	}
}

func TestProbeGPT(t *testing.T) {
	dev := blockdev.NewMemory(0x100000)
	g, err := Format(dev, Options{Family: ExFAT})
	if err != nil {
		t.Fatal(err)
	}
	writeGPT(t, dev, 2, uint64(g.PartitionOffset))

	v, err := Probe(dev, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := v.PartitionStart(), g.PartitionOffset; got != want {
		t.Errorf("PartitionStart() = %d, want %d", got, want)
	}
	if got := v.Family(); got != ExFAT {
		t.Errorf("Family() = %v, want %v", got, ExFAT)
	}
	if _, err := Probe(dev, 1); !errors.Is(err, ErrNoPartition) {
		t.Errorf("Probe(unused GPT entry) = %v, want ErrNoPartition", err)
	}
}

func TestProbeFAT12(t *testing.T) {
	dev := blockdev.NewMemory(0x10000)
	g, err := Format(dev, Options{Family: FAT16})
	if err != nil {
		t.Fatal(err)
	}
	// Shrink the volume below the smallest FAT16 cluster count.
	boot := readSector(t, dev, g.PartitionOffset)
	binary.LittleEndian.PutUint32(boot[32:], g.DataStart-g.PartitionOffset+4000*g.SectorsPerCluster)
	if err := dev.WriteSector(g.PartitionOffset, boot); err != nil {
		t.Fatal(err)
	}
	if _, err := Probe(dev, 1); !errors.Is(err, ErrNotAFilesystem) {
		t.Errorf("Probe(FAT12) = %v, want ErrNotAFilesystem", err)
	}
}

func TestFATFreeClusterCount(t *testing.T) {
	for _, family := range []Family{FAT16, FAT32} {
		dev, vol := formatted(t, 0x100000, family)
		v := vol.(*FATVolume)
		before, err := v.FreeClusterCount()
		if err != nil {
			t.Fatal(err)
		}
		// Allocate cluster 10, linked to 11. On FAT32 the entry of 11 only
		// carries reserved bits, which leaves it free.
		size := v.entrySize()
		buf := readSector(t, dev, v.FATStartSector())
		if family == FAT16 {
			binary.LittleEndian.PutUint16(buf[10*size:], 11)
			binary.LittleEndian.PutUint16(buf[11*size:], 0xFFFF)
		} else {
			binary.LittleEndian.PutUint32(buf[10*size:], 11)
			// The upper four bits are reserved and ignored.
			binary.LittleEndian.PutUint32(buf[11*size:], 0xF0000000)
		}
		if err := dev.WriteSector(v.FATStartSector(), buf); err != nil {
			t.Fatal(err)
		}
		after, err := v.FreeClusterCount()
		if err != nil {
			t.Fatal(err)
		}
		want := before - 2
		if family == FAT32 {
			want = before - 1
		}
		if after != want {
			t.Errorf("%v: FreeClusterCount() = %d after allocating, want %d", family, after, want)
		}
	}
}

func TestExFATFreeClusterCount(t *testing.T) {
	dev, vol := formatted(t, 0x100000, ExFAT)
	v := vol.(*ExFATVolume)
	bitmap := v.clusterSector(exfatBitmapCluster)
	buf := readSector(t, dev, bitmap)
	buf[1] = 0x81 // clusters 10 and 17
	// Bits beyond the 3968 clusters are not counted.
	buf[3968/8] = 0xFF
	if err := dev.WriteSector(bitmap, buf); err != nil {
		t.Fatal(err)
	}
	got, err := v.FreeClusterCount()
	if err != nil {
		t.Fatal(err)
	}
	if want := uint32(3968 - 3 - 2); got != want {
		t.Errorf("FreeClusterCount() = %d, want %d", got, want)
	}
}

func TestFreeClusterCountReadFailure(t *testing.T) {
	for _, family := range []Family{FAT16, FAT32, ExFAT} {
		dev, vol := formatted(t, 0x100000, family)
		faulty := &blockdev.Faulty{
			Device: dev,
			FailRead: func(sector uint32) error {
				if sector > vol.FATStartSector()+1 {
					return errors.New("injected failure")
				}
				return nil
			},
		}
		v, err := Probe(faulty, 1)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := v.FreeClusterCount(); !errors.Is(err, blockdev.ErrReadFailed) {
			t.Errorf("%v: FreeClusterCount() = %v, want ErrReadFailed", family, err)
		}
	}
}

func TestRootDirectoryBadChain(t *testing.T) {
	dev, vol := formatted(t, 0x100000, FAT32)
	v := vol.(*FATVolume)
	// Fill the root cluster so that the walk continues along the chain,
	// then link the root cluster to the reserved cluster 1.
	buf := make([]byte, sectorSize)
	for off := 0; off < sectorSize; off += dirEntrySize {
		copy(buf[off:], "FILE    TXT")
		buf[off+11] = 0x20
	}
	root := v.RootDirStartSector()
	for i := uint32(0); i < v.SectorsPerCluster(); i++ {
		if err := dev.WriteSector(root+i, buf); err != nil {
			t.Fatal(err)
		}
	}
	fat := readSector(t, dev, v.FATStartSector())
	binary.LittleEndian.PutUint32(fat[fat32RootCluster*4:], 1)
	if err := dev.WriteSector(v.FATStartSector(), fat); err != nil {
		t.Fatal(err)
	}
	if _, err := v.Label(); !errors.Is(err, ErrBadClusterChain) {
		t.Errorf("Label() = %v, want ErrBadClusterChain", err)
	}
}
