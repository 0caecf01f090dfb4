package gpt

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gokrazy/fatfmt/blockdev"
)

// guid returns the on-disk bytes of 80687DB2-F3F9-427A-8199-165DB4B5000n.
func guid(n byte) [16]byte {
	return [16]byte{
		0xB2, 0x7D, 0x68, 0x80, 0xF9, 0xF3, 0x7A, 0x42,
		0x81, 0x99, 0x16, 0x5D, 0xB4, 0xB5, 0x00, n,
	}
}

// writeGPT writes a primary GPT with the given entries to dev.
func writeGPT(t *testing.T, dev blockdev.Device, entries []PartitionEntry) {
	t.Helper()
	var raw bytes.Buffer
	for _, e := range entries {
		binary.Write(&raw, binary.LittleEndian, &e)
	}
	for raw.Len()%blockdev.SectorSize != 0 {
		raw.WriteByte(0)
	}
	for i := 0; i < raw.Len()/blockdev.SectorSize; i++ {
		if err := dev.WriteSector(uint32(2+i), raw.Bytes()[i*blockdev.SectorSize:(i+1)*blockdev.SectorSize]); err != nil {
			t.Fatal(err)
		}
	}

	h := Header{
		Revision:            0x00010000,
		HeaderSize:          92,
		CurrentLBA:          1,
		FirstUsableLBA:      34,
		PartitionEntryLBA:   2,
		NumPartitionEntries: uint32(len(entries)),
		PartitionEntrySize:  128,
	}
	copy(h.Signature[:], HeaderSignature)
	var hdr bytes.Buffer
	binary.Write(&hdr, binary.LittleEndian, &h)
	h.HeaderCRC32 = crc32.ChecksumIEEE(hdr.Bytes())
	hdr.Reset()
	binary.Write(&hdr, binary.LittleEndian, &h)
	sector := make([]byte, blockdev.SectorSize)
	copy(sector, hdr.Bytes())
	if err := dev.WriteSector(1, sector); err != nil {
		t.Fatal(err)
	}
}

func TestPartitionUUIDs(t *testing.T) {
	dev := blockdev.NewMemory(64)
	entries := make([]PartitionEntry, 8)
	for i := 0; i < 4; i++ {
		entries[i] = PartitionEntry{
			TypeGUID: guid(0xFF),
			GUID:     guid(byte(i + 1)),
			FirstLBA: uint64(2048 * (i + 1)),
		}
	}
	writeGPT(t, dev, entries)

	got := PartitionUUIDs(dev)
	want := []string{
		"80687DB2-F3F9-427A-8199-165DB4B50001",
		"80687DB2-F3F9-427A-8199-165DB4B50002",
		"80687DB2-F3F9-427A-8199-165DB4B50003",
		"80687DB2-F3F9-427A-8199-165DB4B50004",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected partition UUIDs: diff (-want +got):\n%s", diff)
	}

	e, err := Entry(dev, 3)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := e.FirstLBA, uint64(3*2048); got != want {
		t.Errorf("partition 3 FirstLBA = %d, want %d", got, want)
	}
	if _, err := Entry(dev, 5); err == nil {
		t.Errorf("Entry(5) of unused slot succeeded unexpectedly")
	}
}

func TestReadHeaderChecksum(t *testing.T) {
	dev := blockdev.NewMemory(64)
	writeGPT(t, dev, make([]PartitionEntry, 4))
	buf := make([]byte, blockdev.SectorSize)
	if err := dev.ReadSector(1, buf); err != nil {
		t.Fatal(err)
	}
	buf[40] ^= 0xFF // FirstUsableLBA
	if err := dev.WriteSector(1, buf); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadHeader(dev); err == nil {
		t.Fatalf("ReadHeader with corrupt checksum succeeded unexpectedly")
	}
}

func TestGUIDFromBytes(t *testing.T) {
	b := [16]byte{
		162, 160, 208, 235, 229, 185, 51, 68, 135, 192, 104, 182, 183, 38, 153, 199,
	}
	got := GUIDFromBytes(b[:])
	const want = "EBD0A0A2-B9E5-4433-87C0-68B6B72699C7"
	if got != want {
		t.Errorf("GUIDFromBytes(%x) = %q, want %q", b, got, want)
	}
}
