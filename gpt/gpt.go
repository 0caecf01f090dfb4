// Package gpt provides a minimal reader for partition tables in GPT (GUID
// partition tables) format, just enough to locate a partition on a disk
// whose MBR only holds a protective entry.
package gpt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/pkg/errors"

	"github.com/gokrazy/fatfmt/blockdev"
)

// HeaderSignature identifies the GPT header in LBA 1.
const HeaderSignature = "EFI PART"

// maxEntries bounds how many partition entries are read.
const maxEntries = 128

var (
	// ErrNoHeader is returned when LBA 1 holds no valid GPT header.
	ErrNoHeader = errors.New("no GPT header")

	// ErrNoPartition is returned for unused or out of range entries.
	ErrNoPartition = errors.New("no such GPT partition")
)

// Header is the GPT header stored in LBA 1.
type Header struct {
	Signature                [8]byte
	Revision                 uint32
	HeaderSize               uint32
	HeaderCRC32              uint32
	Reserved                 uint32
	CurrentLBA               uint64
	BackupLBA                uint64
	FirstUsableLBA           uint64
	LastUsableLBA            uint64
	DiskGUID                 [16]byte
	PartitionEntryLBA        uint64
	NumPartitionEntries      uint32
	PartitionEntrySize       uint32
	PartitionEntryArrayCRC32 uint32
}

type PartitionEntry struct {
	TypeGUID   [16]byte
	GUID       [16]byte
	FirstLBA   uint64
	LastLBA    uint64
	Attributes uint64
	Name       [72]byte
}

// Used reports whether the entry describes a partition.
func (e *PartitionEntry) Used() bool {
	return e.TypeGUID != [16]byte{}
}

// ReadHeader reads and verifies the primary GPT header.
func ReadHeader(dev blockdev.Device) (*Header, error) {
	buf := make([]byte, blockdev.SectorSize)
	if err := blockdev.Read(dev, 1, buf); err != nil {
		return nil, err
	}
	var h Header
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &h); err != nil {
		return nil, err
	}
	if string(h.Signature[:]) != HeaderSignature {
		return nil, ErrNoHeader
	}
	if h.HeaderSize < uint32(binary.Size(h)) || h.HeaderSize > blockdev.SectorSize {
		return nil, errors.Wrapf(ErrNoHeader, "header size %d", h.HeaderSize)
	}
	// The checksum covers HeaderSize bytes with the checksum field zeroed.
	binary.LittleEndian.PutUint32(buf[16:], 0)
	if sum := crc32.ChecksumIEEE(buf[:h.HeaderSize]); sum != h.HeaderCRC32 {
		return nil, errors.Wrapf(ErrNoHeader, "header checksum %#x, want %#x", sum, h.HeaderCRC32)
	}
	if h.PartitionEntrySize < 128 || h.PartitionEntrySize%8 != 0 {
		return nil, errors.Wrapf(ErrNoHeader, "partition entry size %d", h.PartitionEntrySize)
	}
	return &h, nil
}

// PartitionEntries returns the GPT partition entries on the disk, including
// unused ones (up to 128).
func PartitionEntries(dev blockdev.Device) ([]PartitionEntry, error) {
	h, err := ReadHeader(dev)
	if err != nil {
		return nil, err
	}
	n := h.NumPartitionEntries
	if n > maxEntries {
		n = maxEntries
	}
	size := h.PartitionEntrySize
	sectors := (uint64(n)*uint64(size) + blockdev.SectorSize - 1) / blockdev.SectorSize
	if h.PartitionEntryLBA+sectors > uint64(dev.SectorCount()) {
		return nil, errors.Wrapf(blockdev.ErrOutOfRange, "partition entries at LBA %d", h.PartitionEntryLBA)
	}
	raw := make([]byte, 0, sectors*blockdev.SectorSize)
	s := blockdev.NewScanner(dev, uint32(h.PartitionEntryLBA), uint32(sectors))
	for s.Next() {
		raw = append(raw, s.Bytes()...)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	parts := make([]PartitionEntry, n)
	for idx := range parts {
		rd := bytes.NewReader(raw[uint32(idx)*size:])
		if err := binary.Read(rd, binary.LittleEndian, &parts[idx]); err != nil {
			return nil, err
		}
	}
	return parts, nil
}

// Entry returns partition n, counted from 1.
func Entry(dev blockdev.Device, n int) (*PartitionEntry, error) {
	parts, err := PartitionEntries(dev)
	if err != nil {
		return nil, err
	}
	if n < 1 || n > len(parts) || !parts[n-1].Used() {
		return nil, errors.Wrapf(ErrNoPartition, "partition %d", n)
	}
	return &parts[n-1], nil
}

// PartitionUUIDs returns the ids of all used GPT partitions on the disk.
func PartitionUUIDs(dev blockdev.Device) []string {
	parts, err := PartitionEntries(dev)
	if err != nil {
		return nil
	}
	var uuids []string
	for _, p := range parts {
		if p.Used() {
			uuids = append(uuids, GUIDFromBytes(p.GUID[:]))
		}
	}
	return uuids
}

// GUIDFromBytes formats the mixed-endian on-disk GUID b the way Linux
// prints PARTUUID values, e.g. 80687DB2-F3F9-427A-8199-165DB4B50001.
func GUIDFromBytes(b []byte) string {
	return fmt.Sprintf("%08X-%04X-%04X-%X-%X",
		binary.LittleEndian.Uint32(b[0:4]),
		binary.LittleEndian.Uint16(b[4:6]),
		binary.LittleEndian.Uint16(b[6:8]),
		b[8:10],
		b[10:16])
}
