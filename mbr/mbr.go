// Package mbr reads and writes the partition table of a Master Boot Record
// (sector 0 of a disk), and computes the legacy cylinder/head/sector
// addresses stored in it.
package mbr

import (
	"bytes"
	"encoding/binary"

	"github.com/gokrazy/fatfmt/blockdev"
	"github.com/pkg/errors"
)

// Signature is stored in the last two bytes of every valid MBR.
const Signature = 0xAA55

// NumPartitions is the number of primary partition slots.
const NumPartitions = 4

// Partition type bytes written and recognized by fatfmt.
const (
	TypeEmpty         = 0x00
	TypeFAT16Small    = 0x04 // FAT16, fewer than 65536 sectors
	TypeFAT16         = 0x06
	TypeExFAT         = 0x07
	TypeFAT32CHS      = 0x0B
	TypeFAT32LBA      = 0x0C
	TypeGPTProtective = 0xEE
)

// ErrNoSignature is returned by Read when sector 0 does not end in 0x55 0xAA.
var ErrNoSignature = errors.New("no MBR signature")

// CHS is a packed cylinder/head/sector address as stored in a partition
// entry.
type CHS [3]byte

// PartitionEntry is one 16 byte slot of the partition table.
type PartitionEntry struct {
	Boot            byte // 0x80 for the active partition
	BeginCHS        CHS
	Type            byte
	EndCHS          CHS
	RelativeSectors uint32 // first sector
	TotalSectors    uint32
}

// Sector is the layout of sector 0.
type Sector struct {
	BootCode   [446]byte
	Partitions [NumPartitions]PartitionEntry
	Signature  uint16
}

// Valid reports whether s carries the MBR signature.
func (s *Sector) Valid() bool { return s.Signature == Signature }

// DiskSignature returns the 32 bit disk identifier at offset 440, which
// Linux uses for root=PARTUUID=SSSSSSSS-PP on MBR disks.
func (s *Sector) DiskSignature() uint32 {
	return binary.LittleEndian.Uint32(s.BootCode[440:444])
}

// Marshal returns the 512 byte encoding of s.
func (s *Sector) Marshal() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, blockdev.SectorSize))
	// bytes.Buffer writes never fail
	binary.Write(buf, binary.LittleEndian, s)
	return buf.Bytes()
}

// Parse decodes a 512 byte sector. It does not check the signature.
func Parse(b []byte) (*Sector, error) {
	if len(b) < blockdev.SectorSize {
		return nil, errors.Wrapf(blockdev.ErrSectorSize, "MBR of %d bytes", len(b))
	}
	var s Sector
	if err := binary.Read(bytes.NewReader(b), binary.LittleEndian, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Read reads and decodes sector 0 of dev.
func Read(dev blockdev.Device) (*Sector, error) {
	buf := make([]byte, blockdev.SectorSize)
	if err := blockdev.Read(dev, 0, buf); err != nil {
		return nil, err
	}
	s, err := Parse(buf)
	if err != nil {
		return nil, err
	}
	if !s.Valid() {
		return nil, ErrNoSignature
	}
	return s, nil
}

// Write writes s to sector 0 of dev.
func Write(dev blockdev.Device, s *Sector) error {
	return blockdev.Write(dev, 0, s.Marshal())
}
