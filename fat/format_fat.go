package fat

import (
	"encoding/binary"

	"github.com/gokrazy/fatfmt/mbr"
)

var (
	fat16JumpCode = [3]byte{0xEB, 0x3C, 0x90}
	fat32JumpCode = [3]byte{0xEB, 0x58, 0x90}

	fat16Type = [8]byte{'F', 'A', 'T', '1', '6', ' ', ' ', ' '}
	fat32Type = [8]byte{'F', 'A', 'T', '3', '2', ' ', ' ', ' '}
)

// bpb returns the BPB fields common to FAT16 and FAT32 boot sectors.
func (g Geometry) bpb() biosParameterBlock {
	chs := mbr.GeometryFor(mbr.CapacityMB(g.SectorCount))
	b := biosParameterBlock{
		OEMName:           oemName,
		BytesPerSector:    sectorSize,
		SectorsPerCluster: uint8(g.SectorsPerCluster),
		ReservedSectors:   uint16(g.ReservedSectorCount),
		FATCount:          2,
		MediaType:         hardDisk,
		SectorsPerTrack:   uint16(chs.SectorsPerTrack),
		HeadCount:         uint16(chs.Heads),
		HiddenSectors:     g.PartitionOffset,
		TotalSectors32:    g.VolumeLength,
	}
	if g.Family == FAT16 {
		b.JumpCode = fat16JumpCode
		b.RootEntryCount = fat16RootEntries
		b.SectorsPerFAT16 = uint16(g.FATSize)
	} else {
		b.JumpCode = fat32JumpCode
	}
	return b
}

func (g Geometry) extendedBPB(volumeID uint32) extendedBPB {
	e := extendedBPB{
		DriveNumber:    driveNumber,
		BootSignature:  extendedBootSignature,
		VolumeID:       volumeID,
		VolumeLabel:    noName,
		FileSystemType: fat16Type,
	}
	if g.Family == FAT32 {
		e.FileSystemType = fat32Type
	}
	return e
}

// formatFAT writes a FAT16 or FAT32 volume of geometry g.
func (w *sectorWriter) formatFAT(g Geometry, volumeID uint32) error {
	if g.Family == FAT16 {
		// MBR, boot sector, FAT and root directory, first FAT sectors.
		w.phase("writing FAT16 structures", 2+(g.DataStart-g.FATStart-1)+2)
	} else {
		// MBR, three boot region sectors and their backups, both FATs and
		// the root cluster.
		w.phase("writing FAT32 structures", 7+2*g.FATSize+g.SectorsPerCluster-1+2)
	}
	if err := w.writeMBR(g); err != nil {
		return err
	}
	buf := make([]byte, sectorSize)
	if g.Family == FAT16 {
		encode(buf, &fat16BootSector{
			BPB:       g.bpb(),
			Ext:       g.extendedBPB(volumeID),
			Signature: bootSignature,
		})
		if err := w.write(g.PartitionOffset, buf); err != nil {
			return err
		}
	} else {
		if err := w.writeFAT32BootRegion(g, volumeID, buf); err != nil {
			return err
		}
	}
	return w.initFAT(g, buf)
}

func (w *sectorWriter) writeFAT32BootRegion(g Geometry, volumeID uint32, buf []byte) error {
	p := g.PartitionOffset
	encode(buf, &fat32BootSector{
		BPB:              g.bpb(),
		SectorsPerFAT32:  g.FATSize,
		RootCluster:      fat32RootCluster,
		FSInfoSector:     fat32FSInfoSector,
		BackupBootSector: fat32BackupBootSector,
		Ext:              g.extendedBPB(volumeID),
		Signature:        bootSignature,
	})
	if err := w.write(p, buf); err != nil {
		return err
	}
	if err := w.write(p+fat32BackupBootSector, buf); err != nil {
		return err
	}

	// The third boot sector, unused apart from its signature.
	zero(buf)
	binary.LittleEndian.PutUint32(buf[508:], fsInfoTrailSignature)
	if err := w.write(p+2, buf); err != nil {
		return err
	}
	if err := w.write(p+fat32BackupBootSector+2, buf); err != nil {
		return err
	}

	// The root directory occupies cluster 2, so cluster 3 is the first free
	// one.
	encode(buf, &fsInfo{
		LeadSignature:   fsInfoLeadSignature,
		StructSignature: fsInfoStructSignature,
		FreeCount:       g.FreeClusters(),
		NextFree:        fat32RootCluster + 1,
		TrailSignature:  fsInfoTrailSignature,
	})
	if err := w.write(p+fat32FSInfoSector, buf); err != nil {
		return err
	}
	return w.write(p+fat32BackupBootSector+fat32FSInfoSector, buf)
}

// initFAT clears both FATs (and the FAT16 root directory or the FAT32
// root cluster), then writes the reserved entries at the start of each
// FAT.
func (w *sectorWriter) initFAT(g Geometry, buf []byte) error {
	// The first FAT sector is written below.
	if err := w.zero(g.FATStart+1, g.DataStart-g.FATStart-1); err != nil {
		return err
	}
	if g.Family == FAT32 {
		if err := w.zero(g.DataStart, g.SectorsPerCluster); err != nil {
			return err
		}
	}

	zero(buf)
	if g.Family == FAT16 {
		buf[0] = hardDisk
		buf[1] = 0xFF
		buf[2] = 0xFF
		buf[3] = 0xFF
	} else {
		// Entries 0 and 1 are reserved, entry 2 ends the root directory.
		binary.LittleEndian.PutUint32(buf[0:], 0xFFFFFF00|uint32(hardDisk))
		binary.LittleEndian.PutUint32(buf[4:], 0xFFFFFFFF)
		binary.LittleEndian.PutUint32(buf[8:], 0xFFFFFFFF)
	}
	for i := uint32(0); i < 2; i++ {
		if err := w.write(g.FATStart+i*g.FATSize, buf); err != nil {
			return err
		}
	}
	return nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
