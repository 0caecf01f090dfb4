package fat

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

var exfatJumpCode = [3]byte{0xEB, 0x76, 0x90}

const (
	exfatRevision = 0x0100

	// exfatBootRegion is the size of the main and of the backup boot
	// region, in sectors.
	exfatBootRegion = 12

	exfatExtendedBootSectors = 8

	// haltCode fills the boot code: x86 hlt.
	haltCode = 0xF4
)

// formatExFAT writes an exFAT volume of geometry g.
func (w *sectorWriter) formatExFAT(g Geometry, volumeID uint32) error {
	table, tableSum := UpcaseTable()
	clusterBytes := g.BytesPerCluster()
	if uint32(len(table)) > clusterBytes {
		return errors.Wrapf(ErrUpcaseTableOverflow, "%d bytes", len(table))
	}
	bitmapBytes := (g.ClusterCount + 7) / 8
	if bitmapBytes > clusterBytes {
		return errors.Wrapf(ErrBitmapOverflow, "%d bytes", bitmapBytes)
	}
	fatSectors := ((g.ClusterCount+2)*4 + sectorSize - 1) / sectorSize
	bitmapSectors := (bitmapBytes + sectorSize - 1) / sectorSize
	tableSectors := (uint32(len(table)) + sectorSize - 1) / sectorSize
	w.phase("writing exFAT structures", 1+2*exfatBootRegion+fatSectors+bitmapSectors+tableSectors+g.SectorsPerCluster)

	if err := w.writeMBR(g); err != nil {
		return err
	}
	if err := w.writeBootRegion(g, volumeID); err != nil {
		return err
	}

	p := g.PartitionOffset
	buf := make([]byte, sectorSize)

	// FAT: media descriptor entry, reserved entry 1, then the single
	// cluster chains of the bitmap, the up-case table and the root
	// directory.
	buf[0] = hardDisk
	for i := 1; i < (exfatRootCluster+1)*4; i++ {
		buf[i] = 0xFF
	}
	if err := w.write(p+g.FATOffset, buf); err != nil {
		return err
	}
	if err := w.zero(p+g.FATOffset+1, fatSectors-1); err != nil {
		return err
	}

	// Allocation bitmap with clusters 2 to 4 in use.
	zero(buf)
	buf[0] = 0x07
	if err := w.write(p+g.clusterOffset(exfatBitmapCluster), buf); err != nil {
		return err
	}
	if err := w.zero(p+g.clusterOffset(exfatBitmapCluster)+1, bitmapSectors-1); err != nil {
		return err
	}

	upcaseStart := p + g.clusterOffset(exfatUpcaseCluster)
	for i := uint32(0); i < tableSectors; i++ {
		zero(buf)
		copy(buf, table[i*sectorSize:])
		if err := w.write(upcaseStart+i, buf); err != nil {
			return err
		}
	}

	// Root directory: an unused label entry, the bitmap and the up-case
	// table.
	zero(buf)
	encode(buf[0*dirEntrySize:], &exfatLabelEntry{
		EntryType: exfatEntryLabel &^ exfatInUse,
	})
	encode(buf[1*dirEntrySize:], &exfatBitmapEntry{
		EntryType:    exfatEntryBitmap,
		FirstCluster: exfatBitmapCluster,
		DataLength:   uint64(bitmapBytes),
	})
	encode(buf[2*dirEntrySize:], &exfatUpcaseEntry{
		EntryType:     exfatEntryUpcase,
		TableChecksum: tableSum,
		FirstCluster:  exfatUpcaseCluster,
		DataLength:    uint64(len(table)),
	})
	rootStart := p + g.clusterOffset(exfatRootCluster)
	if err := w.write(rootStart, buf); err != nil {
		return err
	}
	return w.zero(rootStart+1, g.SectorsPerCluster-1)
}

// clusterOffset returns the volume relative first sector of cluster.
func (g Geometry) clusterOffset(cluster uint32) uint32 {
	return g.ClusterHeapOffset + (cluster-2)<<g.SectorsPerClusterShift
}

// writeBootRegion writes the main boot region and its backup: boot sector,
// extended boot sectors, OEM parameters, a reserved sector and the
// checksum sector.
func (w *sectorWriter) writeBootRegion(g Geometry, volumeID uint32) error {
	p := g.PartitionOffset
	buf := make([]byte, sectorSize)
	put := func(sector uint32) error {
		if err := w.write(p+sector, buf); err != nil {
			return err
		}
		return w.write(p+exfatBootRegion+sector, buf)
	}

	bs := exfatBootSector{
		JumpCode:               exfatJumpCode,
		FileSystemName:         exfatName,
		PartitionOffset:        uint64(g.PartitionOffset),
		VolumeLength:           uint64(g.VolumeLength),
		FATOffset:              g.FATOffset,
		FATLength:              g.FATLength,
		ClusterHeapOffset:      g.ClusterHeapOffset,
		ClusterCount:           g.ClusterCount,
		RootDirectoryCluster:   exfatRootCluster,
		VolumeSerialNumber:     volumeID,
		FileSystemRevision:     exfatRevision,
		BytesPerSectorShift:    9,
		SectorsPerClusterShift: g.SectorsPerClusterShift,
		NumberOfFATs:           1,
		DriveSelect:            driveNumber,
		BootSignature:          bootSignature,
	}
	for i := range bs.BootCode {
		bs.BootCode[i] = haltCode
	}
	encode(buf, &bs)
	sum := bootChecksum(0, buf, true)
	if err := put(0); err != nil {
		return err
	}

	zero(buf)
	binary.LittleEndian.PutUint16(buf[sectorSize-2:], bootSignature)
	for i := uint32(1); i <= exfatExtendedBootSectors; i++ {
		sum = bootChecksum(sum, buf, false)
		if err := put(i); err != nil {
			return err
		}
	}

	// OEM parameters and the reserved sector stay empty.
	zero(buf)
	for i := uint32(exfatExtendedBootSectors + 1); i < bootRegionChecksummed; i++ {
		sum = bootChecksum(sum, buf, false)
		if err := put(i); err != nil {
			return err
		}
	}

	for i := 0; i < sectorSize; i += 4 {
		binary.LittleEndian.PutUint32(buf[i:], sum)
	}
	return put(bootRegionChecksummed)
}
