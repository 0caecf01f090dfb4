package fat

import (
	"math/bits"

	"github.com/pkg/errors"

	"github.com/gokrazy/fatfmt/mbr"
)

const (
	// Auto selection thresholds: 2 GiB and 32 GiB.
	fat16MaxSectors = 0x400000
	fat32MaxSectors = 0x4000000

	// Allocation unit of the data region alignment, in sectors.
	fat16Align = 128
	fat32Align = 8192

	fat16RootEntries    = 512
	fat16RootDirSectors = fat16RootEntries * dirEntrySize / sectorSize

	fat16MinClusters = 4085
	fat32MinClusters = 65525

	// fat32ReservedMin covers the boot sector, FSInfo, the third boot
	// sector and their backups at sector 6.
	fat32ReservedMin = 9

	fat32RootCluster      = 2
	fat32FSInfoSector     = 1
	fat32BackupBootSector = 6

	// fat32MaxCHS is the last LBA addressable by 1024/255/63 CHS.
	fat32MaxCHS = 1024 * 255 * 63

	exfatMinSectors = 0x100000

	// Clusters 2, 3 and 4 hold the bitmap, the up-case table and the root
	// directory.
	exfatBitmapCluster = 2
	exfatUpcaseCluster = 3
	exfatRootCluster   = 4
)

// Geometry is a planned volume layout. All sector numbers are absolute on
// the device unless noted otherwise.
type Geometry struct {
	Family                 Family
	SectorCount            uint32 // of the whole device
	SectorsPerCluster      uint32
	SectorsPerClusterShift uint8
	PartitionOffset        uint32
	VolumeLength           uint32 // sectors in the partition
	PartType               byte
	ClusterCount           uint32

	// exFAT only, relative to PartitionOffset.
	FATOffset         uint32
	FATLength         uint32
	ClusterHeapOffset uint32

	// FAT16 and FAT32 only.
	ReservedSectorCount uint32
	FATSize             uint32 // sectors per FAT
	FATStart            uint32
	DataStart           uint32
	RootDirSectors      uint32 // FAT16 only
}

// Plan computes the layout of a family volume spanning a device of
// totalSectors sectors. Auto and FAT are resolved by size first. Plan does
// not touch any device.
func Plan(totalSectors uint32, family Family) (Geometry, error) {
	switch f := family.resolve(totalSectors); f {
	case FAT16, FAT32:
		return planFAT(totalSectors, f)
	case ExFAT:
		return planExFAT(totalSectors)
	default:
		return Geometry{}, errors.Wrapf(ErrUnknownFamily, "%v", family)
	}
}

// CheckClusterCount returns ErrBadClusterCount unless clusterCount is
// within the range which identifies family.
func CheckClusterCount(family Family, clusterCount uint32) error {
	switch family {
	case FAT16:
		if clusterCount < fat16MinClusters || clusterCount >= fat32MinClusters {
			return errors.Wrapf(ErrBadClusterCount, "FAT16 with %d clusters", clusterCount)
		}
	case FAT32:
		if clusterCount < fat32MinClusters {
			return errors.Wrapf(ErrBadClusterCount, "FAT32 with %d clusters", clusterCount)
		}
	case ExFAT:
		if clusterCount == 0 {
			return errors.Wrapf(ErrBadClusterCount, "exFAT with %d clusters", clusterCount)
		}
	default:
		return errors.Wrapf(ErrUnknownFamily, "%v", family)
	}
	return nil
}

// sectorsPerCluster returns the cluster size for a FAT volume of
// capacityMB MiB, or 0 if the volume is too small.
func sectorsPerCluster(capacityMB uint32) uint32 {
	switch {
	case capacityMB <= 6:
		return 0
	case capacityMB <= 16:
		return 2
	case capacityMB <= 32:
		return 4
	case capacityMB <= 64:
		return 8
	case capacityMB <= 128:
		return 16
	case capacityMB <= 1024:
		return 32
	case capacityMB <= 32768:
		return 64
	}
	return 128 // SDXC
}

func planFAT(totalSectors uint32, family Family) (Geometry, error) {
	capacityMB := mbr.CapacityMB(totalSectors)
	spc := sectorsPerCluster(capacityMB)
	if spc == 0 {
		return Geometry{}, errors.Wrapf(ErrVolumeTooSmall, "%d MiB", capacityMB)
	}
	g := Geometry{
		Family:                 family,
		SectorCount:            totalSectors,
		SectorsPerCluster:      spc,
		SectorsPerClusterShift: uint8(bits.TrailingZeros32(spc)),
	}
	if family == FAT16 {
		return g, g.planFAT16()
	}
	return g, g.planFAT32()
}

func (g *Geometry) planFAT16() error {
	// Place the data region on a fat16Align boundary and the partition
	// start as late as the reserved sector, both FATs and the root
	// directory allow.
	var nc, r uint32
	for g.DataStart = 2 * fat16Align; ; g.DataStart += fat16Align {
		if g.DataStart >= g.SectorCount {
			return errors.Wrapf(ErrVolumeTooSmall, "%d sectors", g.SectorCount)
		}
		nc = (g.SectorCount - g.DataStart) / g.SectorsPerCluster
		g.FATSize = (nc + 2 + sectorSize/2 - 1) / (sectorSize / 2)
		r = fat16Align + 1 + 2*g.FATSize + fat16RootDirSectors
		if g.DataStart >= r {
			break
		}
	}
	if err := CheckClusterCount(FAT16, nc); err != nil {
		return err
	}
	g.ClusterCount = nc
	g.PartitionOffset = g.DataStart - r + fat16Align
	g.ReservedSectorCount = 1
	g.RootDirSectors = fat16RootDirSectors
	g.FATStart = g.PartitionOffset + g.ReservedSectorCount
	g.VolumeLength = nc*g.SectorsPerCluster + 2*g.FATSize + g.ReservedSectorCount + fat16RootDirSectors
	if g.VolumeLength < 65536 {
		g.PartType = mbr.TypeFAT16Small
	} else {
		g.PartType = mbr.TypeFAT16
	}
	return nil
}

func (g *Geometry) planFAT32() error {
	for {
		err := g.layoutFAT32()
		if err == nil || !errors.Is(err, ErrBadClusterCount) || g.SectorsPerCluster == 1 {
			return err
		}
		// Devices just above 2 GiB have too few clusters at the
		// recommended cluster size.
		g.SectorsPerCluster /= 2
		g.SectorsPerClusterShift--
	}
}

func (g *Geometry) layoutFAT32() error {
	g.PartitionOffset = fat32Align
	var nc uint32
	for g.DataStart = 2 * fat32Align; ; g.DataStart += fat32Align {
		if g.DataStart >= g.SectorCount {
			return errors.Wrapf(ErrVolumeTooSmall, "%d sectors", g.SectorCount)
		}
		nc = (g.SectorCount - g.DataStart) / g.SectorsPerCluster
		g.FATSize = (nc + 2 + sectorSize/4 - 1) / (sectorSize / 4)
		if g.DataStart >= g.PartitionOffset+fat32ReservedMin+2*g.FATSize {
			break
		}
	}
	if err := CheckClusterCount(FAT32, nc); err != nil {
		return err
	}
	g.ClusterCount = nc
	g.ReservedSectorCount = g.DataStart - g.PartitionOffset - 2*g.FATSize
	g.FATStart = g.PartitionOffset + g.ReservedSectorCount
	g.VolumeLength = nc*g.SectorsPerCluster + g.DataStart - g.PartitionOffset
	// The partition type depends on whether CHS can address the last sector.
	if g.PartitionOffset+g.VolumeLength <= fat32MaxCHS {
		g.PartType = mbr.TypeFAT32CHS
	} else {
		g.PartType = mbr.TypeFAT32LBA
	}
	return nil
}

func planExFAT(totalSectors uint32) (Geometry, error) {
	if totalSectors < exfatMinSectors {
		return Geometry{}, errors.Wrapf(ErrVolumeTooSmall, "%d sectors", totalSectors)
	}
	vs := uint8(bits.Len32(totalSectors - 1))
	shift := uint8(8)
	if vs >= 29 {
		shift = (vs - 11) / 2
	}
	fatLengthShift := uint8(13)
	if vs >= 27 {
		fatLengthShift = (vs + 1) / 2
	}
	fatLength := uint32(1) << fatLengthShift
	g := Geometry{
		Family:                 ExFAT,
		SectorCount:            totalSectors,
		SectorsPerCluster:      1 << shift,
		SectorsPerClusterShift: shift,
		PartitionOffset:        2 * fatLength,
		PartType:               mbr.TypeExFAT,
		FATOffset:              fatLength,
		FATLength:              fatLength,
		ClusterHeapOffset:      2 * fatLength,
		ClusterCount:           (totalSectors - 4*fatLength) >> shift,
	}
	g.VolumeLength = g.ClusterHeapOffset + g.ClusterCount<<shift
	if err := CheckClusterCount(ExFAT, g.ClusterCount); err != nil {
		return Geometry{}, err
	}
	return g, nil
}

// BytesPerCluster returns the cluster size in bytes.
func (g Geometry) BytesPerCluster() uint32 {
	return g.SectorsPerCluster * sectorSize
}

// FreeClusters returns the number of free clusters on a freshly
// formatted volume. The FAT32 root directory and the exFAT bitmap, up-case
// table and root directory occupy one cluster each.
func (g Geometry) FreeClusters() uint32 {
	switch g.Family {
	case FAT32:
		return g.ClusterCount - 1
	case ExFAT:
		return g.ClusterCount - 3
	}
	return g.ClusterCount
}
