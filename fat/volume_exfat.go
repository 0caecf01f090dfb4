package fat

import (
	"encoding/binary"
	"math/bits"

	"github.com/pkg/errors"

	"github.com/gokrazy/fatfmt/blockdev"
)

const exfatEndOfChain = 0xFFFFFFF8

// ExFATVolume is an exFAT volume.
type ExFATVolume struct {
	dev          blockdev.Device
	start        uint32
	shift        uint8
	fatStart     uint32
	fatLength    uint32
	heapStart    uint32
	clusterCount uint32
	rootCluster  uint32
	serial       uint32
}

func probeExFAT(dev blockdev.Device, start uint32, buf []byte) (*ExFATVolume, error) {
	var bs exfatBootSector
	if err := decode(buf, &bs); err != nil {
		return nil, err
	}
	if bs.FileSystemName != exfatName || bs.BootSignature != bootSignature {
		return nil, notFS("not exFAT")
	}
	if bs.BytesPerSectorShift != 9 {
		return nil, notFS("exFAT with %d byte sectors", 1<<bs.BytesPerSectorShift)
	}
	// Clusters are at most 32 MiB.
	if bs.SectorsPerClusterShift > 25-9 {
		return nil, notFS("exFAT sectors per cluster shift %d", bs.SectorsPerClusterShift)
	}
	if bs.NumberOfFATs == 0 || bs.NumberOfFATs > 2 {
		return nil, notFS("exFAT with %d FATs", bs.NumberOfFATs)
	}
	if bs.VolumeLength > uint64(dev.SectorCount()-start) ||
		uint64(bs.ClusterHeapOffset)+uint64(bs.ClusterCount)<<bs.SectorsPerClusterShift > bs.VolumeLength ||
		uint64(bs.FATOffset)+uint64(bs.FATLength)*uint64(bs.NumberOfFATs) > uint64(bs.ClusterHeapOffset) {
		return nil, notFS("exFAT regions exceed the volume")
	}
	if bs.RootDirectoryCluster < 2 || bs.RootDirectoryCluster >= bs.ClusterCount+2 {
		return nil, notFS("exFAT root directory cluster %d", bs.RootDirectoryCluster)
	}
	if err := verifyBootChecksum(dev, start, buf); err != nil {
		return nil, err
	}
	return &ExFATVolume{
		dev:          dev,
		start:        start,
		shift:        bs.SectorsPerClusterShift,
		fatStart:     start + bs.FATOffset,
		fatLength:    bs.FATLength,
		heapStart:    start + bs.ClusterHeapOffset,
		clusterCount: bs.ClusterCount,
		rootCluster:  bs.RootDirectoryCluster,
		serial:       bs.VolumeSerialNumber,
	}, nil
}

// verifyBootChecksum compares the checksum of sectors 0 to 10 of the boot
// region starting at start against sector 11. boot holds sector 0.
func verifyBootChecksum(dev blockdev.Device, start uint32, boot []byte) error {
	sum := bootChecksum(0, boot, true)
	s := blockdev.NewScanner(dev, start+1, bootRegionChecksummed)
	for s.Next() {
		if s.Sector() == start+bootRegionChecksummed {
			b := s.Bytes()
			for i := 0; i < sectorSize; i += 4 {
				if got := binary.LittleEndian.Uint32(b[i:]); got != sum {
					return notFS("exFAT boot checksum %#x, want %#x", got, sum)
				}
			}
			break
		}
		sum = bootChecksum(sum, s.Bytes(), false)
	}
	return s.Err()
}

func (v *ExFATVolume) Family() Family            { return ExFAT }
func (v *ExFATVolume) BytesPerSector() uint32    { return sectorSize }
func (v *ExFATVolume) SectorsPerCluster() uint32 { return 1 << v.shift }
func (v *ExFATVolume) BytesPerCluster() uint32   { return sectorSize << v.shift }
func (v *ExFATVolume) ClusterCount() uint32      { return v.clusterCount }
func (v *ExFATVolume) PartitionStart() uint32    { return v.start }
func (v *ExFATVolume) FATStartSector() uint32    { return v.fatStart }
func (v *ExFATVolume) DataStartSector() uint32   { return v.heapStart }

// SerialNumber returns the volume serial number.
func (v *ExFATVolume) SerialNumber() uint32 { return v.serial }

// RootDirStartSector returns the first sector of the root directory.
func (v *ExFATVolume) RootDirStartSector() uint32 { return v.clusterSector(v.rootCluster) }

func (v *ExFATVolume) clusterSector(cluster uint32) uint32 {
	return v.heapStart + (cluster-2)<<v.shift
}

func (v *ExFATVolume) next(cluster uint32, buf []byte) (uint32, bool, error) {
	off := cluster * 4
	if err := blockdev.Read(v.dev, v.fatStart+off/sectorSize, buf); err != nil {
		return 0, false, err
	}
	n := binary.LittleEndian.Uint32(buf[off%sectorSize:])
	if n >= exfatEndOfChain {
		return 0, false, nil
	}
	if n < 2 || n >= v.clusterCount+2 {
		return 0, false, errors.Wrapf(ErrBadClusterChain, "cluster %d links to %d", cluster, n)
	}
	return n, true, nil
}

func (v *ExFATVolume) walkRoot(fn func(sector uint32, buf []byte) (bool, error)) error {
	fatBuf := make([]byte, sectorSize)
	cluster := v.rootCluster
	for i := uint32(0); i < v.clusterCount; i++ {
		stop, err := walkSectors(v.dev, v.clusterSector(cluster), 1<<v.shift, fn)
		if err != nil || stop {
			return err
		}
		next, ok, err := v.next(cluster, fatBuf)
		if err != nil || !ok {
			return err
		}
		cluster = next
	}
	return errors.Wrap(ErrBadClusterChain, "root directory chain loops")
}

// bitmap locates the first allocation bitmap through its root directory
// entry.
func (v *ExFATVolume) bitmap() (cluster uint32, length uint64, err error) {
	found := false
	err = v.walkRoot(func(_ uint32, buf []byte) (bool, error) {
		for off := 0; off < len(buf); off += dirEntrySize {
			switch e := buf[off : off+dirEntrySize]; e[0] {
			case entryEnd:
				return true, nil
			case exfatEntryBitmap:
				var be exfatBitmapEntry
				if err := decode(e, &be); err != nil {
					return true, err
				}
				if be.BitmapFlags&1 != 0 {
					continue
				}
				cluster, length, found = be.FirstCluster, be.DataLength, true
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return 0, 0, err
	}
	if !found {
		return 0, 0, notFS("exFAT without allocation bitmap")
	}
	if cluster < 2 || cluster >= v.clusterCount+2 || length < (uint64(v.clusterCount)+7)/8 {
		return 0, 0, notFS("exFAT allocation bitmap at cluster %d, %d bytes", cluster, length)
	}
	return cluster, length, nil
}

// FreeClusterCount counts the clear bits among the first ClusterCount bits
// of the allocation bitmap. The bitmap is assumed to be contiguous, which
// holds for every bitmap Format writes.
func (v *ExFATVolume) FreeClusterCount() (uint32, error) {
	cluster, _, err := v.bitmap()
	if err != nil {
		return 0, err
	}
	todo := v.clusterCount // bits
	var used uint32
	s := blockdev.NewScanner(v.dev, v.clusterSector(cluster), (todo+8*sectorSize-1)/(8*sectorSize))
	for s.Next() {
		buf := s.Bytes()
		for _, b := range buf {
			if todo == 0 {
				break
			}
			if todo < 8 {
				b &= 1<<todo - 1
				todo = 0
			} else {
				todo -= 8
			}
			used += uint32(bits.OnesCount8(b))
		}
	}
	if err := s.Err(); err != nil {
		return 0, err
	}
	return v.clusterCount - used, nil
}
