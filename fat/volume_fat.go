package fat

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/gokrazy/fatfmt/blockdev"
)

const (
	fat16EndOfChain = 0xFFF8
	fat32EndOfChain = 0x0FFFFFF8
	fat32EntryMask  = 0x0FFFFFFF
)

// FATVolume is a FAT16 or FAT32 volume.
type FATVolume struct {
	dev          blockdev.Device
	family       Family
	start        uint32
	spc          uint32
	fatCount     uint32
	fatSize      uint32
	fatStart     uint32
	rootStart    uint32 // FAT16 fixed root directory
	rootSectors  uint32
	dataStart    uint32
	clusterCount uint32
	rootCluster  uint32 // FAT32
	fsInfo       uint32 // FAT32, absolute; 0 if absent
	backupBoot   uint32 // FAT32, relative to start; 0 if absent
}

func probeFAT(dev blockdev.Device, start uint32, buf []byte) (*FATVolume, error) {
	if binary.LittleEndian.Uint16(buf[510:]) != bootSignature {
		return nil, notFS("no boot signature")
	}
	var bs fat32BootSector
	if err := decode(buf, &bs); err != nil {
		return nil, err
	}
	bpb := &bs.BPB
	if bpb.BytesPerSector != sectorSize {
		return nil, notFS("%d bytes per sector", bpb.BytesPerSector)
	}
	spc := uint32(bpb.SectorsPerCluster)
	if spc == 0 || spc&(spc-1) != 0 {
		return nil, notFS("%d sectors per cluster", spc)
	}
	if bpb.ReservedSectors == 0 {
		return nil, notFS("no reserved sectors")
	}
	if bpb.FATCount == 0 || bpb.FATCount > 2 {
		return nil, notFS("%d FATs", bpb.FATCount)
	}
	fatSize := uint32(bpb.SectorsPerFAT16)
	if fatSize == 0 {
		fatSize = bs.SectorsPerFAT32
	}
	total := uint32(bpb.TotalSectors16)
	if total == 0 {
		total = bpb.TotalSectors32
	}
	if fatSize == 0 || total == 0 {
		return nil, notFS("empty FAT or volume")
	}

	v := &FATVolume{
		dev:         dev,
		start:       start,
		spc:         spc,
		fatCount:    uint32(bpb.FATCount),
		fatSize:     fatSize,
		fatStart:    start + uint32(bpb.ReservedSectors),
		rootSectors: (uint32(bpb.RootEntryCount)*dirEntrySize + sectorSize - 1) / sectorSize,
	}
	v.rootStart = v.fatStart + v.fatCount*fatSize
	v.dataStart = v.rootStart + v.rootSectors
	if uint64(v.dataStart) >= uint64(start)+uint64(total) {
		return nil, notFS("data region beyond volume end")
	}
	v.clusterCount = (start + total - v.dataStart) / spc

	switch {
	case v.clusterCount < fat16MinClusters:
		return nil, notFS("FAT12 volumes are not supported")
	case v.clusterCount < fat32MinClusters:
		if bpb.RootEntryCount == 0 || bpb.SectorsPerFAT16 == 0 {
			return nil, notFS("FAT16 without root directory")
		}
		v.family = FAT16
	default:
		if bpb.RootEntryCount != 0 || bs.RootCluster < 2 {
			return nil, notFS("FAT32 without root cluster")
		}
		v.family = FAT32
		v.rootCluster = bs.RootCluster
		if fsi := uint32(bs.FSInfoSector); fsi != 0 && fsi < uint32(bpb.ReservedSectors) {
			v.fsInfo = start + fsi
		}
		if bk := uint32(bs.BackupBootSector); bk != 0 && bk < uint32(bpb.ReservedSectors) {
			v.backupBoot = bk
		}
	}
	if uint64(v.fatSize)*sectorSize < (uint64(v.clusterCount)+2)*uint64(v.entrySize()) {
		return nil, notFS("FAT of %d sectors too small for %d clusters", v.fatSize, v.clusterCount)
	}
	return v, nil
}

func (v *FATVolume) Family() Family            { return v.family }
func (v *FATVolume) BytesPerSector() uint32    { return sectorSize }
func (v *FATVolume) SectorsPerCluster() uint32 { return v.spc }
func (v *FATVolume) BytesPerCluster() uint32   { return v.spc * sectorSize }
func (v *FATVolume) ClusterCount() uint32      { return v.clusterCount }
func (v *FATVolume) PartitionStart() uint32    { return v.start }
func (v *FATVolume) FATStartSector() uint32    { return v.fatStart }
func (v *FATVolume) DataStartSector() uint32   { return v.dataStart }

// FATSize returns the number of sectors per FAT.
func (v *FATVolume) FATSize() uint32 { return v.fatSize }

// RootDirStartSector returns the first sector of the FAT16 root directory,
// or of the FAT32 root cluster.
func (v *FATVolume) RootDirStartSector() uint32 {
	if v.family == FAT32 {
		return v.clusterSector(v.rootCluster)
	}
	return v.rootStart
}

func (v *FATVolume) entrySize() uint32 {
	if v.family == FAT16 {
		return 2
	}
	return 4
}

func (v *FATVolume) clusterSector(cluster uint32) uint32 {
	return v.dataStart + (cluster-2)*v.spc
}

// next returns the cluster following cluster in its chain, and false at
// the end of the chain.
func (v *FATVolume) next(cluster uint32, buf []byte) (uint32, bool, error) {
	off := cluster * v.entrySize()
	if err := blockdev.Read(v.dev, v.fatStart+off/sectorSize, buf); err != nil {
		return 0, false, err
	}
	off %= sectorSize
	var n uint32
	if v.family == FAT16 {
		if n = uint32(binary.LittleEndian.Uint16(buf[off:])); n >= fat16EndOfChain {
			return 0, false, nil
		}
	} else {
		if n = binary.LittleEndian.Uint32(buf[off:]) & fat32EntryMask; n >= fat32EndOfChain {
			return 0, false, nil
		}
	}
	if n < 2 || n >= v.clusterCount+2 {
		return 0, false, errors.Wrapf(ErrBadClusterChain, "cluster %d links to %d", cluster, n)
	}
	return n, true, nil
}

// walkRoot calls fn with each sector of the root directory until fn
// returns true. Sectors may be modified and written back by fn.
func (v *FATVolume) walkRoot(fn func(sector uint32, buf []byte) (bool, error)) error {
	if v.family == FAT16 {
		_, err := walkSectors(v.dev, v.rootStart, v.rootSectors, fn)
		return err
	}
	fatBuf := make([]byte, sectorSize)
	cluster := v.rootCluster
	// A chain cannot be longer than the number of clusters.
	for i := uint32(0); i < v.clusterCount; i++ {
		if cluster < 2 || cluster >= v.clusterCount+2 {
			return errors.Wrapf(ErrBadClusterChain, "root directory cluster %d", cluster)
		}
		stop, err := walkSectors(v.dev, v.clusterSector(cluster), v.spc, fn)
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

func walkSectors(dev blockdev.Device, start, count uint32, fn func(sector uint32, buf []byte) (bool, error)) (bool, error) {
	s := blockdev.NewScanner(dev, start, count)
	for s.Next() {
		stop, err := fn(s.Sector(), s.Bytes())
		if err != nil || stop {
			return stop, err
		}
	}
	return false, s.Err()
}

// FreeClusterCount counts the zero entries among the ClusterCount+2
// entries of the first FAT.
func (v *FATVolume) FreeClusterCount() (uint32, error) {
	size := v.entrySize()
	perSector := sectorSize / size
	todo := v.clusterCount + 2
	var free uint32
	s := blockdev.NewScanner(v.dev, v.fatStart, (todo+perSector-1)/perSector)
	for s.Next() {
		buf := s.Bytes()
		n := perSector
		if n > todo {
			n = todo
		}
		todo -= n
		for i := uint32(0); i < n; i++ {
			if size == 2 {
				if binary.LittleEndian.Uint16(buf[2*i:]) == 0 {
					free++
				}
			} else if binary.LittleEndian.Uint32(buf[4*i:])&fat32EntryMask == 0 {
				free++
			}
		}
	}
	if err := s.Err(); err != nil {
		return 0, err
	}
	return free, nil
}
