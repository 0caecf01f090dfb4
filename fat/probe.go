package fat

import (
	"math"

	"github.com/pkg/errors"

	"github.com/gokrazy/fatfmt/blockdev"
	"github.com/gokrazy/fatfmt/gpt"
	"github.com/gokrazy/fatfmt/mbr"
)

// Volume is a mounted-for-inspection FAT16, FAT32 or exFAT volume, as
// returned by Probe. It holds no state besides the geometry, so it stays
// valid while other code writes file data to the device.
type Volume interface {
	Family() Family
	BytesPerSector() uint32
	SectorsPerCluster() uint32
	BytesPerCluster() uint32
	ClusterCount() uint32

	// PartitionStart is the first sector of the volume.
	PartitionStart() uint32
	FATStartSector() uint32
	// DataStartSector is the first sector of cluster 2 (the cluster heap
	// on exFAT).
	DataStartSector() uint32

	// Label returns ErrLabelNotFound if the root directory holds no label.
	Label() (string, error)
	SetLabel(label string) error

	// FreeClusterCount scans the allocation tables. It reads
	// ceil((ClusterCount+2)/entries per sector) FAT sectors, or the
	// allocation bitmap on exFAT.
	FreeClusterCount() (uint32, error)
}

// Probe identifies the file system of partition (1-4, or a GPT partition
// number on disks with a protective MBR) of dev. Partition 0 probes a
// volume starting at sector 0, without partition table.
func Probe(dev blockdev.Device, partition int) (Volume, error) {
	start, err := partitionStart(dev, partition)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, sectorSize)
	if err := blockdev.Read(dev, start, buf); err != nil {
		return nil, err
	}
	if v, err := probeExFAT(dev, start, buf); err == nil {
		return v, nil
	} else if !errors.Is(err, ErrNotAFilesystem) {
		return nil, err
	}
	if v, err := probeFAT(dev, start, buf); err == nil {
		return v, nil
	} else if !errors.Is(err, ErrNotAFilesystem) {
		return nil, err
	}
	return nil, errors.Wrapf(ErrNotAFilesystem, "partition %d at sector %d", partition, start)
}

func partitionStart(dev blockdev.Device, partition int) (uint32, error) {
	if partition == 0 {
		return 0, nil
	}
	if partition < 0 {
		return 0, errors.Wrapf(ErrNoPartition, "partition %d", partition)
	}
	s, err := mbr.Read(dev)
	if err != nil {
		if errors.Is(err, mbr.ErrNoSignature) {
			return 0, errors.Wrap(ErrNotAFilesystem, "no partition table")
		}
		return 0, err
	}
	if s.Partitions[0].Type == mbr.TypeGPTProtective {
		e, err := gpt.Entry(dev, partition)
		if err != nil {
			if errors.Is(err, blockdev.ErrReadFailed) {
				return 0, err
			}
			return 0, errors.Wrapf(ErrNoPartition, "%v", err)
		}
		if e.FirstLBA > math.MaxUint32 {
			return 0, errors.Wrapf(ErrNoPartition, "partition %d starts beyond 2 TiB", partition)
		}
		return uint32(e.FirstLBA), nil
	}
	if partition > mbr.NumPartitions {
		return 0, errors.Wrapf(ErrNoPartition, "partition %d", partition)
	}
	p := s.Partitions[partition-1]
	if p.Type == mbr.TypeEmpty || p.Boot&0x7F != 0 || p.RelativeSectors >= dev.SectorCount() {
		return 0, errors.Wrapf(ErrNoPartition, "partition %d", partition)
	}
	return p.RelativeSectors, nil
}

// notFS marks a failed plausibility check.
func notFS(format string, args ...interface{}) error {
	return errors.Wrapf(ErrNotAFilesystem, format, args...)
}
