package mbr

import (
	diskmbr "github.com/diskfs/go-diskfs/partition/mbr"
	"github.com/diskfs/go-diskfs/util"
	"github.com/pkg/errors"

	"github.com/gokrazy/fatfmt/blockdev"
)

// ErrBadPartition is returned for partition numbers outside 1-4.
var ErrBadPartition = errors.New("partition number out of range")

// DeletePartition removes partition n (1-4) from the table on f. The
// following entries move up one slot and the last slot becomes empty. The
// partition contents and the boot code are left untouched.
func DeletePartition(f util.File, n int) error {
	if n < 1 || n > NumPartitions {
		return errors.Wrapf(ErrBadPartition, "partition %d", n)
	}
	table, err := diskmbr.Read(f, blockdev.SectorSize, blockdev.SectorSize)
	if err != nil {
		return errors.Wrap(err, "reading partition table")
	}
	parts := table.Partitions
	if len(parts) != NumPartitions {
		return errors.Errorf("partition table has %d entries", len(parts))
	}
	copy(parts[n-1:], parts[n:])
	parts[NumPartitions-1] = &diskmbr.Partition{Type: diskmbr.Empty}
	return table.Write(f, 0)
}
