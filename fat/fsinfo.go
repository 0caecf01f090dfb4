package fat

import (
	"github.com/pkg/errors"

	"github.com/gokrazy/fatfmt/blockdev"
)

func (v *FATVolume) readFSInfo(buf []byte) (*fsInfo, error) {
	if v.fsInfo == 0 {
		return nil, errors.Wrapf(ErrNoFSInfo, "%v volume", v.family)
	}
	if err := blockdev.Read(v.dev, v.fsInfo, buf); err != nil {
		return nil, err
	}
	var fi fsInfo
	if err := decode(buf, &fi); err != nil {
		return nil, err
	}
	if !fi.valid() {
		return nil, errors.Wrapf(ErrCorruptFSInfo, "sector %d", v.fsInfo)
	}
	return &fi, nil
}

// CachedFreeCount returns the free cluster count recorded in the FAT32
// FSInfo sector. Counts the FSInfo sector marks as unknown, or which
// exceed the cluster count, yield ErrStaleFSInfo: use FreeClusterCount
// then.
func (v *FATVolume) CachedFreeCount() (uint32, error) {
	fi, err := v.readFSInfo(make([]byte, sectorSize))
	if err != nil {
		return 0, err
	}
	if fi.FreeCount == fsInfoUnknown || fi.FreeCount > v.clusterCount {
		return 0, errors.Wrapf(ErrStaleFSInfo, "free count %#x", fi.FreeCount)
	}
	return fi.FreeCount, nil
}

// SetCachedFreeCount records free in the FSInfo sector and its backup.
// Counts above the cluster count, other than the unknown marker, yield
// ErrStaleFSInfo.
func (v *FATVolume) SetCachedFreeCount(free uint32) error {
	if free > v.clusterCount && free != fsInfoUnknown {
		return errors.Wrapf(ErrStaleFSInfo, "free count %d exceeds %d clusters", free, v.clusterCount)
	}
	buf := make([]byte, sectorSize)
	fi, err := v.readFSInfo(buf)
	if err != nil {
		return err
	}
	fi.FreeCount = free
	encode(buf, fi)
	if err := blockdev.Write(v.dev, v.fsInfo, buf); err != nil {
		return err
	}
	if v.backupBoot == 0 {
		return nil
	}
	return blockdev.Write(v.dev, v.fsInfo+v.backupBoot, buf)
}

// UpdateCachedFreeCount scans the FAT and records the result in the
// FSInfo sector.
func (v *FATVolume) UpdateCachedFreeCount() (uint32, error) {
	free, err := v.FreeClusterCount()
	if err != nil {
		return 0, err
	}
	return free, v.SetCachedFreeCount(free)
}
