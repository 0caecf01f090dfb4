//go:build !linux

package blockdev

import (
	"io"
	"os"
)

func deviceSize(f *os.File) (int64, error) {
	return f.Seek(0, io.SeekEnd)
}

func logicalSectorSize(f *os.File) (int, error) {
	return SectorSize, nil
}
